package huddledirectory

import "github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

// Build creates a directory DAO using the standard table names for the given
// environment.
func Build(api dynamodbiface.DynamoDBAPI, env string) *DAO {
	return New(api, UsersTableName(env), MembersTableName(env))
}

func UsersTableName(env string) string {
	return env + "-huddle--users"
}

func MembersTableName(env string) string {
	return env + "-huddle--group-members"
}
