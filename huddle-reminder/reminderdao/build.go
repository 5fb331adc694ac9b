package reminderdao

import "github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

func Build(api dynamodbiface.DynamoDBAPI, env string) *DAO {
	return New(api, TableName(env))
}

func TableName(env string) string {
	return env + "-huddle--reminders"
}
