package chatdao

import "github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

// Build creates a chat DAO using the standard table names for the given
// environment.
func Build(api dynamodbiface.DynamoDBAPI, env string) *DAO {
	return New(api, MessagesTableName(env), ReceiptsTableName(env), ReactionsTableName(env))
}

func MessagesTableName(env string) string {
	return env + "-huddle--chat-messages"
}

func ReceiptsTableName(env string) string {
	return env + "-huddle--chat-receipts"
}

func ReactionsTableName(env string) string {
	return env + "-huddle--chat-reactions"
}
