// Package chatdao stores chat messages, read receipts and reactions.
package chatdao

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

var ErrNotFound = errors.New("message not found")

type DAO struct {
	api            dynamodbiface.DynamoDBAPI
	messages       *ddb.Table
	receipts       *ddb.Table
	reactions      *ddb.Table
	receiptsTable  string
	reactionsTable string
}

func New(api dynamodbiface.DynamoDBAPI, messagesTable, receiptsTable, reactionsTable string) *DAO {
	client := ddb.New(api)
	return &DAO{
		api:            api,
		messages:       client.MustTable(messagesTable, Message{}),
		receipts:       client.MustTable(receiptsTable, Receipt{}),
		reactions:      client.MustTable(reactionsTable, Reaction{}),
		receiptsTable:  receiptsTable,
		reactionsTable: reactionsTable,
	}
}

func (d *DAO) PutMessage(ctx context.Context, m Message) error {
	if err := d.messages.Put(m).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put message %v: %w", m.MessageID, err)
	}
	return nil
}

// GetMessage returns ErrNotFound for unknown ids.
func (d *DAO) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	if err := d.messages.Get(messageID).ScanWithContext(ctx, &m); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("message %v: %w", messageID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message %v: %w", messageID, err)
	}
	return &m, nil
}

// PutReceipt writes the receipt unless one already exists for the same
// message and user. It reports whether a new receipt was written; the first
// readAt wins.
func (d *DAO) PutReceipt(ctx context.Context, r Receipt) (bool, error) {
	r.ReceiptID = ReceiptID(r.MessageID, r.UserID)
	created, err := d.putIfAbsent(ctx, d.receiptsTable, r)
	if err != nil {
		return false, fmt.Errorf("failed to put receipt %v: %w", r.ReceiptID, err)
	}
	return created, nil
}

func (d *DAO) ReceiptsOf(ctx context.Context, messageID string) ([]Receipt, error) {
	var rs []Receipt
	err := d.receipts.Query("#MessageID = ?", messageID).
		IndexName("MessageIndex").
		FindAllWithContext(ctx, &rs)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts of %v: %w", messageID, err)
	}
	return rs, nil
}

// ToggleReaction adds the reaction when absent and removes it when present.
// It reports whether the reaction now exists.
func (d *DAO) ToggleReaction(ctx context.Context, r Reaction) (bool, error) {
	r.ReactionID = ReactionID(r.MessageID, r.UserID, r.Emoji)
	created, err := d.putIfAbsent(ctx, d.reactionsTable, r)
	if err != nil {
		return false, fmt.Errorf("failed to put reaction %v: %w", r.ReactionID, err)
	}
	if created {
		return true, nil
	}
	if err := d.reactions.Delete(r.ReactionID).RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("failed to delete reaction %v: %w", r.ReactionID, err)
	}
	return false, nil
}

func (d *DAO) ReactionsOf(ctx context.Context, messageID string) ([]Reaction, error) {
	var rs []Reaction
	err := d.reactions.Query("#MessageID = ?", messageID).
		IndexName("MessageIndex").
		FindAllWithContext(ctx, &rs)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions of %v: %w", messageID, err)
	}
	return rs, nil
}

func (d *DAO) putIfAbsent(ctx context.Context, tableName string, v interface{}) (bool, error) {
	item, err := dynamodbattribute.MarshalMap(v)
	if err != nil {
		return false, fmt.Errorf("failed to marshal item: %w", err)
	}
	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
