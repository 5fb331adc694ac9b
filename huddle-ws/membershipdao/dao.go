package membershipdao

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO provides access to the room memberships table.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
}

// New creates a new memberships DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Membership{}),
		api:       api,
		tableName: tableName,
	}
}

// Put stores a membership record. Writing the same group and connection twice
// overwrites the row, which makes joins idempotent.
func (d *DAO) Put(ctx context.Context, m Membership) error {
	if err := d.table.Put(m).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put membership %v: %w", m.MembershipID, err)
	}
	return nil
}

// Delete removes a membership record by ID.
func (d *DAO) Delete(ctx context.Context, membershipID string) error {
	if err := d.table.Delete(membershipID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete membership %v: %w", membershipID, err)
	}
	return nil
}

// QueryByGroup returns all memberships for a room using the GroupIndex GSI.
func (d *DAO) QueryByGroup(ctx context.Context, groupID string) ([]Membership, error) {
	var ms []Membership
	err := d.table.Query("#GroupID = ?", groupID).
		IndexName("GroupIndex").
		FindAllWithContext(ctx, &ms)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships by group %v: %w", groupID, err)
	}
	return ms, nil
}

// QueryByConnection returns all memberships for a connection using the ConnectionIndex GSI.
func (d *DAO) QueryByConnection(ctx context.Context, connectionID string) ([]Membership, error) {
	var ms []Membership
	err := d.table.Query("#ConnectionID = ?", connectionID).
		IndexName("ConnectionIndex").
		FindAllWithContext(ctx, &ms)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships by connection %v: %w", connectionID, err)
	}
	return ms, nil
}

// DeleteByConnection removes all memberships for a given connection.
func (d *DAO) DeleteByConnection(ctx context.Context, connectionID string) error {
	ms, err := d.QueryByConnection(ctx, connectionID)
	if err != nil {
		return err
	}

	// Batch delete in chunks of 25 (DynamoDB limit)
	const batchSize = 25
	for i := 0; i < len(ms); i += batchSize {
		end := i + batchSize
		if end > len(ms) {
			end = len(ms)
		}
		chunk := ms[i:end]

		writeRequests := make([]*dynamodb.WriteRequest, len(chunk))
		for j, m := range chunk {
			key, err := dynamodbattribute.MarshalMap(map[string]string{"pk": m.MembershipID})
			if err != nil {
				return fmt.Errorf("failed to marshal key for membership %v: %w", m.MembershipID, err)
			}
			writeRequests[j] = &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: key},
			}
		}

		if err := d.batchWrite(ctx, connectionID, writeRequests); err != nil {
			return err
		}
	}

	return nil
}

func (d *DAO) batchWrite(ctx context.Context, connectionID string, writeRequests []*dynamodb.WriteRequest) error {
	unprocessed := map[string][]*dynamodb.WriteRequest{
		d.tableName: writeRequests,
	}

	const maxRetries = 5
	for attempt := 0; attempt < maxRetries; attempt++ {
		output, err := d.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: unprocessed,
		})
		if err != nil {
			return fmt.Errorf("failed to batch delete memberships for connection %v: %w", connectionID, err)
		}
		if len(output.UnprocessedItems) == 0 {
			return nil
		}
		unprocessed = output.UnprocessedItems
		if attempt == maxRetries-1 {
			break
		}
		backoff := time.Duration(1<<attempt) * 100 * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry for connection %v: %w", connectionID, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed to delete all memberships for connection %v: %d items unprocessed after %d retries", connectionID, len(unprocessed[d.tableName]), maxRetries)
}
