package connectiondao

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

var ErrNotFound = errors.New("connection not found")

// DAO provides access to the WebSocket connections table.
type DAO struct {
	table *ddb.Table
}

// New creates a new connections DAO.
func New(api dynamodbiface.DynamoDBAPI, tableName string) *DAO {
	return &DAO{
		table: ddb.New(api).MustTable(tableName, Connection{}),
	}
}

// Put stores a connection record.
func (d *DAO) Put(ctx context.Context, conn Connection) error {
	if err := d.table.Put(conn).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put connection %v: %w", conn.ConnectionID, err)
	}
	return nil
}

// Get retrieves a connection record by ID, returning ErrNotFound when absent.
func (d *DAO) Get(ctx context.Context, connectionID string) (*Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ConsistentRead(true).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return nil, fmt.Errorf("connection %v: %w", connectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get connection %v: %w", connectionID, err)
	}
	return &conn, nil
}

// Delete removes a connection record by ID. Deleting a missing record is not
// an error.
func (d *DAO) Delete(ctx context.Context, connectionID string) error {
	if err := d.table.Delete(connectionID).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete connection %v: %w", connectionID, err)
	}
	return nil
}
