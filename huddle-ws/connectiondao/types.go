package connectiondao

import "time"

// Connection represents one live transport session for one user.
type Connection struct {
	ConnectionID string `dynamodbav:"pk" ddb:"hash" json:"connectionId"`
	UserID       string `dynamodbav:"user_id" ddb:"gsi_hash:UserIndex" json:"userId"`
	Endpoint     string `dynamodbav:"endpoint" json:"endpoint"`
	ConnectedAt  int64  `dynamodbav:"connected_at" json:"connectedAt"`
	TTL          int64  `dynamodbav:"ttl" json:"ttl"`
}

// Expired reports whether the TTL has passed. DynamoDB deletes expired items
// lazily, so readers check this themselves.
func (c Connection) Expired(now time.Time) bool {
	return c.TTL > 0 && c.TTL <= now.Unix()
}
