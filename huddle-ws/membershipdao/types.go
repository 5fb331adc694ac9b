package membershipdao

import "time"

// Membership places one connection in one group room.
// MembershipID is "{groupId}#{connectionId}".
type Membership struct {
	MembershipID string `dynamodbav:"pk" ddb:"hash" json:"-"`
	GroupID      string `dynamodbav:"group_id" ddb:"gsi_hash:GroupIndex" json:"groupId"`
	ConnectionID string `dynamodbav:"connection_id" ddb:"gsi_hash:ConnectionIndex" json:"connectionId"`
	UserID       string `dynamodbav:"user_id" json:"userId"`
	Endpoint     string `dynamodbav:"endpoint" json:"endpoint"`
	JoinedAt     int64  `dynamodbav:"joined_at" json:"joinedAt"`
	TTL          int64  `dynamodbav:"ttl" json:"ttl"`
}

func ID(groupID, connectionID string) string {
	return groupID + "#" + connectionID
}

func (m Membership) Expired(now time.Time) bool {
	return m.TTL > 0 && m.TTL <= now.Unix()
}
