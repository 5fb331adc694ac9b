package huddledirectory

// User is the directory entry consulted at connect time and when delivering
// notifications.
type User struct {
	UserID       string `dynamodbav:"pk" ddb:"hash"`
	Email        string `dynamodbav:"email,omitempty"`
	Banned       bool   `dynamodbav:"banned"`
	PushEnabled  bool   `dynamodbav:"push_enabled"`
	EmailEnabled bool   `dynamodbav:"email_enabled"`
	PushEndpoint string `dynamodbav:"push_endpoint,omitempty"` // SNS platform endpoint ARN
}

// GroupMember is durable group membership. It decides authorization for chat
// actions; live presence in a room is tracked separately by huddlews.
// MemberID is "{groupId}#{userId}".
type GroupMember struct {
	MemberID string `dynamodbav:"pk" ddb:"hash"`
	GroupID  string `dynamodbav:"group_id" ddb:"gsi_hash:GroupIndex"`
	UserID   string `dynamodbav:"user_id" ddb:"gsi_hash:UserIndex"`
	JoinedAt int64  `dynamodbav:"joined_at"`
}

func MemberID(groupID, userID string) string {
	return groupID + "#" + userID
}
