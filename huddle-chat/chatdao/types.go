package chatdao

// Message is immutable once written.
type Message struct {
	MessageID      string `dynamodbav:"pk" ddb:"hash" json:"id"`
	GroupID        string `dynamodbav:"group_id" ddb:"gsi_hash:GroupIndex" json:"groupId"`
	SenderID       string `dynamodbav:"sender_id" json:"senderId"`
	Content        string `dynamodbav:"content" json:"content"`
	IsAnnouncement bool   `dynamodbav:"is_announcement" json:"isAnnouncement"`
	CreatedAt      int64  `dynamodbav:"created_at" json:"createdAt"`
}

// Receipt records that a user has read a message.
// ReceiptID is "{messageId}#{userId}".
type Receipt struct {
	ReceiptID string `dynamodbav:"pk" ddb:"hash" json:"-"`
	MessageID string `dynamodbav:"message_id" ddb:"gsi_hash:MessageIndex" json:"messageId"`
	GroupID   string `dynamodbav:"group_id" json:"groupId"`
	UserID    string `dynamodbav:"user_id" json:"userId"`
	ReadAt    int64  `dynamodbav:"read_at" json:"readAt"`
}

// Reaction is one user's emoji on one message.
// ReactionID is "{messageId}#{userId}#{emoji}".
type Reaction struct {
	ReactionID string `dynamodbav:"pk" ddb:"hash" json:"-"`
	MessageID  string `dynamodbav:"message_id" ddb:"gsi_hash:MessageIndex" json:"messageId"`
	UserID     string `dynamodbav:"user_id" json:"userId"`
	Emoji      string `dynamodbav:"emoji" json:"emoji"`
	CreatedAt  int64  `dynamodbav:"created_at" json:"createdAt"`
}

func ReceiptID(messageID, userID string) string {
	return messageID + "#" + userID
}

func ReactionID(messageID, userID, emoji string) string {
	return messageID + "#" + userID + "#" + emoji
}
