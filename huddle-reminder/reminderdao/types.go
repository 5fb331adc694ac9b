package reminderdao

import "time"

// Reminder fires once at Datetime. Notified flips to true exactly once.
type Reminder struct {
	ReminderID string    `dynamodbav:"pk" ddb:"hash" json:"id"`
	UserID     string    `dynamodbav:"user_id" ddb:"gsi_hash:UserIndex" json:"userId"`
	EventID    string    `dynamodbav:"event_id,omitempty" json:"eventId,omitempty"`
	Datetime   time.Time `dynamodbav:"datetime,unixtime" json:"datetime"`
	Label      string    `dynamodbav:"label" json:"label"`
	Note       string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
	Notified   bool      `dynamodbav:"notified" json:"notified"`
	NotifiedAt int64     `dynamodbav:"notified_at,omitempty" json:"notifiedAt,omitempty"`
}
