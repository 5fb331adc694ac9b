// Package huddlenotify delivers user notifications by email and mobile push.
package huddlenotify

import (
	"context"
	"errors"
)

var ErrEndpointDisabled = errors.New("push endpoint disabled")

type Email struct {
	To      string
	Subject string
	Text    string
}

type Emailer interface {
	SendEmail(ctx context.Context, email Email) error
}

type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher sends a push notification to a platform endpoint.
type Pusher interface {
	Push(ctx context.Context, endpoint string, push Push) error
}
