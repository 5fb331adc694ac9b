package huddlenotify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/rs/zerolog"
)

const charset = "UTF-8"

// SESEmailer sends plain text email through SES. With Dry set, emails are
// logged instead of sent.
type SESEmailer struct {
	API    sesiface.SESAPI
	From   string
	Dry    bool
	Logger zerolog.Logger
}

var _ Emailer = (*SESEmailer)(nil)

func NewSESEmailer(s *session.Session, from string, dry bool, logger zerolog.Logger) *SESEmailer {
	return &SESEmailer{
		API:    ses.New(s),
		From:   from,
		Dry:    dry,
		Logger: logger,
	}
}

func (e *SESEmailer) SendEmail(ctx context.Context, email Email) error {
	if email.To == "" {
		return fmt.Errorf("email has no recipient")
	}
	if e.Dry {
		e.Logger.Info().Str("to", email.To).Str("subject", email.Subject).Msg("dry run: skipping email")
		return nil
	}

	_, err := e.API.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source: aws.String(e.From),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(email.To)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charset), Data: aws.String(email.Subject)},
			Body: &ses.Body{
				Text: &ses.Content{Charset: aws.String(charset), Data: aws.String(email.Text)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %v: %w", email.To, err)
	}
	return nil
}
