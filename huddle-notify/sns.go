package huddlenotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/rs/zerolog"
)

// SNSPusher publishes to SNS mobile platform endpoints.
type SNSPusher struct {
	API    snsiface.SNSAPI
	Dry    bool
	Logger zerolog.Logger
}

var _ Pusher = (*SNSPusher)(nil)

func NewSNSPusher(s *session.Session, dry bool, logger zerolog.Logger) *SNSPusher {
	return &SNSPusher{
		API:    sns.New(s),
		Dry:    dry,
		Logger: logger,
	}
}

type apnsPayload struct {
	APS struct {
		Alert struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"alert"`
	} `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

type fcmPayload struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data,omitempty"`
}

// message builds the per-platform JSON SNS expects with MessageStructure json.
func message(push Push) (string, error) {
	var apns apnsPayload
	apns.APS.Alert.Title = push.Title
	apns.APS.Alert.Body = push.Body
	apns.Data = push.Data

	var fcm fcmPayload
	fcm.Notification.Title = push.Title
	fcm.Notification.Body = push.Body
	fcm.Data = push.Data

	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", err
	}
	fcmJSON, err := json.Marshal(fcm)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(map[string]string{
		"default":      push.Body,
		"APNS":         string(apnsJSON),
		"APNS_SANDBOX": string(apnsJSON),
		"GCM":          string(fcmJSON),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *SNSPusher) Push(ctx context.Context, endpoint string, push Push) error {
	if endpoint == "" {
		return fmt.Errorf("no push endpoint: %w", ErrEndpointDisabled)
	}
	msg, err := message(push)
	if err != nil {
		return fmt.Errorf("failed to encode push: %w", err)
	}
	if p.Dry {
		p.Logger.Info().Str("endpoint", endpoint).Str("title", push.Title).Msg("dry run: skipping push")
		return nil
	}

	_, err = p.API.PublishWithContext(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpoint),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == sns.ErrCodeEndpointDisabledException {
			return fmt.Errorf("%v: %w", endpoint, ErrEndpointDisabled)
		}
		return fmt.Errorf("failed to push to %v: %w", endpoint, err)
	}
	return nil
}
