// Package huddlesecret loads configuration secrets from AWS Secrets Manager
// into Go structs.
package huddlesecret

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"
)

// NotifySecret holds the shared bearer token the timer service presents to
// the reminder notify endpoint.
type NotifySecret struct {
	Token string `json:"notify_token"`
}

func LoadSecret(s *session.Session, secretName string, data interface{}) error {
	api := secrets.WithSecretsManager(secretsmanager.New(s))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}

	if err := manager.Decode(secretName, data); err != nil {
		return fmt.Errorf("failed to load secret %v: %w", secretName, err)
	}
	return nil
}

var loadSecret = LoadSecret

// LoadNotifyToken returns the notify token, preferring an explicit value
// (local runs) over Secrets Manager.
func LoadNotifyToken(s *session.Session, secretName, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if secretName == "" {
		return "", fmt.Errorf("no notify token configured: set --notify-token or --notify-secret-name")
	}
	var secret NotifySecret
	if err := loadSecret(s, secretName, &secret); err != nil {
		return "", err
	}
	if secret.Token == "" {
		return "", fmt.Errorf("secret %v has an empty notify_token", secretName)
	}
	return secret.Token, nil
}
