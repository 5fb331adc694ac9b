package huddlews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
	"github.com/huddle-events/huddle-core/huddle-ws/membershipdao"
)

// GatewayTransport posts to API Gateway websocket connections through the
// management API of the endpoint recorded on each membership.
type GatewayTransport struct {
	// NewClient builds a management client for an endpoint. Defaults to a
	// client from a fresh session.
	NewClient func(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI

	mgmtMu      sync.RWMutex
	mgmtClients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

var _ Transport = (*GatewayTransport)(nil)

func (t *GatewayTransport) Send(ctx context.Context, member membershipdao.Membership, payload []byte) error {
	return t.Post(ctx, member.Endpoint, member.ConnectionID, payload)
}

// Post sends data to a single connection. A GoneException maps to ErrPeerGone.
func (t *GatewayTransport) Post(ctx context.Context, endpoint, connID string, data []byte) error {
	client := t.getManagementClient(endpoint)
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connID),
		Data:         data,
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("%v: %w", connID, ErrPeerGone)
		}
		return fmt.Errorf("posting to connection %v: %w", connID, err)
	}
	return nil
}

func (t *GatewayTransport) getManagementClient(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	t.mgmtMu.RLock()
	if client, ok := t.mgmtClients[endpoint]; ok {
		t.mgmtMu.RUnlock()
		return client
	}
	t.mgmtMu.RUnlock()

	t.mgmtMu.Lock()
	defer t.mgmtMu.Unlock()

	if client, ok := t.mgmtClients[endpoint]; ok {
		return client
	}
	if t.mgmtClients == nil {
		t.mgmtClients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	var client apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
	if t.NewClient != nil {
		client = t.NewClient(endpoint)
	} else {
		sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
		client = apigatewaymanagementapi.New(sess)
	}
	t.mgmtClients[endpoint] = client
	return client
}

// isGoneException reports whether the management API says the connection no
// longer exists (HTTP 410).
func isGoneException(err error) bool {
	var gone *apigatewaymanagementapi.GoneException
	if errors.As(err, &gone) {
		return true
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusGone {
		return true
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException
}
