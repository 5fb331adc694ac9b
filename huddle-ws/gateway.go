package huddlews

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
)

// Poster sends a reply to a single API Gateway connection.
type Poster interface {
	Post(ctx context.Context, endpoint, connID string, data []byte) error
}

// GatewayHandler handles API Gateway websocket routes. Every invocation is
// stateless; the registry is expected to be a DurableRegistry.
type GatewayHandler struct {
	Registry  Registry
	Directory UserDirectory
	Router    *Router
	Poster    Poster
	Logger    zerolog.Logger
}

// HandleEvent routes an API Gateway websocket event to the appropriate handler.
func (h *GatewayHandler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()
	ctx = logger.WithContext(ctx)

	switch req.RequestContext.RouteKey {
	case "$connect":
		return h.handleConnect(ctx, logger, req)
	case "$disconnect":
		return h.handleDisconnect(ctx, logger, req)
	case "$default":
		return h.handleMessage(ctx, logger, req)
	default:
		logger.Warn().Msg("unknown route")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}
}

func (h *GatewayHandler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := principalID(req)
	meta := ConnectMeta{
		ConnectionID: req.RequestContext.ConnectionID,
		Endpoint:     endpointOf(req),
	}

	if _, err := ConnectAndJoin(ctx, h.Registry, h.Directory, userID, meta); err != nil {
		status := ConnectStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error().Err(err).Str("user_id", userID).Msg("failed to register connection")
		} else {
			logger.Info().Err(err).Str("user_id", userID).Msg("connection rejected")
		}
		return events.APIGatewayProxyResponse{StatusCode: status}, nil
	}

	logger.Info().Str("user_id", userID).Msg("connection established")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func (h *GatewayHandler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.Registry.Disconnect(ctx, req.RequestContext.ConnectionID); err != nil {
		logger.Error().Err(err).Msg("failed to disconnect")
	}
	logger.Info().Msg("connection closed")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func (h *GatewayHandler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connID := req.RequestContext.ConnectionID

	reply, err := h.Router.Dispatch(ctx, connID, []byte(req.Body))
	if reply != nil {
		if sendErr := h.Poster.Post(ctx, endpointOf(req), connID, reply); sendErr != nil {
			logger.Error().Err(sendErr).Msg("failed to send reply")
		}
	}
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

// ConnectStatus maps a connect failure to the handshake status code.
func ConnectStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBanned):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthRejected):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// principalID prefers the authorizer's verified principal and falls back to
// the userId query parameter set by an authenticating proxy.
func principalID(req events.APIGatewayWebsocketProxyRequest) string {
	if authorizer, ok := req.RequestContext.Authorizer.(map[string]interface{}); ok {
		if v, ok := authorizer["principalId"].(string); ok && v != "" {
			return v
		}
	}
	return req.QueryStringParameters["userId"]
}

func endpointOf(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}
