// Package huddlecron runs a task once per invocation of a scheduled Lambda.
package huddlecron

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service huddlecli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service huddlecli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  huddlecli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("running scheduled task")
	return h.runOnce(h.logger.WithContext(ctx))
}

func (h *Handler) Start() error {
	switch {
	case huddlecli.CommonOpts.Console:
		return h.RunOnce(context.Background(), nil)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
