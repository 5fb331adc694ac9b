// Package huddlekinesis runs a Kinesis record handler either as a Lambda or,
// in console mode, by consuming the stream directly.
package huddlekinesis

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	consumer "github.com/harlow/kinesis-consumer"
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/rs/zerolog"
)

type HandleMessageCallback func(ctx context.Context, record events.KinesisEventRecord) error

type Handler struct {
	Service    huddlecli.Service
	Logger     zerolog.Logger
	StreamName string

	handleMessage HandleMessageCallback
}

// NewHandler builds a handler reading streamName unless --stream-name
// overrides it.
func NewHandler(
	service huddlecli.Service,
	streamName string,
	handleMessage HandleMessageCallback,
) *Handler {
	return &Handler{
		Service:       service,
		Logger:        huddlecli.Logger(service),
		StreamName:    streamName,
		handleMessage: handleMessage,
	}
}

func (h *Handler) Start() error {
	if !huddlecli.CommonOpts.Console {
		lambda.Start(h.HandleKinesisEvent)
		return nil
	}
	return h.handleRealtime()
}

// HandleKinesisEvent handles every record of the batch. A failed record is
// logged and skipped so one bad record never blocks the shard.
func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	ctx = h.Logger.WithContext(ctx)
	for _, r := range event.Records {
		if err := h.handleMessage(ctx, r); err != nil {
			h.Logger.Error().Err(err).
				Str("event_id", r.EventID).
				Msg("failed to process kinesis record")
		}
	}
	return nil
}

func (h *Handler) handleRealtime() error {
	streamName := KinesisOpts.StreamName
	if streamName == "" {
		streamName = h.StreamName
	}
	var options []consumer.Option
	if KinesisOpts.Replay {
		if ts, ok := replayFrom(); ok {
			options = append(options, consumer.WithShardIteratorType("AT_TIMESTAMP"))
			options = append(options, consumer.WithTimestamp(ts))
		} else {
			options = append(options, consumer.WithShardIteratorType("TRIM_HORIZON"))
		}
	} else {
		options = append(options, consumer.WithShardIteratorType("LATEST"))
	}
	c, err := consumer.New(streamName, options...)
	if err != nil {
		return fmt.Errorf("failed to create consumer for %v: %w", streamName, err)
	}

	ctx := h.Logger.WithContext(context.Background())
	callback := func(record *consumer.Record) error {
		er := events.KinesisEventRecord{
			EventID: aws.StringValue(record.SequenceNumber),
			Kinesis: events.KinesisRecord{
				Data:           record.Data,
				PartitionKey:   aws.StringValue(record.PartitionKey),
				SequenceNumber: aws.StringValue(record.SequenceNumber),
			},
		}
		if err := h.handleMessage(ctx, er); err != nil {
			h.Logger.Error().Err(err).Str("event_id", er.EventID).Msg("failed to process kinesis record")
		}
		return nil
	}
	h.Logger.Info().Str("stream", streamName).Msg("listening")
	return c.Scan(ctx, callback)
}
