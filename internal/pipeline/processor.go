package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-pushrelay-service/internal/logctx"
	"github.com/tinywideclouds/go-pushrelay-service/internal/relay"
	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// Sender is the part of relay.Service the processor drives.
type Sender interface {
	Send(ctx context.Context, req relay.SendRequest) (string, error)
}

// NewProcessor hands each decoded message to the relay. Every outcome is
// logged and the message is acked; the ingress adds no redelivery.
func NewProcessor(sender Sender, logger *slog.Logger) messagepipeline.StreamProcessor[PushMessage] {
	logger = logger.With("component", "PushProcessor")

	return func(ctx context.Context, original messagepipeline.Message, req *PushMessage) error {
		procLogger := logger.With("pubsub_msg_id", original.ID)
		ctx = logctx.WithLogger(ctx, procLogger)

		messageID, err := sender.Send(ctx, relay.SendRequest{PubKey: req.PubKey, Msg: req.Msg})
		switch {
		case err == nil:
			procLogger.Info("Push delivered to provider", "message_id", messageID)
		case errors.Is(err, relay.ErrDeviceNotFound):
			procLogger.Info("Dropping push for unknown device", "pub_key", req.PubKey)
		case errors.Is(err, relay.ErrDispatchFailed):
			procLogger.Warn("Dropping push after dispatch failure", "class", dispatch.ClassOf(err).String())
		default:
			procLogger.Error("Dropping push", "err", err)
		}
		return nil
	}
}
