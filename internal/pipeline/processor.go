package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatcher/internal/dispatch"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// Dispatcher delivers one payload to every device of its target user.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload push.NotificationPayload) (*dispatch.Result, error)
}

// NewProcessor hands each decoded payload to the dispatcher. Fatal errors are
// returned so the message is redelivered (and eventually dead-lettered); a
// user without devices is acknowledged and dropped.
func NewProcessor(
	dispatcher Dispatcher,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[push.NotificationPayload] {

	return func(ctx context.Context, original messagepipeline.Message, payload *push.NotificationPayload) error {
		procLogger := logger.With(
			"user_id", payload.TargetUserID.String(),
			"pubsub_msg_id", original.ID,
		)

		result, err := dispatcher.Dispatch(ctx, *payload)
		if errors.Is(err, push.ErrNoRecipients) {
			procLogger.Info("No devices registered for user; dropping notification.")
			return nil
		}
		if err != nil {
			procLogger.Error("Dispatch failed", "err", err)
			return err
		}

		procLogger.Info("Notification dispatched",
			"attempted", result.Attempted,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
		)
		return nil
	}
}
