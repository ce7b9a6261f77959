// Package pipeline feeds notification requests arriving on Pub/Sub into the
// dispatcher.
package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// NotificationPayloadTransformer decodes and validates a raw message into a
// push.NotificationPayload. The message body has the same JSON shape as the
// HTTP request.
func NotificationPayloadTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*push.NotificationPayload, bool, error) {
	payload, err := push.DecodeNotificationRequest(msg.Payload)
	if err != nil {
		// skip=true lets the StreamingService handle the Nack/DLQ logic.
		return nil, true, fmt.Errorf("failed to decode notification request from message %s: %w", msg.ID, err)
	}
	return &payload, false, nil
}
