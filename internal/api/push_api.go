package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-dispatcher/internal/dispatch"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

const maxRequestBytes = 1 << 20

// Dispatcher is the part of dispatch.Dispatcher the API needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload push.NotificationPayload) (*dispatch.Result, error)
}

type PushAPI struct {
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

func NewPushAPI(dispatcher Dispatcher, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "PushAPI"),
	}
}

type sendResponse struct {
	Success   bool `json:"success"`
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
}

// SendPushNotification handles POST /send-push-notification.
func (api *PushAPI) SendPushNotification(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	payload, err := push.DecodeNotificationRequest(raw)
	if err != nil {
		api.Logger.Warn("SendPushNotification: Validation failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := api.Dispatcher.Dispatch(r.Context(), payload)
	switch {
	case errors.Is(err, push.ErrNoRecipients):
		response.WriteJSONError(w, http.StatusNotFound, "No tokens found")
		return
	case err != nil:
		api.Logger.Error("SendPushNotification: Dispatch failed", "user_id", payload.TargetUserID.String(), "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, sendResponse{
		Success:   true,
		Attempted: result.Attempted,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	})
}
