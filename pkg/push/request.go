package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidRequest wraps every decode or validation failure of an inbound
// NotificationRequest.
var ErrInvalidRequest = errors.New("invalid notification request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// NotificationRequest is the wire form of a NotificationPayload, shared by the
// HTTP endpoint and the Pub/Sub ingestion path.
type NotificationRequest struct {
	UserID string            `json:"user_id" validate:"required,uuid"`
	Title  string            `json:"title" validate:"required"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
}

// DecodeNotificationRequest parses and validates a JSON request body.
func DecodeNotificationRequest(raw []byte) (NotificationPayload, error) {
	var req NotificationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NotificationPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req.ToPayload()
}

// ToPayload validates the request and converts it to the domain payload.
func (r NotificationRequest) ToPayload() (NotificationPayload, error) {
	if err := validate.Struct(r); err != nil {
		return NotificationPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return NotificationPayload{}, fmt.Errorf("%w: user_id: %v", ErrInvalidRequest, err)
	}
	data := r.Data
	if data == nil {
		data = map[string]string{}
	}
	return NotificationPayload{
		TargetUserID: userID,
		Title:        r.Title,
		Body:         r.Body,
		Data:         data,
	}, nil
}
