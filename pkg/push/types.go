// Package push contains the public domain models and contracts for the
// push dispatch service.
package push

import (
	"time"

	"github.com/google/uuid"
)

// ScopeMessaging is the only scope a BearerToken is ever minted for.
const ScopeMessaging = "messaging"

// ServiceCredential identifies the backend to the messaging gateway.
type ServiceCredential struct {
	ClientEmail   string
	PrivateKeyPEM string
	ProjectID     string
}

// BearerToken is a short-lived credential authorizing gateway calls.
type BearerToken struct {
	Value  string
	Scope  string
	Expiry time.Time
}

// DeliveryEndpoint is one registered device of a user.
type DeliveryEndpoint struct {
	OwnerUserID uuid.UUID `json:"owner_user_id"`
	Token       string    `json:"token"`
}

// NotificationPayload is the inbound dispatch request.
type NotificationPayload struct {
	TargetUserID uuid.UUID
	Title        string
	Body         string
	Data         map[string]string
}

// DeliveryOutcome records the result of a single endpoint delivery.
type DeliveryOutcome struct {
	Token     string
	MessageID string
	Err       error
	// Unregistered is set when the gateway reports the token as dead.
	Unregistered bool
}

// Succeeded reports whether the gateway accepted the delivery.
func (o DeliveryOutcome) Succeeded() bool {
	return o.Err == nil
}
