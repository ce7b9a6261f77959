package push

import (
	"context"

	"github.com/google/uuid"
)

// CredentialSource loads the gateway signing credential.
type CredentialSource interface {
	Load() (ServiceCredential, error)
}

// TokenMinter exchanges a credential for a messaging-scoped bearer token.
type TokenMinter interface {
	Mint(ctx context.Context, cred ServiceCredential) (BearerToken, error)
}

// RecipientStore resolves the delivery endpoints registered for a user.
// An empty result is not an error.
type RecipientStore interface {
	Fetch(ctx context.Context, userID uuid.UUID) ([]DeliveryEndpoint, error)
}

// Invalidator is implemented by stores that keep a copy of recipient data
// which should be dropped when a token turns out to be dead.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Gateway opens an authorized delivery session against the messaging gateway.
type Gateway interface {
	Open(ctx context.Context, projectID string, token BearerToken) (Sender, error)
}

// Sender delivers a notification to a single endpoint and returns the
// gateway's message id.
type Sender interface {
	Send(ctx context.Context, endpoint DeliveryEndpoint, payload NotificationPayload) (string, error)
}
