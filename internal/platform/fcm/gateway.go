// Package fcm delivers notifications through the Firebase Cloud Messaging
// HTTP v1 API.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// ClientFactory builds a MessagingClient for one project, authorized by ts.
type ClientFactory func(ctx context.Context, projectID string, ts oauth2.TokenSource) (MessagingClient, error)

// NewFirebaseClient is the production ClientFactory. The Firebase app never
// refreshes the token: it only ever sees the bearer token minted for the
// current dispatch.
func NewFirebaseClient(ctx context.Context, projectID string, ts oauth2.TokenSource) (MessagingClient, error) {
	return NewFirebaseClientFactory()(ctx, projectID, ts)
}

// NewFirebaseClientFactory returns a ClientFactory that passes opts (for
// example option.WithEndpoint) to every Firebase app it builds.
func NewFirebaseClientFactory(opts ...option.ClientOption) ClientFactory {
	return func(ctx context.Context, projectID string, ts oauth2.TokenSource) (MessagingClient, error) {
		appOpts := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, appOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return client, nil
	}
}

// Gateway implements push.Gateway on top of FCM.
type Gateway struct {
	newClient ClientFactory
	logger    *slog.Logger
}

func NewGateway(factory ClientFactory, logger *slog.Logger) *Gateway {
	if factory == nil {
		factory = NewFirebaseClient
	}
	return &Gateway{
		newClient: factory,
		logger:    logger.With("component", "FCMGateway"),
	}
}

// Open builds a messaging client bound to the given bearer token.
func (g *Gateway) Open(ctx context.Context, projectID string, token push.BearerToken) (push.Sender, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.Value,
		TokenType:   "Bearer",
		Expiry:      token.Expiry,
	})
	client, err := g.newClient(ctx, projectID, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrGatewayUnavailable, err)
	}
	return &sender{client: client, logger: g.logger.With("project_id", projectID)}, nil
}

type sender struct {
	client MessagingClient
	logger *slog.Logger
}

// Send issues one FCM message for the endpoint. A dead token is reported
// wrapped in push.ErrEndpointUnregistered.
func (s *sender) Send(ctx context.Context, endpoint push.DeliveryEndpoint, payload push.NotificationPayload) (string, error) {
	msg := &messaging.Message{
		Token: endpoint.Token,
		Data:  payload.Data,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		// INVALID_ARGUMENT also covers payload faults, so only UNREGISTERED
		// marks the token dead.
		if messaging.IsUnregistered(err) {
			return "", fmt.Errorf("%w: %v", push.ErrEndpointUnregistered, err)
		}
		return "", fmt.Errorf("fcm send failed: %w", err)
	}
	return id, nil
}
