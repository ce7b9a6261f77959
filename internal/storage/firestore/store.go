package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// FirestoreStore implements push.RecipientStore using Google Cloud Firestore.
// Devices live at {root}/{userID}/devices/{docID}.
type FirestoreStore struct {
	client *firestore.Client
	root   string
	logger *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, root string, logger *slog.Logger) *FirestoreStore {
	if root == "" {
		root = "users"
	}
	return &FirestoreStore{
		client: client,
		root:   root,
		logger: logger.With("component", "FirestoreStore"),
	}
}

// deviceRecord is the document written by the device registration flow.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *FirestoreStore) Fetch(ctx context.Context, userID uuid.UUID) ([]push.DeliveryEndpoint, error) {
	iter := s.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	endpoints := make([]push.DeliveryEndpoint, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: firestore iteration failed: %v", push.ErrStoreUnavailable, err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// A corrupt row must not hide the user's other devices.
			s.logger.Warn("Skipping unreadable device document", "doc", doc.Ref.Path, "err", err)
			continue
		}
		if record.Token == "" {
			continue
		}
		endpoints = append(endpoints, push.DeliveryEndpoint{OwnerUserID: userID, Token: record.Token})
	}

	return endpoints, nil
}

// devicesCollection: {root}/{userID}/devices
func (s *FirestoreStore) devicesCollection(userID uuid.UUID) *firestore.CollectionRef {
	return s.client.Collection(s.root).Doc(userID.String()).Collection("devices")
}
