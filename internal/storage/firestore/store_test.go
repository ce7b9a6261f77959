//go:build integration

package firestore_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-push-dispatcher/internal/storage/firestore"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupSuite(t *testing.T) (context.Context, *firestore.Client, *fs.FirestoreStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	projectID := "test-recipient-store"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := fs.NewFirestoreStore(client, "users", newTestLogger())
	return ctx, client, store
}

func seedDevice(t *testing.T, ctx context.Context, client *firestore.Client, userID uuid.UUID, docID string, data map[string]any) {
	t.Helper()
	_, err := client.Collection("users").Doc(userID.String()).Collection("devices").Doc(docID).Set(ctx, data)
	require.NoError(t, err)
}

func TestFirestoreStore_Integration(t *testing.T) {
	ctx, client, store := setupSuite(t)

	t.Run("Fan-Out Fetch returns every device", func(t *testing.T) {
		userID := uuid.New()
		seedDevice(t, ctx, client, userID, "a", map[string]any{"platform": "android", "token": "d1", "updated_at": time.Now()})
		seedDevice(t, ctx, client, userID, "b", map[string]any{"platform": "ios", "token": "d2", "updated_at": time.Now()})
		seedDevice(t, ctx, client, userID, "c", map[string]any{"platform": "ios", "token": ""})

		endpoints, err := store.Fetch(ctx, userID)
		require.NoError(t, err)
		require.Len(t, endpoints, 2)

		tokens := []string{endpoints[0].Token, endpoints[1].Token}
		assert.ElementsMatch(t, []string{"d1", "d2"}, tokens)
		assert.Equal(t, userID, endpoints[0].OwnerUserID)
	})

	t.Run("Unknown user has no devices", func(t *testing.T) {
		endpoints, err := store.Fetch(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, endpoints)
	})

	t.Run("Corrupt document is skipped", func(t *testing.T) {
		userID := uuid.New()
		seedDevice(t, ctx, client, userID, "good", map[string]any{"token": "d1"})
		seedDevice(t, ctx, client, userID, "bad", map[string]any{"token": 42})

		endpoints, err := store.Fetch(ctx, userID)
		require.NoError(t, err)
		require.Len(t, endpoints, 1)
		assert.Equal(t, "d1", endpoints[0].Token)
	})
}
