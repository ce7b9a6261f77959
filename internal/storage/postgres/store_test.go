package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatcher/internal/storage/postgres"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRows serves a fixed list of single-column text rows; nil is NULL.
type fakeRows struct {
	tokens []*string
	idx    int
	err    error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.err != nil || r.idx >= len(r.tokens) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	tok := r.tokens[r.idx-1]
	out := dest[0].(*pgtype.Text)
	if tok == nil {
		*out = pgtype.Text{}
		return nil
	}
	*out = pgtype.Text{String: *tok, Valid: true}
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	if tok := r.tokens[r.idx-1]; tok != nil {
		return []any{*tok}, nil
	}
	return []any{nil}, nil
}

func texts(values ...string) []*string {
	out := make([]*string, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}

type fakeQuerier struct {
	rows    *fakeRows
	err     error
	gotSQL  string
	gotArgs []any
}

func (q *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.gotSQL = sql
	q.gotArgs = args
	if q.err != nil {
		return nil, q.err
	}
	return q.rows, nil
}

func TestStore_Fetch(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Success - exact match query", func(t *testing.T) {
		q := &fakeQuerier{rows: &fakeRows{tokens: texts("d1", "", "d2")}}

		endpoints, err := postgres.NewStore(q, "public.device_tokens", newTestLogger()).Fetch(ctx, userID)
		require.NoError(t, err)

		assert.Equal(t, `SELECT token FROM "public"."device_tokens" WHERE user_id = $1`, q.gotSQL)
		assert.Equal(t, []any{userID}, q.gotArgs)
		assert.Equal(t, []push.DeliveryEndpoint{
			{OwnerUserID: userID, Token: "d1"},
			{OwnerUserID: userID, Token: "d2"},
		}, endpoints)
	})

	t.Run("Success - NULL tokens are skipped", func(t *testing.T) {
		q := &fakeQuerier{rows: &fakeRows{tokens: append(append(texts("d1"), nil), texts("d2")...)}}

		endpoints, err := postgres.NewStore(q, "device_tokens", newTestLogger()).Fetch(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []push.DeliveryEndpoint{
			{OwnerUserID: userID, Token: "d1"},
			{OwnerUserID: userID, Token: "d2"},
		}, endpoints)
	})

	t.Run("Success - no rows", func(t *testing.T) {
		q := &fakeQuerier{rows: &fakeRows{}}

		endpoints, err := postgres.NewStore(q, "device_tokens", newTestLogger()).Fetch(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, endpoints)
	})

	t.Run("Failure - query error", func(t *testing.T) {
		q := &fakeQuerier{err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}

		_, err := postgres.NewStore(q, "device_tokens", newTestLogger()).Fetch(ctx, userID)
		assert.ErrorIs(t, err, push.ErrStoreUnavailable)
	})

	t.Run("Failure - iteration error", func(t *testing.T) {
		q := &fakeQuerier{rows: &fakeRows{tokens: texts("d1"), err: errors.New("conn reset")}}

		_, err := postgres.NewStore(q, "device_tokens", newTestLogger()).Fetch(ctx, userID)
		assert.ErrorIs(t, err, push.ErrStoreUnavailable)
	})
}
