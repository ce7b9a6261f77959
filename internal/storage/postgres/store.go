// Package postgres resolves device tokens straight from the backing Postgres
// database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements push.RecipientStore with a single exact-match query.
type Store struct {
	db     Querier
	query  string
	logger *slog.Logger
}

// NewPool opens a pool and fails fast when the database is unreachable.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// NewStore reads from table (optionally schema qualified), which must have
// user_id (uuid) and token (text) columns.
func NewStore(db Querier, table string, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		query:  fmt.Sprintf("SELECT token FROM %s WHERE user_id = $1", pgx.Identifier(strings.Split(table, ".")).Sanitize()),
		logger: logger.With("component", "PostgresStore"),
	}
}

func (s *Store) Fetch(ctx context.Context, userID uuid.UUID) ([]push.DeliveryEndpoint, error) {
	rows, err := s.db.Query(ctx, s.query, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[pgtype.Text])
	if err != nil {
		return nil, s.storeErr(err)
	}

	endpoints := make([]push.DeliveryEndpoint, 0, len(tokens))
	for _, token := range tokens {
		// NULL and empty tokens are half-registered devices.
		if !token.Valid || token.String == "" {
			continue
		}
		endpoints = append(endpoints, push.DeliveryEndpoint{OwnerUserID: userID, Token: token.String})
	}
	return endpoints, nil
}

func (s *Store) storeErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		s.logger.Error("Token query failed", "code", pgErr.Code, "err", err)
	} else {
		s.logger.Error("Token query failed", "err", err)
	}
	return fmt.Errorf("%w: %v", push.ErrStoreUnavailable, err)
}
