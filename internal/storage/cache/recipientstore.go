// Package cache adds a Redis read-aside layer in front of any recipient store.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// CacheClient stores the device tokens of one user under a key.
type CacheClient interface {
	// Tokens returns an empty slice on a miss.
	Tokens(ctx context.Context, key string) ([]string, error)
	PutTokens(ctx context.Context, key string, tokens []string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedRecipientStore decorates a push.RecipientStore with read-aside caching.
// Empty results are never cached, so a freshly registered device is seen on
// the next dispatch.
type CachedRecipientStore struct {
	realStore push.RecipientStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedRecipientStore(realStore push.RecipientStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedRecipientStore {
	return &CachedRecipientStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedRecipientStore"),
	}
}

func (s *CachedRecipientStore) Fetch(ctx context.Context, userID uuid.UUID) ([]push.DeliveryEndpoint, error) {
	key := s.cacheKey(userID)

	cached, err := s.cache.Tokens(ctx, key)
	if err == nil && len(cached) > 0 {
		endpoints := make([]push.DeliveryEndpoint, 0, len(cached))
		for _, token := range cached {
			endpoints = append(endpoints, push.DeliveryEndpoint{OwnerUserID: userID, Token: token})
		}
		return endpoints, nil
	}
	if err != nil {
		// Caching is an optimization; a broken cache falls through to the store.
		s.logger.Warn("Cache read failed", "key", key, "err", err)
	}

	fresh, err := s.realStore.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		tokens := make([]string, 0, len(fresh))
		for _, e := range fresh {
			tokens = append(tokens, e.Token)
		}
		if err := s.cache.PutTokens(ctx, key, tokens, s.ttl); err != nil {
			s.logger.Warn("Cache write failed", "key", key, "err", err)
		}
	}
	return fresh, nil
}

// Invalidate drops the cached endpoints of a user so the next Fetch goes to
// the source of truth.
func (s *CachedRecipientStore) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return s.cache.Del(ctx, s.cacheKey(userID))
}

func (s *CachedRecipientStore) cacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("push:endpoints:%s", userID.String())
}
