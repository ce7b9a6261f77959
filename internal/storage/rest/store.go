// Package rest resolves device tokens through a PostgREST endpoint, such as
// the one exposed by a Supabase project.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// Config locates the token table and carries the administrative key.
type Config struct {
	BaseURL    string
	ServiceKey string
	Table      string
	Timeout    time.Duration
	RetryMax   int
}

// Store implements push.RecipientStore over PostgREST.
type Store struct {
	endpoint   string
	serviceKey string
	client     *retryablehttp.Client
	logger     *slog.Logger
}

type tokenRow struct {
	Token string `json:"token"`
}

func NewStore(cfg Config, logger *slog.Logger) *Store {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logger.With("component", "RestStoreHTTP")

	return &Store{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/" + url.PathEscape(cfg.Table),
		serviceKey: cfg.ServiceKey,
		client:     client,
		logger:     logger.With("component", "RestStore"),
	}
}

// Fetch runs an exact-match query on user_id.
func (s *Store) Fetch(ctx context.Context, userID uuid.UUID) ([]push.DeliveryEndpoint, error) {
	query := url.Values{}
	query.Set("select", "token")
	query.Set("user_id", "eq."+userID.String())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrStoreUnavailable, err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", push.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", push.ErrStoreUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("Token query rejected", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: query returned status %d", push.ErrStoreUnavailable, resp.StatusCode)
	}

	var rows []tokenRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding rows: %v", push.ErrStoreUnavailable, err)
	}

	endpoints := make([]push.DeliveryEndpoint, 0, len(rows))
	for _, row := range rows {
		if row.Token == "" {
			continue
		}
		endpoints = append(endpoints, push.DeliveryEndpoint{OwnerUserID: userID, Token: row.Token})
	}
	return endpoints, nil
}
