// Package dispatch runs one notification request end to end: authorize
// against the messaging gateway, resolve the recipient's devices, and fan the
// notification out to every one of them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-dispatcher/internal/credential"
	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

const (
	defaultStoreTimeout    = 5 * time.Second
	defaultDeliveryTimeout = 10 * time.Second
	defaultMaxConcurrency  = 16
)

// Config bounds the outbound calls of a single dispatch. Token exchange
// timeouts belong to the minter.
type Config struct {
	StoreTimeout    time.Duration
	DeliveryTimeout time.Duration
	MaxConcurrency  int
}

// Result summarises a completed dispatch.
type Result struct {
	Attempted int
	Succeeded int
	Failed    int
	Outcomes  []push.DeliveryOutcome
}

// Dispatcher holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	credentials push.CredentialSource
	minter      push.TokenMinter
	store       push.RecipientStore
	gateway     push.Gateway
	cfg         Config
	logger      *slog.Logger
}

func New(
	cfg Config,
	credentials push.CredentialSource,
	minter push.TokenMinter,
	store push.RecipientStore,
	gateway push.Gateway,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Dispatcher{
		credentials: credentials,
		minter:      minter,
		store:       store,
		gateway:     gateway,
		cfg:         cfg,
		logger:      logger.With("component", "Dispatcher"),
	}
}

// Dispatch delivers payload to every registered device of its target user.
// Any error returned wraps one of the push sentinels; ErrNoRecipients means
// the lookup succeeded but found nothing. Per-device failures never fail the
// dispatch and are reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, payload push.NotificationPayload) (*Result, error) {
	log := d.logger.With("user_id", payload.TargetUserID.String())

	projectID, token, err := d.authorize(ctx)
	if err != nil {
		log.Error("Authorization failed", "err", err)
		return nil, err
	}

	endpoints, err := d.resolve(ctx, payload)
	if err != nil {
		log.Error("Recipient lookup failed", "err", err)
		return nil, err
	}
	if len(endpoints) == 0 {
		log.Info("No devices registered for user")
		return nil, push.ErrNoRecipients
	}

	sender, err := d.gateway.Open(ctx, projectID, token)
	if err != nil {
		if !errors.Is(err, push.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", push.ErrGatewayUnavailable, err)
		}
		log.Error("Gateway session failed", "err", err)
		return nil, err
	}

	result := d.fanOut(ctx, sender, endpoints, payload)
	log.Info("Dispatch completed",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)

	d.evictDeadEndpoints(ctx, log, payload, result)
	return result, nil
}

// authorize loads the credential, normalizes its key and mints a fresh token.
func (d *Dispatcher) authorize(ctx context.Context) (string, push.BearerToken, error) {
	cred, err := d.credentials.Load()
	if err != nil {
		return "", push.BearerToken{}, err
	}

	key, err := credential.NormalizePrivateKey(cred.PrivateKeyPEM)
	if err != nil {
		return "", push.BearerToken{}, err
	}
	cred.PrivateKeyPEM = key

	token, err := d.minter.Mint(ctx, cred)
	if err != nil {
		if !errors.Is(err, push.ErrTokenAcquisition) {
			err = fmt.Errorf("%w: %v", push.ErrTokenAcquisition, err)
		}
		return "", push.BearerToken{}, err
	}
	return cred.ProjectID, token, nil
}

func (d *Dispatcher) resolve(ctx context.Context, payload push.NotificationPayload) ([]push.DeliveryEndpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.StoreTimeout)
	defer cancel()

	endpoints, err := d.store.Fetch(ctx, payload.TargetUserID)
	if err != nil {
		if !errors.Is(err, push.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", push.ErrStoreUnavailable, err)
		}
		return nil, err
	}
	return endpoints, nil
}

// fanOut issues one delivery per endpoint. Each goroutine owns its slot in
// the outcomes slice.
func (d *Dispatcher) fanOut(ctx context.Context, sender push.Sender, endpoints []push.DeliveryEndpoint, payload push.NotificationPayload) *Result {
	outcomes := make([]push.DeliveryOutcome, len(endpoints))

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, sender, endpoint, payload)
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Attempted: len(endpoints), Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Succeeded() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, sender push.Sender, endpoint push.DeliveryEndpoint, payload push.NotificationPayload) push.DeliveryOutcome {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	outcome := push.DeliveryOutcome{Token: endpoint.Token}
	outcome.MessageID, outcome.Err = sender.Send(ctx, endpoint, payload)
	if outcome.Err != nil {
		outcome.Unregistered = errors.Is(outcome.Err, push.ErrEndpointUnregistered)
		d.logger.Warn("Delivery failed",
			"user_id", payload.TargetUserID.String(),
			"token", redact(endpoint.Token),
			"unregistered", outcome.Unregistered,
			"err", outcome.Err,
		)
	}
	return outcome
}

// evictDeadEndpoints drops cached endpoints when a token was reported dead.
func (d *Dispatcher) evictDeadEndpoints(ctx context.Context, log *slog.Logger, payload push.NotificationPayload, result *Result) {
	inv, ok := d.store.(push.Invalidator)
	if !ok {
		return
	}
	for _, o := range result.Outcomes {
		if o.Unregistered {
			if err := inv.Invalidate(ctx, payload.TargetUserID); err != nil {
				log.Warn("Failed to invalidate cached endpoints", "err", err)
			}
			return
		}
	}
}

// redact keeps only the tail of a device token for logging.
func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return "…" + token[len(token)-8:]
}
