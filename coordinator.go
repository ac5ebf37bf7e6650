// Package idemgw guarantees at-most-one execution of a side-effecting
// operation per idempotency key, serving duplicate requests the
// previously computed response.
//
// The Coordinator type is the main entry point: create one with New,
// derive keys with its KeyResolver, and wrap business logic with Execute.
// Mutual exclusion rests entirely on the record store's atomic
// conditional insert; the in-process cache is an advisory read-path
// optimization. Behavior (key derivation, TTL, in-progress policy,
// cache bounds, store backend) is configured via [Config], loadable from
// a YAML or JSON file with [LoadConfig].
package idemgw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keystone-labs/idemgw/internal/cache"
	"github.com/keystone-labs/idemgw/internal/logging"
	"github.com/keystone-labs/idemgw/internal/metrics"
	"github.com/keystone-labs/idemgw/store"
)

// Operation is the wrapped business logic. It runs at most once per key
// within the retention window and returns the serialized response
// payload to persist.
type Operation func(ctx context.Context) ([]byte, error)

// Result is the outcome of an idempotent execution.
type Result struct {
	// Payload is the response body, decorated by the configured
	// Transform when served from cache.
	Payload []byte
	// Cached is true when the payload was replayed rather than computed.
	Cached bool
	// StoredAt is when the winning execution persisted the payload.
	StoredAt time.Time
	// ExpiresAt is when the record becomes eligible for fresh execution.
	ExpiresAt time.Time
}

// Coordinator orchestrates key resolution, lock acquisition, business
// logic execution, persistence, and response rehydration.
type Coordinator struct {
	cfg       Config
	store     store.Store
	local     cache.Cache
	resolver  *KeyResolver
	transform Transform
	now       func() time.Time
}

// New creates a Coordinator backed by st. cfg is validated; the TTL must
// be explicit.
func New(cfg Config, st store.Store) (*Coordinator, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:      cfg,
		store:    st,
		resolver: NewKeyResolver(cfg.Key),
		now:      time.Now,
	}
	if cfg.LocalCache.Enabled {
		size := cfg.LocalCache.MaxEntries
		if size == 0 {
			size = DefaultLocalCacheSize
		}
		c.local = cache.NewMemory(size)
	}
	return c, nil
}

// SetTransform installs the cache-hit response transform. A nil
// transform leaves cached payloads undecorated.
func (c *Coordinator) SetTransform(t Transform) {
	c.transform = t
}

// Resolver returns the coordinator's key resolver.
func (c *Coordinator) Resolver() *KeyResolver {
	return c.resolver
}

// TTL returns the configured retention window.
func (c *Coordinator) TTL() time.Duration {
	return time.Duration(c.cfg.TTLSeconds) * time.Second
}

func (c *Coordinator) lease() time.Duration {
	if c.cfg.LeaseSeconds > 0 {
		return time.Duration(c.cfg.LeaseSeconds) * time.Second
	}
	return c.TTL()
}

// Execute runs op at most once for key. Duplicates within the retention
// window receive the persisted payload with Cached set. Business logic
// errors release the key and propagate unchanged.
func (c *Coordinator) Execute(ctx context.Context, key string, op Operation) (Result, error) {
	start := c.now()
	res, err := c.execute(ctx, key, op)
	metrics.RequestDuration.Observe(c.now().Sub(start).Seconds())

	switch {
	case err == nil && res.Cached:
		metrics.RequestsTotal.WithLabelValues("cached").Inc()
	case err == nil:
		metrics.RequestsTotal.WithLabelValues("fresh").Inc()
	case errors.Is(err, ErrInProgress):
		metrics.RequestsTotal.WithLabelValues("conflict").Inc()
	default:
		metrics.RequestsTotal.WithLabelValues("error").Inc()
	}
	return res, err
}

func (c *Coordinator) execute(ctx context.Context, key string, op Operation) (Result, error) {
	log := logging.FromContext(ctx)

	// Advisory fast path. A miss or anomaly here is never an error.
	if c.local != nil {
		if rec, ok := c.local.Get(key); ok {
			metrics.CacheHits.WithLabelValues("local").Inc()
			log.Debug("local cache hit", "key", key)
			return c.replay(rec), nil
		}
	}

	rec, err := c.store.Get(ctx, key)
	switch {
	case err == nil && rec.Status == store.StatusCompleted:
		metrics.CacheHits.WithLabelValues("store").Inc()
		c.cacheLocally(rec)
		log.Debug("store cache hit", "key", key)
		return c.replay(rec), nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return Result{}, storeUnavailable(err)
	}
	// An INPROGRESS record read here is handled by the conditional
	// insert below; racing the winner via Get would be a read-then-write.

	return c.acquireAndRun(ctx, key, op)
}

func (c *Coordinator) acquireAndRun(ctx context.Context, key string, op Operation) (Result, error) {
	now := c.now()
	claim := store.Record{
		ID:        key,
		Status:    store.StatusInProgress,
		Owner:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(c.lease()),
	}

	out, err := c.store.PutIfAbsent(ctx, claim)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("put").Inc()
		return Result{}, storeUnavailable(err)
	}

	if !out.Created {
		if out.Existing.Status == store.StatusCompleted {
			metrics.CacheHits.WithLabelValues("store").Inc()
			c.cacheLocally(out.Existing)
			return c.replay(out.Existing), nil
		}
		return c.handleInProgress(ctx, key, op)
	}

	return c.run(ctx, key, claim.Owner, op)
}

func (c *Coordinator) run(ctx context.Context, key, owner string, op Operation) (Result, error) {
	log := logging.FromContext(ctx)

	payload, err := op(ctx)
	if err != nil {
		// Release the key so a subsequent request may retry. Runs even
		// when the caller's context is already cancelled.
		cleanupCtx := context.WithoutCancel(ctx)
		if delErr := c.store.Delete(cleanupCtx, key, owner); delErr != nil {
			metrics.StoreErrors.WithLabelValues("delete").Inc()
			log.Error("releasing in-progress record failed", "key", key, "error", delErr)
		}
		return Result{}, err
	}

	now := c.now()
	expiresAt := now.Add(c.TTL())
	if err := c.store.Complete(ctx, key, owner, payload, expiresAt); err != nil {
		metrics.StoreErrors.WithLabelValues("complete").Inc()
		return Result{}, storeUnavailable(err)
	}

	c.cacheLocally(store.Record{
		ID:              key,
		Status:          store.StatusCompleted,
		Owner:           owner,
		ResponsePayload: payload,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
	})

	log.Info("request executed", "key", key)
	return Result{Payload: payload, Cached: false, StoredAt: now, ExpiresAt: expiresAt}, nil
}

// handleInProgress applies the configured duplicate-in-flight policy.
func (c *Coordinator) handleInProgress(ctx context.Context, key string, op Operation) (Result, error) {
	if c.policy() == PolicyFail {
		metrics.InProgressConflicts.WithLabelValues("failed").Inc()
		return Result{}, ErrInProgress
	}

	attempts := c.cfg.InProgress.WaitAttempts
	if attempts == 0 {
		attempts = 10
	}
	backoff := time.Duration(c.cfg.InProgress.WaitBackoffMS) * time.Millisecond
	if backoff == 0 {
		backoff = 100 * time.Millisecond
	}

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(backoff):
		}

		rec, err := c.store.Get(ctx, key)
		switch {
		case err == nil && rec.Status == store.StatusCompleted:
			metrics.InProgressConflicts.WithLabelValues("waited").Inc()
			c.cacheLocally(rec)
			return c.replay(rec), nil
		case errors.Is(err, store.ErrNotFound):
			// Winner failed or its lease lapsed; contend for the key.
			return c.acquireAndRun(ctx, key, op)
		case err != nil:
			metrics.StoreErrors.WithLabelValues("get").Inc()
			return Result{}, storeUnavailable(err)
		}
	}

	metrics.InProgressConflicts.WithLabelValues("failed").Inc()
	return Result{}, ErrInProgress
}

// replay builds a cached Result from a completed record, applying the
// transform to a copy of the stored payload.
func (c *Coordinator) replay(rec store.Record) Result {
	payload := make([]byte, len(rec.ResponsePayload))
	copy(payload, rec.ResponsePayload)
	if c.transform != nil {
		payload = c.transform(payload, rec)
	}
	return Result{
		Payload:   payload,
		Cached:    true,
		StoredAt:  rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}

func (c *Coordinator) cacheLocally(rec store.Record) {
	if c.local != nil && rec.Status == store.StatusCompleted {
		c.local.Set(rec)
	}
}

func (c *Coordinator) policy() InProgressPolicy {
	if c.cfg.InProgress.Policy == "" {
		return PolicyFail
	}
	return c.cfg.InProgress.Policy
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
