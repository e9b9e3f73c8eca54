// Package idempotency caches the response produced for a client-supplied key
// so a retried request can be answered without creating a second payment. It
// is a best-effort optimization: storage failures are swallowed and duplicate
// submissions without a key simply create two payments.
package idempotency

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"payment-gateway/internal/models"
)

// Repository is the persistence surface the cache needs.
type Repository interface {
	GetIdempotencyRecord(ctx context.Context, key string, merchantID uuid.UUID) (models.IdempotencyRecord, bool, error)
	PutIdempotencyRecord(ctx context.Context, rec models.IdempotencyRecord) error
	DeleteIdempotencyRecord(ctx context.Context, key string, merchantID uuid.UUID) error
}

// Cache reads and writes idempotency records with a fixed TTL.
type Cache struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// New builds a cache. A zero ttl falls back to 24 hours.
func New(repo Repository, ttl time.Duration) *Cache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{repo: repo, ttl: ttl, now: time.Now}
}

// Get returns the cached response for (key, merchant) if present and fresh.
// An expired record is deleted and reported as absent.
func (c *Cache) Get(ctx context.Context, key string, merchantID uuid.UUID) (json.RawMessage, bool) {
	rec, found, err := c.repo.GetIdempotencyRecord(ctx, key, merchantID)
	if err != nil {
		log.Printf("idempotency lookup failed for key=%s: %v", key, err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if rec.ExpiresAt.Before(c.now()) {
		if err := c.repo.DeleteIdempotencyRecord(ctx, key, merchantID); err != nil {
			log.Printf("idempotency expiry delete failed for key=%s: %v", key, err)
		}
		return nil, false
	}
	return rec.Response, true
}

// Put stores the response under (key, merchant). Failures are logged and
// swallowed so they never fail the triggering request.
func (c *Cache) Put(ctx context.Context, key string, merchantID uuid.UUID, response json.RawMessage) {
	rec := models.IdempotencyRecord{
		Key:        key,
		MerchantID: merchantID,
		Response:   response,
		ExpiresAt:  c.now().Add(c.ttl),
	}
	if err := c.repo.PutIdempotencyRecord(ctx, rec); err != nil {
		log.Printf("idempotency store failed for key=%s: %v", key, err)
	}
}
