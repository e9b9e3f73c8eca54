package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payment-gateway/internal/models"
)

// GetIdempotencyRecord fetches a record by (key, merchant) regardless of
// expiry; the cache layer decides what an expired record means.
func (s *Store) GetIdempotencyRecord(ctx context.Context, key string, merchantID uuid.UUID) (models.IdempotencyRecord, bool, error) {
	var rec models.IdempotencyRecord
	var mid string
	var response []byte
	err := s.pool.QueryRow(ctx, `
		SELECT key_value, merchant_id, response, created_at, expires_at
		FROM idempotency_keys WHERE key_value = $1 AND merchant_id = $2
	`, key, merchantID.String()).Scan(&rec.Key, &mid, &response, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return models.IdempotencyRecord{}, false, fmt.Errorf("query idempotency key: %w", err)
	}
	rec.MerchantID, err = uuid.Parse(mid)
	if err != nil {
		return models.IdempotencyRecord{}, false, fmt.Errorf("parse idempotency merchant id: %w", err)
	}
	rec.Response = response
	return rec, true, nil
}

// PutIdempotencyRecord stores a record, keeping the first write on conflict.
func (s *Store) PutIdempotencyRecord(ctx context.Context, rec models.IdempotencyRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key_value, merchant_id, response, created_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (key_value, merchant_id) DO NOTHING
	`, rec.Key, rec.MerchantID.String(), []byte(rec.Response), rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

// DeleteIdempotencyRecord drops a record, typically after it expired.
func (s *Store) DeleteIdempotencyRecord(ctx context.Context, key string, merchantID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys WHERE key_value = $1 AND merchant_id = $2
	`, key, merchantID.String())
	if err != nil {
		return fmt.Errorf("delete idempotency key: %w", err)
	}
	return nil
}
