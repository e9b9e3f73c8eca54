package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"payment-gateway/internal/models"
)

// Store wraps pgxpool for Postgres persistence. Absent rows are reported as
// (zero, false, nil), never as an error.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateMerchant inserts a merchant row. Used by seeding and tests.
func (s *Store) CreateMerchant(ctx context.Context, m models.Merchant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO merchants (id, name, email, api_key, api_secret, webhook_url, webhook_secret, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`, m.ID.String(), m.Name, m.Email, m.APIKey, m.APISecret, emptyToNil(m.WebhookURL), emptyToNil(m.WebhookSecret), m.Active)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetMerchant fetches a merchant by id.
func (s *Store) GetMerchant(ctx context.Context, id uuid.UUID) (models.Merchant, bool, error) {
	return s.scanMerchant(s.pool.QueryRow(ctx, `
		SELECT id, name, email, api_key, api_secret, webhook_url, webhook_secret, is_active, created_at, updated_at
		FROM merchants WHERE id = $1
	`, id.String()))
}

// GetMerchantByAPIKey resolves an API key to a merchant identity.
func (s *Store) GetMerchantByAPIKey(ctx context.Context, apiKey string) (models.Merchant, bool, error) {
	return s.scanMerchant(s.pool.QueryRow(ctx, `
		SELECT id, name, email, api_key, api_secret, webhook_url, webhook_secret, is_active, created_at, updated_at
		FROM merchants WHERE api_key = $1
	`, apiKey))
}

func (s *Store) scanMerchant(row pgx.Row) (models.Merchant, bool, error) {
	var m models.Merchant
	var id string
	var url, secret pgtype.Text
	err := row.Scan(&id, &m.Name, &m.Email, &m.APIKey, &m.APISecret, &url, &secret, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Merchant{}, false, nil
	}
	if err != nil {
		return models.Merchant{}, false, fmt.Errorf("scan merchant: %w", err)
	}
	m.ID, err = uuid.Parse(id)
	if err != nil {
		return models.Merchant{}, false, fmt.Errorf("parse merchant id: %w", err)
	}
	m.WebhookURL = textVal(url)
	m.WebhookSecret = textVal(secret)
	return m, true, nil
}

// UpdateMerchantWebhookConfig replaces a merchant's webhook endpoint and
// signing secret. Empty strings clear the columns.
func (s *Store) UpdateMerchantWebhookConfig(ctx context.Context, id uuid.UUID, url, secret string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE merchants SET webhook_url = $2, webhook_secret = $3, updated_at = NOW() WHERE id = $1
	`, id.String(), emptyToNil(url), emptyToNil(secret))
	if err != nil {
		return fmt.Errorf("update merchant webhook config: %w", err)
	}
	return nil
}

// CreateOrder inserts an order row.
func (s *Store) CreateOrder(ctx context.Context, o models.Order) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, merchant_id, amount, currency, receipt, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, o.ID, o.MerchantID.String(), o.Amount, o.Currency, emptyToNil(o.Receipt), o.Status)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder fetches an order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (models.Order, bool, error) {
	var o models.Order
	var merchantID string
	var receipt pgtype.Text
	err := s.pool.QueryRow(ctx, `
		SELECT id, merchant_id, amount, currency, receipt, status, created_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &merchantID, &o.Amount, &o.Currency, &receipt, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, false, nil
	}
	if err != nil {
		return models.Order{}, false, fmt.Errorf("scan order: %w", err)
	}
	o.MerchantID, err = uuid.Parse(merchantID)
	if err != nil {
		return models.Order{}, false, fmt.Errorf("parse order merchant id: %w", err)
	}
	o.Receipt = textVal(receipt)
	return o, true, nil
}

func textVal(t pgtype.Text) string {
	if t.Valid {
		return t.String
	}
	return ""
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func intPtr(v pgtype.Int4) *int {
	if v.Valid {
		n := int(v.Int32)
		return &n
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
