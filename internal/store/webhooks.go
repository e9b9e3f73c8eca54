package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"payment-gateway/internal/models"
)

const webhookColumns = `id, merchant_id, event, payload, status, attempts,
	last_attempt_at, next_retry_at, response_code, response_body, archived, created_at`

// CreateWebhookLog inserts a fresh log row and fills in the generated id.
func (s *Store) CreateWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_logs (id, merchant_id, event, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, l.ID.String(), l.MerchantID.String(), l.Event, []byte(l.Payload), l.Status, l.Attempts)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

// GetWebhookLog fetches a log by id.
func (s *Store) GetWebhookLog(ctx context.Context, id uuid.UUID) (models.WebhookLog, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhook_logs WHERE id = $1`, id.String())
	l, err := scanWebhookLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.WebhookLog{}, false, nil
	}
	if err != nil {
		return models.WebhookLog{}, false, err
	}
	return l, true, nil
}

// UpdateWebhookDelivery persists the outcome of one delivery attempt: the new
// attempt count, status, timestamps, and whatever the endpoint answered.
func (s *Store) UpdateWebhookDelivery(ctx context.Context, l models.WebhookLog) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_logs
		SET status = $2, attempts = $3, last_attempt_at = $4, next_retry_at = $5,
		    response_code = $6, response_body = $7
		WHERE id = $1
	`, l.ID.String(), l.Status, l.Attempts, l.LastAttemptAt, l.NextRetryAt, l.ResponseCode, l.ResponseBody)
	if err != nil {
		return fmt.Errorf("update webhook log: %w", err)
	}
	return nil
}

// ClaimDueWebhookLogs atomically claims pending logs whose retry time has
// passed by nulling next_retry_at, so an overlapping sweep (or a second
// scheduler) cannot pick the same rows. SKIP LOCKED keeps concurrent claimers
// from blocking each other.
func (s *Store) ClaimDueWebhookLogs(ctx context.Context, now time.Time, limit int) ([]models.WebhookLog, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE webhook_logs
		SET next_retry_at = NULL
		WHERE id IN (
			SELECT id FROM webhook_logs
			WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+webhookColumns,
		models.WebhookStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due webhook logs: %w", err)
	}
	defer rows.Close()
	return collectWebhookLogs(rows)
}

// ResetWebhookLogForRetry rewinds a log for a manual redelivery: attempts back
// to zero, status pending, no schedule. The re-enqueued job delivers
// immediately and the log earns a fresh attempt budget.
func (s *Store) ResetWebhookLogForRetry(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_logs
		SET status = $2, attempts = 0, next_retry_at = NULL
		WHERE id = $1
	`, id.String(), models.WebhookStatusPending)
	if err != nil {
		return fmt.Errorf("reset webhook log for retry: %w", err)
	}
	return nil
}

// ListWebhookLogsByMerchant returns a merchant's delivery history, newest first.
func (s *Store) ListWebhookLogsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.WebhookLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM webhook_logs WHERE merchant_id = $1 ORDER BY created_at DESC
	`, merchantID.String())
	if err != nil {
		return nil, fmt.Errorf("query webhook logs: %w", err)
	}
	defer rows.Close()
	return collectWebhookLogs(rows)
}

// ListFailedUnarchived returns terminally failed logs not yet uploaded to the
// archive.
func (s *Store) ListFailedUnarchived(ctx context.Context, limit int) ([]models.WebhookLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+webhookColumns+` FROM webhook_logs
		WHERE status = $1 AND archived = FALSE
		ORDER BY created_at
		LIMIT $2
	`, models.WebhookStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed webhook logs: %w", err)
	}
	defer rows.Close()
	return collectWebhookLogs(rows)
}

// MarkWebhookLogArchived flags a log as uploaded.
func (s *Store) MarkWebhookLogArchived(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_logs SET archived = TRUE WHERE id = $1
	`, id.String())
	if err != nil {
		return fmt.Errorf("mark webhook log archived: %w", err)
	}
	return nil
}

func collectWebhookLogs(rows pgx.Rows) ([]models.WebhookLog, error) {
	var out []models.WebhookLog
	for rows.Next() {
		l, err := scanWebhookLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanWebhookLog(row pgx.Row) (models.WebhookLog, error) {
	var l models.WebhookLog
	var id, merchantID string
	var payload []byte
	var code pgtype.Int4
	var body pgtype.Text
	err := row.Scan(&id, &merchantID, &l.Event, &payload, &l.Status, &l.Attempts,
		&l.LastAttemptAt, &l.NextRetryAt, &code, &body, &l.Archived, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WebhookLog{}, err
		}
		return models.WebhookLog{}, fmt.Errorf("scan webhook log: %w", err)
	}
	l.ID, err = uuid.Parse(id)
	if err != nil {
		return models.WebhookLog{}, fmt.Errorf("parse webhook log id: %w", err)
	}
	l.MerchantID, err = uuid.Parse(merchantID)
	if err != nil {
		return models.WebhookLog{}, fmt.Errorf("parse webhook log merchant id: %w", err)
	}
	l.Payload = payload
	l.ResponseCode = intPtr(code)
	l.ResponseBody = textPtr(body)
	return l, nil
}
