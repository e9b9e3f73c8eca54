package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"payment-gateway/internal/models"
)

const refundColumns = `id, payment_id, merchant_id, amount, reason, status, created_at, processed_at`

// CreateRefund inserts a refund in its initial pending state.
func (s *Store) CreateRefund(ctx context.Context, r models.Refund) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refunds (id, payment_id, merchant_id, amount, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, r.ID, r.PaymentID, r.MerchantID.String(), r.Amount, emptyToNil(r.Reason), r.Status)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// GetRefund fetches a refund by id.
func (s *Store) GetRefund(ctx context.Context, id string) (models.Refund, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id)
	r, err := scanRefund(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Refund{}, false, nil
	}
	if err != nil {
		return models.Refund{}, false, err
	}
	return r, true, nil
}

// ListRefundsByPayment returns every refund raised against a payment.
func (s *Store) ListRefundsByPayment(ctx context.Context, paymentID string) ([]models.Refund, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 ORDER BY created_at
	`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	defer rows.Close()
	return collectRefunds(rows)
}

// ListRefundsByMerchant returns a merchant's refunds, newest first.
func (s *Store) ListRefundsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Refund, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds WHERE merchant_id = $1 ORDER BY created_at DESC
	`, merchantID.String())
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	defer rows.Close()
	return collectRefunds(rows)
}

// MarkRefundProcessed finalizes a refund.
func (s *Store) MarkRefundProcessed(ctx context.Context, id string, processedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refunds SET status = $2, processed_at = $3 WHERE id = $1
	`, id, models.RefundStatusProcessed, processedAt)
	if err != nil {
		return fmt.Errorf("mark refund processed: %w", err)
	}
	return nil
}

func collectRefunds(rows pgx.Rows) ([]models.Refund, error) {
	var out []models.Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRefund(row pgx.Row) (models.Refund, error) {
	var r models.Refund
	var merchantID string
	var reason *string
	err := row.Scan(&r.ID, &r.PaymentID, &merchantID, &r.Amount, &reason, &r.Status, &r.CreatedAt, &r.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Refund{}, err
		}
		return models.Refund{}, fmt.Errorf("scan refund: %w", err)
	}
	r.MerchantID, err = uuid.Parse(merchantID)
	if err != nil {
		return models.Refund{}, fmt.Errorf("parse refund merchant id: %w", err)
	}
	if reason != nil {
		r.Reason = *reason
	}
	return r, nil
}
