package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"payment-gateway/internal/models"
)

const paymentColumns = `id, order_id, merchant_id, amount, currency, method, status,
	vpa, card_network, card_last4, error_code, error_description, captured, created_at, updated_at`

// CreatePayment inserts a payment in its initial pending state.
func (s *Store) CreatePayment(ctx context.Context, p models.Payment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, order_id, merchant_id, amount, currency, method, status,
			vpa, card_network, card_last4, captured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, p.ID, p.OrderID, p.MerchantID.String(), p.Amount, p.Currency, p.Method, p.Status,
		emptyToNil(p.VPA), emptyToNil(p.CardNetwork), emptyToNil(p.CardLast4), p.Captured)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPayment fetches a payment by id.
func (s *Store) GetPayment(ctx context.Context, id string) (models.Payment, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Payment{}, false, nil
	}
	if err != nil {
		return models.Payment{}, false, err
	}
	return p, true, nil
}

// ListPaymentsByMerchant returns all payments owned by a merchant, newest first.
func (s *Store) ListPaymentsByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE merchant_id = $1 ORDER BY created_at DESC
	`, merchantID.String())
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPaymentOutcome records the simulated processor result. Error fields are
// nil on success.
func (s *Store) SetPaymentOutcome(ctx context.Context, id, status string, errCode, errDesc *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, error_code = $3, error_description = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, errCode, errDesc)
	if err != nil {
		return fmt.Errorf("update payment outcome: %w", err)
	}
	return nil
}

// CapturePayment flags a successful payment as captured. Re-capturing is a
// no-op at the row level; the API layer decides whether that is an error.
func (s *Store) CapturePayment(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payments SET captured = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("capture payment: %w", err)
	}
	return nil
}

func scanPayment(row pgx.Row) (models.Payment, error) {
	var p models.Payment
	var merchantID string
	var vpa, network, last4, errCode, errDesc pgtype.Text
	err := row.Scan(&p.ID, &p.OrderID, &merchantID, &p.Amount, &p.Currency, &p.Method, &p.Status,
		&vpa, &network, &last4, &errCode, &errDesc, &p.Captured, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Payment{}, err
		}
		return models.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	p.MerchantID, err = uuid.Parse(merchantID)
	if err != nil {
		return models.Payment{}, fmt.Errorf("parse payment merchant id: %w", err)
	}
	p.VPA = textVal(vpa)
	p.CardNetwork = textVal(network)
	p.CardLast4 = textVal(last4)
	p.ErrorCode = textPtr(errCode)
	p.ErrorDescription = textPtr(errDesc)
	return p, nil
}
