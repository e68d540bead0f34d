package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// FindCompletedPurchase возвращает завершённую покупку ресурса пользователем.
func (s *Storage) FindCompletedPurchase(ctx context.Context, userUID, resourceID string) (*models.Purchase, error) {
	const op = "storage.FindCompletedPurchase"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, resource_id, amount, payment_status, stripe_payment_id,
			      stripe_session_id, created_at
			  FROM purchases
			  WHERE user_uid = $1 AND resource_id = $2 AND payment_status = $3
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, userUID, resourceID, models.PaymentStatusCompleted)

	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return purchase, nil
}

// FindPurchaseBySessionID возвращает покупку по идентификатору платёжной сессии.
// Используется как защита от повторной доставки события об оплате:
// для одной сессии допускается не более одной записи.
func (s *Storage) FindPurchaseBySessionID(ctx context.Context, stripeSessionID string) (*models.Purchase, error) {
	const op = "storage.FindPurchaseBySessionID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, resource_id, amount, payment_status, stripe_payment_id,
			      stripe_session_id, created_at
			  FROM purchases
			  WHERE stripe_session_id = $1`
	row := s.DB.QueryRowContext(ctx, query, stripeSessionID)

	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return purchase, nil
}

// CreatePurchase вставляет новую запись о покупке и возвращает её ID.
func (s *Storage) CreatePurchase(ctx context.Context, purchase models.Purchase) (int, error) {
	const op = "storage.CreatePurchase"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO purchases (user_uid, resource_id, amount, payment_status,
			      stripe_payment_id, stripe_session_id)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		purchase.UserUID, purchase.ResourceID, purchase.Amount, purchase.PaymentStatus,
		purchase.StripePaymentID, purchase.StripeSessionID).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

func scanPurchase(row rowScanner) (*models.Purchase, error) {
	var p models.Purchase
	if err := row.Scan(&p.ID, &p.UserUID, &p.ResourceID, &p.Amount, &p.PaymentStatus,
		&p.StripePaymentID, &p.StripeSessionID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
