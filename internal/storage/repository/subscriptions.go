package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// FindActiveSubscription возвращает подписку пользователя со статусом ACTIVE,
// срок действия которой ещё не истёк на момент now. Сравнение с ends_at
// выполняется в запросе: запись со статусом ACTIVE, но истёкшим периодом,
// не считается действующей.
func (s *Storage) FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.FindActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, stripe_subscription_id, stripe_price_id, plan, status,
			      amount, starts_at, ends_at, cancelled_at
			  FROM subscriptions
			  WHERE user_uid = $1 AND status = $2 AND ends_at >= $3
			  ORDER BY ends_at DESC
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, userUID, models.SubscriptionStatusActive, now)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionByStripeID возвращает подписку по внешнему идентификатору.
func (s *Storage) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByStripeID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, stripe_subscription_id, stripe_price_id, plan, status,
			      amount, starts_at, ends_at, cancelled_at
			  FROM subscriptions
			  WHERE stripe_subscription_id = $1`
	row := s.DB.QueryRowContext(ctx, query, stripeSubscriptionID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpsertSubscription создаёт или обновляет подписку по внешнему идентификатору.
// Операция выполняется одним запросом INSERT ... ON CONFLICT DO UPDATE:
// две конкурирующие доставки одного события не приводят к гонке чтение-запись,
// а повторное применение события оставляет строку без изменений.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpsertSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_uid, stripe_subscription_id, stripe_price_id, plan,
			      status, amount, starts_at, ends_at, cancelled_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (stripe_subscription_id) DO UPDATE
			  SET status = EXCLUDED.status,
			      starts_at = EXCLUDED.starts_at,
			      ends_at = EXCLUDED.ends_at,
			      cancelled_at = EXCLUDED.cancelled_at`
	_, err := s.DB.ExecContext(ctx, query,
		sub.UserUID, sub.StripeSubscriptionID, sub.StripePriceID, sub.Plan,
		sub.Status, sub.Amount, sub.StartsAt, sub.EndsAt, sub.CancelledAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscriptionStatus обновляет статус существующей подписки по внешнему
// идентификатору и возвращает количество изменённых строк. Ноль изменённых
// строк означает, что подписка локально не отслеживается.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string, cancelledAt *time.Time) (int, error) {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = $1, cancelled_at = COALESCE($2, cancelled_at)
			  WHERE stripe_subscription_id = $3`
	result, err := s.DB.ExecContext(ctx, query, status, cancelledAt, stripeSubscriptionID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var cancelledAt sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.StripeSubscriptionID, &sub.StripePriceID,
		&sub.Plan, &sub.Status, &sub.Amount, &sub.StartsAt, &sub.EndsAt, &cancelledAt); err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		sub.CancelledAt = &cancelledAt.Time
	}
	return &sub, nil
}
