package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// RegisterUser сохраняет нового пользователя в базу данных и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (email, username, name, password_hash, role)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING uid`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.Username, user.Name, user.PasswordHash, user.Role).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByUsername возвращает пользователя по его username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	return s.getUser(ctx, op, `SELECT uid, email, username, name, password_hash, role,
			      stripe_customer_id, created_at
			  FROM users WHERE username = $1`, username)
}

// GetUserByUID возвращает пользователя по его UID.
func (s *Storage) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	return s.getUser(ctx, op, `SELECT uid, email, username, name, password_hash, role,
			      stripe_customer_id, created_at
			  FROM users WHERE uid = $1`, uid)
}

// GetUserByStripeCustomerID возвращает пользователя по идентификатору клиента
// платёжного провайдера. Используется реконсилятором для поиска владельца
// подписки из события.
func (s *Storage) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	const op = "storage.GetUserByStripeCustomerID"
	return s.getUser(ctx, op, `SELECT uid, email, username, name, password_hash, role,
			      stripe_customer_id, created_at
			  FROM users WHERE stripe_customer_id = $1`, customerID)
}

// SetStripeCustomerID сохраняет идентификатор клиента платёжного провайдера,
// если он ещё не задан.
func (s *Storage) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetStripeCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET stripe_customer_id = $1
			  WHERE uid = $2 AND (stripe_customer_id IS NULL OR stripe_customer_id = $1)`
	if _, err := s.DB.ExecContext(ctx, query, customerID, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) getUser(ctx context.Context, op, query string, arg any) (*models.User, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, arg)

	var stripeCustomerID sql.NullString
	if err := row.Scan(&u.UID, &u.Email, &u.Username, &u.Name, &u.PasswordHash,
		&u.Role, &stripeCustomerID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if stripeCustomerID.Valid {
		u.StripeCustomerID = &stripeCustomerID.String
	}
	return u, nil
}
