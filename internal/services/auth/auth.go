// Package auth содержит бизнес-логику регистрации и аутентификации пользователей.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/study-resource-hub/internal/lib/jwt"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/password"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// ErrInvalidCredentials возвращается при неверной паре логин-пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Repository определяет методы хранилища пользователей.
type Repository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Service реализует регистрацию и вход пользователей.
type Service struct {
	repo     Repository
	jwtMaker jwt.Maker
	log      *slog.Logger
}

// New создает новый Service.
func New(repo Repository, jwtMaker jwt.Maker, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		jwtMaker: jwtMaker,
		log:      log,
	}
}

// Register создаёт нового пользователя с ролью user и возвращает его UID.
func (s *Service) Register(ctx context.Context, email, username, name, rawPassword string) (string, error) {
	const op = "auth.Register"

	hash, err := password.GetHash(rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	uid, err := s.repo.RegisterUser(ctx, models.User{
		Email:        email,
		Username:     username,
		Name:         name,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("registered new user", slog.String("username", username))
	return uid, nil
}

// Login проверяет пару логин-пароль и возвращает подписанный JWT.
func (s *Service) Login(ctx context.Context, username, rawPassword string) (string, error) {
	const op = "auth.Login"

	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := s.jwtMaker.GenerateToken(user.UID, user.Username, user.Role)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}
