// Package access реализует логику решения о доступе пользователя к ресурсу.
//
// Решение принимается в строгом порядке: бесплатный ресурс доступен всем,
// затем проверяются административная роль, действующая подписка и разовая
// покупка. Первый сработавший критерий определяет результат.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// Repository определяет методы хранилища, необходимые для решения о доступе
// и фиксации скачивания.
type Repository interface {
	// GetResourceByID возвращает ресурс или repository.ErrNotFound.
	GetResourceByID(ctx context.Context, id string) (*models.Resource, error)
	// FindActiveSubscription возвращает действующую подписку пользователя на момент now.
	FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error)
	// FindCompletedPurchase возвращает завершённую покупку ресурса пользователем.
	FindCompletedPurchase(ctx context.Context, userUID, resourceID string) (*models.Purchase, error)
	// CreateDownload добавляет запись в журнал скачиваний.
	CreateDownload(ctx context.Context, userUID, resourceID string) (int, error)
	// IncrementDownloadCount атомарно увеличивает счётчик скачиваний на единицу.
	IncrementDownloadCount(ctx context.Context, resourceID string) error
}

// Service реализует проверку доступа и сопутствующие эффекты скачивания.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

// New создает новый Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// CheckAccess возвращает решение о доступе пользователя к ресурсу.
//
// Пустой userUID означает анонимного посетителя. Роль администратора
// передаётся вызывающей стороной и даёт доступ без остальных проверок.
// Отсутствие ресурса возвращается ошибкой repository.ErrNotFound и
// отличается от отказа в доступе.
func (s *Service) CheckAccess(ctx context.Context, userUID string, isAdmin bool, resourceID string) (models.AccessResult, error) {
	const op = "access.CheckAccess"

	resource, err := s.repo.GetResourceByID(ctx, resourceID)
	if err != nil {
		return models.AccessResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if isAdmin {
		return models.AccessResult{HasAccess: true, Reason: models.ReasonAdmin}, nil
	}

	if !resource.IsPremium {
		return models.AccessResult{HasAccess: true, Reason: models.ReasonFree}, nil
	}

	if userUID == "" {
		return models.AccessResult{HasAccess: false, Reason: models.ReasonNoAccess}, nil
	}

	now := s.now()
	sub, err := s.repo.FindActiveSubscription(ctx, userUID, now)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return models.AccessResult{}, fmt.Errorf("%s: %w", op, err)
	}
	// Срок действия авторитетнее статуса: запись могла не успеть обновиться
	// после события провайдера.
	if sub != nil && !sub.EndsAt.Before(now) {
		return models.AccessResult{HasAccess: true, Reason: models.ReasonSubscribed}, nil
	}

	purchase, err := s.repo.FindCompletedPurchase(ctx, userUID, resourceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return models.AccessResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if purchase != nil {
		return models.AccessResult{HasAccess: true, Reason: models.ReasonPurchased}, nil
	}

	return models.AccessResult{HasAccess: false, Reason: models.ReasonNoAccess}, nil
}

// GetResource возвращает ресурс по идентификатору.
func (s *Service) GetResource(ctx context.Context, resourceID string) (*models.Resource, error) {
	const op = "access.GetResource"

	resource, err := s.repo.GetResourceByID(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resource, nil
}

// RegisterDownload фиксирует успешное скачивание: добавляет запись журнала,
// если пользователь известен, и увеличивает счётчик скачиваний ресурса.
// Счётчик монотонный, повторные скачивания одним пользователем учитываются
// каждый раз.
func (s *Service) RegisterDownload(ctx context.Context, userUID, resourceID string) error {
	const op = "access.RegisterDownload"

	if userUID != "" {
		if _, err := s.repo.CreateDownload(ctx, userUID, resourceID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.repo.IncrementDownloadCount(ctx, resourceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("download registered",
		slog.String("resource_id", resourceID),
		slog.String("user_uid", userUID))
	return nil
}
