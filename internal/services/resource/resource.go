// Package resource содержит бизнес-логику каталога учебных материалов
// с кешированием чтений в Redis.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// Repository определяет методы хранилища каталога.
type Repository interface {
	GetResourceByID(ctx context.Context, id string) (*models.Resource, error)
	ListResources(ctx context.Context, categoryID *string, limit, offset int) ([]*models.Resource, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует чтение каталога с кешированием.
// Счётчик скачиваний в кешированных ответах может отставать от базы,
// это допустимая неточность.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый Service.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Read возвращает ресурс по ID, используя кеш или репозиторий.
func (s *Service) Read(ctx context.Context, id string) (*models.Resource, error) {
	var result *models.Resource
	cacheKey := fmt.Sprintf("resource:%s", id)
	found, err := s.cache.Get(cacheKey, &result)
	if err != nil {
		s.log.Warn("failed to read resource from cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found {
		return result, nil
	}

	result, err = s.repo.GetResourceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(cacheKey, result, time.Hour); err != nil {
		s.log.Warn("failed to cache resource", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return result, nil
}

// List возвращает страницу каталога с необязательным фильтром по категории.
func (s *Service) List(ctx context.Context, categoryID *string, limit, offset int) ([]*models.Resource, error) {
	return s.repo.ListResources(ctx, categoryID, limit, offset)
}
