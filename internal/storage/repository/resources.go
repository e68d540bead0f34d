package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

// GetResourceByID возвращает ресурс по его идентификатору.
func (s *Storage) GetResourceByID(ctx context.Context, id string) (*models.Resource, error) {
	const op = "storage.GetResourceByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, title, slug, file_url, is_premium, price, download_count, category_id, created_at
			  FROM resources WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)

	var result models.Resource
	var price sql.NullInt64
	var categoryID sql.NullString
	if err := row.Scan(&result.ID, &result.Title, &result.Slug, &result.FileURL, &result.IsPremium,
		&price, &result.DownloadCount, &categoryID, &result.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if price.Valid {
		p := int(price.Int64)
		result.Price = &p
	}
	if categoryID.Valid {
		result.CategoryID = &categoryID.String
	}
	return &result, nil
}

// ListResources возвращает список ресурсов каталога с пагинацией
// и необязательным фильтром по категории.
func (s *Storage) ListResources(ctx context.Context, categoryID *string, limit, offset int) ([]*models.Resource, error) {
	const op = "storage.ListResources"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, title, slug, file_url, is_premium, price, download_count, category_id, created_at
			  FROM resources
			  WHERE ($1::text IS NULL OR category_id = $1)
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, categoryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Resource
	for rows.Next() {
		var item models.Resource
		var price sql.NullInt64
		var cat sql.NullString
		if err := rows.Scan(&item.ID, &item.Title, &item.Slug, &item.FileURL, &item.IsPremium,
			&price, &item.DownloadCount, &cat, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if price.Valid {
			p := int(price.Int64)
			item.Price = &p
		}
		if cat.Valid {
			item.CategoryID = &cat.String
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IncrementDownloadCount атомарно увеличивает счётчик скачиваний ресурса на единицу.
// Инкремент выполняется на стороне базы, поэтому параллельные скачивания
// не теряют обновлений.
func (s *Storage) IncrementDownloadCount(ctx context.Context, resourceID string) error {
	const op = "storage.IncrementDownloadCount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE resources SET download_count = download_count + 1 WHERE id = $1`
	result, err := s.DB.ExecContext(ctx, query, resourceID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// CreateDownload добавляет запись в журнал скачиваний и возвращает её ID.
func (s *Storage) CreateDownload(ctx context.Context, userUID, resourceID string) (int, error) {
	const op = "storage.CreateDownload"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO downloads (user_uid, resource_id) VALUES ($1, $2) RETURNING id`
	var newID int
	if err := s.DB.QueryRowContext(ctx, query, userUID, resourceID).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}
