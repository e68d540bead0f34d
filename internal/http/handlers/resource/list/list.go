// Package list реализует HTTP-обработчик списка материалов каталога.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/response"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service описывает интерфейс бизнес-логики каталога.
type Service interface {
	List(ctx context.Context, categoryID *string, limit, offset int) ([]*models.Resource, error)
}

// Handler управляет HTTP-запросами на список материалов.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Получить страницу каталога материалов
// @Tags Resources
// @Produce  json
// @Param category query string false "UID категории"
// @Param limit query int false "Размер страницы (по умолчанию 20, максимум 100)"
// @Param offset query int false "Смещение"
// @Success 200 {object} map[string]any "Список материалов"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /resources [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.resource.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	var categoryID *string
	if v := r.URL.Query().Get("category"); v != "" {
		categoryID = &v
	}

	resources, err := h.service.List(r.Context(), categoryID, limit, offset)
	if err != nil {
		log.Error("failed to list resources", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list resources"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"items": resources,
		"count": len(resources),
	}))
}
