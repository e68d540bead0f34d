// Package read реализует HTTP-обработчик чтения карточки материала.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/response"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// Service описывает интерфейс бизнес-логики каталога.
type Service interface {
	Read(ctx context.Context, id string) (*models.Resource, error)
}

// Handler управляет HTTP-запросами на чтение материала.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Получить карточку материала
// @Tags Resources
// @Produce  json
// @Param id path string true "UID материала"
// @Success 200 {object} map[string]any "Материал"
// @Failure 404 {object} response.ErrorResponse "Материал не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /resources/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.resource.read"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id := chi.URLParam(r, "id")
	resource, err := h.service.Read(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("resource not found", slog.String("resource_uid", id))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("resource not found"))
			return
		}
		log.Error("failed to read resource", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read resource"))
		return
	}

	render.JSON(w, r, response.OKWithData(resource))
}
