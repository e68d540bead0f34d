// Package download реализует HTTP-обработчик скачивания материала.
//
// Проверка доступа и регистрация скачивания разделены: сначала
// принимается решение о доступе, и только при положительном решении
// фиксируются побочные эффекты (запись скачивания и счётчик).
package download

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/response"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// Service описывает интерфейс движка принятия решений о доступе.
type Service interface {
	CheckAccess(ctx context.Context, userUID string, isAdmin bool, resourceID string) (models.AccessResult, error)
	RegisterDownload(ctx context.Context, userUID, resourceID string) error
	GetResource(ctx context.Context, resourceID string) (*models.Resource, error)
}

// Handler управляет HTTP-запросами на скачивание материала.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Скачать материал
// @Description Проверяет право доступа и при успехе возвращает ссылку на файл
// @Tags Resources
// @Security ApiKeyAuth
// @Produce  json
// @Param id path string true "UID материала"
// @Success 200 {object} map[string]any "Ссылка на файл и причина доступа"
// @Failure 401 {object} response.ErrorResponse "Требуется вход"
// @Failure 403 {object} response.ErrorResponse "Нет подписки или покупки"
// @Failure 404 {object} response.ErrorResponse "Материал не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /resources/{id}/download [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.resource.download"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	resourceID := chi.URLParam(r, "id")
	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)
	role, _ := r.Context().Value(middlewarectx.Role).(string)
	isAdmin := role == models.RoleAdmin

	result, err := h.service.CheckAccess(r.Context(), userUID, isAdmin, resourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("resource not found", slog.String("resource_uid", resourceID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("resource not found"))
			return
		}
		log.Error("failed to check access", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check access"))
		return
	}

	if !result.HasAccess {
		if userUID == "" {
			log.Info("anonymous download denied", slog.String("resource_uid", resourceID))
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("authentication required"))
			return
		}
		log.Info("download denied",
			slog.String("resource_uid", resourceID),
			slog.String("user_uid", userUID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("subscription or purchase required"))
		return
	}

	if err := h.service.RegisterDownload(r.Context(), userUID, resourceID); err != nil {
		log.Error("failed to register download", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not register download"))
		return
	}

	resource, err := h.service.GetResource(r.Context(), resourceID)
	if err != nil {
		log.Error("failed to get resource", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get resource"))
		return
	}

	log.Info("download granted",
		slog.String("resource_uid", resourceID),
		slog.String("reason", string(result.Reason)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"fileUrl": resource.FileURL,
		"reason":  result.Reason,
	}))
}
