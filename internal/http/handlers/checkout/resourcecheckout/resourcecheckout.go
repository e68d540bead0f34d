// Package resourcecheckout реализует HTTP-обработчик разовой покупки материала.
package resourcecheckout

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
	"github.com/magabrotheeeer/study-resource-hub/internal/services/checkout"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// Service описывает интерфейс бизнес-логики оформления покупки.
type Service interface {
	CreateResourceCheckout(ctx context.Context, userUID, resourceID string) (string, error)
}

// Handler управляет HTTP-запросами на разовую покупку материала.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Создать сессию разовой покупки материала
// @Tags Checkout
// @Security ApiKeyAuth
// @Produce  json
// @Param id path string true "UID материала"
// @Success 200 {object} map[string]any "URL страницы оплаты"
// @Failure 404 {object} response.ErrorResponse "Материал не найден"
// @Failure 409 {object} response.ErrorResponse "Материал уже куплен"
// @Failure 422 {object} response.ErrorResponse "Материал бесплатный"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /checkout/resources/{id} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.resource"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	resourceID := chi.URLParam(r, "id")
	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	url, err := h.service.CreateResourceCheckout(r.Context(), userUID, resourceID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("resource not found"))
		case errors.Is(err, checkout.ErrFreeResource):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("resource is free"))
		case errors.Is(err, checkout.ErrAlreadyPurchased):
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("resource already purchased"))
		default:
			log.Error("failed to create resource checkout", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not create checkout session"))
		}
		return
	}

	log.Info("resource checkout created",
		slog.String("user_uid", userUID),
		slog.String("resource_uid", resourceID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"url": url,
	}))
}
