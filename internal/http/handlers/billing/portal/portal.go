// Package portal реализует HTTP-обработчик перехода в личный кабинет оплаты.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/response"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/services/checkout"
)

// Service описывает интерфейс бизнес-логики оформления покупки.
type Service interface {
	CreateBillingPortal(ctx context.Context, userUID string) (string, error)
}

// Handler управляет HTTP-запросами на переход в кабинет оплаты.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Создать сессию личного кабинета оплаты
// @Tags Billing
// @Security ApiKeyAuth
// @Produce  json
// @Success 200 {object} map[string]any "URL кабинета"
// @Failure 409 {object} response.ErrorResponse "У пользователя нет платёжного аккаунта"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/portal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	url, err := h.service.CreateBillingPortal(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, checkout.ErrNoCustomer) {
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("no billing account"))
			return
		}
		log.Error("failed to create billing portal session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create billing portal session"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"url": url,
	}))
}
