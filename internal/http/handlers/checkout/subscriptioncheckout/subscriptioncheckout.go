// Package subscriptioncheckout реализует HTTP-обработчик оформления подписки.
package subscriptioncheckout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/response"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/services/checkout"
)

// Request описывает тело запроса оформления подписки.
type Request struct {
	Plan string `json:"plan" validate:"required,oneof=monthly yearly"`
}

// Service описывает интерфейс бизнес-логики оформления покупки.
type Service interface {
	CreateSubscriptionCheckout(ctx context.Context, userUID, plan string) (string, error)
}

// Handler управляет HTTP-запросами на оформление подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать сессию оформления подписки
// @Tags Checkout
// @Security ApiKeyAuth
// @Accept  json
// @Produce  json
// @Param request body Request true "Тариф подписки"
// @Success 200 {object} map[string]any "URL страницы оплаты"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /checkout/subscription [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.checkout.subscription"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	url, err := h.service.CreateSubscriptionCheckout(r.Context(), userUID, req.Plan)
	if err != nil {
		if errors.Is(err, checkout.ErrUnknownPlan) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("unknown subscription plan"))
			return
		}
		log.Error("failed to create subscription checkout", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create checkout session"))
		return
	}

	log.Info("subscription checkout created",
		slog.String("user_uid", userUID),
		slog.String("plan", req.Plan))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"url": url,
	}))
}
