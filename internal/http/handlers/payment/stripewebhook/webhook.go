// Package stripewebhook реализует приём событий платёжного провайдера.
//
// Обработчик проверяет подпись тела запроса, передаёт событие
// согласователю подписок и отвечает провайдеру. Ошибка обработки
// возвращается статусом 500, чтобы провайдер повторил доставку.
package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/response"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/paymentprovider"
)

// maxBodyBytes ограничивает размер тела вебхука.
const maxBodyBytes = 1 << 16

// signatureTolerance — допустимый возраст метки времени в подписи.
const signatureTolerance = 5 * time.Minute

var webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_webhook_events_total",
	Help: "Processed payment provider webhook events by type and outcome.",
}, []string{"type", "outcome"})

// Service описывает интерфейс согласователя состояния подписок.
type Service interface {
	ApplyEvent(ctx context.Context, event paymentprovider.Event) error
}

// Handler управляет приёмом событий платёжного провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string
}

// New создает новый Handler с переданными логгером, сервисом и секретом подписи.
func New(log *slog.Logger, service Service, webhookSecret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// ServeHTTP godoc
// @Summary Принять событие платёжного провайдера
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Success 200 {object} response.Response "Событие обработано"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 500 {object} response.ErrorResponse "Ошибка обработки, провайдер повторит доставку"
// @Router /webhooks/stripe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.stripewebhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("could not read body"))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if err := paymentprovider.VerifySignature(payload, sigHeader, h.webhookSecret, signatureTolerance); err != nil {
		log.Error("webhook signature verification failed", sl.Err(err))
		webhookEvents.WithLabelValues("unknown", "rejected").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var event paymentprovider.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Error("failed to decode webhook event", sl.Err(err))
		webhookEvents.WithLabelValues("unknown", "rejected").Inc()
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid event payload"))
		return
	}

	log = log.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
	)

	if err := h.service.ApplyEvent(r.Context(), event); err != nil {
		log.Error("failed to apply webhook event", sl.Err(err))
		webhookEvents.WithLabelValues(event.Type, "failed").Inc()
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process event"))
		return
	}

	log.Info("webhook event processed")
	webhookEvents.WithLabelValues(event.Type, "processed").Inc()
	render.JSON(w, r, response.OK())
}
