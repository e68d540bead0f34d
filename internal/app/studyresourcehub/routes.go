package studyresourcehub

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/billing/portal"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/checkout/resourcecheckout"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/checkout/subscriptioncheckout"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/health"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/payment/stripewebhook"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/resource/download"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/resource/list"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/handlers/resource/read"
	"github.com/magabrotheeeer/study-resource-hub/internal/http/middlewarectx"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/jwt"
	accessservice "github.com/magabrotheeeer/study-resource-hub/internal/services/access"
	authservice "github.com/magabrotheeeer/study-resource-hub/internal/services/auth"
	checkoutservice "github.com/magabrotheeeer/study-resource-hub/internal/services/checkout"
	reconcilerservice "github.com/magabrotheeeer/study-resource-hub/internal/services/reconciler"
	resourceservice "github.com/magabrotheeeer/study-resource-hub/internal/services/resource"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// RouteServices собирает сервисы, необходимые маршрутам приложения.
type RouteServices struct {
	Auth       *authservice.Service
	Access     *accessservice.Service
	Resource   *resourceservice.Service
	Checkout   *checkoutservice.Service
	Reconciler *reconcilerservice.Service
	Storage    *repository.Storage
}

// RegisterRoutes регистрирует все маршруты приложения.
//
// Каталог и скачивание доступны с необязательной аутентификацией:
// анонимный запрос проходит дальше, решение о доступе принимает сервис.
// Оформление покупок требует валидный токен. Вебхук провайдера
// аутентифицируется подписью тела, а не JWT.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc RouteServices, jwtMaker jwt.Maker, webhookSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, svc.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)

		// Каталог и скачивание: токен необязателен
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.OptionalJWTMiddleware(jwtMaker, logger))
			r.Get("/resources", list.New(logger, svc.Resource).ServeHTTP)
			r.Get("/resources/{id}", read.New(logger, svc.Resource).ServeHTTP)
			r.Post("/resources/{id}/download", download.New(logger, svc.Access).ServeHTTP)
		})

		// Группа с обязательной JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/checkout/subscription", subscriptioncheckout.New(logger, svc.Checkout).ServeHTTP)
			r.Post("/checkout/resources/{id}", resourcecheckout.New(logger, svc.Checkout).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, svc.Checkout).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации)
		r.Post("/webhooks/stripe", stripewebhook.New(logger, svc.Reconciler, webhookSecret).ServeHTTP)
	})

	r.Get("/health", health.New(logger, svc.Storage).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
