// Package studyresourcehub собирает основной HTTP-сервис: хранилище,
// кеш, платёжного провайдера, брокер уведомлений и маршруты.
package studyresourcehub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/study-resource-hub/internal/cache"
	"github.com/magabrotheeeer/study-resource-hub/internal/config"
	"github.com/magabrotheeeer/study-resource-hub/internal/lib/jwt"
	"github.com/magabrotheeeer/study-resource-hub/internal/migrations"
	"github.com/magabrotheeeer/study-resource-hub/internal/paymentprovider"
	"github.com/magabrotheeeer/study-resource-hub/internal/rabbitmq"
	accessservice "github.com/magabrotheeeer/study-resource-hub/internal/services/access"
	authservice "github.com/magabrotheeeer/study-resource-hub/internal/services/auth"
	checkoutservice "github.com/magabrotheeeer/study-resource-hub/internal/services/checkout"
	reconcilerservice "github.com/magabrotheeeer/study-resource-hub/internal/services/reconciler"
	resourceservice "github.com/magabrotheeeer/study-resource-hub/internal/services/resource"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// App инкапсулирует HTTP-сервер и его зависимости.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	amqp   *amqp.Connection
}

// New создает приложение: подключает базу, применяет миграции, поднимает
// кеш и брокер, собирает сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	rabbitConn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	rabbitCh, err := rabbitmq.SetupChannel(rabbitConn, rabbitmq.DefaultQueues())
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewNotificationPublisher(rabbitCh)

	providerClient := paymentprovider.NewClient(cfg.Stripe.SecretKey)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	authService := authservice.New(db, jwtMaker, logger)
	accessService := accessservice.New(db, logger)
	resourceService := resourceservice.New(db, cacheRedis, logger)
	checkoutService := checkoutservice.New(db, providerClient, cfg.Stripe, logger)
	reconcilerService := reconcilerservice.New(db, providerClient, publisher, cfg.Stripe.YearlyPriceID, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, RouteServices{
		Auth:       authService,
		Access:     accessService,
		Resource:   resourceService,
		Checkout:   checkoutService,
		Reconciler: reconcilerService,
		Storage:    db,
	}, jwtMaker, cfg.Stripe.WebhookSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		amqp:   rabbitConn,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.db.DB.Close()
		if cerr := a.amqp.Close(); cerr != nil {
			a.logger.Warn("failed to close rabbitmq connection", slog.Any("err", cerr))
		}
		return err
	}
}
