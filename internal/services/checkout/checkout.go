// Package checkout реализует создание платёжных сессий: оформление подписки,
// разовую покупку ресурса и переход в личный кабинет оплаты.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/study-resource-hub/internal/config"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/paymentprovider"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// Цена разовой покупки по умолчанию, если у ресурса не задана своя (в центах).
const defaultResourcePrice = 499

// Ошибки бизнес-логики оформления покупки.
var (
	ErrFreeResource     = errors.New("resource is free and cannot be purchased")
	ErrAlreadyPurchased = errors.New("resource already purchased")
	ErrNoCustomer       = errors.New("user has no billing account")
	ErrUnknownPlan      = errors.New("unknown subscription plan")
)

// Repository определяет методы хранилища для оформления покупок.
type Repository interface {
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	GetResourceByID(ctx context.Context, id string) (*models.Resource, error)
	FindCompletedPurchase(ctx context.Context, userUID, resourceID string) (*models.Purchase, error)
}

// ProviderClient — операции платёжного провайдера, используемые при оформлении.
type ProviderClient interface {
	CreateCustomer(ctx context.Context, email, name, userUID string) (*paymentprovider.Customer, error)
	CreateSubscriptionCheckout(ctx context.Context, params paymentprovider.SubscriptionCheckoutParams) (*paymentprovider.Session, error)
	CreateResourceCheckout(ctx context.Context, params paymentprovider.ResourceCheckoutParams) (*paymentprovider.Session, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*paymentprovider.Session, error)
}

// Service реализует оформление подписок и разовых покупок.
type Service struct {
	repo     Repository
	provider ProviderClient
	cfg      config.Stripe
	log      *slog.Logger
}

// New создает новый Service.
func New(repo Repository, provider ProviderClient, cfg config.Stripe, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		cfg:      cfg,
		log:      log,
	}
}

// CreateSubscriptionCheckout создаёт сессию оформления подписки на план
// monthly или yearly и возвращает URL для перехода к оплате.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, userUID, plan string) (string, error) {
	const op = "checkout.CreateSubscriptionCheckout"

	var priceID string
	switch plan {
	case "monthly":
		priceID = s.cfg.MonthlyPriceID
	case "yearly":
		priceID = s.cfg.YearlyPriceID
	default:
		return "", fmt.Errorf("%s: %w: %s", op, ErrUnknownPlan, plan)
	}

	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	customerID, err := s.getOrCreateCustomer(ctx, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.provider.CreateSubscriptionCheckout(ctx, paymentprovider.SubscriptionCheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserUID:    user.UID,
		SuccessURL: s.cfg.AppBaseURL + "/subscribe/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.AppBaseURL + "/subscribe/cancel",
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscription checkout session created",
		slog.String("user_uid", userUID),
		slog.String("plan", plan))
	return session.URL, nil
}

// CreateResourceCheckout создаёт сессию разовой покупки ресурса.
// Бесплатный или уже купленный ресурс оплачивать нельзя.
func (s *Service) CreateResourceCheckout(ctx context.Context, userUID, resourceID string) (string, error) {
	const op = "checkout.CreateResourceCheckout"

	resource, err := s.repo.GetResourceByID(ctx, resourceID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !resource.IsPremium {
		return "", fmt.Errorf("%s: %w", op, ErrFreeResource)
	}

	existing, err := s.repo.FindCompletedPurchase(ctx, userUID, resourceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return "", fmt.Errorf("%s: %w", op, ErrAlreadyPurchased)
	}

	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	customerID, err := s.getOrCreateCustomer(ctx, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	price := defaultResourcePrice
	if resource.Price != nil {
		price = *resource.Price
	}

	session, err := s.provider.CreateResourceCheckout(ctx, paymentprovider.ResourceCheckoutParams{
		CustomerID:    customerID,
		ResourceID:    resource.ID,
		ResourceTitle: resource.Title,
		AmountCents:   price,
		UserUID:       user.UID,
		SuccessURL:    s.cfg.AppBaseURL + "/resources/" + resource.Slug + "?purchase=success",
		CancelURL:     s.cfg.AppBaseURL + "/resources/" + resource.Slug,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("resource checkout session created",
		slog.String("user_uid", userUID),
		slog.String("resource_id", resourceID))
	return session.URL, nil
}

// CreateBillingPortal создаёт сессию личного кабинета оплаты для пользователя,
// у которого уже есть клиент у провайдера.
func (s *Service) CreateBillingPortal(ctx context.Context, userUID string) (string, error) {
	const op = "checkout.CreateBillingPortal"

	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if user.StripeCustomerID == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNoCustomer)
	}

	session, err := s.provider.CreateBillingPortalSession(ctx, *user.StripeCustomerID, s.cfg.AppBaseURL+"/dashboard")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return session.URL, nil
}

// getOrCreateCustomer возвращает идентификатор клиента у провайдера,
// создавая клиента и сохраняя привязку при первом обращении.
func (s *Service) getOrCreateCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil {
		return *user.StripeCustomerID, nil
	}

	customer, err := s.provider.CreateCustomer(ctx, user.Email, user.Name, user.UID)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if err := s.repo.SetStripeCustomerID(ctx, user.UID, customer.ID); err != nil {
		return "", fmt.Errorf("save customer id: %w", err)
	}
	return customer.ID, nil
}
