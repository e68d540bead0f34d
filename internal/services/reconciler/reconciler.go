// Package reconciler приводит локальные записи о подписках и покупках
// в соответствие с асинхронными событиями платёжного провайдера.
//
// Провайдер доставляет события как минимум один раз и без гарантий порядка,
// поэтому каждая операция идемпотентна: подписки пишутся атомарным upsert
// по внешнему идентификатору, а все поля берутся из события абсолютными
// значениями, без накопительных изменений локального состояния.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/study-resource-hub/internal/lib/sl"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/paymentprovider"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

// Repository определяет методы хранилища, используемые реконсилятором.
type Repository interface {
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string, cancelledAt *time.Time) (int, error)
	FindPurchaseBySessionID(ctx context.Context, stripeSessionID string) (*models.Purchase, error)
	CreatePurchase(ctx context.Context, purchase models.Purchase) (int, error)
	GetResourceByID(ctx context.Context, id string) (*models.Resource, error)
}

// ProviderClient дочитывает у провайдера поля подписки, которых нет в событии.
type ProviderClient interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*paymentprovider.Subscription, error)
}

// Notifier отправляет уведомления после успешных переходов состояния.
// Ошибка отправки не считается ошибкой обработки события.
type Notifier interface {
	PublishSubscriptionConfirmation(msg models.SubscriptionNotification) error
	PublishPurchaseReceipt(msg models.PurchaseNotification) error
}

// Service применяет события провайдера к локальному состоянию.
type Service struct {
	repo          Repository
	provider      ProviderClient
	notifier      Notifier
	yearlyPriceID string
	log           *slog.Logger
	now           func() time.Time
}

// New создает новый Service.
func New(repo Repository, provider ProviderClient, notifier Notifier, yearlyPriceID string, log *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		provider:      provider,
		notifier:      notifier,
		yearlyPriceID: yearlyPriceID,
		log:           log,
		now:           time.Now,
	}
}

// ApplyEvent применяет одно событие провайдера. Повторное применение того же
// события оставляет состояние неизменным. Неизвестные типы событий
// игнорируются без ошибки, чтобы провайдер не зациклился на повторной
// доставке.
func (s *Service) ApplyEvent(ctx context.Context, event paymentprovider.Event) error {
	const op = "reconciler.ApplyEvent"
	log := s.log.With(slog.String("op", op), slog.String("event_type", event.Type))

	switch event.Type {
	case paymentprovider.EventCheckoutSessionCompleted:
		var session paymentprovider.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return fmt.Errorf("%s: decode checkout session: %w", op, err)
		}
		return s.handleCheckoutCompleted(ctx, log, session)

	case paymentprovider.EventSubscriptionCreated, paymentprovider.EventSubscriptionUpdated:
		var sub paymentprovider.Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return fmt.Errorf("%s: decode subscription: %w", op, err)
		}
		return s.handleSubscriptionUpdated(ctx, log, sub)

	case paymentprovider.EventSubscriptionDeleted:
		var sub paymentprovider.Subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return fmt.Errorf("%s: decode subscription: %w", op, err)
		}
		return s.handleSubscriptionDeleted(ctx, log, sub)

	case paymentprovider.EventInvoicePaymentFailed:
		var invoice paymentprovider.Invoice
		if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
			return fmt.Errorf("%s: decode invoice: %w", op, err)
		}
		return s.handlePaymentFailed(ctx, log, invoice)

	default:
		log.Info("ignored unknown event type")
		return nil
	}
}

// handleCheckoutCompleted обрабатывает завершение платёжной сессии: в режиме
// подписки создаёт или обновляет запись подписки, в режиме разовой оплаты —
// создаёт запись покупки, если её ещё нет для этой сессии.
func (s *Service) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, session paymentprovider.CheckoutSession) error {
	userUID := session.Metadata["userId"]
	if userUID == "" {
		log.Error("no userId in checkout session metadata", slog.String("session_id", session.ID))
		return nil
	}

	if session.Customer != "" {
		if err := s.repo.SetStripeCustomerID(ctx, userUID, session.Customer); err != nil {
			return fmt.Errorf("stamp customer id: %w", err)
		}
	}

	if session.Mode == paymentprovider.ModeSubscription && session.Subscription != "" {
		return s.applySubscriptionCheckout(ctx, log, session, userUID)
	}

	if session.Mode == paymentprovider.ModePayment && session.Metadata["resourceId"] != "" {
		return s.applyResourcePurchase(ctx, log, session, userUID)
	}

	log.Info("checkout completed without applicable mode", slog.String("mode", session.Mode))
	return nil
}

func (s *Service) applySubscriptionCheckout(ctx context.Context, log *slog.Logger, session paymentprovider.CheckoutSession, userUID string) error {
	// Событие сессии не содержит границ оплаченного периода,
	// поэтому подписка дочитывается у провайдера.
	providerSub, err := s.provider.RetrieveSubscription(ctx, session.Subscription)
	if err != nil {
		return fmt.Errorf("backfill subscription %s: %w", session.Subscription, err)
	}

	item, ok := providerSub.FirstItem()
	if !ok {
		log.Error("provider subscription has no items", slog.String("subscription_id", session.Subscription))
		return nil
	}

	sub := models.Subscription{
		UserUID:              userUID,
		StripeSubscriptionID: session.Subscription,
		StripePriceID:        item.Price.ID,
		Plan:                 s.planFromPriceID(item.Price.ID),
		Status:               models.SubscriptionStatusActive,
		Amount:               item.Price.UnitAmount,
		StartsAt:             time.Unix(item.CurrentPeriodStart, 0).UTC(),
		EndsAt:               time.Unix(item.CurrentPeriodEnd, 0).UTC(),
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", session.Subscription, err)
	}
	log.Info("subscription activated",
		slog.String("subscription_id", session.Subscription),
		slog.String("plan", sub.Plan))

	s.notifySubscription(ctx, log, userUID, sub.Plan)
	return nil
}

func (s *Service) applyResourcePurchase(ctx context.Context, log *slog.Logger, session paymentprovider.CheckoutSession, userUID string) error {
	resourceID := session.Metadata["resourceId"]

	// Защита от повторной доставки: одна платёжная сессия — одна покупка.
	existing, err := s.repo.FindPurchaseBySessionID(ctx, session.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find purchase by session %s: %w", session.ID, err)
	}
	if existing != nil {
		log.Info("purchase already recorded for session", slog.String("session_id", session.ID))
		return nil
	}

	purchase := models.Purchase{
		UserUID:         userUID,
		ResourceID:      resourceID,
		Amount:          session.AmountTotal,
		PaymentStatus:   models.PaymentStatusCompleted,
		StripePaymentID: session.PaymentIntent,
		StripeSessionID: session.ID,
	}
	if _, err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		return fmt.Errorf("create purchase for session %s: %w", session.ID, err)
	}
	log.Info("purchase recorded",
		slog.String("session_id", session.ID),
		slog.String("resource_id", resourceID))

	s.notifyPurchase(ctx, log, userUID, resourceID, session.AmountTotal)
	return nil
}

// handleSubscriptionUpdated применяет событие создания или изменения подписки.
// Все поля записи выводятся из события, обновление — upsert по внешнему
// идентификатору, поэтому порядок доставки относительно других событий
// не влияет на итоговое состояние.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, log *slog.Logger, providerSub paymentprovider.Subscription) error {
	user, err := s.repo.GetUserByStripeCustomerID(ctx, providerSub.Customer)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Error("no user found for customer", slog.String("customer_id", providerSub.Customer))
			return nil
		}
		return fmt.Errorf("find user by customer %s: %w", providerSub.Customer, err)
	}

	item, ok := providerSub.FirstItem()
	if !ok {
		log.Error("provider subscription has no items", slog.String("subscription_id", providerSub.ID))
		return nil
	}

	var cancelledAt *time.Time
	if providerSub.CanceledAt != nil {
		t := time.Unix(*providerSub.CanceledAt, 0).UTC()
		cancelledAt = &t
	}

	status := MapProviderStatus(providerSub.Status)
	sub := models.Subscription{
		UserUID:              user.UID,
		StripeSubscriptionID: providerSub.ID,
		StripePriceID:        item.Price.ID,
		Plan:                 s.planFromPriceID(item.Price.ID),
		Status:               status,
		Amount:               item.Price.UnitAmount,
		StartsAt:             time.Unix(item.CurrentPeriodStart, 0).UTC(),
		EndsAt:               time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		CancelledAt:          cancelledAt,
	}
	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", providerSub.ID, err)
	}

	log.Info("subscription reconciled",
		slog.String("subscription_id", providerSub.ID),
		slog.String("status", status))
	return nil
}

// handleSubscriptionDeleted помечает подписку отменённой. Для неизвестной
// подписки это no-op: нельзя отменить то, что не отслеживается.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, log *slog.Logger, providerSub paymentprovider.Subscription) error {
	now := s.now().UTC()
	rows, err := s.repo.UpdateSubscriptionStatus(ctx, providerSub.ID, models.SubscriptionStatusCancelled, &now)
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", providerSub.ID, err)
	}
	if rows == 0 {
		log.Info("delete event for untracked subscription", slog.String("subscription_id", providerSub.ID))
		return nil
	}

	log.Info("subscription cancelled", slog.String("subscription_id", providerSub.ID))
	return nil
}

// handlePaymentFailed переводит подписку в PENDING. Событие о неизвестной
// подписке игнорируется и не создаёт запись.
func (s *Service) handlePaymentFailed(ctx context.Context, log *slog.Logger, invoice paymentprovider.Invoice) error {
	if invoice.Subscription == "" {
		log.Info("payment failed event without subscription reference")
		return nil
	}

	rows, err := s.repo.UpdateSubscriptionStatus(ctx, invoice.Subscription, models.SubscriptionStatusPending, nil)
	if err != nil {
		return fmt.Errorf("mark subscription %s pending: %w", invoice.Subscription, err)
	}
	if rows == 0 {
		log.Info("payment failed for untracked subscription", slog.String("subscription_id", invoice.Subscription))
		return nil
	}

	log.Info("subscription payment failed", slog.String("subscription_id", invoice.Subscription))
	return nil
}

func (s *Service) notifySubscription(ctx context.Context, log *slog.Logger, userUID, plan string) {
	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		log.Warn("failed to load user for notification", sl.Err(err))
		return
	}
	msg := models.SubscriptionNotification{
		Email: user.Email,
		Name:  user.Name,
		Plan:  strings.ToLower(plan),
	}
	if err := s.notifier.PublishSubscriptionConfirmation(msg); err != nil {
		log.Warn("failed to publish subscription confirmation", sl.Err(err))
	}
}

func (s *Service) notifyPurchase(ctx context.Context, log *slog.Logger, userUID, resourceID string, amountCents int) {
	user, err := s.repo.GetUserByUID(ctx, userUID)
	if err != nil {
		log.Warn("failed to load user for notification", sl.Err(err))
		return
	}
	resource, err := s.repo.GetResourceByID(ctx, resourceID)
	if err != nil {
		log.Warn("failed to load resource for notification", sl.Err(err))
		return
	}
	msg := models.PurchaseNotification{
		Email:         user.Email,
		Name:          user.Name,
		ResourceTitle: resource.Title,
		AmountCents:   amountCents,
	}
	if err := s.notifier.PublishPurchaseReceipt(msg); err != nil {
		log.Warn("failed to publish purchase receipt", sl.Err(err))
	}
}

// planFromPriceID определяет тарифный план по идентификатору цены:
// совпадение с настроенной годовой ценой означает YEARLY, иначе MONTHLY.
func (s *Service) planFromPriceID(priceID string) string {
	if priceID != "" && priceID == s.yearlyPriceID {
		return models.PlanYearly
	}
	return models.PlanMonthly
}

// MapProviderStatus переводит статус подписки провайдера в локальный статус.
// Неизвестные статусы консервативно считаются PENDING.
func MapProviderStatus(providerStatus string) string {
	switch providerStatus {
	case paymentprovider.ProviderStatusActive, paymentprovider.ProviderStatusTrialing:
		return models.SubscriptionStatusActive
	case paymentprovider.ProviderStatusCanceled:
		return models.SubscriptionStatusCancelled
	case paymentprovider.ProviderStatusPastDue, paymentprovider.ProviderStatusUnpaid:
		return models.SubscriptionStatusPending
	case paymentprovider.ProviderStatusIncomplete, paymentprovider.ProviderStatusIncompleteExpired:
		return models.SubscriptionStatusExpired
	default:
		return models.SubscriptionStatusPending
	}
}
