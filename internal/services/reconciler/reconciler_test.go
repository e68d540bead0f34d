package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/paymentprovider"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

const yearlyPriceID = "price_yearly"

// fakeRepo — хранилище в памяти. Для проверки идемпотентности и
// коммутативности событий важно итоговое состояние, а не порядок вызовов,
// поэтому вместо mock-ожиданий используется настоящая (упрощённая) семантика
// upsert по внешнему идентификатору.
type fakeRepo struct {
	users     map[string]*models.User
	subs      map[string]models.Subscription
	purchases map[string]models.Purchase
	resources map[string]*models.Resource
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:     make(map[string]*models.User),
		subs:      make(map[string]models.Subscription),
		purchases: make(map[string]models.Purchase),
		resources: make(map[string]*models.Resource),
	}
}

func (f *fakeRepo) GetUserByUID(_ context.Context, uid string) (*models.User, error) {
	user, ok := f.users[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (f *fakeRepo) GetUserByStripeCustomerID(_ context.Context, customerID string) (*models.User, error) {
	for _, user := range f.users {
		if user.StripeCustomerID != nil && *user.StripeCustomerID == customerID {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) SetStripeCustomerID(_ context.Context, userUID, customerID string) error {
	user, ok := f.users[userUID]
	if !ok {
		return repository.ErrNotFound
	}
	user.StripeCustomerID = &customerID
	return nil
}

func (f *fakeRepo) UpsertSubscription(_ context.Context, sub models.Subscription) error {
	f.subs[sub.StripeSubscriptionID] = sub
	return nil
}

func (f *fakeRepo) UpdateSubscriptionStatus(_ context.Context, stripeSubscriptionID, status string, cancelledAt *time.Time) (int, error) {
	sub, ok := f.subs[stripeSubscriptionID]
	if !ok {
		return 0, nil
	}
	sub.Status = status
	if cancelledAt != nil {
		sub.CancelledAt = cancelledAt
	}
	f.subs[stripeSubscriptionID] = sub
	return 1, nil
}

func (f *fakeRepo) FindPurchaseBySessionID(_ context.Context, stripeSessionID string) (*models.Purchase, error) {
	purchase, ok := f.purchases[stripeSessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &purchase, nil
}

func (f *fakeRepo) CreatePurchase(_ context.Context, purchase models.Purchase) (int, error) {
	if _, ok := f.purchases[purchase.StripeSessionID]; ok {
		return 0, errors.New("duplicate session id")
	}
	purchase.ID = len(f.purchases) + 1
	f.purchases[purchase.StripeSessionID] = purchase
	return purchase.ID, nil
}

func (f *fakeRepo) GetResourceByID(_ context.Context, id string) (*models.Resource, error) {
	resource, ok := f.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return resource, nil
}

type fakeProvider struct {
	subs map[string]*paymentprovider.Subscription
}

func (f *fakeProvider) RetrieveSubscription(_ context.Context, subscriptionID string) (*paymentprovider.Subscription, error) {
	sub, ok := f.subs[subscriptionID]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

type fakeNotifier struct {
	subscriptionMsgs []models.SubscriptionNotification
	purchaseMsgs     []models.PurchaseNotification
	err              error
}

func (f *fakeNotifier) PublishSubscriptionConfirmation(msg models.SubscriptionNotification) error {
	if f.err != nil {
		return f.err
	}
	f.subscriptionMsgs = append(f.subscriptionMsgs, msg)
	return nil
}

func (f *fakeNotifier) PublishPurchaseReceipt(msg models.PurchaseNotification) error {
	if f.err != nil {
		return f.err
	}
	f.purchaseMsgs = append(f.purchaseMsgs, msg)
	return nil
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fixture struct {
	repo     *fakeRepo
	provider *fakeProvider
	notifier *fakeNotifier
	svc      *Service
	now      time.Time
}

func newFixture() *fixture {
	repo := newFakeRepo()
	provider := &fakeProvider{subs: make(map[string]*paymentprovider.Subscription)}
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc := New(repo, provider, notifier, yearlyPriceID, newNoopLogger())
	svc.now = func() time.Time { return now }

	return &fixture{repo: repo, provider: provider, notifier: notifier, svc: svc, now: now}
}

func (fx *fixture) addUser(uid, customerID string) {
	user := &models.User{UID: uid, Email: uid + "@example.com", Name: "Test User", Role: models.RoleUser}
	if customerID != "" {
		user.StripeCustomerID = &customerID
	}
	fx.repo.users[uid] = user
}

func mustEvent(t *testing.T, eventType string, object any) paymentprovider.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)

	var event paymentprovider.Event
	event.ID = "evt_" + eventType
	event.Type = eventType
	event.Data.Object = raw
	return event
}

func providerSubscription(id, customer, status, priceID string, start, end int64) paymentprovider.Subscription {
	var sub paymentprovider.Subscription
	sub.ID = id
	sub.Customer = customer
	sub.Status = status
	sub.Items.Data = []paymentprovider.SubscriptionItem{{
		Price:              paymentprovider.Price{ID: priceID, UnitAmount: 1999},
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}}
	return sub
}

func TestApplyEvent_SubscriptionCheckout(t *testing.T) {
	fx := newFixture()
	fx.addUser("user-1", "")

	periodStart := fx.now.Unix()
	periodEnd := fx.now.Add(365 * 24 * time.Hour).Unix()
	sub := providerSubscription("sub_1", "cus_1", "active", yearlyPriceID, periodStart, periodEnd)
	fx.provider.subs["sub_1"] = &sub

	event := mustEvent(t, paymentprovider.EventCheckoutSessionCompleted, paymentprovider.CheckoutSession{
		ID:           "cs_1",
		Mode:         paymentprovider.ModeSubscription,
		Customer:     "cus_1",
		Subscription: "sub_1",
		Metadata:     map[string]string{"userId": "user-1"},
	})

	require.NoError(t, fx.svc.ApplyEvent(context.Background(), event))

	got, ok := fx.repo.subs["sub_1"]
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserUID)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	assert.Equal(t, models.PlanYearly, got.Plan)
	assert.Equal(t, time.Unix(periodEnd, 0).UTC(), got.EndsAt)

	// Клиент провайдера привязан к пользователю.
	require.NotNil(t, fx.repo.users["user-1"].StripeCustomerID)
	assert.Equal(t, "cus_1", *fx.repo.users["user-1"].StripeCustomerID)

	// Уведомление о подтверждении подписки опубликовано.
	require.Len(t, fx.notifier.subscriptionMsgs, 1)
	assert.Equal(t, "yearly", fx.notifier.subscriptionMsgs[0].Plan)

	// Повторная доставка того же события не меняет состояние.
	require.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
	assert.Equal(t, got, fx.repo.subs["sub_1"])
	assert.Len(t, fx.repo.subs, 1)
}

func TestApplyEvent_MonthlyPlanFromUnknownPrice(t *testing.T) {
	fx := newFixture()
	fx.addUser("user-1", "")

	sub := providerSubscription("sub_m", "cus_1", "active", "price_monthly", fx.now.Unix(), fx.now.Add(30*24*time.Hour).Unix())
	fx.provider.subs["sub_m"] = &sub

	event := mustEvent(t, paymentprovider.EventCheckoutSessionCompleted, paymentprovider.CheckoutSession{
		ID:           "cs_m",
		Mode:         paymentprovider.ModeSubscription,
		Customer:     "cus_1",
		Subscription: "sub_m",
		Metadata:     map[string]string{"userId": "user-1"},
	})

	require.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
	assert.Equal(t, models.PlanMonthly, fx.repo.subs["sub_m"].Plan)
}

func TestApplyEvent_CheckoutAndUpdateCommute(t *testing.T) {
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Unix()

	checkout := paymentprovider.CheckoutSession{
		ID:           "cs_1",
		Mode:         paymentprovider.ModeSubscription,
		Customer:     "cus_1",
		Subscription: "sub_1",
		Metadata:     map[string]string{"userId": "user-1"},
	}
	updated := providerSubscription("sub_1", "cus_1", "active", "price_monthly", periodStart, periodEnd)

	run := func(t *testing.T, firstCheckout bool) models.Subscription {
		fx := newFixture()
		fx.addUser("user-1", "cus_1")
		sub := providerSubscription("sub_1", "cus_1", "active", "price_monthly", periodStart, periodEnd)
		fx.provider.subs["sub_1"] = &sub

		events := []paymentprovider.Event{
			mustEvent(t, paymentprovider.EventCheckoutSessionCompleted, checkout),
			mustEvent(t, paymentprovider.EventSubscriptionUpdated, updated),
		}
		if !firstCheckout {
			events[0], events[1] = events[1], events[0]
		}
		for _, event := range events {
			require.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
		}
		return fx.repo.subs["sub_1"]
	}

	direct := run(t, true)
	reversed := run(t, false)
	assert.Equal(t, direct, reversed, "итоговое состояние не должно зависеть от порядка доставки")
}

func TestApplyEvent_SubscriptionUpdated(t *testing.T) {
	fx := newFixture()
	fx.addUser("user-1", "cus_1")

	periodStart := fx.now.Unix()
	periodEnd := fx.now.Add(30 * 24 * time.Hour).Unix()

	// Просрочка платежа переводит подписку в PENDING.
	pastDue := providerSubscription("sub_1", "cus_1", "past_due", "price_monthly", periodStart, periodEnd)
	require.NoError(t, fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventSubscriptionUpdated, pastDue)))
	assert.Equal(t, models.SubscriptionStatusPending, fx.repo.subs["sub_1"].Status)

	// Успешное продление возвращает ACTIVE с новыми границами периода.
	renewed := providerSubscription("sub_1", "cus_1", "active", "price_monthly", periodEnd, periodEnd+30*24*3600)
	require.NoError(t, fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventSubscriptionUpdated, renewed)))
	assert.Equal(t, models.SubscriptionStatusActive, fx.repo.subs["sub_1"].Status)
	assert.Equal(t, time.Unix(periodEnd+30*24*3600, 0).UTC(), fx.repo.subs["sub_1"].EndsAt)
}

func TestApplyEvent_SubscriptionUpdatedUnknownCustomer(t *testing.T) {
	fx := newFixture()

	sub := providerSubscription("sub_1", "cus_ghost", "active", "price_monthly", fx.now.Unix(), fx.now.Add(time.Hour).Unix())
	err := fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventSubscriptionUpdated, sub))

	assert.NoError(t, err, "неизвестный клиент не должен приводить к повторной доставке")
	assert.Empty(t, fx.repo.subs)
}

func TestApplyEvent_SubscriptionDeleted(t *testing.T) {
	fx := newFixture()
	fx.repo.subs["sub_1"] = models.Subscription{
		UserUID:              "user-1",
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
	}

	var deleted paymentprovider.Subscription
	deleted.ID = "sub_1"
	require.NoError(t, fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventSubscriptionDeleted, deleted)))

	got := fx.repo.subs["sub_1"]
	assert.Equal(t, models.SubscriptionStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, fx.now.UTC(), *got.CancelledAt)
}

func TestApplyEvent_SubscriptionDeletedUntracked(t *testing.T) {
	fx := newFixture()

	var deleted paymentprovider.Subscription
	deleted.ID = "sub_ghost"
	err := fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventSubscriptionDeleted, deleted))

	assert.NoError(t, err)
	assert.Empty(t, fx.repo.subs, "отмена неизвестной подписки не создаёт запись")
}

func TestApplyEvent_PaymentFailed(t *testing.T) {
	fx := newFixture()
	fx.repo.subs["sub_1"] = models.Subscription{
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
	}

	require.NoError(t, fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventInvoicePaymentFailed, paymentprovider.Invoice{
			ID:           "in_1",
			Subscription: "sub_1",
		})))

	got := fx.repo.subs["sub_1"]
	assert.Equal(t, models.SubscriptionStatusPending, got.Status)
	assert.Nil(t, got.CancelledAt)

	// Счёт без привязки к подписке игнорируется.
	require.NoError(t, fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventInvoicePaymentFailed, paymentprovider.Invoice{ID: "in_2"})))

	// Счёт по неизвестной подписке тоже.
	require.NoError(t, fx.svc.ApplyEvent(context.Background(),
		mustEvent(t, paymentprovider.EventInvoicePaymentFailed, paymentprovider.Invoice{
			ID:           "in_3",
			Subscription: "sub_ghost",
		})))
	assert.Len(t, fx.repo.subs, 1)
}

func TestApplyEvent_ResourcePurchase(t *testing.T) {
	fx := newFixture()
	fx.addUser("user-1", "")
	fx.repo.resources["res-1"] = &models.Resource{ID: "res-1", Title: "Exam pack", IsPremium: true}

	event := mustEvent(t, paymentprovider.EventCheckoutSessionCompleted, paymentprovider.CheckoutSession{
		ID:            "cs_pay_1",
		Mode:          paymentprovider.ModePayment,
		Customer:      "cus_1",
		PaymentIntent: "pi_1",
		AmountTotal:   499,
		Metadata:      map[string]string{"userId": "user-1", "resourceId": "res-1"},
	})

	require.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
	require.Len(t, fx.repo.purchases, 1)
	purchase := fx.repo.purchases["cs_pay_1"]
	assert.Equal(t, models.PaymentStatusCompleted, purchase.PaymentStatus)
	assert.Equal(t, 499, purchase.Amount)
	assert.Equal(t, "pi_1", purchase.StripePaymentID)

	require.Len(t, fx.notifier.purchaseMsgs, 1)
	assert.Equal(t, "Exam pack", fx.notifier.purchaseMsgs[0].ResourceTitle)

	// Повторная доставка: вторая запись по той же сессии не создаётся.
	require.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
	assert.Len(t, fx.repo.purchases, 1)
}

func TestApplyEvent_CheckoutWithoutUserMetadata(t *testing.T) {
	fx := newFixture()

	event := mustEvent(t, paymentprovider.EventCheckoutSessionCompleted, paymentprovider.CheckoutSession{
		ID:   "cs_orphan",
		Mode: paymentprovider.ModeSubscription,
	})

	assert.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
	assert.Empty(t, fx.repo.subs)
	assert.Empty(t, fx.repo.purchases)
}

func TestApplyEvent_NotifierFailureIsSwallowed(t *testing.T) {
	fx := newFixture()
	fx.addUser("user-1", "")
	fx.notifier.err = errors.New("broker is down")

	sub := providerSubscription("sub_1", "cus_1", "active", yearlyPriceID, fx.now.Unix(), fx.now.Add(time.Hour).Unix())
	fx.provider.subs["sub_1"] = &sub

	event := mustEvent(t, paymentprovider.EventCheckoutSessionCompleted, paymentprovider.CheckoutSession{
		ID:           "cs_1",
		Mode:         paymentprovider.ModeSubscription,
		Customer:     "cus_1",
		Subscription: "sub_1",
		Metadata:     map[string]string{"userId": "user-1"},
	})

	assert.NoError(t, fx.svc.ApplyEvent(context.Background(), event),
		"ошибка уведомления не должна проваливать обработку события")
	assert.Len(t, fx.repo.subs, 1)
}

func TestApplyEvent_UnknownEventType(t *testing.T) {
	fx := newFixture()

	var event paymentprovider.Event
	event.ID = "evt_unknown"
	event.Type = "customer.created"
	event.Data.Object = json.RawMessage(`{}`)

	assert.NoError(t, fx.svc.ApplyEvent(context.Background(), event))
	assert.Empty(t, fx.repo.subs)
	assert.Empty(t, fx.repo.purchases)
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{paymentprovider.ProviderStatusActive, models.SubscriptionStatusActive},
		{paymentprovider.ProviderStatusTrialing, models.SubscriptionStatusActive},
		{paymentprovider.ProviderStatusCanceled, models.SubscriptionStatusCancelled},
		{paymentprovider.ProviderStatusPastDue, models.SubscriptionStatusPending},
		{paymentprovider.ProviderStatusUnpaid, models.SubscriptionStatusPending},
		{paymentprovider.ProviderStatusIncomplete, models.SubscriptionStatusExpired},
		{paymentprovider.ProviderStatusIncompleteExpired, models.SubscriptionStatusExpired},
		{"paused", models.SubscriptionStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, MapProviderStatus(tt.provider))
		})
	}
}
