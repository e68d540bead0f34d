package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/study-resource-hub/internal/config"
	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/paymentprovider"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	return m.Called(ctx, userUID, customerID).Error(0)
}
func (m *RepoMock) GetResourceByID(ctx context.Context, id string) (*models.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Resource), args.Error(1)
}
func (m *RepoMock) FindCompletedPurchase(ctx context.Context, userUID, resourceID string) (*models.Purchase, error) {
	args := m.Called(ctx, userUID, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) CreateCustomer(ctx context.Context, email, name, userUID string) (*paymentprovider.Customer, error) {
	args := m.Called(ctx, email, name, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Customer), args.Error(1)
}
func (m *ProviderMock) CreateSubscriptionCheckout(ctx context.Context, params paymentprovider.SubscriptionCheckoutParams) (*paymentprovider.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}
func (m *ProviderMock) CreateResourceCheckout(ctx context.Context, params paymentprovider.ResourceCheckoutParams) (*paymentprovider.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}
func (m *ProviderMock) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (*paymentprovider.Session, error) {
	args := m.Called(ctx, customerID, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testStripeConfig() config.Stripe {
	return config.Stripe{
		MonthlyPriceID: "price_monthly",
		YearlyPriceID:  "price_yearly",
		AppBaseURL:     "https://hub.example.com",
	}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func TestCreateSubscriptionCheckout(t *testing.T) {
	tests := []struct {
		name       string
		plan       string
		setupMocks func(r *RepoMock, p *ProviderMock)
		wantURL    string
		wantErr    error
	}{
		{
			name: "существующий клиент оформляет годовой план",
			plan: "yearly",
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{
					UID:              "user-1",
					Email:            "user@example.com",
					StripeCustomerID: strPtr("cus_1"),
				}, nil).Once()
				p.On("CreateSubscriptionCheckout", mock.Anything, mock.MatchedBy(func(params paymentprovider.SubscriptionCheckoutParams) bool {
					return params.CustomerID == "cus_1" && params.PriceID == "price_yearly"
				})).Return(&paymentprovider.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil).Once()
			},
			wantURL: "https://pay.example/cs_1",
		},
		{
			name: "первый платёж создаёт клиента у провайдера",
			plan: "monthly",
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{
					UID:   "user-1",
					Email: "user@example.com",
					Name:  "Test User",
				}, nil).Once()
				p.On("CreateCustomer", mock.Anything, "user@example.com", "Test User", "user-1").
					Return(&paymentprovider.Customer{ID: "cus_new"}, nil).Once()
				r.On("SetStripeCustomerID", mock.Anything, "user-1", "cus_new").Return(nil).Once()
				p.On("CreateSubscriptionCheckout", mock.Anything, mock.MatchedBy(func(params paymentprovider.SubscriptionCheckoutParams) bool {
					return params.CustomerID == "cus_new" && params.PriceID == "price_monthly"
				})).Return(&paymentprovider.Session{ID: "cs_2", URL: "https://pay.example/cs_2"}, nil).Once()
			},
			wantURL: "https://pay.example/cs_2",
		},
		{
			name:       "неизвестный план отклоняется",
			plan:       "weekly",
			setupMocks: func(_ *RepoMock, _ *ProviderMock) {},
			wantErr:    ErrUnknownPlan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			provider := new(ProviderMock)
			tt.setupMocks(repo, provider)

			svc := New(repo, provider, testStripeConfig(), newNoopLogger())
			url, err := svc.CreateSubscriptionCheckout(context.Background(), "user-1", tt.plan)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantURL, url)
			}
			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
		})
	}
}

func TestCreateResourceCheckout(t *testing.T) {
	premium := &models.Resource{ID: "res-1", Title: "Exam pack", Slug: "exam-pack", IsPremium: true}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, p *ProviderMock)
		wantErr    error
	}{
		{
			name: "покупка платного ресурса с ценой по умолчанию",
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				r.On("GetResourceByID", mock.Anything, "res-1").Return(premium, nil).Once()
				r.On("FindCompletedPurchase", mock.Anything, "user-1", "res-1").
					Return(nil, repository.ErrNotFound).Once()
				r.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{
					UID:              "user-1",
					StripeCustomerID: strPtr("cus_1"),
				}, nil).Once()
				p.On("CreateResourceCheckout", mock.Anything, mock.MatchedBy(func(params paymentprovider.ResourceCheckoutParams) bool {
					return params.AmountCents == defaultResourcePrice && params.ResourceID == "res-1"
				})).Return(&paymentprovider.Session{URL: "https://pay.example/cs_3"}, nil).Once()
			},
		},
		{
			name: "у ресурса своя цена",
			setupMocks: func(r *RepoMock, p *ProviderMock) {
				priced := &models.Resource{ID: "res-1", Title: "Exam pack", Slug: "exam-pack", IsPremium: true, Price: intPtr(999)}
				r.On("GetResourceByID", mock.Anything, "res-1").Return(priced, nil).Once()
				r.On("FindCompletedPurchase", mock.Anything, "user-1", "res-1").
					Return(nil, repository.ErrNotFound).Once()
				r.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{
					UID:              "user-1",
					StripeCustomerID: strPtr("cus_1"),
				}, nil).Once()
				p.On("CreateResourceCheckout", mock.Anything, mock.MatchedBy(func(params paymentprovider.ResourceCheckoutParams) bool {
					return params.AmountCents == 999
				})).Return(&paymentprovider.Session{URL: "https://pay.example/cs_4"}, nil).Once()
			},
		},
		{
			name: "бесплатный ресурс оплатить нельзя",
			setupMocks: func(r *RepoMock, _ *ProviderMock) {
				r.On("GetResourceByID", mock.Anything, "res-1").Return(&models.Resource{
					ID:        "res-1",
					IsPremium: false,
				}, nil).Once()
			},
			wantErr: ErrFreeResource,
		},
		{
			name: "повторная покупка отклоняется",
			setupMocks: func(r *RepoMock, _ *ProviderMock) {
				r.On("GetResourceByID", mock.Anything, "res-1").Return(premium, nil).Once()
				r.On("FindCompletedPurchase", mock.Anything, "user-1", "res-1").Return(&models.Purchase{
					UserUID:    "user-1",
					ResourceID: "res-1",
				}, nil).Once()
			},
			wantErr: ErrAlreadyPurchased,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			provider := new(ProviderMock)
			tt.setupMocks(repo, provider)

			svc := New(repo, provider, testStripeConfig(), newNoopLogger())
			url, err := svc.CreateResourceCheckout(context.Background(), "user-1", "res-1")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, url)
			}
			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
		})
	}
}

func TestCreateBillingPortal(t *testing.T) {
	t.Run("пользователь без платёжного аккаунта", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{UID: "user-1"}, nil).Once()

		svc := New(repo, new(ProviderMock), testStripeConfig(), newNoopLogger())
		_, err := svc.CreateBillingPortal(context.Background(), "user-1")
		assert.ErrorIs(t, err, ErrNoCustomer)
	})

	t.Run("успешный переход в кабинет", func(t *testing.T) {
		repo := new(RepoMock)
		provider := new(ProviderMock)
		repo.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{
			UID:              "user-1",
			StripeCustomerID: strPtr("cus_1"),
		}, nil).Once()
		provider.On("CreateBillingPortalSession", mock.Anything, "cus_1", "https://hub.example.com/dashboard").
			Return(&paymentprovider.Session{URL: "https://pay.example/portal"}, nil).Once()

		svc := New(repo, provider, testStripeConfig(), newNoopLogger())
		url, err := svc.CreateBillingPortal(context.Background(), "user-1")
		assert.NoError(t, err)
		assert.Equal(t, "https://pay.example/portal", url)
	})

	t.Run("ошибка провайдера пробрасывается", func(t *testing.T) {
		repo := new(RepoMock)
		provider := new(ProviderMock)
		repo.On("GetUserByUID", mock.Anything, "user-1").Return(&models.User{
			UID:              "user-1",
			StripeCustomerID: strPtr("cus_1"),
		}, nil).Once()
		provider.On("CreateBillingPortalSession", mock.Anything, "cus_1", mock.Anything).
			Return(nil, errors.New("provider is down")).Once()

		svc := New(repo, provider, testStripeConfig(), newNoopLogger())
		_, err := svc.CreateBillingPortal(context.Background(), "user-1")
		assert.Error(t, err)
	})
}
