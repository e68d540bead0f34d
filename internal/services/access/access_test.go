package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/study-resource-hub/internal/models"
	"github.com/magabrotheeeer/study-resource-hub/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetResourceByID(ctx context.Context, id string) (*models.Resource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Resource), args.Error(1)
}
func (m *RepoMock) FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	args := m.Called(ctx, userUID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) FindCompletedPurchase(ctx context.Context, userUID, resourceID string) (*models.Purchase, error) {
	args := m.Called(ctx, userUID, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}
func (m *RepoMock) CreateDownload(ctx context.Context, userUID, resourceID string) (int, error) {
	args := m.Called(ctx, userUID, resourceID)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) IncrementDownloadCount(ctx context.Context, resourceID string) error {
	return m.Called(ctx, resourceID).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestService(repo *RepoMock, now time.Time) *Service {
	svc := New(repo, newNoopLogger())
	svc.now = func() time.Time { return now }
	return svc
}

func TestCheckAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	freeResource := &models.Resource{ID: "res-free", Title: "Free notes", IsPremium: false}
	premiumResource := &models.Resource{ID: "res-premium", Title: "Exam pack", IsPremium: true}

	tests := []struct {
		name       string
		userUID    string
		isAdmin    bool
		resourceID string
		setupMocks func(r *RepoMock)
		want       models.AccessResult
		wantErr    error
	}{
		{
			name:       "бесплатный ресурс доступен анониму",
			userUID:    "",
			resourceID: "res-free",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-free").Return(freeResource, nil).Once()
			},
			want: models.AccessResult{HasAccess: true, Reason: models.ReasonFree},
		},
		{
			name:       "администратор получает доступ без проверок",
			userUID:    "admin-1",
			isAdmin:    true,
			resourceID: "res-premium",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-premium").Return(premiumResource, nil).Once()
			},
			want: models.AccessResult{HasAccess: true, Reason: models.ReasonAdmin},
		},
		{
			name:       "аноним не получает платный ресурс",
			userUID:    "",
			resourceID: "res-premium",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-premium").Return(premiumResource, nil).Once()
			},
			want: models.AccessResult{HasAccess: false, Reason: models.ReasonNoAccess},
		},
		{
			name:       "действующая подписка даёт доступ",
			userUID:    "user-1",
			resourceID: "res-premium",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-premium").Return(premiumResource, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", now).Return(&models.Subscription{
					UserUID: "user-1",
					Status:  models.SubscriptionStatusActive,
					EndsAt:  now.Add(24 * time.Hour),
				}, nil).Once()
			},
			want: models.AccessResult{HasAccess: true, Reason: models.ReasonSubscribed},
		},
		{
			name:       "подписка ACTIVE с истёкшим сроком не даёт доступ",
			userUID:    "user-2",
			resourceID: "res-premium",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-premium").Return(premiumResource, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-2", now).Return(&models.Subscription{
					UserUID: "user-2",
					Status:  models.SubscriptionStatusActive,
					EndsAt:  now.Add(-time.Hour),
				}, nil).Once()
				r.On("FindCompletedPurchase", mock.Anything, "user-2", "res-premium").
					Return(nil, repository.ErrNotFound).Once()
			},
			want: models.AccessResult{HasAccess: false, Reason: models.ReasonNoAccess},
		},
		{
			name:       "разовая покупка даёт доступ без подписки",
			userUID:    "user-3",
			resourceID: "res-premium",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-premium").Return(premiumResource, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-3", now).
					Return(nil, repository.ErrNotFound).Once()
				r.On("FindCompletedPurchase", mock.Anything, "user-3", "res-premium").Return(&models.Purchase{
					UserUID:       "user-3",
					ResourceID:    "res-premium",
					PaymentStatus: models.PaymentStatusCompleted,
				}, nil).Once()
			},
			want: models.AccessResult{HasAccess: true, Reason: models.ReasonPurchased},
		},
		{
			name:       "без подписки и покупки доступа нет",
			userUID:    "user-4",
			resourceID: "res-premium",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-premium").Return(premiumResource, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-4", now).
					Return(nil, repository.ErrNotFound).Once()
				r.On("FindCompletedPurchase", mock.Anything, "user-4", "res-premium").
					Return(nil, repository.ErrNotFound).Once()
			},
			want: models.AccessResult{HasAccess: false, Reason: models.ReasonNoAccess},
		},
		{
			name:       "несуществующий ресурс возвращает ошибку, а не отказ",
			userUID:    "user-5",
			resourceID: "res-missing",
			setupMocks: func(r *RepoMock) {
				r.On("GetResourceByID", mock.Anything, "res-missing").
					Return(nil, repository.ErrNotFound).Once()
			},
			wantErr: repository.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)

			svc := newTestService(repo, now)
			got, err := svc.CheckAccess(context.Background(), tt.userUID, tt.isAdmin, tt.resourceID)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestRegisterDownload(t *testing.T) {
	tests := []struct {
		name       string
		userUID    string
		setupMocks func(r *RepoMock)
		wantErr    bool
	}{
		{
			name:    "известный пользователь пишется в журнал и счётчик",
			userUID: "user-1",
			setupMocks: func(r *RepoMock) {
				r.On("CreateDownload", mock.Anything, "user-1", "res-1").Return(7, nil).Once()
				r.On("IncrementDownloadCount", mock.Anything, "res-1").Return(nil).Once()
			},
		},
		{
			name:    "аноним увеличивает только счётчик",
			userUID: "",
			setupMocks: func(r *RepoMock) {
				r.On("IncrementDownloadCount", mock.Anything, "res-1").Return(nil).Once()
			},
		},
		{
			name:    "ошибка журнала прерывает регистрацию",
			userUID: "user-1",
			setupMocks: func(r *RepoMock) {
				r.On("CreateDownload", mock.Anything, "user-1", "res-1").
					Return(0, errors.New("db error")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)

			svc := newTestService(repo, time.Now())
			err := svc.RegisterDownload(context.Background(), tt.userUID, "res-1")

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}
