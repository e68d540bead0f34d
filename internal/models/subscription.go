package models

import "time"

// Статусы подписки. Локальная запись следует за событиями платёжного
// провайдера и может временно отставать от его состояния.
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusPending   = "PENDING"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

// Тарифные планы подписки.
const (
	PlanMonthly = "MONTHLY"
	PlanYearly  = "YEARLY"
)

// Subscription представляет локальную запись о подписке пользователя,
// привязанную к подписке во внешней платёжной системе.
// На один внешний идентификатор приходится не более одной строки (ключ upsert).
type Subscription struct {
	ID                   int        // Внутренний идентификатор записи
	UserUID              string     // Владелец подписки
	StripeSubscriptionID string     // Идентификатор подписки у провайдера (уникальный)
	StripePriceID        string     // Идентификатор тарифа у провайдера
	Plan                 string     // MONTHLY или YEARLY
	Status               string     // ACTIVE, PENDING, CANCELLED или EXPIRED
	Amount               int        // Сумма в центах
	StartsAt             time.Time  // Начало оплаченного периода
	EndsAt               time.Time  // Конец оплаченного периода
	CancelledAt          *time.Time // Момент отмены, если подписка отменена
}
