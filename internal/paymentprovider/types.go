// Package paymentprovider реализует клиент платёжного провайдера (Stripe API)
// и типы событий, доставляемых через webhook.
package paymentprovider

import "encoding/json"

// Типы обрабатываемых webhook-событий. Остальные события игнорируются.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// Статусы подписки на стороне провайдера.
const (
	ProviderStatusActive            = "active"
	ProviderStatusTrialing          = "trialing"
	ProviderStatusCanceled          = "canceled"
	ProviderStatusPastDue           = "past_due"
	ProviderStatusUnpaid            = "unpaid"
	ProviderStatusIncomplete        = "incomplete"
	ProviderStatusIncompleteExpired = "incomplete_expired"
)

// Режимы платёжной сессии.
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// Event представляет конверт webhook-события провайдера.
// Тело объекта события разбирается получателем в зависимости от типа.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession представляет завершённую платёжную сессию.
type CheckoutSession struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`           // subscription или payment
	Customer      string            `json:"customer"`       // идентификатор клиента
	Subscription  string            `json:"subscription"`   // идентификатор подписки (режим subscription)
	PaymentIntent string            `json:"payment_intent"` // идентификатор платежа (режим payment)
	AmountTotal   int               `json:"amount_total"`   // сумма в центах
	Metadata      map[string]string `json:"metadata"`       // userId, resourceId и др.
}

// Price представляет тариф подписки у провайдера.
type Price struct {
	ID         string `json:"id"`
	UnitAmount int    `json:"unit_amount"`
}

// SubscriptionItem представляет позицию подписки.
// Границы оплаченного периода провайдер сообщает на уровне позиции.
type SubscriptionItem struct {
	Price              Price `json:"price"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// Subscription представляет подписку на стороне провайдера.
type Subscription struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	Status     string `json:"status"`
	CanceledAt *int64 `json:"canceled_at"`
	Items      struct {
		Data []SubscriptionItem `json:"data"`
	} `json:"items"`
}

// FirstItem возвращает первую позицию подписки, если она есть.
func (s *Subscription) FirstItem() (SubscriptionItem, bool) {
	if len(s.Items.Data) == 0 {
		return SubscriptionItem{}, false
	}
	return s.Items.Data[0], true
}

// Invoice представляет счёт провайдера. Используется только свойство
// принадлежности счёта подписке.
type Invoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

// Customer представляет клиента у провайдера.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session представляет созданную платёжную сессию с URL для перехода.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
