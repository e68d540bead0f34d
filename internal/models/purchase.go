package models

import "time"

// PaymentStatusCompleted — завершённая оплата разовой покупки.
// Завершённая покупка даёт постоянный доступ к ресурсу независимо от подписки.
const PaymentStatusCompleted = "COMPLETED"

// Purchase представляет разовую покупку ресурса.
// Поле StripeSessionID уникально: повторная доставка webhook-события
// об оплаченной сессии не должна создавать вторую запись.
type Purchase struct {
	ID              int       `json:"id"`
	UserUID         string    `json:"user_uid"`
	ResourceID      string    `json:"resource_id"`
	Amount          int       `json:"amount"`
	PaymentStatus   string    `json:"payment_status"`
	StripePaymentID string    `json:"stripe_payment_id"`
	StripeSessionID string    `json:"stripe_session_id"`
	CreatedAt       time.Time `json:"created_at"`
}
