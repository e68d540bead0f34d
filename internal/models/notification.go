package models

// SubscriptionNotification — сообщение очереди о подтверждении подписки.
type SubscriptionNotification struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Plan  string `json:"plan"`
}

// PurchaseNotification — сообщение очереди о чеке за разовую покупку.
type PurchaseNotification struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	ResourceTitle string `json:"resource_title"`
	AmountCents   int    `json:"amount_cents"`
}
