package models

// AccessReason объясняет, на каком основании доступ к ресурсу разрешён
// или отклонён.
type AccessReason string

// Возможные основания решения о доступе.
const (
	ReasonFree       AccessReason = "free"
	ReasonSubscribed AccessReason = "subscribed"
	ReasonPurchased  AccessReason = "purchased"
	ReasonAdmin      AccessReason = "admin"
	ReasonNoAccess   AccessReason = "no_access"
)

// AccessResult — результат проверки доступа пользователя к ресурсу.
type AccessResult struct {
	HasAccess bool         `json:"has_access"`
	Reason    AccessReason `json:"reason"`
}
