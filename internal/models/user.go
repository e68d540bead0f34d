package models

import "time"

// Роли пользователей. Администратор получает доступ к любому ресурсу
// без проверки подписок и покупок.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID              string     // Уникальный идентификатор пользователя
	Email            string     // Электронная почта
	Username         string     // Имя пользователя (уникальное)
	Name             string     // Отображаемое имя
	PasswordHash     string     // Хэш пароля пользователя
	Role             string     // Роль пользователя, admin или user
	StripeCustomerID *string    // Идентификатор клиента у платёжного провайдера
	CreatedAt        time.Time  // Дата регистрации
}
