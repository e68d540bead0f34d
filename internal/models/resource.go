// Package models содержит доменные структуры маркетплейса учебных материалов:
// ресурсы, пользователей, подписки, покупки и записи о скачиваниях.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// Resource представляет учебный материал каталога.
// Поле Price задаётся в минимальных единицах валюты (центах) и может быть nil —
// это означает, что для платного ресурса действует цена по умолчанию.
type Resource struct {
	ID            string     // Уникальный идентификатор ресурса
	Title         string     // Название материала
	Slug          string     // URL-идентификатор
	FileURL       string     // Ссылка на файл материала
	IsPremium     bool       // Признак платного материала
	Price         *int       // Цена в центах, nil — цена по умолчанию
	DownloadCount int        // Счётчик скачиваний, монотонно растёт
	CategoryID    *string    // Категория материала
	CreatedAt     time.Time  // Дата добавления
}

// Download представляет запись журнала скачиваний.
// Журнал только дополняется и никогда не читается логикой доступа.
type Download struct {
	ID         int       `json:"id"`
	UserUID    string    `json:"user_uid"`
	ResourceID string    `json:"resource_id"`
	CreatedAt  time.Time `json:"created_at"`
}
