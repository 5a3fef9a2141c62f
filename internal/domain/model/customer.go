// Пакет model — доменные модели Borrowbox.
package model

import "time"

// Customer — покупатель (учётная запись).
// Хранится в таблице customers.
type Customer struct {
	// ID — UUID записи
	ID string `json:"id"`
	// Name — отображаемое имя
	Name string `json:"name"`
	// Email — адрес электронной почты (уникален без учёта регистра)
	Email string `json:"email"`
	// PasswordHash — bcrypt-хэш пароля. Заполняется только по явному запросу.
	PasswordHash string `json:"-"`
	// Role — роль (customer, publisher, admin)
	Role string `json:"role"`
	// CreatedAt — время регистрации
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updatedAt"`
}
