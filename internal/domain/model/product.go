package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы наличия товара.
const (
	ProductStatusAvailable  = "Available"
	ProductStatusLowStock   = "Low Stock"
	ProductStatusOutOfStock = "Out of Stock"
)

// IsValidProductStatus проверяет, является ли строка допустимым статусом товара.
func IsValidProductStatus(s string) bool {
	switch s {
	case ProductStatusAvailable, ProductStatusLowStock, ProductStatusOutOfStock:
		return true
	}
	return false
}

// Product — товар каталога.
// Хранится в таблице products.
type Product struct {
	// ID — UUID записи
	ID string
	// Name — название
	Name string
	// Description — описание
	Description string
	// Price — цена (numeric(12,2))
	Price decimal.Decimal
	// Quantity — количество на складе
	Quantity int
	// Status — статус наличия
	Status string
	// Image — ссылка на файл изображения (uploads/<name>), пустая строка если нет
	Image string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// ProductPatch — частичное обновление товара.
// nil-поля не изменяются.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	Status      *string
}

// IsEmpty сообщает, что патч не меняет ни одного поля.
func (p *ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Quantity == nil && p.Status == nil
}

// Apply применяет патч к товару.
func (p *ProductPatch) Apply(prod *Product) {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Quantity != nil {
		prod.Quantity = *p.Quantity
	}
	if p.Status != nil {
		prod.Status = *p.Status
	}
}
