// stats.go — агрегированная статистика для администратора.
package service

import (
	"context"
	"fmt"

	"github.com/bigkaa/borrowbox/internal/domain/model"
)

// Counter — источник количества записей.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// StatsService считает покупателей и товары.
type StatsService struct {
	customers Counter
	products  Counter
}

// NewStatsService создаёт сервис статистики.
func NewStatsService(customers, products Counter) *StatsService {
	return &StatsService{customers: customers, products: products}
}

// Get возвращает текущие счётчики.
func (s *StatsService) Get(ctx context.Context) (*model.Stats, error) {
	users, err := s.customers.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт покупателей: %w", err)
	}
	products, err := s.products.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт товаров: %w", err)
	}
	return &model.Stats{Users: users, Products: products}, nil
}
