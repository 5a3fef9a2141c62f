// cache.go — LRU-кэш товаров с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/borrowbox/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bb_product_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш товаров.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bb_product_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша товаров.",
	})
)

// ProductCache — LRU-кэш карточек товаров по ID.
// Кэш локален для экземпляра; изменения товара инвалидируют запись.
// Каждая инвалидация увеличивает поколение: запись, прочитанная из БД
// до инвалидации, в кэш не попадает (см. SetIfCurrent).
type ProductCache struct {
	cache *expirable.LRU[string, model.Product]

	mu  sync.Mutex
	gen uint64
}

// NewProductCache создаёт кэш с максимальным размером и TTL записи.
func NewProductCache(maxSize int, ttl time.Duration) *ProductCache {
	return &ProductCache{cache: expirable.NewLRU[string, model.Product](maxSize, nil, ttl)}
}

// Get возвращает копию товара из кэша.
func (c *ProductCache) Get(id string) (*model.Product, bool) {
	val, ok := c.cache.Get(id)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &val, true
}

// Generation возвращает текущее поколение кэша.
// Снимается до чтения из БД и передаётся в SetIfCurrent.
func (c *ProductCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent добавляет запись, только если с момента gen не было инвалидаций.
func (c *ProductCache) SetIfCurrent(p *model.Product, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.cache.Add(p.ID, *p)
	return true
}

// Delete удаляет запись и начинает новое поколение.
func (c *ProductCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Remove(id)
}

// Len возвращает количество записей.
func (c *ProductCache) Len() int {
	return c.cache.Len()
}
