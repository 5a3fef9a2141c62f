// stats.go — обработчик GET /api/admin/stats.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bigkaa/borrowbox/internal/domain/model"
)

// StatsProvider — источник статистики.
// Реализуется service.StatsService.
type StatsProvider interface {
	Get(ctx context.Context) (*model.Stats, error)
}

// StatsHandler — обработчик статистики администратора.
type StatsHandler struct {
	svc    StatsProvider
	logger *slog.Logger
}

// NewStatsHandler создаёт обработчик статистики.
func NewStatsHandler(svc StatsProvider, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logger.With(slog.String("component", "stats_handler"))}
}

// GetStats возвращает количество покупателей и товаров.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Get(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	writeData(w, http.StatusOK, stats)
}
