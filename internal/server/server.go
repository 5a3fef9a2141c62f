// Пакет server — HTTP-сервер Borrowbox с graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bigkaa/borrowbox/internal/api/handlers"
	"github.com/bigkaa/borrowbox/internal/api/middleware"
	"github.com/bigkaa/borrowbox/internal/config"
	"github.com/bigkaa/borrowbox/internal/domain/rbac"
)

// Handlers — обработчики, подключаемые к маршрутам.
type Handlers struct {
	Customers *handlers.CustomersHandler
	Products  *handlers.ProductsHandler
	Stats     *handlers.StatsHandler
	Health    *handlers.HealthHandler
}

// RouterOptions — параметры маршрутизатора.
type RouterOptions struct {
	// UploadsDir — директория, раздаваемая по /uploads/*
	UploadsDir string
	// CORSAllowedOrigins — разрешённые origins ("*" — любой)
	CORSAllowedOrigins []string
}

// Server — HTTP-сервер Borrowbox.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, gate *middleware.Gate) *Server {
	router := NewRouter(logger, h, gate, RouterOptions{
		UploadsDir:         filepath.Join(cfg.ContentDir, "uploads"),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты Borrowbox.
// Публичные: регистрация, вход, чтение каталога, статика, health.
// Остальные проходят через gate; управление каталогом — publisher/admin,
// список и поиск покупателей, статистика — admin.
func NewRouter(logger *slog.Logger, h Handlers, gate *middleware.Gate, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.Handler(corsOptions(opts.CORSAllowedOrigins)))

	// Health и метрики
	r.Get("/health/live", h.Health.HealthLive)
	r.Get("/health/ready", h.Health.HealthReady)
	r.Get("/metrics", h.Health.GetMetrics)

	// Покупатели
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", h.Customers.Register)
		r.Post("/login", h.Customers.Login)

		r.Group(func(r chi.Router) {
			r.Use(gate.Middleware())

			r.Get("/getCustomer", h.Customers.GetMe)
			r.Get("/customers/{id}", h.Customers.GetCustomer)
			r.Delete("/deleteCustomer/{id}", h.Customers.DeleteCustomer)
			r.Post("/uploadImage", h.Customers.UploadImage)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(rbac.RoleAdmin))
				r.Get("/getAllCustomers", h.Customers.ListCustomers)
				r.Get("/search/{query}", h.Customers.SearchCustomers)
			})
		})
	})

	// Каталог
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.Products.ListProducts)
		r.Get("/search", h.Products.SearchProducts)
		r.Get("/{id}", h.Products.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(gate.Middleware())
			r.Use(middleware.RequireRole(rbac.CanManageProducts...))

			r.Post("/add", h.Products.AddProduct)
			r.Put("/update/{id}", h.Products.UpdateProduct)
			r.Delete("/{id}", h.Products.DeleteProduct)
		})
	})

	// Администрирование
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(gate.Middleware())
		r.Use(middleware.RequireRole(rbac.RoleAdmin))
		r.Get("/stats", h.Stats.GetStats)
	})

	// Статические изображения
	if opts.UploadsDir != "" {
		files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadsDir)))
		r.Get("/uploads/*", noDirectoryListing(files).ServeHTTP)
	}

	return r
}

// corsOptions строит настройки CORS. Credentials разрешаются только
// для явного списка origins.
func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}
}

// noDirectoryListing отвечает 404 на запросы директорий.
func noDirectoryListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
