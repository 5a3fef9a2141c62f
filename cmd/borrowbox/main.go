// Точка входа Borrowbox — backend интернет-магазина.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой (токены, покупатели, каталог, изображения, почта),
// запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/bigkaa/borrowbox/internal/api/handlers"
	"github.com/bigkaa/borrowbox/internal/api/middleware"
	"github.com/bigkaa/borrowbox/internal/config"
	"github.com/bigkaa/borrowbox/internal/database"
	"github.com/bigkaa/borrowbox/internal/mail"
	"github.com/bigkaa/borrowbox/internal/repository"
	"github.com/bigkaa/borrowbox/internal/server"
	"github.com/bigkaa/borrowbox/internal/service"
	"github.com/bigkaa/borrowbox/internal/token"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// uploadsDir — директория изображений относительно корня контента.
const uploadsDir = "uploads"

func main() {
	// 0. Необязательный env-файл. Переменные окружения имеют приоритет.
	envFile := os.Getenv("BB_ENV_FILE")
	if envFile == "" {
		envFile = "config/config.env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Ошибка чтения env-файла", slog.String("file", envFile), slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Borrowbox запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("env", cfg.Env),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	customerRepo := repository.NewCustomerRepository(pool)
	productRepo := repository.NewProductRepository(pool)

	// 6. Токены, файлы, почта
	tokens, err := token.New(cfg.TokenConfig())
	if err != nil {
		logger.Error("Ошибка создания сервиса токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	images, err := upload.New(cfg.ContentDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации директории контента",
			slog.String("dir", cfg.ContentDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var sender mail.Sender
	if cfg.MailgunDomain != "" {
		sender = mail.NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailFrom, cfg.MailgunAPIBase, logger)
		logger.Info("Отправка писем через Mailgun", slog.String("domain", cfg.MailgunDomain))
	} else {
		sender = mail.NewLogSender(logger)
		logger.Warn("BB_MAILGUN_DOMAIN не задан, письма только логируются")
	}
	notifier := mail.NewNotifier(sender, cfg.MailTimeout, cfg.PublicBaseURL, logger)

	// 7. Services
	sanitizer := service.NewSanitizer()
	customerSvc := service.NewCustomerService(customerRepo, tokens, notifier, sanitizer, logger)
	productSvc := service.NewProductService(
		productRepo, images,
		cfg.ProductImagePolicy(), uploadsDir,
		service.NewProductCache(cfg.ProductCacheSize, cfg.ProductCacheTTL),
		sanitizer,
		logger,
	)
	statsSvc := service.NewStatsService(customerSvc, productSvc)

	// 8. Handlers
	h := server.Handlers{
		Customers: handlers.NewCustomersHandler(
			customerSvc, images,
			cfg.ImageUploadPolicy(), uploadsDir,
			cfg.IsProduction(),
			logger,
		),
		Products: handlers.NewProductsHandler(productSvc, cfg.ProductImageMaxSize, cfg.PublicBaseURL, logger),
		Stats:    handlers.NewStatsHandler(statsSvc, logger),
		Health:   handlers.NewHealthHandler(database.NewReadinessChecker(pool), images),
	}
	gate := middleware.NewGate(tokens, customerSvc, logger)

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"borrowbox",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, h, gate)
	runErr := srv.Run()

	// 11. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	customerSvc.Wait()

	if runErr != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("Borrowbox остановлен")
}
