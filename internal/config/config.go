// Пакет config — загрузка и валидация конфигурации Borrowbox
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/borrowbox/internal/token"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Окружения запуска.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// minJWTSecretLen — минимальная длина секрета HMAC в байтах.
const minJWTSecretLen = 32

// Config содержит все параметры конфигурации Borrowbox.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Окружение (development, production)
	Env string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Разрешённые CORS origins
	CORSAllowedOrigins []string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Токены ---

	// Секрет подписи HMAC
	JWTSecret string
	// Время жизни токена в днях
	JWTExpireDays int
	// Issuer токена
	JWTIssuer string

	// --- Файлы ---

	// Корневая директория контента (изображения лежат в <ContentDir>/uploads)
	ContentDir string
	// Публичный базовый URL для формирования imageUrl
	PublicBaseURL string
	// Лимит размера изображения товара (байт)
	ProductImageMaxSize int64
	// Лимит размера изображения в /uploadImage (байт)
	ImageUploadMaxSize int64

	// --- Почта ---

	// Домен Mailgun. Пустое значение — письма только логируются.
	MailgunDomain string
	// API-ключ Mailgun
	MailgunAPIKey string
	// Адрес API Mailgun (пустая строка — по умолчанию, для EU-региона — https://api.eu.mailgun.net/v3)
	MailgunAPIBase string
	// Адрес отправителя
	MailFrom string
	// Таймаут отправки одного письма
	MailTimeout time.Duration

	// --- Кэш товаров ---

	ProductCacheSize int
	ProductCacheTTL  time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("BB_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("BB_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.Env = getEnvDefault("BB_ENV", EnvDevelopment)
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return nil, fmt.Errorf("BB_ENV: недопустимое значение %q, допустимые: development, production", cfg.Env)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BB_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("BB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("BB_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("BB_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("BB_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("BB_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("BB_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("BB_HTTP_IDLE_TIMEOUT: %w", err)
	}

	cfg.CORSAllowedOrigins = parseCSV(getEnvDefault("BB_CORS_ALLOWED_ORIGINS", "*"))

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("BB_DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.DBPort, err = getEnvInt("BB_DB_PORT", 5432); err != nil {
		return nil, fmt.Errorf("BB_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("BB_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("BB_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("BB_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("BB_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BB_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Токены ---

	if cfg.JWTSecret, err = getEnvRequired("BB_JWT_SECRET"); err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return nil, fmt.Errorf("BB_JWT_SECRET: длина секрета должна быть не меньше %d байт", minJWTSecretLen)
	}

	if cfg.JWTExpireDays, err = getEnvInt("BB_JWT_EXPIRE_DAYS", 30); err != nil {
		return nil, fmt.Errorf("BB_JWT_EXPIRE_DAYS: %w", err)
	}
	if cfg.JWTExpireDays < 1 {
		return nil, fmt.Errorf("BB_JWT_EXPIRE_DAYS: значение %d должно быть >= 1", cfg.JWTExpireDays)
	}

	cfg.JWTIssuer = getEnvDefault("BB_JWT_ISSUER", "borrowbox")

	// --- Файлы ---

	cfg.ContentDir = getEnvDefault("BB_CONTENT_DIR", "./public")

	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("BB_PUBLIC_BASE_URL", "http://localhost:5000"), "/")
	if u, parseErr := url.Parse(cfg.PublicBaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("BB_PUBLIC_BASE_URL: некорректный URL %q", cfg.PublicBaseURL)
	}

	if cfg.ProductImageMaxSize, err = getEnvInt64("BB_PRODUCT_IMAGE_MAX_SIZE", 5<<20); err != nil {
		return nil, fmt.Errorf("BB_PRODUCT_IMAGE_MAX_SIZE: %w", err)
	}
	if cfg.ImageUploadMaxSize, err = getEnvInt64("BB_IMAGE_UPLOAD_MAX_SIZE", 2<<20); err != nil {
		return nil, fmt.Errorf("BB_IMAGE_UPLOAD_MAX_SIZE: %w", err)
	}
	if cfg.ProductImageMaxSize <= 0 || cfg.ImageUploadMaxSize <= 0 {
		return nil, fmt.Errorf("лимиты размера изображений должны быть положительными")
	}

	// --- Почта ---

	cfg.MailgunDomain = getEnvDefault("BB_MAILGUN_DOMAIN", "")
	cfg.MailgunAPIKey = getEnvDefault("BB_MAILGUN_API_KEY", "")
	if cfg.MailgunDomain != "" && cfg.MailgunAPIKey == "" {
		return nil, fmt.Errorf("BB_MAILGUN_API_KEY: обязателен при заданном BB_MAILGUN_DOMAIN")
	}
	cfg.MailgunAPIBase = getEnvDefault("BB_MAILGUN_API_BASE", "")
	cfg.MailFrom = getEnvDefault("BB_MAIL_FROM", "Borrowbox <no-reply@borrowbox.local>")
	if cfg.MailTimeout, err = getEnvDuration("BB_MAIL_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("BB_MAIL_TIMEOUT: %w", err)
	}

	// --- Кэш товаров ---

	if cfg.ProductCacheSize, err = getEnvInt("BB_PRODUCT_CACHE_SIZE", 1000); err != nil {
		return nil, fmt.Errorf("BB_PRODUCT_CACHE_SIZE: %w", err)
	}
	if cfg.ProductCacheSize < 1 {
		return nil, fmt.Errorf("BB_PRODUCT_CACHE_SIZE: значение %d должно быть >= 1", cfg.ProductCacheSize)
	}
	if cfg.ProductCacheTTL, err = getEnvDuration("BB_PRODUCT_CACHE_TTL", time.Minute); err != nil {
		return nil, fmt.Errorf("BB_PRODUCT_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("BB_DEPHEALTH_GROUP", "borrowbox")
	if cfg.DephealthCheckInterval, err = getEnvDuration("BB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("BB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	if cfg.ShutdownTimeout, err = getEnvDuration("BB_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("BB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// IsProduction сообщает, запущен ли сервис в production-окружении.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// TokenConfig возвращает параметры сервиса токенов.
func (c *Config) TokenConfig() token.Config {
	return token.Config{
		Secret: []byte(c.JWTSecret),
		TTL:    time.Duration(c.JWTExpireDays) * 24 * time.Hour,
		Issuer: c.JWTIssuer,
	}
}

// ProductImagePolicy — правила загрузки изображений товаров (jpeg/jpg/png/gif).
func (c *Config) ProductImagePolicy() upload.Policy {
	return upload.Policy{
		MaxSize:    c.ProductImageMaxSize,
		Extensions: []string{".jpeg", ".jpg", ".png", ".gif"},
		Prefix:     "PRODUCT",
	}
}

// ImageUploadPolicy — правила для /uploadImage (jpg/jpeg/png/gif).
func (c *Config) ImageUploadPolicy() upload.Policy {
	return upload.Policy{
		MaxSize:    c.ImageUploadMaxSize,
		Extensions: []string{".jpg", ".jpeg", ".png", ".gif"},
		Prefix:     "PROFILE",
	}
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
