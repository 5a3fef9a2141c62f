// Пакет token — выпуск и проверка подписанных сессионных токенов.
// Токен — JWT HS256 с claims sub (ID покупателя), iat, exp и iss.
// Сервер ничего не хранит: токен отзывается только истечением срока.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Ошибки проверки токена. Все причины оборачивают ErrInvalidToken,
// чтобы на границе HTTP их можно было свести к одному ответу 401.
var (
	// ErrInvalidToken — токен не прошёл проверку.
	ErrInvalidToken = errors.New("невалидный токен")
	// ErrTokenExpired — срок действия истёк.
	ErrTokenExpired = errors.New("срок действия токена истёк")
	// ErrTokenMalformed — токен не разбирается или не содержит обязательных claims.
	ErrTokenMalformed = errors.New("некорректный формат токена")
	// ErrTokenSignature — подпись не совпадает.
	ErrTokenSignature = errors.New("неверная подпись токена")
)

// Config — параметры сервиса токенов.
type Config struct {
	// Secret — ключ HMAC
	Secret []byte
	// TTL — время жизни токена
	TTL time.Duration
	// Issuer — значение claim iss; пустая строка отключает проверку
	Issuer string
}

// Service выпускает и проверяет токены.
type Service struct {
	cfg Config
	now func() time.Time
}

// Option — функциональная опция Service.
type Option func(*Service)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создаёт сервис токенов.
func New(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("пустой секрет подписи")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("некорректное время жизни токена: %s", cfg.TTL)
	}
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue выпускает токен для покупателя.
func (s *Service) Issue(customerID string) (string, time.Time, error) {
	if customerID == "" {
		return "", time.Time{}, errors.New("пустой ID покупателя")
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.TTL)

	claims := jwt.RegisteredClaims{
		Subject:   customerID,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify проверяет подпись, формат и срок действия токена.
// Возвращает ID покупателя из claim sub.
func (s *Service) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return "", classify(err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenMalformed)
	}
	return claims.Subject, nil
}

// classify сводит ошибки jwt к собственным причинам.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenSignature)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenMalformed)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

// Reason возвращает короткую причину отказа для логов и метрик.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignature):
		return "signature"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
