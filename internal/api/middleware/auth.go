// auth.go — шлюз аутентификации по сессионному токену Borrowbox.
// Извлекает Bearer token, проверяет подпись и срок действия,
// загружает покупателя и помещает его в контекст запроса.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/borrowbox/internal/api/errors"
	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/domain/rbac"
	"github.com/bigkaa/borrowbox/internal/service"
	"github.com/bigkaa/borrowbox/internal/token"
)

// authFailuresTotal — отказы аутентификации по причинам.
var authFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bb_auth_failures_total",
		Help: "Общее количество отказов аутентификации по причинам",
	},
	[]string{"reason"},
)

// Причины отказа, не связанные с самим токеном.
const (
	reasonMissingHeader    = "missing_header"
	reasonBadScheme        = "bad_scheme"
	reasonCustomerNotFound = "customer_not_found"
	reasonLookupFailed     = "lookup_failed"
)

// Сообщения клиенту.
const (
	msgNotAuthorized    = "Not authorized to access this route"
	msgCustomerNotFound = "Customer not found"
)

var (
	// ErrUnauthorized — нет заголовка, неверная схема или невалидный токен.
	ErrUnauthorized = errors.New("не авторизован")
	// ErrCustomerNotFound — токен валиден, но покупателя нет.
	ErrCustomerNotFound = errors.New("покупатель не найден")
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyCustomer — аутентифицированный покупатель в контексте запроса.
const ContextKeyCustomer contextKey = "customer"

// TokenVerifier проверяет сессионный токен.
// Реализуется token.Service.
type TokenVerifier interface {
	Verify(tokenString string) (string, error)
}

// CustomerFinder загружает покупателя по ID.
// Реализуется service.CustomerService.
type CustomerFinder interface {
	Get(ctx context.Context, id string) (*model.Customer, error)
}

// Gate — шлюз аутентификации.
type Gate struct {
	tokens    TokenVerifier
	customers CustomerFinder
	logger    *slog.Logger
}

// NewGate создаёт шлюз аутентификации.
func NewGate(tokens TokenVerifier, customers CustomerFinder, logger *slog.Logger) *Gate {
	return &Gate{
		tokens:    tokens,
		customers: customers,
		logger:    logger.With(slog.String("component", "auth_gate")),
	}
}

// Authenticate разбирает значение заголовка Authorization и возвращает покупателя.
// Ошибки: ErrUnauthorized, ErrCustomerNotFound или ошибка загрузки покупателя.
// Проверка токена не выполняется, если заголовок отсутствует или имеет неверный формат.
func (g *Gate) Authenticate(ctx context.Context, header string) (*model.Customer, error) {
	if header == "" {
		return nil, g.fail(reasonMissingHeader, ErrUnauthorized)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, g.fail(reasonBadScheme, ErrUnauthorized)
	}

	customerID, err := g.tokens.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, g.fail(token.Reason(err), fmt.Errorf("%w: %w", ErrUnauthorized, err))
	}

	c, err := g.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, g.fail(reasonCustomerNotFound, ErrCustomerNotFound)
		}
		authFailuresTotal.WithLabelValues(reasonLookupFailed).Inc()
		return nil, fmt.Errorf("загрузка покупателя: %w", err)
	}
	return c, nil
}

func (g *Gate) fail(reason string, err error) error {
	authFailuresTotal.WithLabelValues(reason).Inc()
	g.logger.Debug("Аутентификация не пройдена", slog.String("reason", reason))
	return err
}

// Middleware возвращает HTTP middleware, пропускающий только аутентифицированные запросы.
// 401 — нет или невалидный токен, 404 — покупатель удалён.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithCustomer(r.Context(), c)))
			case errors.Is(err, ErrUnauthorized):
				apierrors.Unauthorized(w, msgNotAuthorized)
			case errors.Is(err, ErrCustomerNotFound):
				apierrors.NotFound(w, msgCustomerNotFound)
			default:
				g.logger.Error("Ошибка аутентификации", slog.String("error", err.Error()))
				apierrors.InternalError(w, "Internal server error")
			}
		})
	}
}

// --- RBAC middleware ---

// RequireRole возвращает middleware, пропускающий покупателей с одной из ролей.
// Должен использоваться ПОСЛЕ Gate.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := CustomerFromContext(r.Context())
			if c == nil {
				apierrors.Unauthorized(w, msgNotAuthorized)
				return
			}
			if !rbac.Allowed(c.Role, roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Customer role %s is not authorized to access this route", c.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// WithCustomer возвращает контекст с аутентифицированным покупателем.
func WithCustomer(ctx context.Context, c *model.Customer) context.Context {
	if info, ok := ctx.Value(contextKeyRequestInfo).(*requestInfo); ok && c != nil {
		info.customerID = c.ID
		info.role = c.Role
	}
	return context.WithValue(ctx, ContextKeyCustomer, c)
}

// CustomerFromContext извлекает покупателя из контекста запроса.
// Возвращает nil, если запрос не прошёл через Gate.
func CustomerFromContext(ctx context.Context) *model.Customer {
	c, _ := ctx.Value(ContextKeyCustomer).(*model.Customer)
	return c
}
