// customers.go — регистрация, вход и управление покупателями.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/domain/rbac"
	"github.com/bigkaa/borrowbox/internal/repository"
)

// minPasswordLen — минимальная длина пароля.
const minPasswordLen = 6

// TokenIssuer выпускает сессионные токены.
// Реализуется token.Service.
type TokenIssuer interface {
	Issue(customerID string) (string, time.Time, error)
}

// WelcomeMailer отправляет приветственное письмо.
// Реализуется mail.Notifier.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, c *model.Customer) error
}

// CustomerService — сервис покупателей.
type CustomerService struct {
	repo       repository.CustomerRepository
	tokens     TokenIssuer
	mailer     WelcomeMailer
	sanitizer  *Sanitizer
	bcryptCost int
	logger     *slog.Logger

	mailWG sync.WaitGroup
}

// NewCustomerService создаёт сервис покупателей.
// mailer может быть nil — письма не отправляются.
func NewCustomerService(
	repo repository.CustomerRepository,
	tokens TokenIssuer,
	mailer WelcomeMailer,
	sanitizer *Sanitizer,
	logger *slog.Logger,
) *CustomerService {
	return &CustomerService{
		repo:       repo,
		tokens:     tokens,
		mailer:     mailer,
		sanitizer:  sanitizer,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger.With(slog.String("component", "customer_service")),
	}
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginResult — результат успешного входа.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Customer  *model.Customer
}

// Register создаёт покупателя с ролью по умолчанию.
// Повторная регистрация с тем же email возвращает ErrConflict.
// Приветственное письмо отправляется в фоне; его ошибка не влияет на результат.
func (s *CustomerService) Register(ctx context.Context, in RegisterInput) (*model.Customer, error) {
	name := s.sanitizer.Text(in.Name)
	email := normalizeEmail(in.Email)

	if name == "" {
		return nil, fmt.Errorf("%w: имя обязательно", ErrValidation)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email обязателен", ErrValidation)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: некорректный email", ErrValidation)
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: пароль должен содержать не меньше %d символов", ErrValidation, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: пароль слишком длинный", ErrValidation)
		}
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	c := &model.Customer{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         rbac.DefaultRole,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: покупатель уже существует", ErrConflict)
		}
		return nil, fmt.Errorf("создание покупателя: %w", err)
	}
	c.PasswordHash = ""

	s.logger.Info("Покупатель зарегистрирован", slog.String("customer_id", c.ID))
	s.sendWelcome(ctx, c)

	return c, nil
}

// sendWelcome отправляет письмо в отдельной горутине.
// Контекст запроса не отменяет отправку.
func (s *CustomerService) sendWelcome(ctx context.Context, c *model.Customer) {
	if s.mailer == nil {
		return
	}
	recipient := *c
	mailCtx := context.WithoutCancel(ctx)

	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		if err := s.mailer.SendWelcome(mailCtx, &recipient); err != nil {
			s.logger.Warn("Приветственное письмо не отправлено",
				slog.String("customer_id", recipient.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait ожидает завершения фоновых отправок писем.
func (s *CustomerService) Wait() {
	s.mailWG.Wait()
}

// Login проверяет учётные данные и выпускает токен.
// Отсутствующий покупатель и неверный пароль неразличимы: ErrInvalidCredentials.
func (s *CustomerService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: укажите email и пароль", ErrValidation)
	}

	c, err := s.repo.GetByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск покупателя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	c.PasswordHash = ""

	tok, expiresAt, err := s.tokens.Issue(c.ID)
	if err != nil {
		return nil, fmt.Errorf("выпуск токена: %w", err)
	}

	s.logger.Debug("Вход выполнен", slog.String("customer_id", c.ID))
	return &LoginResult{Token: tok, ExpiresAt: expiresAt, Customer: c}, nil
}

// Get возвращает покупателя по ID.
func (s *CustomerService) Get(ctx context.Context, id string) (*model.Customer, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение покупателя: %w", err)
	}
	return c, nil
}

// List возвращает всех покупателей.
func (s *CustomerService) List(ctx context.Context) ([]*model.Customer, error) {
	customers, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список покупателей: %w", err)
	}
	return customers, nil
}

// Search ищет покупателей по подстроке имени или email.
// Пустой результат — ErrNotFound.
func (s *CustomerService) Search(ctx context.Context, query string) ([]*model.Customer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: пустой поисковый запрос", ErrValidation)
	}
	customers, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("поиск покупателей: %w", err)
	}
	if len(customers) == 0 {
		return nil, ErrNotFound
	}
	return customers, nil
}

// Delete удаляет покупателя. Удалить можно себя; чужую запись — только admin.
// Отсутствующая запись — ErrNotFound независимо от роли.
func (s *CustomerService) Delete(ctx context.Context, actor *model.Customer, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if actor == nil || (actor.ID != id && !rbac.AtLeast(actor.Role, rbac.RoleAdmin)) {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление покупателя: %w", err)
	}

	s.logger.Info("Покупатель удалён",
		slog.String("customer_id", id),
		slog.String("by", actor.ID),
	)
	return nil
}

// Count возвращает количество покупателей.
func (s *CustomerService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// normalizeEmail приводит email к нижнему регистру без пробелов по краям.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
