package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/borrowbox/internal/domain/model"
)

// CustomerRepository — интерфейс CRUD для таблицы customers.
type CustomerRepository interface {
	// Create создаёт покупателя. ID и временные метки заполняются БД.
	Create(ctx context.Context, c *model.Customer) error
	// GetByID возвращает покупателя по UUID (без хэша пароля).
	GetByID(ctx context.Context, id string) (*model.Customer, error)
	// GetByEmail возвращает покупателя по email без учёта регистра.
	// Хэш пароля выбирается только при withPassword = true.
	GetByEmail(ctx context.Context, email string, withPassword bool) (*model.Customer, error)
	// List возвращает всех покупателей, новые первыми.
	List(ctx context.Context) ([]*model.Customer, error)
	// Search ищет подстроку в имени или email без учёта регистра.
	Search(ctx context.Context, query string) ([]*model.Customer, error)
	// Delete удаляет покупателя.
	Delete(ctx context.Context, id string) error
	// Count возвращает количество покупателей.
	Count(ctx context.Context) (int, error)
}

// customerRepo — реализация CustomerRepository.
type customerRepo struct {
	db DBTX
}

// NewCustomerRepository создаёт репозиторий покупателей.
func NewCustomerRepository(db DBTX) CustomerRepository {
	return &customerRepo{db: db}
}

const customerColumns = `id, name, email, role, created_at, updated_at`

func scanCustomer(row pgx.Row) (*model.Customer, error) {
	c := &model.Customer{}
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Role, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *customerRepo) Create(ctx context.Context, c *model.Customer) error {
	query := `
		INSERT INTO customers (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.Name, c.Email, c.PasswordHash, c.Role).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: покупатель с таким email уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания покупателя: %w", err)
	}
	return nil
}

func (r *customerRepo) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE id = $1`, customerColumns)
	c, err := scanCustomer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения покупателя: %w", err)
	}
	return c, nil
}

func (r *customerRepo) GetByEmail(ctx context.Context, email string, withPassword bool) (*model.Customer, error) {
	c := &model.Customer{}
	var err error
	if withPassword {
		query := fmt.Sprintf(`SELECT %s, password_hash FROM customers WHERE lower(email) = lower($1)`, customerColumns)
		err = r.db.QueryRow(ctx, query, email).
			Scan(&c.ID, &c.Name, &c.Email, &c.Role, &c.CreatedAt, &c.UpdatedAt, &c.PasswordHash)
	} else {
		query := fmt.Sprintf(`SELECT %s FROM customers WHERE lower(email) = lower($1)`, customerColumns)
		c, err = scanCustomer(r.db.QueryRow(ctx, query, email))
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения покупателя по email: %w", err)
	}
	return c, nil
}

func (r *customerRepo) List(ctx context.Context) ([]*model.Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM customers ORDER BY created_at DESC`, customerColumns)
	return r.queryCustomers(ctx, query)
}

func (r *customerRepo) Search(ctx context.Context, q string) ([]*model.Customer, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM customers
		WHERE name ILIKE $1 OR email ILIKE $1
		ORDER BY created_at DESC`, customerColumns)
	return r.queryCustomers(ctx, query, likePattern(q))
}

func (r *customerRepo) queryCustomers(ctx context.Context, query string, args ...any) ([]*model.Customer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка покупателей: %w", err)
	}
	defer rows.Close()

	var result []*model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования покупателя: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *customerRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления покупателя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *customerRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта покупателей: %w", err)
	}
	return count, nil
}
