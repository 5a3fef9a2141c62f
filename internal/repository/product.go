package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bigkaa/borrowbox/internal/domain/model"
)

// ProductRepository — интерфейс CRUD для таблицы products.
type ProductRepository interface {
	// Create создаёт товар. ID и временные метки заполняются БД.
	Create(ctx context.Context, p *model.Product) error
	// GetByID возвращает товар по UUID.
	GetByID(ctx context.Context, id string) (*model.Product, error)
	// List возвращает все товары, новые первыми.
	List(ctx context.Context) ([]*model.Product, error)
	// Search ищет подстроку в названии или описании без учёта регистра.
	Search(ctx context.Context, query string) ([]*model.Product, error)
	// Update сохраняет изменяемые поля товара.
	// expectedImage — ссылка на изображение, прочитанная до изменения;
	// если в БД она уже другая, возвращается ErrConflict.
	Update(ctx context.Context, p *model.Product, expectedImage string) error
	// Delete удаляет товар и возвращает ссылку на его изображение.
	Delete(ctx context.Context, id string) (image string, err error)
	// Count возвращает количество товаров.
	Count(ctx context.Context) (int, error)
}

// productRepo — реализация ProductRepository.
type productRepo struct {
	db DBTX
}

// NewProductRepository создаёт репозиторий товаров.
func NewProductRepository(db DBTX) ProductRepository {
	return &productRepo{db: db}
}

// price хранится как numeric и передаётся строкой, чтобы не терять точность.
const productColumns = `id, name, description, price::text, quantity, status, image,
	created_at, updated_at`

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	var price string
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price, &p.Quantity, &p.Status, &p.Image,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("некорректная цена %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	query := `
		INSERT INTO products (name, description, price, quantity, status, image)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.Name, p.Description, p.Price.String(), p.Quantity, p.Status, p.Image,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания товара: %w", err)
	}
	return nil
}

func (r *productRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения товара: %w", err)
	}
	return p, nil
}

func (r *productRepo) List(ctx context.Context) ([]*model.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products ORDER BY created_at DESC`, productColumns)
	return r.queryProducts(ctx, query)
}

func (r *productRepo) Search(ctx context.Context, q string) ([]*model.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE name ILIKE $1 OR description ILIKE $1
		ORDER BY created_at DESC`, productColumns)
	return r.queryProducts(ctx, query, likePattern(q))
}

func (r *productRepo) queryProducts(ctx context.Context, query string, args ...any) ([]*model.Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка товаров: %w", err)
	}
	defer rows.Close()

	var result []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования товара: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *productRepo) Update(ctx context.Context, p *model.Product, expectedImage string) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4::numeric, quantity = $5,
			status = $6, image = $7, updated_at = now()
		WHERE id = $1 AND image = $8
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.Price.String(), p.Quantity, p.Status, p.Image,
		expectedImage,
	).Scan(&p.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isInvalidTextRepresentation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления товара: %w", err)
	}

	// Строка не обновлена: либо товара нет, либо изображение сменил другой запрос.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, p.ID).
		Scan(&exists); err != nil {
		return fmt.Errorf("ошибка проверки товара: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: изображение товара изменено параллельным запросом", ErrConflict)
}

func (r *productRepo) Delete(ctx context.Context, id string) (string, error) {
	var image string
	err := r.db.QueryRow(ctx, `DELETE FROM products WHERE id = $1 RETURNING image`, id).Scan(&image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidTextRepresentation(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка удаления товара: %w", err)
	}
	return image, nil
}

func (r *productRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта товаров: %w", err)
	}
	return count, nil
}
