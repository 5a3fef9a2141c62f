// products.go — каталог товаров: CRUD, поиск, изображения.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/repository"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// ImageStore — операции с файлами изображений.
// Реализуется upload.Manager.
type ImageStore interface {
	Validate(p upload.Policy, f *upload.File) error
	Store(p upload.Policy, f *upload.File, dir string) (string, error)
	Replace(p upload.Policy, oldRef string, f *upload.File, dir string, commit func(newRef string) error) (string, error)
	Remove(ref string) error
}

// ProductForm — поля товара из запроса в исходном строковом виде.
// nil — поле не передано.
type ProductForm struct {
	Name        *string
	Description *string
	Price       *string
	Quantity    *string
	Status      *string
}

// ProductService — сервис каталога.
type ProductService struct {
	repo      repository.ProductRepository
	images    ImageStore
	policy    upload.Policy
	imageDir  string
	cache     *ProductCache
	sanitizer *Sanitizer
	logger    *slog.Logger
}

// NewProductService создаёт сервис каталога.
// imageDir — директория изображений относительно корня контента.
// cache может быть nil.
func NewProductService(
	repo repository.ProductRepository,
	images ImageStore,
	policy upload.Policy,
	imageDir string,
	cache *ProductCache,
	sanitizer *Sanitizer,
	logger *slog.Logger,
) *ProductService {
	return &ProductService{
		repo:      repo,
		images:    images,
		policy:    policy,
		imageDir:  imageDir,
		cache:     cache,
		sanitizer: sanitizer,
		logger:    logger.With(slog.String("component", "product_service")),
	}
}

// Create создаёт товар. Изображение необязательно.
// Если запись в БД не удалась, сохранённое изображение удаляется.
func (s *ProductService) Create(ctx context.Context, form ProductForm, image *upload.File) (*model.Product, error) {
	p := &model.Product{Status: model.ProductStatusAvailable}

	if form.Name == nil || form.Description == nil || form.Price == nil {
		return nil, fmt.Errorf("%w: name, description и price обязательны", ErrValidation)
	}
	patch, err := s.parseForm(form)
	if err != nil {
		return nil, err
	}
	patch.Apply(p)

	if image != nil {
		if err := s.images.Validate(s.policy, image); err != nil {
			return nil, err
		}
		ref, err := s.images.Store(s.policy, image, s.imageDir)
		if err != nil {
			return nil, err
		}
		p.Image = ref
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.removeImage(p.Image)
		return nil, fmt.Errorf("создание товара: %w", err)
	}

	s.logger.Info("Товар создан",
		slog.String("product_id", p.ID),
		slog.Bool("with_image", p.Image != ""),
	)
	return p, nil
}

// Get возвращает товар по ID (через кэш).
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	var gen uint64
	if s.cache != nil {
		if p, ok := s.cache.Get(id); ok {
			return p, nil
		}
		gen = s.cache.Generation()
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Параллельное Update/Delete могло инвалидировать запись после чтения.
	if s.cache != nil {
		s.cache.SetIfCurrent(p, gen)
	}
	return p, nil
}

func (s *ProductService) load(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение товара: %w", err)
	}
	return p, nil
}

// List возвращает все товары.
func (s *ProductService) List(ctx context.Context) ([]*model.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("список товаров: %w", err)
	}
	return products, nil
}

// Search ищет товары по подстроке названия или описания.
func (s *ProductService) Search(ctx context.Context, query string) ([]*model.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: пустой поисковый запрос", ErrValidation)
	}
	products, err := s.repo.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("поиск товаров: %w", err)
	}
	return products, nil
}

// Update частично обновляет товар. Новое изображение заменяет старое:
// сначала записывается новый файл, затем запись в БД, затем удаляется старый файл.
// При ошибке записи в БД старый файл и ссылка остаются прежними.
func (s *ProductService) Update(ctx context.Context, id string, form ProductForm, image *upload.File) (*model.Product, error) {
	patch, err := s.parseForm(form)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() && image == nil {
		return nil, fmt.Errorf("%w: нет полей для обновления", ErrValidation)
	}

	if image != nil {
		if err := s.images.Validate(s.policy, image); err != nil {
			return nil, err
		}
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	oldImage := current.Image
	patch.Apply(current)

	if image == nil {
		err = s.repo.Update(ctx, current, oldImage)
	} else {
		_, err = s.images.Replace(s.policy, oldImage, image, s.imageDir, func(newRef string) error {
			current.Image = newRef
			if err := s.repo.Update(ctx, current, oldImage); err != nil {
				current.Image = oldImage
				return err
			}
			return nil
		})
	}
	if s.cache != nil {
		s.cache.Delete(id)
	}
	if err != nil {
		return nil, mapRepoError(err, "обновление товара")
	}

	s.logger.Info("Товар обновлён",
		slog.String("product_id", id),
		slog.Bool("image_replaced", image != nil),
	)
	return current, nil
}

// Delete удаляет товар и его изображение.
// Ошибка удаления файла логируется и не отменяет удаление записи.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	image, err := s.repo.Delete(ctx, id)
	if s.cache != nil {
		s.cache.Delete(id)
	}
	if err != nil {
		return mapRepoError(err, "удаление товара")
	}

	s.removeImage(image)
	s.logger.Info("Товар удалён", slog.String("product_id", id))
	return nil
}

// Count возвращает количество товаров.
func (s *ProductService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *ProductService) removeImage(ref string) {
	if ref == "" {
		return
	}
	if err := s.images.Remove(ref); err != nil {
		s.logger.Warn("Не удалось удалить изображение товара",
			slog.String("ref", ref),
			slog.String("error", err.Error()),
		)
	}
}

// parseForm проверяет и разбирает переданные поля в патч.
func (s *ProductService) parseForm(form ProductForm) (*model.ProductPatch, error) {
	patch := &model.ProductPatch{}

	if form.Name != nil {
		name := s.sanitizer.Text(*form.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name не может быть пустым", ErrValidation)
		}
		patch.Name = &name
	}

	if form.Description != nil {
		desc := s.sanitizer.Text(*form.Description)
		if desc == "" {
			return nil, fmt.Errorf("%w: description не может быть пустым", ErrValidation)
		}
		patch.Description = &desc
	}

	if form.Price != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*form.Price))
		if err != nil {
			return nil, fmt.Errorf("%w: price должен быть числом", ErrValidation)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("%w: price не может быть отрицательным", ErrValidation)
		}
		// numeric(12,2)
		price = price.Round(2)
		if price.GreaterThanOrEqual(decimal.New(1, 10)) {
			return nil, fmt.Errorf("%w: price слишком большой", ErrValidation)
		}
		patch.Price = &price
	}

	if form.Quantity != nil {
		// integer в PostgreSQL
		q64, err := strconv.ParseInt(strings.TrimSpace(*form.Quantity), 10, 32)
		if errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%w: quantity слишком большой", ErrValidation)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: quantity должен быть целым числом", ErrValidation)
		}
		if q64 < 0 {
			return nil, fmt.Errorf("%w: quantity не может быть отрицательным", ErrValidation)
		}
		q := int(q64)
		patch.Quantity = &q
	}

	if form.Status != nil {
		status := strings.TrimSpace(*form.Status)
		if !model.IsValidProductStatus(status) {
			return nil, fmt.Errorf("%w: status должен быть одним из: %s, %s, %s", ErrValidation,
				model.ProductStatusAvailable, model.ProductStatusLowStock, model.ProductStatusOutOfStock)
		}
		patch.Status = &status
	}

	return patch, nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса.
func mapRepoError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
