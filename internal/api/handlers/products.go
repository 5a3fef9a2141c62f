// products.go — обработчики /api/products: каталог товаров.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/service"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// ProductService — операции каталога.
// Реализуется service.ProductService.
type ProductService interface {
	Create(ctx context.Context, form service.ProductForm, image *upload.File) (*model.Product, error)
	Get(ctx context.Context, id string) (*model.Product, error)
	List(ctx context.Context) ([]*model.Product, error)
	Search(ctx context.Context, query string) ([]*model.Product, error)
	Update(ctx context.Context, id string, form service.ProductForm, image *upload.File) (*model.Product, error)
	Delete(ctx context.Context, id string) error
}

const msgProductNotFound = "Product not found"

// ProductsHandler — обработчик endpoints каталога.
type ProductsHandler struct {
	svc          ProductService
	maxImageSize int64
	baseURL      string
	logger       *slog.Logger
}

// NewProductsHandler создаёт обработчик каталога.
// baseURL — префикс абсолютной ссылки на изображение (BB_PUBLIC_BASE_URL).
func NewProductsHandler(svc ProductService, maxImageSize int64, baseURL string, logger *slog.Logger) *ProductsHandler {
	return &ProductsHandler{
		svc:          svc,
		maxImageSize: maxImageSize,
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger.With(slog.String("component", "products_handler")),
	}
}

// productResponse — товар в API-формате.
type productResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	Status      string      `json:"status"`
	Image       string      `json:"image"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (h *ProductsHandler) toResponse(p *model.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       json.Number(p.Price.StringFixed(2)),
		Quantity:    p.Quantity,
		Status:      p.Status,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Image != "" {
		resp.ImageURL = h.baseURL + "/" + p.Image
	}
	return resp
}

func (h *ProductsHandler) toResponses(products []*model.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, h.toResponse(p))
	}
	return out
}

// ListProducts обрабатывает GET /api/products.
func (h *ProductsHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	writeList(w, len(products), h.toResponses(products))
}

// SearchProducts обрабатывает GET /api/products/search?q=.
func (h *ProductsHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	writeList(w, len(products), h.toResponses(products))
}

// GetProduct обрабатывает GET /api/products/{id}.
func (h *ProductsHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	writeData(w, http.StatusOK, h.toResponse(p))
}

// AddProduct обрабатывает POST /api/products/add.
// Multipart form: name, description, price, quantity, status, image (опционально).
func (h *ProductsHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	form, image, done, err := h.readProductRequest(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	defer done()

	p, err := h.svc.Create(r.Context(), form, image)
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	writeData(w, http.StatusCreated, h.toResponse(p))
}

// UpdateProduct обрабатывает PUT /api/products/update/{id}.
// Передаются только изменяемые поля; новое изображение заменяет старое.
func (h *ProductsHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	form, image, done, err := h.readProductRequest(w, r)
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	defer done()

	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), form, image)
	if err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	writeData(w, http.StatusOK, h.toResponse(p))
}

// DeleteProduct обрабатывает DELETE /api/products/{id}.
func (h *ProductsHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err, msgProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Product deleted", Data: struct{}{}})
}

// readProductRequest читает поля товара из JSON или формы (multipart/urlencoded).
// done освобождает файл и временные данные формы.
func (h *ProductsHandler) readProductRequest(w http.ResponseWriter, r *http.Request) (service.ProductForm, *upload.File, func(), error) {
	noop := func() {}

	if isJSON(r) {
		form, err := decodeProductJSON(r)
		return form, nil, noop, err
	}

	if err := parseMultipart(w, r, h.maxImageSize); err != nil {
		return service.ProductForm{}, nil, noop, err
	}
	image, closeImage, err := formImage(r)
	if err != nil {
		cleanupMultipart(r)
		return service.ProductForm{}, nil, noop, err
	}

	form := service.ProductForm{
		Name:        formValue(r, "name"),
		Description: formValue(r, "description"),
		Price:       formValue(r, "price"),
		Quantity:    formValue(r, "quantity"),
		Status:      formValue(r, "status"),
	}
	return form, image, func() {
		closeImage()
		cleanupMultipart(r)
	}, nil
}

// decodeProductJSON разбирает JSON-тело; числа сохраняются в исходной записи.
func decodeProductJSON(r *http.Request) (service.ProductForm, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return service.ProductForm{}, fmt.Errorf("%w: некорректный JSON: %v", service.ErrValidation, err)
	}

	field := func(key string) *string {
		v, ok := raw[key]
		if !ok || v == nil {
			return nil
		}
		s := fmt.Sprint(v)
		return &s
	}

	return service.ProductForm{
		Name:        field("name"),
		Description: field("description"),
		Price:       field("price"),
		Quantity:    field("quantity"),
		Status:      field("status"),
	}, nil
}
