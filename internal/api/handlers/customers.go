// customers.go — обработчики /api/v1/auth: регистрация, вход, покупатели, загрузка изображений.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/borrowbox/internal/api/errors"
	"github.com/bigkaa/borrowbox/internal/api/middleware"
	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/service"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// tokenCookie — имя cookie с сессионным токеном.
const tokenCookie = "token"

// CustomerService — операции с покупателями.
// Реализуется service.CustomerService.
type CustomerService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Customer, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Get(ctx context.Context, id string) (*model.Customer, error)
	List(ctx context.Context) ([]*model.Customer, error)
	Search(ctx context.Context, query string) ([]*model.Customer, error)
	Delete(ctx context.Context, actor *model.Customer, id string) error
}

// ImageUploader — проверка и сохранение загружаемых изображений.
// Реализуется upload.Manager.
type ImageUploader interface {
	Validate(p upload.Policy, f *upload.File) error
	Store(p upload.Policy, f *upload.File, dir string) (string, error)
}

// CustomersHandler — обработчик endpoints покупателей.
type CustomersHandler struct {
	svc          CustomerService
	images       ImageUploader
	uploadPolicy upload.Policy
	uploadDir    string
	secureCookie bool
	logger       *slog.Logger
}

// NewCustomersHandler создаёт обработчик покупателей.
// secureCookie — выставлять флаг Secure у cookie с токеном (production).
func NewCustomersHandler(
	svc CustomerService,
	images ImageUploader,
	uploadPolicy upload.Policy,
	uploadDir string,
	secureCookie bool,
	logger *slog.Logger,
) *CustomersHandler {
	return &CustomersHandler{
		svc:          svc,
		images:       images,
		uploadPolicy: uploadPolicy,
		uploadDir:    uploadDir,
		secureCookie: secureCookie,
		logger:       logger.With(slog.String("component", "customers_handler")),
	}
}

// registerRequest — тело POST /register. fName — устаревшее имя поля name.
type registerRequest struct {
	Name     string `json:"name"`
	FName    string `json:"fName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest — тело POST /login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse — ответ на успешный вход.
type loginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// idData — данные ответа с идентификатором.
type idData struct {
	ID string `json:"id"`
}

// Register обрабатывает POST /api/v1/auth/register.
func (h *CustomersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		req.Name = req.FName
	}

	c, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrConflict) {
			apierrors.DuplicateResource(w, "Customer already exists")
			return
		}
		writeServiceError(w, h.logger, err, "Customer not found")
		return
	}

	writeJSON(w, http.StatusCreated, successResponse{
		Success: true,
		Message: "Customer registered",
		Data:    idData{ID: c.ID},
	})
}

// Login обрабатывает POST /api/v1/auth/login.
// Токен возвращается в теле и в HttpOnly cookie.
func (h *CustomersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid JSON body")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, "Please provide an email and password")
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.Unauthorized(w, "Invalid credentials")
		return
	case err != nil:
		writeServiceError(w, h.logger, err, "Customer not found")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		MaxAge:   int(time.Until(res.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Success: true, Token: res.Token})
}

// GetMe обрабатывает GET /api/v1/auth/getCustomer — текущий покупатель.
func (h *CustomersHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	c := middleware.CustomerFromContext(r.Context())
	if c == nil {
		apierrors.Unauthorized(w, "Not authorized to access this route")
		return
	}
	writeData(w, http.StatusOK, c)
}

// GetCustomer обрабатывает GET /api/v1/auth/customers/{id}.
func (h *CustomersHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Customer not found")
		return
	}
	writeData(w, http.StatusOK, c)
}

// ListCustomers обрабатывает GET /api/v1/auth/getAllCustomers.
func (h *CustomersHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Customer not found")
		return
	}
	if customers == nil {
		customers = []*model.Customer{}
	}
	writeList(w, len(customers), customers)
}

// SearchCustomers обрабатывает GET /api/v1/auth/search/{query}.
func (h *CustomersHandler) SearchCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.svc.Search(r.Context(), chi.URLParam(r, "query"))
	if err != nil {
		writeServiceError(w, h.logger, err, "No customers found")
		return
	}
	writeList(w, len(customers), customers)
}

// DeleteCustomer обрабатывает DELETE /api/v1/auth/deleteCustomer/{id}.
// Покупатель удаляет себя; чужие записи — только admin.
func (h *CustomersHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	actor := middleware.CustomerFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err, "Customer not found with that id")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Customer deleted", Data: struct{}{}})
}

// UploadImage обрабатывает POST /api/v1/auth/uploadImage.
// Multipart form: image (обязательно). Возвращает ссылку на сохранённый файл.
func (h *CustomersHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r, h.uploadPolicy.MaxSize); err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	defer cleanupMultipart(r)

	image, closeImage, err := formImage(r)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	defer closeImage()

	if err := h.images.Validate(h.uploadPolicy, image); err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}
	ref, err := h.images.Store(h.uploadPolicy, image, h.uploadDir)
	if err != nil {
		writeServiceError(w, h.logger, err, "")
		return
	}

	attrs := []any{slog.String("ref", ref)}
	if c := middleware.CustomerFromContext(r.Context()); c != nil {
		attrs = append(attrs, slog.String("customer_id", c.ID))
	}
	h.logger.Info("Изображение загружено", attrs...)
	writeData(w, http.StatusOK, ref)
}
