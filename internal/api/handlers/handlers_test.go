package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bigkaa/borrowbox/internal/api/middleware"
	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/domain/rbac"
	"github.com/bigkaa/borrowbox/internal/service"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// pngBytes возвращает валидный PNG 1x1.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartBody строит multipart-тело с полями и необязательным файлом image.
func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

// withURLParam добавляет chi URL-параметр к запросу.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	return body
}

// --- Mock CustomerService ---

type mockCustomerService struct {
	registerFn func(in service.RegisterInput) (*model.Customer, error)
	loginFn    func(email, password string) (*service.LoginResult, error)
	getFn      func(id string) (*model.Customer, error)
	listFn     func() ([]*model.Customer, error)
	searchFn   func(q string) ([]*model.Customer, error)
	deleteFn   func(actor *model.Customer, id string) error
}

func (m *mockCustomerService) Register(_ context.Context, in service.RegisterInput) (*model.Customer, error) {
	return m.registerFn(in)
}

func (m *mockCustomerService) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	return m.loginFn(email, password)
}

func (m *mockCustomerService) Get(_ context.Context, id string) (*model.Customer, error) {
	if m.getFn == nil {
		return nil, service.ErrNotFound
	}
	return m.getFn(id)
}

func (m *mockCustomerService) List(_ context.Context) ([]*model.Customer, error) {
	return m.listFn()
}

func (m *mockCustomerService) Search(_ context.Context, q string) ([]*model.Customer, error) {
	return m.searchFn(q)
}

func (m *mockCustomerService) Delete(_ context.Context, actor *model.Customer, id string) error {
	return m.deleteFn(actor, id)
}

// --- Mock ImageUploader ---

type mockUploader struct {
	validateErr error
	storeErr    error
	stored      []string
}

func (m *mockUploader) Validate(_ upload.Policy, f *upload.File) error {
	if f == nil {
		return upload.ErrNoFile
	}
	return m.validateErr
}

func (m *mockUploader) Store(p upload.Policy, f *upload.File, dir string) (string, error) {
	if m.storeErr != nil {
		return "", m.storeErr
	}
	ref := dir + "/" + p.Prefix + "-" + f.Name
	m.stored = append(m.stored, ref)
	return ref, nil
}

var profilePolicy = upload.Policy{MaxSize: 2 << 20, Extensions: []string{".jpg", ".jpeg", ".png", ".gif"}, Prefix: "PROFILE"}

func newCustomersHandler(svc CustomerService, up ImageUploader) *CustomersHandler {
	return NewCustomersHandler(svc, up, profilePolicy, "uploads", true, testLogger())
}

func TestRegister(t *testing.T) {
	var got service.RegisterInput
	svc := &mockCustomerService{registerFn: func(in service.RegisterInput) (*model.Customer, error) {
		got = in
		if in.Email == "dup@x.com" {
			return nil, service.ErrConflict
		}
		return &model.Customer{ID: "c-1"}, nil
	}}
	h := newCustomersHandler(svc, &mockUploader{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"успех", `{"name":"Alice","email":"a@x.com","password":"secret1"}`, http.StatusCreated, ""},
		{"поле fName", `{"fName":"Alice","email":"f@x.com","password":"secret1"}`, http.StatusCreated, ""},
		{"дубликат", `{"name":"Alice","email":"dup@x.com","password":"secret1"}`, http.StatusBadRequest, "CONFLICT"},
		{"не JSON", `{`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d; тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if tt.wantCode != "" && body["code"] != tt.wantCode {
				t.Errorf("code = %v, ожидался %s", body["code"], tt.wantCode)
			}
			if tt.wantStatus == http.StatusCreated {
				data, _ := body["data"].(map[string]any)
				if data["id"] != "c-1" {
					t.Errorf("data = %v", body["data"])
				}
				if got.Name != "Alice" {
					t.Errorf("Name = %q", got.Name)
				}
			}
		})
	}
}

func TestLogin(t *testing.T) {
	expires := time.Now().Add(24 * time.Hour)
	svc := &mockCustomerService{loginFn: func(email, password string) (*service.LoginResult, error) {
		switch {
		case email == "" || password == "":
			return nil, service.ErrValidation
		case password != "secret1":
			return nil, service.ErrInvalidCredentials
		}
		return &service.LoginResult{Token: "tok", ExpiresAt: expires, Customer: &model.Customer{ID: "c-1"}}, nil
	}}
	h := newCustomersHandler(svc, &mockUploader{})

	t.Run("успех", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"a@x.com","password":"secret1"}`)))

		if rec.Code != http.StatusOK {
			t.Fatalf("статус = %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["token"] != "tok" || body["success"] != true {
			t.Errorf("тело = %v", body)
		}

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("cookies = %v", cookies)
		}
		c := cookies[0]
		if c.Name != "token" || c.Value != "tok" || !c.HttpOnly || !c.Secure {
			t.Errorf("cookie = %+v", c)
		}
		// Срок cookie совпадает со сроком токена
		if c.MaxAge < 24*3600-60 || c.MaxAge > 24*3600 {
			t.Errorf("MaxAge = %d, ожидалось около %d", c.MaxAge, 24*3600)
		}
	})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"неверный пароль", `{"email":"a@x.com","password":"bad"}`, http.StatusUnauthorized},
		{"без пароля", `{"email":"a@x.com"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
			if len(rec.Result().Cookies()) != 0 {
				t.Error("cookie не должна выставляться")
			}
		})
	}
}

func TestSearchCustomers_NotFound(t *testing.T) {
	svc := &mockCustomerService{searchFn: func(string) ([]*model.Customer, error) {
		return nil, service.ErrNotFound
	}}
	h := newCustomersHandler(svc, &mockUploader{})

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/auth/search/zzz", http.NoBody), "query", "zzz")
	h.SearchCustomers(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("статус = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["message"] != "No customers found" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestListCustomers(t *testing.T) {
	svc := &mockCustomerService{listFn: func() ([]*model.Customer, error) {
		return []*model.Customer{{ID: "c-1", PasswordHash: "secret-hash"}, {ID: "c-2"}}, nil
	}}
	h := newCustomersHandler(svc, &mockUploader{})

	rec := httptest.NewRecorder()
	h.ListCustomers(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/getAllCustomers", http.NoBody))

	if strings.Contains(rec.Body.String(), "secret-hash") {
		t.Error("хэш пароля попал в ответ")
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Errorf("count = %v", body["count"])
	}
}

func TestDeleteCustomer(t *testing.T) {
	actor := &model.Customer{ID: "c-1", Role: rbac.RoleCustomer}
	svc := &mockCustomerService{deleteFn: func(a *model.Customer, id string) error {
		if a != actor {
			t.Errorf("actor не передан из контекста")
		}
		switch id {
		case "missing":
			return service.ErrNotFound
		case "other":
			return service.ErrForbidden
		}
		return nil
	}}
	h := newCustomersHandler(svc, &mockUploader{})

	tests := []struct {
		id         string
		wantStatus int
	}{
		{"c-1", http.StatusOK},
		{"missing", http.StatusNotFound},
		{"other", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/deleteCustomer/"+tt.id, http.NoBody)
			req = req.WithContext(middleware.WithCustomer(req.Context(), actor))
			req = withURLParam(req, "id", tt.id)

			rec := httptest.NewRecorder()
			h.DeleteCustomer(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestUploadImage(t *testing.T) {
	img := pngBytes(t)

	tests := []struct {
		name       string
		filename   string
		uploader   *mockUploader
		wantStatus int
		wantCode   string
	}{
		{"успех", "me.png", &mockUploader{}, http.StatusOK, ""},
		{"без файла", "", &mockUploader{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"недопустимый тип", "me.exe", &mockUploader{validateErr: upload.ErrUnsupportedType}, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
		{"слишком большой", "me.png", &mockUploader{validateErr: upload.ErrTooLarge}, http.StatusBadRequest, "FILE_TOO_LARGE"},
		{"ошибка диска", "me.png", &mockUploader{storeErr: &upload.StorageError{Op: "store", Err: errors.New("no space left on device")}}, http.StatusInternalServerError, "STORAGE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCustomersHandler(&mockCustomerService{}, tt.uploader)
			body, ct := multipartBody(t, map[string]string{"note": "x"}, tt.filename, img)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/uploadImage", body)
			req.Header.Set("Content-Type", ct)

			rec := httptest.NewRecorder()
			h.UploadImage(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d; тело: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			resp := decodeBody(t, rec)
			if tt.wantCode != "" && resp["code"] != tt.wantCode {
				t.Errorf("code = %v, ожидался %s", resp["code"], tt.wantCode)
			}
			if tt.wantStatus == http.StatusOK && resp["data"] != "uploads/PROFILE-me.png" {
				t.Errorf("data = %v", resp["data"])
			}
		})
	}
}

func TestUploadImage_BodyLimit(t *testing.T) {
	policy := upload.Policy{MaxSize: 1024, Extensions: []string{".png"}, Prefix: "PROFILE"}
	up := &mockUploader{}
	h := NewCustomersHandler(&mockCustomerService{}, up, policy, "uploads", false, testLogger())

	big := bytes.Repeat([]byte{0x89}, 1024+multipartOverhead+10)
	body, ct := multipartBody(t, nil, "big.png", big)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/uploadImage", body)
	req.Header.Set("Content-Type", ct)

	rec := httptest.NewRecorder()
	h.UploadImage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d", rec.Code)
	}
	if resp := decodeBody(t, rec); resp["code"] != "FILE_TOO_LARGE" {
		t.Errorf("code = %v", resp["code"])
	}
	if len(up.stored) != 0 {
		t.Error("файл не должен сохраняться")
	}
}

// --- Mock ProductService ---

type mockProductService struct {
	createFn func(form service.ProductForm, image *upload.File) (*model.Product, error)
	getFn    func(id string) (*model.Product, error)
	listFn   func() ([]*model.Product, error)
	searchFn func(q string) ([]*model.Product, error)
	updateFn func(id string, form service.ProductForm, image *upload.File) (*model.Product, error)
	deleteFn func(id string) error
}

func (m *mockProductService) Create(_ context.Context, form service.ProductForm, image *upload.File) (*model.Product, error) {
	return m.createFn(form, image)
}

func (m *mockProductService) Get(_ context.Context, id string) (*model.Product, error) {
	return m.getFn(id)
}

func (m *mockProductService) List(_ context.Context) ([]*model.Product, error) {
	return m.listFn()
}

func (m *mockProductService) Search(_ context.Context, q string) ([]*model.Product, error) {
	return m.searchFn(q)
}

func (m *mockProductService) Update(_ context.Context, id string, form service.ProductForm, image *upload.File) (*model.Product, error) {
	return m.updateFn(id, form, image)
}

func (m *mockProductService) Delete(_ context.Context, id string) error {
	return m.deleteFn(id)
}

func sampleProduct() *model.Product {
	return &model.Product{
		ID:       "p-1",
		Name:     "Drill",
		Price:    decimal.RequireFromString("19.9"),
		Quantity: 3,
		Status:   model.ProductStatusAvailable,
		Image:    "uploads/PRODUCT-1.png",
	}
}

func TestGetProduct(t *testing.T) {
	svc := &mockProductService{getFn: func(id string) (*model.Product, error) {
		if id != "p-1" {
			return nil, service.ErrNotFound
		}
		return sampleProduct(), nil
	}}
	h := NewProductsHandler(svc, 5<<20, "http://cdn.example.com/", testLogger())

	rec := httptest.NewRecorder()
	h.GetProduct(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/products/p-1", http.NoBody), "id", "p-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"price":19.90`) {
		t.Errorf("цена не в числовом формате: %s", rec.Body.String())
	}
	data := decodeBody(t, rec)["data"].(map[string]any)
	if data["imageUrl"] != "http://cdn.example.com/uploads/PRODUCT-1.png" {
		t.Errorf("imageUrl = %v", data["imageUrl"])
	}

	rec = httptest.NewRecorder()
	h.GetProduct(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/products/x", http.NoBody), "id", "x"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус = %d, ожидался 404", rec.Code)
	}
}

func TestAddProduct_Multipart(t *testing.T) {
	var gotForm service.ProductForm
	var gotImage *upload.File
	svc := &mockProductService{createFn: func(form service.ProductForm, image *upload.File) (*model.Product, error) {
		gotForm, gotImage = form, image
		return sampleProduct(), nil
	}}
	h := NewProductsHandler(svc, 5<<20, "http://localhost:5000", testLogger())

	body, ct := multipartBody(t, map[string]string{
		"name": "Drill", "description": "Cordless", "price": "19.9",
	}, "drill.png", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/products/add", body)
	req.Header.Set("Content-Type", ct)

	rec := httptest.NewRecorder()
	h.AddProduct(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d; тело: %s", rec.Code, rec.Body.String())
	}
	if gotForm.Name == nil || *gotForm.Name != "Drill" || gotForm.Price == nil || *gotForm.Price != "19.9" {
		t.Errorf("форма разобрана неверно: %+v", gotForm)
	}
	if gotForm.Quantity != nil || gotForm.Status != nil {
		t.Error("непереданные поля должны быть nil")
	}
	if gotImage == nil || gotImage.Name != "drill.png" {
		t.Errorf("изображение = %+v", gotImage)
	}
}

func TestUpdateProduct_JSON(t *testing.T) {
	var gotForm service.ProductForm
	svc := &mockProductService{updateFn: func(id string, form service.ProductForm, image *upload.File) (*model.Product, error) {
		if image != nil {
			t.Error("JSON-запрос не содержит изображения")
		}
		gotForm = form
		switch id {
		case "missing":
			return nil, service.ErrNotFound
		case "race":
			return nil, service.ErrConflict
		}
		return sampleProduct(), nil
	}}
	h := NewProductsHandler(svc, 5<<20, "http://localhost:5000", testLogger())

	tests := []struct {
		id         string
		wantStatus int
	}{
		{"p-1", http.StatusOK},
		{"missing", http.StatusNotFound},
		{"race", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/products/update/"+tt.id,
				strings.NewReader(`{"price": 12.50, "quantity": 0}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.UpdateProduct(rec, withURLParam(req, "id", tt.id))

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
		})
	}
	if gotForm.Price == nil || *gotForm.Price != "12.50" {
		t.Errorf("price = %v, ожидалась исходная запись числа", gotForm.Price)
	}
	if gotForm.Quantity == nil || *gotForm.Quantity != "0" {
		t.Errorf("quantity = %v", gotForm.Quantity)
	}
	if gotForm.Name != nil {
		t.Error("name не передавался")
	}
}

func TestSearchProducts_Empty(t *testing.T) {
	svc := &mockProductService{searchFn: func(q string) ([]*model.Product, error) {
		if q == "" {
			return nil, service.ErrValidation
		}
		return nil, nil
	}}
	h := NewProductsHandler(svc, 5<<20, "http://localhost:5000", testLogger())

	rec := httptest.NewRecorder()
	h.SearchProducts(rec, httptest.NewRequest(http.MethodGet, "/api/products/search?q=hammer", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(0) {
		t.Errorf("count = %v", body["count"])
	}
	if data, ok := body["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("data = %v, ожидался пустой массив", body["data"])
	}

	rec = httptest.NewRecorder()
	h.SearchProducts(rec, httptest.NewRequest(http.MethodGet, "/api/products/search", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("пустой запрос: статус = %d", rec.Code)
	}
}

func TestDeleteProduct_InternalError(t *testing.T) {
	svc := &mockProductService{deleteFn: func(string) error { return errors.New("connection reset") }}
	h := NewProductsHandler(svc, 5<<20, "http://localhost:5000", testLogger())

	rec := httptest.NewRecorder()
	h.DeleteProduct(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/products/p-1", http.NoBody), "id", "p-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("статус = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("внутренняя ошибка раскрыта клиенту")
	}
}

// --- Health ---

type staticChecker struct{ status string }

func (c staticChecker) CheckReady() (string, string) { return c.status, "" }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg         ReadinessChecker
		storage    ReadinessChecker
		wantStatus int
	}{
		{"всё ok", staticChecker{"ok"}, staticChecker{"ok"}, http.StatusOK},
		{"storage degraded", staticChecker{"ok"}, staticChecker{"degraded"}, http.StatusOK},
		{"postgres fail", staticChecker{"fail"}, staticChecker{"ok"}, http.StatusServiceUnavailable},
		{"нет checker", nil, staticChecker{"ok"}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.storage)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", http.NoBody))
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// --- Stats ---

type mockStats struct {
	stats *model.Stats
	err   error
}

func (m mockStats) Get(context.Context) (*model.Stats, error) { return m.stats, m.err }

func TestGetStats(t *testing.T) {
	h := NewStatsHandler(mockStats{stats: &model.Stats{Users: 3, Products: 5}}, testLogger())
	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/admin/stats", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	data := decodeBody(t, rec)["data"].(map[string]any)
	if data["users"] != float64(3) || data["products"] != float64(5) {
		t.Errorf("data = %v", data)
	}
}
