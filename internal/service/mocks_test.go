package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/borrowbox/internal/domain/model"
	"github.com/bigkaa/borrowbox/internal/repository"
	"github.com/bigkaa/borrowbox/internal/upload"
)

// testLogger создаёт логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock CustomerRepository (in-memory) ---

type memCustomerRepo struct {
	mu      sync.Mutex
	seq     int
	byID    map[string]*model.Customer
	countFn func() (int, error)
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{byID: make(map[string]*model.Customer)}
}

func (r *memCustomerRepo) Create(_ context.Context, c *model.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, c.Email) {
			return fmt.Errorf("%w: дубликат", repository.ErrConflict)
		}
	}
	r.seq++
	c.ID = fmt.Sprintf("c-%d", r.seq)
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	r.byID[c.ID] = &stored
	return nil
}

func (r *memCustomerRepo) GetByID(_ context.Context, id string) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *c
	out.PasswordHash = ""
	return &out, nil
}

func (r *memCustomerRepo) GetByEmail(_ context.Context, email string, withPassword bool) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if strings.EqualFold(c.Email, email) {
			out := *c
			if !withPassword {
				out.PasswordHash = ""
			}
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memCustomerRepo) List(_ context.Context) ([]*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Customer
	for _, c := range r.byID {
		cp := *c
		cp.PasswordHash = ""
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memCustomerRepo) Search(_ context.Context, q string) ([]*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q = strings.ToLower(q)
	var out []*model.Customer
	for _, c := range r.byID {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
			cp := *c
			cp.PasswordHash = ""
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCustomerRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memCustomerRepo) Count(_ context.Context) (int, error) {
	if r.countFn != nil {
		return r.countFn()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

// --- Mock ProductRepository ---

type mockProductRepo struct {
	products map[string]*model.Product
	seq      int
	createFn func(p *model.Product) error
	updateFn func(p *model.Product, expectedImage string) error
	getCalls int
	// getFn вызывается после чтения записи, до возврата результата
	getFn func(id string)
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: make(map[string]*model.Product)}
}

func (r *mockProductRepo) Create(_ context.Context, p *model.Product) error {
	if r.createFn != nil {
		if err := r.createFn(p); err != nil {
			return err
		}
	}
	r.seq++
	p.ID = fmt.Sprintf("p-%d", r.seq)
	stored := *p
	r.products[p.ID] = &stored
	return nil
}

func (r *mockProductRepo) GetByID(_ context.Context, id string) (*model.Product, error) {
	r.getCalls++
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	if r.getFn != nil {
		r.getFn(id)
	}
	return &out, nil
}

func (r *mockProductRepo) List(_ context.Context) ([]*model.Product, error) {
	var out []*model.Product
	for _, p := range r.products {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *mockProductRepo) Search(_ context.Context, q string) ([]*model.Product, error) {
	var out []*model.Product
	for _, p := range r.products {
		if strings.Contains(strings.ToLower(p.Name+" "+p.Description), strings.ToLower(q)) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *mockProductRepo) Update(_ context.Context, p *model.Product, expectedImage string) error {
	if r.updateFn != nil {
		if err := r.updateFn(p, expectedImage); err != nil {
			return err
		}
	}
	stored, ok := r.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Image != expectedImage {
		return repository.ErrConflict
	}
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *mockProductRepo) Delete(_ context.Context, id string) (string, error) {
	p, ok := r.products[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	delete(r.products, id)
	return p.Image, nil
}

func (r *mockProductRepo) Count(_ context.Context) (int, error) {
	return len(r.products), nil
}

// --- Mock TokenIssuer ---

type mockTokens struct{}

func (mockTokens) Issue(customerID string) (string, time.Time, error) {
	return "token-for-" + customerID, time.Now().Add(time.Hour), nil
}

// --- Mock WelcomeMailer ---

type mockMailer struct {
	sent chan *model.Customer
	err  error
}

func newMockMailer() *mockMailer {
	return &mockMailer{sent: make(chan *model.Customer, 10)}
}

func (m *mockMailer) SendWelcome(_ context.Context, c *model.Customer) error {
	m.sent <- c
	return m.err
}

// --- Mock ImageStore ---

// memImageStore — ImageStore в памяти с управляемыми отказами.
type memImageStore struct {
	files       map[string]bool
	seq         int
	validateErr error
	storeErr    error
	removeErr   error
}

func newMemImageStore() *memImageStore {
	return &memImageStore{files: make(map[string]bool)}
}

func (s *memImageStore) Validate(_ upload.Policy, f *upload.File) error {
	if f == nil {
		return upload.ErrNoFile
	}
	return s.validateErr
}

func (s *memImageStore) Store(p upload.Policy, _ *upload.File, dir string) (string, error) {
	if s.storeErr != nil {
		return "", s.storeErr
	}
	s.seq++
	ref := fmt.Sprintf("%s/%s-%d.png", dir, p.Prefix, s.seq)
	s.files[ref] = true
	return ref, nil
}

func (s *memImageStore) Replace(p upload.Policy, oldRef string, f *upload.File, dir string, commit func(string) error) (string, error) {
	newRef, err := s.Store(p, f, dir)
	if err != nil {
		return "", err
	}
	if err := commit(newRef); err != nil {
		delete(s.files, newRef)
		return "", err
	}
	delete(s.files, oldRef)
	return newRef, nil
}

func (s *memImageStore) Remove(ref string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.files, ref)
	return nil
}
