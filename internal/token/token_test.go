package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789abcdef0123"

// fakeClock — управляемые часы для тестов.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, clock *fakeClock) *Service {
	t.Helper()
	s, err := New(Config{
		Secret: []byte(testSecret),
		TTL:    30 * 24 * time.Hour,
		Issuer: "borrowbox",
	}, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() ошибка: %v", err)
	}
	return s
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestService(t, clock)

	tok, exp, err := s.Issue("c-1")
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}
	if want := clock.t.Add(30 * 24 * time.Hour); !exp.Equal(want) {
		t.Errorf("expiresAt = %v, ожидалось %v", exp, want)
	}

	id, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() сразу после выпуска: %v", err)
	}
	if id != "c-1" {
		t.Errorf("Verify() = %q, ожидался c-1", id)
	}

	// Незадолго до истечения токен ещё действителен
	clock.t = exp.Add(-time.Second)
	if _, err := s.Verify(tok); err != nil {
		t.Errorf("Verify() до истечения: %v", err)
	}

	// После истечения
	clock.t = exp.Add(time.Second)
	_, err = s.Verify(tok)
	if !errors.Is(err, ErrInvalidToken) || !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() после истечения = %v, ожидался ErrTokenExpired", err)
	}
	if Reason(err) != "expired" {
		t.Errorf("Reason() = %q, ожидался expired", Reason(err))
	}
}

func TestVerify_Rejections(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newTestService(t, clock)

	valid, _, err := s.Issue("c-1")
	if err != nil {
		t.Fatalf("Issue() ошибка: %v", err)
	}

	other, err := New(Config{Secret: []byte("another-secret-0123456789abcdef0"), TTL: time.Hour, Issuer: "borrowbox"},
		WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() ошибка: %v", err)
	}
	foreign, _, _ := other.Issue("c-1")

	noSub := signRaw(t, jwt.MapClaims{
		"iss": "borrowbox",
		"iat": clock.t.Unix(),
		"exp": clock.t.Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256)

	noExp := signRaw(t, jwt.MapClaims{
		"sub": "c-1",
		"iss": "borrowbox",
	}, jwt.SigningMethodHS256)

	wrongAlg := signRaw(t, jwt.MapClaims{
		"sub": "c-1",
		"iss": "borrowbox",
		"exp": clock.t.Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS512)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{"мусор", "garbage", "malformed"},
		{"пустая строка", "", "malformed"},
		{"чужой секрет", foreign, "signature"},
		{"подменённая подпись", tampered, "signature"},
		{"нет sub", noSub, "malformed"},
		{"нет exp", noExp, "malformed"},
		{"другой алгоритм", wrongAlg, "signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify() = %v, ожидался ErrInvalidToken", err)
			}
			if got := Reason(err); got != tt.reason {
				t.Errorf("Reason() = %q, ожидался %q (err=%v)", got, tt.reason, err)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{TTL: time.Hour}); err == nil {
		t.Error("New() без секрета должен вернуть ошибку")
	}
	if _, err := New(Config{Secret: []byte(testSecret)}); err == nil {
		t.Error("New() с нулевым TTL должен вернуть ошибку")
	}
}

func signRaw(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("подпись тестового токена: %v", err)
	}
	return s
}
