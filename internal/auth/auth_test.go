package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var secret = strings.Repeat("k", 32)

func tenantEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, _ := TenantFrom(r.Context())
		_, _ = w.Write([]byte(t))
	})
}

func TestIssueAndParse(t *testing.T) {
	a := New(secret, "", time.Hour)
	tok, err := a.IssueToken("acme", "ops@acme.test")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := a.ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.TenantID != "acme" || claims.Subject != "ops@acme.test" {
		t.Errorf("claims = %+v", claims)
	}

	other := New(strings.Repeat("x", 32), "", time.Hour)
	if _, err := other.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret = %v, want ErrInvalidToken", err)
	}
	if _, err := a.ParseToken(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("empty = %v, want ErrMissingToken", err)
	}
	if _, err := a.IssueToken("", "x"); err == nil {
		t.Error("expected error for empty tenant")
	}
}

func TestParseTokenExpired(t *testing.T) {
	a := New(secret, "", time.Minute)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _ := a.IssueToken("acme", "x")
	if _, err := a.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	a := New(secret, "", time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{TenantID: "acme"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ParseToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("HS512 = %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	a := New(secret, "", time.Hour)
	tok, _ := a.IssueToken("globex", "x")
	h := a.Middleware(tenantEcho())

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, http.StatusOK, "globex"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: tok}) }, http.StatusOK, "globex"},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized, "unauthorized"},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode || !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
		})
	}
}

func TestMiddlewareDevMode(t *testing.T) {
	a := New("", "demo", 0)
	if !a.DevMode() {
		t.Fatal("expected dev mode")
	}
	if _, err := a.IssueToken("acme", "x"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("IssueToken in dev mode = %v", err)
	}
	rec := httptest.NewRecorder()
	a.Middleware(tenantEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() != "demo" {
		t.Errorf("tenant = %q, want demo", rec.Body.String())
	}
}
