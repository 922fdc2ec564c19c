// Package auth resolves the tenant of a request from a signed token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"invoicer/internal/log"
)

// CookieName carries the token for browser sessions.
const CookieName = "invoicer_token"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("token signing is not configured")
)

// Claims identify the tenant a token acts for.
type Claims struct {
	TenantID string `json:"tenant"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// Authenticator issues and checks HS256 tokens. Without a secret it runs in
// dev mode and every request belongs to the dev tenant.
type Authenticator struct {
	secret    []byte
	devTenant string
	ttl       time.Duration
	now       func() time.Time
}

func New(secret, devTenant string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), devTenant: devTenant, ttl: ttl, now: time.Now}
}

func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

// IssueToken signs a token for tenant. subject names the user or service.
func (a *Authenticator) IssueToken(tenant, subject string) (string, error) {
	if a.DevMode() {
		return "", ErrNoSecret
	}
	if tenant == "" {
		return "", fmt.Errorf("issue token: empty tenant")
	}
	now := a.now()
	claims := Claims{
		TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "invoicer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies signature and expiry and returns the claims.
func (a *Authenticator) ParseToken(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TenantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware puts the tenant on the request context or answers 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.DevMode() {
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), a.devTenant)))
			return
		}
		claims, err := a.ParseToken(tokenFromRequest(r))
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).
				WarnContext(r.Context(), "Rejected request", log.FieldPath, r.URL.Path, log.FieldError, err.Error())
			w.Header().Set("WWW-Authenticate", `Bearer realm="invoicer"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), claims.TenantID)))
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, contextKey{}, tenant)
}

// TenantFrom returns the tenant set by Middleware.
func TenantFrom(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(contextKey{}).(string)
	return t, ok && t != ""
}
