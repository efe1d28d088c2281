package httpserver

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"review_ledger/internal/domain"
)

const RoleAdmin = "ADMIN"

// Claims carries the caller identity in sub and host roles.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
	leeway time.Duration
}

func NewAuthenticator(secret string) (*Authenticator, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	return &Authenticator{secret: []byte(secret), leeway: 2 * time.Minute}, nil
}

// Issue signs a token for sub; ttl <= 0 means no expiry.
func (a *Authenticator) Issue(sub domain.Identity, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  string(sub),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}

func (a *Authenticator) Parse(raw string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(a.leeway),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return &c, nil
}

type ctxKey struct{}

func withClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func claimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// CallerFrom returns the authenticated identity of the request.
func CallerFrom(ctx context.Context) (domain.Identity, bool) {
	c, ok := claimsFrom(ctx)
	if !ok {
		return "", false
	}
	return domain.Identity(c.Subject), true
}

// RequireCaller rejects requests without a valid bearer token.
func (s *Server) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "authentication is not configured")
			return
		}
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		c, err := s.auth.Parse(strings.TrimSpace(raw))
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), c)))
	})
}

// RequireAdmin must run after RequireCaller.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := claimsFrom(r.Context())
		if !ok || !slices.Contains(c.Roles, RoleAdmin) {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
