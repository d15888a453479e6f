package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JonMunkholm/brandimport/internal/core"
)

// TenantClaims is the bearer token payload issued at login.
type TenantClaims struct {
	BrandID   string `json:"brandId"`
	Email     string `json:"email,omitempty"`
	BrandName string `json:"brandName,omitempty"`
	jwt.RegisteredClaims
}

// ErrorResponder writes an error response for a failed request.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// TenantAuth returns middleware that requires an HS256 bearer token signed
// with secret and carrying a brandId claim. The tenant is stored in the
// request context (see core.TenantFromContext). Failures are reported through
// onError with core.ErrUnauthorized or core.ErrInvalidToken.
func TenantAuth(secret []byte, onError ErrorResponder) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				onError(w, r, core.ErrUnauthorized)
				return
			}

			claims := &TenantClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				slog.Warn("auth: token rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				onError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidToken, err))
				return
			}
			if claims.BrandID == "" {
				onError(w, r, fmt.Errorf("%w: no brandId claim", core.ErrInvalidToken))
				return
			}

			ctx := core.ContextWithTenant(r.Context(), core.Tenant{
				BrandID: claims.BrandID,
				Email:   claims.Email,
				Name:    claims.BrandName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SignTenantToken issues a token TenantAuth accepts. A zero ttl means the
// token never expires.
func SignTenantToken(secret []byte, t core.Tenant, ttl time.Duration) (string, error) {
	if t.BrandID == "" {
		return "", errors.New("tenant token needs a brand id")
	}
	claims := TenantClaims{
		BrandID:   t.BrandID,
		Email:     t.Email,
		BrandName: t.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
