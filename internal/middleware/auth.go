package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tasktoearn/backend/internal/models"
	"github.com/tasktoearn/backend/internal/web"
)

type contextKey string

const ctxUserKey contextKey = "user"

// TokenValidator verifies a bearer token and returns the user id and role.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

// UserLoader resolves the authenticated user. Returns nil when missing.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// JWTAuth authenticates requests via the Authorization bearer token, loads
// the user into request context, and rejects banned accounts before they
// reach the core.
func JWTAuth(validator TokenValidator, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "missing or malformed Authorization header")
				return
			}
			userID, _, err := validator.ValidateToken(r.Context(), raw)
			if err != nil {
				web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "invalid or expired token")
				return
			}
			u, err := users.GetUser(r.Context(), userID)
			if err != nil || u == nil {
				web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unknown user")
				return
			}
			if u.IsBanned {
				web.Error(w, http.StatusForbidden, web.CodeForbidden, "account is banned")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// AdminOnly rejects non-admin users. Must run after JWTAuth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromCtx(r.Context())
		if u == nil {
			web.Error(w, http.StatusUnauthorized, web.CodeUnauthorized, "unauthorized")
			return
		}
		if !u.IsAdmin {
			web.Error(w, http.StatusForbidden, web.CodeForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromCtx returns the authenticated user or nil.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey).(*models.User)
	return u
}

// WithUser returns a context carrying the given user.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
