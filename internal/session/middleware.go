package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"onlinelibrary/internal/platform/httpjson"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   int64
	UserName string
	Admin    bool
}

type contextKeyIdentity struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity{}, id)
}

// FromContext returns the identity RequireAuth stored.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity{}).(Identity)
	return id, ok
}

// Validator checks bearer tokens.
type Validator interface {
	Validate(tokenString string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer token. The user named
// adminUser is marked as admin.
func RequireAuth(validator Validator, adminUser string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(r.Context(), "unauthorized access - missing token", "path", r.URL.Path)
				httpjson.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token", "error", err, "path", r.URL.Path)
				httpjson.Error(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID:   claims.UserID,
				UserName: claims.UserName,
				Admin:    adminUser != "" && claims.UserName == adminUser,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok || !id.Admin {
			httpjson.Error(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
