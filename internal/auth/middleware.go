package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/medix/medix-server/internal/api"
	"github.com/medix/medix-server/pkg/models"
)

type contextKey struct{}

var userKey contextKey

// UserFromContext returns the authenticated user placed there by the
// middleware. The user travels only in the request context; there is
// no ambient session state.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// WithUser returns a context carrying the user. Exposed for tests.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserStore resolves token subjects to accounts.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Middleware validates the bearer token and loads the user into the
// request context. Missing, malformed, expired, and unknown-subject
// tokens all produce the same 401 response.
func Middleware(tm *TokenManager, store UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				api.RespondAppError(w, models.ErrUnauthorized)
				return
			}

			email, err := tm.Verify(token)
			if err != nil {
				api.RespondAppError(w, models.ErrUnauthorized)
				return
			}

			user, err := store.GetUserByEmail(r.Context(), email)
			if err != nil || !user.IsActive {
				api.RespondAppError(w, models.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling
// back to the token query parameter for WebSocket upgrades where
// browsers cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
