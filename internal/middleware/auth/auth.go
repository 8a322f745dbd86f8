package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"khata/internal/core"
	"khata/internal/log"
)

type contextKey string

const userKey contextKey = "user"

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (core.User, error)
}

var errMissingToken = fmt.Errorf("%w: missing bearer token", core.ErrUnauthorized)

// Middleware rejects requests without a valid bearer token. onError renders
// the rejection so the API keeps one error format.
type Middleware struct {
	auth    Authenticator
	onError func(http.ResponseWriter, *http.Request, error)
	public  map[string]bool
}

func NewMiddleware(auth Authenticator, onError func(http.ResponseWriter, *http.Request, error)) *Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
		}
	}
	return &Middleware{auth: auth, onError: onError, public: map[string]bool{}}
}

// Allow marks an exact "METHOD /path" pair as reachable without a token.
func (m *Middleware) Allow(method, path string) *Middleware {
	m.public[method+" "+path] = true
	return m
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || m.public[r.Method+" "+r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			m.onError(w, r, errMissingToken)
			return
		}

		user, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(), "Bearer token rejected",
				log.FieldPath, r.URL.Path,
				log.FieldError, err.Error())
			w.Header().Set("WWW-Authenticate", "Bearer")
			m.onError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUser, user.Email))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserFromContext returns the authenticated user stored by Middleware.
func UserFromContext(ctx context.Context) (core.User, bool) {
	user, ok := ctx.Value(userKey).(core.User)
	return user, ok
}

// WithUser stores user in ctx the way Middleware does.
func WithUser(ctx context.Context, user core.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
