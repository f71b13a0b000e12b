package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/stitchlab/stitchlab/internal/platform/httpx"
	"github.com/stitchlab/stitchlab/internal/shared"
)

// Middleware attaches the resolved caller to the request context.
type Middleware struct {
	Verifier TokenVerifier
	Logger   *slog.Logger
}

// Resolve extracts the bearer token and stores the user in context when it
// resolves. An absent or invalid token is not an error at this layer: the
// request proceeds anonymously and role-guarded routes reject it later.
func (m Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || m.Verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.Verifier.Verify(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("token resolution failed", slog.String("path", r.URL.Path))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithUser(r.Context(), user)))
	})
}

// RequireRole guards a route group behind one of the listed roles.
func RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := shared.UserFromContext(r.Context())
			if user == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, scheme))
}
