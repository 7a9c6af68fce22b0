package auth

import (
	"context"
	"net/http"

	"github.com/redmonkez12/printcost-auth/internal/httputil"
	"github.com/redmonkez12/printcost-auth/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const PrincipalContextKey ContextKey = "principal"

// SessionValidator resolves an Authorization header to a caller.
type SessionValidator interface {
	ValidateSession(ctx context.Context, authHeader string) (*Principal, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	validator SessionValidator
}

func NewMiddleware(validator SessionValidator) *Middleware {
	return &Middleware{validator: validator}
}

// RequireSession rejects requests without a live session and stores the
// Principal in the request context otherwise.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.validator.ValidateSession(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if ae, ok := asError(err); ok {
				httputil.RespondErrorWithCode(w, ae.Message, ae.Code, ae.Kind.HTTPStatus())
				return
			}
			logging.GetLoggerFromContext(r.Context()).Error("session validation failed", "error", err.Error())
			httputil.RespondInternalError(w)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext extracts the caller stored by RequireSession
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*Principal)
	return p, ok
}
