package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/VampKunal/IdeaRoom/internal/identity"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// AuthMiddleware resolves bearer tokens into identities.
type AuthMiddleware struct {
	verifier identity.Verifier
	required bool
}

// NewAuthMiddleware creates a new auth middleware. A nil verifier treats
// every request as anonymous.
func NewAuthMiddleware(verifier identity.Verifier, required bool) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, required: required}
}

// Identify attaches the caller's identity to the request context when a
// valid token is present. Requests without one pass through anonymous.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := identity.TokenFromRequest(r)
		if token == "" || m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.verifier.Verify(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), IdentityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests when authentication is required.
// It expects Identify to have run.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.required && GetIdentityFromContext(r.Context()) == nil {
			jsonError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetIdentityFromContext retrieves the caller's identity from the request context.
func GetIdentityFromContext(ctx context.Context) *models.Identity {
	id, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	if !ok {
		return nil
	}
	return id
}
