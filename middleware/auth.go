package middleware

import (
	"context"
	"net/http"
	"notes-collab/core"
	"strings"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type contextKey string

const IdentityContextKey = contextKey("identity")

// AuthBearer verifies the request's bearer credential and stores the
// resulting core.Identity in the request context.
func AuthBearer(verifier core.IdentityVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Authorization header is required"})
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
				return
			}

			identity, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				logrus.WithError(err).Debug("Rejected bearer credential")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the identity stored by AuthBearer.
func IdentityFrom(ctx context.Context) (core.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(core.Identity)
	return identity, ok
}
