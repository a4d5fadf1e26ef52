// Package middleware contains HTTP middleware for the control API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"fiscalsync/internal/auth"
	"fiscalsync/internal/store"

	"github.com/google/uuid"
)

// tenantKey is the context key for the authenticated tenant.
type tenantKey struct{}

// AuthMiddleware validates the bearer API key and attaches the tenant to
// the request context. Every operation must be scoped by tenant.
func AuthMiddleware(s store.TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}

			tenant, err := s.GetTenantByAPIKeyHash(r.Context(), auth.HashKey(token))
			if err != nil {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithTenant(r.Context(), tenant)))
		})
	}
}

// NewContextWithTenant attaches a tenant to the context.
func NewContextWithTenant(ctx context.Context, t *store.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// TenantFromContext extracts the authenticated tenant from the context.
func TenantFromContext(ctx context.Context) (*store.Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(*store.Tenant)
	return t, ok
}

// TenantIDFromContext extracts just the tenant ID.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if t, ok := TenantFromContext(ctx); ok {
		return t.ID, true
	}
	return uuid.Nil, false
}
