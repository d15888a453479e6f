package core

import "context"

type contextKey string

const (
	ctxKeyTenant contextKey = "tenant"
)

// Tenant identifies the authenticated brand a request acts for.
type Tenant struct {
	BrandID string
	Email   string
	Name    string
}

// ContextWithTenant attaches the authenticated tenant to ctx.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, ctxKeyTenant, t)
}

// TenantFromContext extracts the tenant set by the auth middleware.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(ctxKeyTenant).(Tenant)
	return t, ok
}

// BrandIDFromContext returns the tenant's brand id, or "" when unauthenticated.
func BrandIDFromContext(ctx context.Context) string {
	if t, ok := TenantFromContext(ctx); ok {
		return t.BrandID
	}
	return ""
}
