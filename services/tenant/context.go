package tenant

import "context"

type tenantContextKey struct{}

// ContextWithTenant attaches the resolved tenant to the context.
func ContextWithTenant(ctx context.Context, t *Tenant) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// FromContext returns the tenant resolved for this request, if any.
func FromContext(ctx context.Context) (*Tenant, bool) {
	v, ok := ctx.Value(tenantContextKey{}).(*Tenant)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
