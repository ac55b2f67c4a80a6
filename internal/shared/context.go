package shared

import "context"

type tenantContextKey struct{}

type actorContextKey struct{}

// ContextWithTenant stores the tenant identifier in context.
func ContextWithTenant(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant identifier from context.
func TenantFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(tenantContextKey{}).(int64)
	return id, ok && id != 0
}

// ContextWithActor stores the acting user identifier in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user identifier from context.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}
