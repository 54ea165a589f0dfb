package admission

import (
	"context"

	"github.com/HanTheDev/quota-gateway/internal/models"
)

type contextKey string

const tenantContextKey contextKey = "tenant"

// WithTenant returns a context carrying the admitted tenant.
func WithTenant(ctx context.Context, tenant *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

// TenantFromContext returns the tenant placed by Admit.
func TenantFromContext(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(*models.Tenant)
	return tenant, ok && tenant != nil
}
