package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrMissingTenant is returned when no tenant is given explicitly or
	// carried by the context.
	ErrMissingTenant = errors.New("tenant info missing")

	// ErrInvalidTenant is returned when a tenant identifier is malformed.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)

type tenantContextKey struct{}

// TenantInfo identifies the tenant a request acts for.
type TenantInfo struct {
	TenantID string
}

// Validate checks that the tenant id is present and well formed.
func (t *TenantInfo) Validate() error {
	return ValidateTenantID(t.TenantID)
}

// ValidateTenantID rejects empty ids and ids with characters outside
// [a-zA-Z0-9_.-].
func ValidateTenantID(id string) error {
	if id == "" {
		return ErrMissingTenant
	}
	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, id)
	}
	return nil
}

// ContextWithTenant adds TenantInfo to a context.
func ContextWithTenant(ctx context.Context, tenant *TenantInfo) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext extracts TenantInfo from a context.
// Returns ErrMissingTenant if not present.
func TenantFromContext(ctx context.Context) (*TenantInfo, error) {
	tenant, ok := ctx.Value(tenantContextKey{}).(*TenantInfo)
	if !ok || tenant == nil {
		return nil, ErrMissingTenant
	}
	return tenant, nil
}

// ResolveTenantID returns explicit when set, otherwise the tenant carried by
// ctx. The result is validated.
func ResolveTenantID(ctx context.Context, explicit string) (string, error) {
	id := explicit
	if id == "" {
		tenant, err := TenantFromContext(ctx)
		if err != nil {
			return "", err
		}
		id = tenant.TenantID
	}
	if err := ValidateTenantID(id); err != nil {
		return "", err
	}
	return id, nil
}
