package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired indicates a request without a tenant scope.
	ErrTenantRequired = errors.New("tenant required")
)
