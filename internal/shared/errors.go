package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidToken indicates an unusable API token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRoleNotFound indicates an unknown role slug for the claimed role type.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleInactive indicates an attempt to use a deactivated custom role.
	ErrRoleInactive = errors.New("role inactive")
	// ErrUnknownProject indicates a scoping hint referencing a project that does not exist.
	ErrUnknownProject = errors.New("unknown project")
)
