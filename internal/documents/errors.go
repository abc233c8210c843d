package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested document, version, or shared link
	// does not exist or is no longer active.
	ErrNotFound = errors.New("documents: not found")
	// ErrForbidden indicates the requester lacks permission for the operation.
	ErrForbidden = errors.New("documents: forbidden")
	// ErrValidation indicates the request payload failed a field-level check.
	ErrValidation = errors.New("documents: validation failed")

	errMissingDatabase      = errors.New("database handle is required")
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingUserDirectory = errors.New("user directory is required")
)

// ServiceError carries a dotted operation code alongside the underlying cause
// so callers can branch on the sentinel errors while logs keep full context.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code for the failure.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "documents.service.new"
	opCreate         = "documents.create"
	opList           = "documents.list"
	opGet            = "documents.get"
	opUpdate         = "documents.update"
	opDelete         = "documents.delete"
	opShare          = "documents.share"
	opGenerateLink   = "documents.generate_link"
	opResolveShared  = "documents.resolve_shared"
	opListVersions   = "documents.list_versions"
	opGetVersion     = "documents.get_version"
	opRestoreVersion = "documents.restore_version"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func notFoundError(operation, reason string) error {
	return newServiceError(operation, reason, ErrNotFound)
}

func forbiddenError(operation, reason string) error {
	return newServiceError(operation, reason, ErrForbidden)
}

func validationError(operation, reason string, cause error) error {
	if cause == nil {
		cause = ErrValidation
	} else if !errors.Is(cause, ErrValidation) {
		cause = fmt.Errorf("%w: %w", ErrValidation, cause)
	}
	return newServiceError(operation, reason, cause)
}
