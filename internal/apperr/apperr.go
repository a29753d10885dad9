// Package apperr defines the error taxonomy shared by the engine, the
// resolver and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports every structural problem found in one pass.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return e.Violations[0]
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// Validation builds a ValidationError from one or more violations.
func Validation(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// NotFoundError means the referenced workflow, document, execution or result does not exist
// (or is not visible to the caller).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// PreconditionError means a node ran before the upstream context it needs was populated.
type PreconditionError struct {
	Node   string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Node, e.Reason)
}

// ExternalServiceError wraps a failure of the inference backend or another collaborator.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// AuthorizationError means the permission resolver denied the request.
type AuthorizationError struct {
	Role     string
	Resource string
	Action   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("permission denied: %s/%s for role '%s'", e.Resource, e.Action, e.Role)
}

// BadRequestError rejects malformed input such as an unsupported upload.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return e.Reason }

// BadRequest builds a BadRequestError.
func BadRequest(format string, args ...any) *BadRequestError {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}

// HTTPStatus maps err onto the HTTP status class of its taxonomy type.
func HTTPStatus(err error) int {
	var (
		validation   *ValidationError
		notFound     *NotFoundError
		precondition *PreconditionError
		external     *ExternalServiceError
		authz        *AuthorizationError
		badRequest   *BadRequestError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation), errors.As(err, &precondition):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.As(err, &external):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
