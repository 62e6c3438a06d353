// Package apierr collects the error taxonomy shared by every
// component that talks to the external HTTP collaborator: storage,
// akcache, auth, identity, share. It follows the sage corpus's
// typed-struct-plus-sentinel-values pattern (see did.DIDError) rather
// than a generic errors package.
package apierr

import "fmt"

// APIError is an unrecoverable server response (4xx/5xx) carrying the
// HTTP status, per spec.md §7.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// LookupError is a not-found surfaced explicitly where semantically
// meaningful: client info, credential note, EAK lookups.
type LookupError struct {
	What string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("not found: %s", e.What)
}

// ConflictError is a rejected update/delete because a version token
// didn't match the server's, or a writer-chosen note name collided
// with an existing one.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// QueryError is a server-rejected query shape.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("bad query: %s", e.Reason)
}

// NoteValidationError is a missing or failed note signature.
type NoteValidationError struct {
	Reason string
}

func (e *NoteValidationError) Error() string {
	return fmt.Sprintf("note validation: %s", e.Reason)
}

// UnsupportedAPIResponse is an unexpected "type" value at a login-flow
// step.
type UnsupportedAPIResponse struct {
	Got string
}

func (e *UnsupportedAPIResponse) Error() string {
	return fmt.Sprintf("unsupported api response: %s", e.Got)
}

// NewAPIError maps an HTTP status/body pair to the specific taxonomy
// member spec.md §7 names, falling back to the generic APIError for
// anything else. Supplemented from original_source/e3db/auth.py's
// __response_check: the distillation only names 401/404 explicitly,
// but the original dispatches on the full 4xx/5xx range.
func NewAPIError(status int, body string) error {
	switch status {
	case 401, 403:
		return &APIError{Status: status, Message: "unauthorized"}
	case 404:
		return &LookupError{What: body}
	case 409:
		return &ConflictError{Reason: body}
	case 400, 422:
		return &QueryError{Reason: body}
	default:
		return &APIError{Status: status, Message: body}
	}
}
