package sheetdb

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// InvalidArgumentError reports malformed or missing caller input. It is
// always returned before any remote call is made.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Reason)
}

// NotInitializedError reports an operation attempted before a prerequisite
// step, such as creating a table before the database exists.
type NotInitializedError struct {
	Op      string
	Missing string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: %s not initialized", e.Op, e.Missing)
}

// NotFoundError indicates the requested resource was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}

	return fmt.Sprintf("%s not found", e.Resource)
}

// ConflictError is returned by Row.Update when the remote row changed after
// the row handle was obtained. StatusCode carries the code reported by the
// remote service.
type ConflictError struct {
	StatusCode int
	Row        int
	Cause      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("row %d: version conflict (status %d)", e.Row, e.StatusCode)
}

func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// IsInvalidArgumentError checks if the error is an invalid argument error
func IsInvalidArgumentError(err error) bool {
	var e *InvalidArgumentError
	return errors.As(err, &e)
}

// IsNotInitializedError checks if the error is a not initialized error
func IsNotInitializedError(err error) bool {
	var e *NotInitializedError
	return errors.As(err, &e)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflictError checks if the error is a version conflict error
func IsConflictError(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// conflictStatus reports whether err is a remote version-conflict signal and
// returns its status code.
func conflictStatus(err error) (int, bool) {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return 0, false
	}

	switch gerr.Code {
	case http.StatusConflict, http.StatusPreconditionFailed:
		return gerr.Code, true
	default:
		return 0, false
	}
}
