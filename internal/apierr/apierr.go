// Package apierr turns domain errors into the JSON error body returned by
// every operation: a stable machine-readable kind plus a human message.
package apierr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
)

const (
	KindEventNotFound           = "EventNotFound"
	KindCapacityExceeded        = "CapacityExceeded"
	KindAlreadyJoined           = "AlreadyJoined"
	KindNotJoined               = "NotJoined"
	KindUnauthorized            = "Unauthorized"
	KindForbidden               = "Forbidden"
	KindStorageConflict         = "StorageConflict"
	KindInvalidInput            = "InvalidInput"
	KindCapacityBelowAttendance = "CapacityBelowAttendance"
	KindNotFound                = "NotFound"
	KindConflict                = "Conflict"
	KindInternal                = "Internal"
)

// Error implements huma.StatusError so huma serialises it as the response body.
type Error struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var _ huma.StatusError = (*Error)(nil)

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

func (e *Error) GetStatus() int {
	return e.Status
}

func New(status int, kind, message string) *Error {
	return &Error{Status: status, Kind: kind, Message: message}
}

var mapping = []struct {
	target error
	status int
	kind   string
}{
	{models.ErrEventNotFound, http.StatusNotFound, KindEventNotFound},
	{models.ErrCapacityExceeded, http.StatusBadRequest, KindCapacityExceeded},
	{models.ErrAlreadyJoined, http.StatusBadRequest, KindAlreadyJoined},
	{models.ErrNotJoined, http.StatusBadRequest, KindNotJoined},
	{models.ErrUnauthorized, http.StatusUnauthorized, KindUnauthorized},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, KindUnauthorized},
	{models.ErrForbidden, http.StatusForbidden, KindForbidden},
	{models.ErrStorageConflict, http.StatusServiceUnavailable, KindStorageConflict},
	{models.ErrCapacityBelowAttendance, http.StatusBadRequest, KindCapacityBelowAttendance},
	{models.ErrInvalidInput, http.StatusBadRequest, KindInvalidInput},
	{models.ErrUserNotFound, http.StatusNotFound, KindNotFound},
	{models.ErrEmailTaken, http.StatusConflict, KindConflict},
}

// From maps err onto an *Error. Unknown errors become a 500 whose message
// does not leak internals.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, m := range mapping {
		if errors.Is(err, m.target) {
			msg := err.Error()
			// Transient failures are reported generically.
			if m.target == models.ErrStorageConflict {
				msg = m.target.Error()
			}
			return New(m.status, m.kind, msg)
		}
	}
	return New(http.StatusInternalServerError, KindInternal, "internal server error")
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, KindUnauthorized, message)
}

// NewHumaError replaces huma.NewError so request validation failures use the
// same {kind, message} body as domain errors.
func NewHumaError(status int, message string, errs ...error) huma.StatusError {
	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	if len(details) > 0 {
		message += ": " + strings.Join(details, "; ")
	}

	kind := KindInternal
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		status = http.StatusBadRequest
		kind = KindInvalidInput
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	}
	return New(status, kind, message)
}
