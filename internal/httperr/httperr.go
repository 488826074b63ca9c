// internal/httperr/httperr.go
package httperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a service-level failure with the HTTP status and the short toast
// title the client renders.
type Error struct {
	Status  int    `json:"-"`
	Title   string `json:"title"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

// NotFound is a missing game, lobby, player, chat or friend (404).
func NotFound(title, format string, args ...any) *Error {
	return &Error{Status: http.StatusNotFound, Title: title, Message: fmt.Sprintf(format, args...)}
}

// Forbidden is a caller lacking a role: not master, not the active player,
// or an invalid token (403).
func Forbidden(title, format string, args ...any) *Error {
	return &Error{Status: http.StatusForbidden, Title: title, Message: fmt.Sprintf(format, args...)}
}

// Precondition is a violated game or lobby rule (400).
func Precondition(title, format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Title: title, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized is a missing token (401).
func Unauthorized(title, format string, args ...any) *Error {
	return &Error{Status: http.StatusUnauthorized, Title: title, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a store or I/O failure (500); the message is the failure's
// own text.
func Internal(title string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Title: title, Message: err.Error()}
}

// From maps any error to an *Error, wrapping unknown errors as Internal.
func From(err error, title string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(title, err)
}
