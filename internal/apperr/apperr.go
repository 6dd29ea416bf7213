// Package apperr defines the error taxonomy shared by the stores, services
// and HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry and presentation decisions.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotAuthorized Kind = "not_authorized"
	KindNotFound      Kind = "not_found"
	KindTransient     Kind = "transient"
	KindInternal      Kind = "internal"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a copy of the sentinel.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Transient marks a datastore failure as safe to retry.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Code: "TRANSIENT_STORE_ERROR", Message: "temporary datastore failure", Err: err}
}

// Invalid builds a validation error with a caller-facing message.
func Invalid(message string) *Error {
	return &Error{Kind: KindValidation, Code: ErrInvalidInput.Code, Message: message}
}

var (
	ErrInvalidInput = New(KindValidation, "INVALID_INPUT", "invalid input")

	ErrDuplicatePending = New(KindConflict, "DUPLICATE_PENDING", "a pending friend request already exists for this pair")
	ErrAlreadyResolved  = New(KindConflict, "ALREADY_RESOLVED", "friend request was already answered")
	ErrAlreadyFriends   = New(KindConflict, "ALREADY_FRIENDS", "users are already friends")
	ErrSelfRequest      = New(KindValidation, "SELF_REQUEST", "cannot send a friend request to yourself")
	ErrMessageExpired   = New(KindConflict, "MESSAGE_EXPIRED", "message is no longer viewable")

	ErrNotTheReceiver  = New(KindNotAuthorized, "NOT_THE_RECEIVER", "only the receiver can respond to this request")
	ErrNotAParticipant = New(KindNotAuthorized, "NOT_A_PARTICIPANT", "user is not a chat participant")
	ErrNotFriends      = New(KindNotAuthorized, "NOT_FRIENDS", "users are not friends")

	ErrMessageNotFound = New(KindNotFound, "MESSAGE_NOT_FOUND", "message not found")
	ErrUserNotFound    = New(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrChatNotFound    = New(KindNotFound, "CHAT_NOT_FOUND", "chat not found")
	ErrRequestNotFound = New(KindNotFound, "REQUEST_NOT_FOUND", "friend request not found")
)

// KindOf returns the classification of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Describe returns the code and caller-facing message for err. Internal errors
// never leak their cause.
func Describe(err error) (string, string) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Code, appErr.Message
	}
	return "INTERNAL", "internal error"
}
