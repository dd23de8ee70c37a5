// Package errs holds the error taxonomy shared by every service and the
// mapping from those errors to user-facing text and HTTP status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Membership and admin precondition violations. None of them are fatal:
// they are surfaced to the user as a message.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyMember = errors.New("already a member")
	ErrNotMember     = errors.New("not a member")
	ErrAlreadyAdmin  = errors.New("already an admin")
	ErrPermission    = errors.New("permission denied")

	// ErrConflict means a concurrent write won; the caller may retry.
	ErrConflict = errors.New("concurrent update")

	ErrRateLimited = errors.New("rate limited")
)

// IdentityCode classifies identity provider failures.
type IdentityCode string

const (
	EmailInUse        IdentityCode = "email_in_use"
	InvalidEmail      IdentityCode = "invalid_email"
	WeakPassword      IdentityCode = "weak_password"
	InvalidCredential IdentityCode = "invalid_credential"
	UserNotFound      IdentityCode = "user_not_found"
	WrongPassword     IdentityCode = "wrong_password"
	IdentityOther     IdentityCode = "other"
)

// IdentityError is returned by sign-up, sign-in and session restore.
type IdentityError struct {
	Code IdentityCode
	Err  error
}

func (e *IdentityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity: %s: %v", e.Code, e.Err)
	}
	return "identity: " + string(e.Code)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// Identity builds an IdentityError.
func Identity(code IdentityCode, err error) error {
	return &IdentityError{Code: code, Err: err}
}

// IdentityCodeOf returns the code of the first IdentityError in err's chain.
func IdentityCodeOf(err error) (IdentityCode, bool) {
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.Code, true
	}
	return "", false
}

// ValidationError rejects an input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransferError is an upload or blob failure.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// LoadError is delivered by a subscription whose snapshot could not be
// loaded. Subscriptions are not retried after one.
type LoadError struct {
	What string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.What, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var identityMessages = map[IdentityCode]string{
	EmailInUse:        "This email is already in use. Try logging in or use a different email.",
	InvalidEmail:      "Invalid email address format.",
	WeakPassword:      "Password should be at least 6 characters.",
	InvalidCredential: "Invalid email or password. Please check your credentials.",
	UserNotFound:      "No user found with this email. Please register.",
	WrongPassword:     "Incorrect password. Please try again.",
	IdentityOther:     "Authentication failed. Please try again.",
}

var validationMessages = map[string]string{
	"empty_name": "Channel name cannot be empty.",
	"empty_id":   "Channel ID cannot be empty.",

	"empty_username":     "Username cannot be empty.",
	"empty_display_name": "Display name cannot be empty.",
	"empty_file_url":     "The uploaded file has no download URL.",
}

// Message turns any service error into text fit to show a user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var (
		ie *IdentityError
		ve *ValidationError
		te *TransferError
		le *LoadError
	)
	switch {
	case errors.As(err, &ie):
		if msg, ok := identityMessages[ie.Code]; ok {
			return msg
		}
		return identityMessages[IdentityOther]
	case errors.As(err, &ve):
		if msg, ok := validationMessages[ve.Reason]; ok {
			return msg
		}
		return "Invalid " + ve.Field + "."
	case errors.As(err, &te):
		return "File upload failed: " + te.Err.Error()
	case errors.As(err, &le):
		return "Failed to load " + le.What + "."
	case errors.Is(err, ErrNotFound):
		return "Channel not found with this ID."
	case errors.Is(err, ErrAlreadyMember):
		return "You are already a member of this channel."
	case errors.Is(err, ErrNotMember):
		return "The user ID provided is not a member of this channel. They must join first."
	case errors.Is(err, ErrAlreadyAdmin):
		return "This user is already an admin of this channel."
	case errors.Is(err, ErrPermission):
		return "You do not have permission to do that."
	case errors.Is(err, ErrConflict):
		return "The channel changed while you were editing it. Please try again."
	case errors.Is(err, ErrRateLimited):
		return "You are sending messages too quickly. Please wait a moment."
	}
	return "Something went wrong. Please try again."
}

// HTTPStatus maps a service error to a response status.
func HTTPStatus(err error) int {
	var (
		ie *IdentityError
		ve *ValidationError
		te *TransferError
	)
	switch {
	case errors.As(err, &ie):
		switch ie.Code {
		case EmailInUse:
			return http.StatusConflict
		case InvalidEmail, WeakPassword:
			return http.StatusBadRequest
		case IdentityOther:
			return http.StatusInternalServerError
		}
		return http.StatusUnauthorized
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &te):
		return http.StatusBadGateway
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrAlreadyAdmin), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotMember), errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
