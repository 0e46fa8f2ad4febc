package services

import (
	"errors"

	"github.com/AnshRaj112/tasklist-backend/pkg/utils"
)

// Reasons carried by AuthError.
const (
	AuthMissing           = "missing"
	AuthExpired           = "expired"
	AuthInvalidCredential = "invalid credential"
)

// Machine-readable error kinds returned to clients.
const (
	KindValidation = "validation"
	KindAuth       = "auth"
	KindNotFound   = "not_found"
	KindIO         = "io"
)

// AuthError is returned when a session or credential cannot be accepted.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// NotFoundError names the thing that was looked up.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return e.What + " not found"
}

func newValidationError(field, message string) error {
	return &utils.ValidationError{Field: field, Message: message}
}

// Kind classifies err. Anything unrecognised is treated as an IO failure.
func Kind(err error) string {
	var vErr *utils.ValidationError
	var aErr *AuthError
	var nErr *NotFoundError
	switch {
	case errors.As(err, &vErr):
		return KindValidation
	case errors.As(err, &aErr):
		return KindAuth
	case errors.As(err, &nErr):
		return KindNotFound
	default:
		return KindIO
	}
}

// IsAuthReason reports whether err is an AuthError with the given reason.
func IsAuthReason(err error, reason string) bool {
	var aErr *AuthError
	return errors.As(err, &aErr) && aErr.Reason == reason
}
