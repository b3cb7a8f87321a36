package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal lacks a required role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials is returned when the identity provider rejects a
	// sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
