package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	// ErrUnauthorized covers every credential failure: unknown user and
	// wrong password are deliberately indistinguishable.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
