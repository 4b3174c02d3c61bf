package auth

import "errors"

var (
	// ErrUnauthorized covers every credential failure on login. It is
	// deliberately uniform so responses do not reveal whether the account
	// exists, is suspended, or has a different password.
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
