package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when the username or password is wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidHash is returned when a stored password hash cannot be parsed.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrTokenInvalid is returned for malformed, expired or forged tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
