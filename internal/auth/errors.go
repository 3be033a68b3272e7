package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrForbidden          = errors.New("auth: insufficient permissions")

	// ErrInvalidHash is returned for a stored password that is not an argon2id PHC string.
	ErrInvalidHash = errors.New("auth: invalid password hash")
)
