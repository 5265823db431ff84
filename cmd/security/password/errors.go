package password

import "errors"

var (
	// ErrPasswordTooShort and ErrPasswordTooLong bound the rune length accepted by Hash.
	ErrPasswordTooShort = errors.New("password: below minimum length")
	ErrPasswordTooLong  = errors.New("password: above maximum length")
	// ErrWeakPassword means Score reported at least one hard error.
	ErrWeakPassword = errors.New("password: fails strength policy")
	// ErrInvalidHash is returned for PHC strings that do not decode as argon2id.
	ErrInvalidHash = errors.New("password: malformed argon2id hash")
)
