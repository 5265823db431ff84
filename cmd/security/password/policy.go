package password

import "unicode/utf8"

// Validate applies the length bounds and, when EnforceStrength is set, the
// Score rules. Length is measured in runes.
func (c Config) Validate(password string) error {
	switch n := utf8.RuneCountInString(password); {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.EnforceStrength && !Score(password).Valid:
		return ErrWeakPassword
	default:
		return nil
	}
}
