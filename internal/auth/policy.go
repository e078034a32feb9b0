// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"strings"
	"unicode/utf8"
)

// Login validation constraints.
const (
	MinLoginLength = 3
	MaxLoginLength = 32
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// PasswordSpecialChars is the set a password must draw at least one character from.
const PasswordSpecialChars = `!@#$%^&*(),.?":{}|<>`

// Rule violation messages. They are returned to API clients verbatim.
const (
	ReasonLoginLength   = "Login must be between 3 and 32 characters"
	ReasonLoginCharset  = "Login can only contain letters, numbers, ., _, -"
	ReasonPasswordShort = "Must be at least 8 characters long"
	ReasonNoUppercase   = "Must contain at least one uppercase letter (A-Z)"
	ReasonNoLowercase   = "Must contain at least one lowercase letter (a-z)"
	ReasonNoDigit       = "Must contain at least one digit (0-9)"
	ReasonNoSpecial     = "Must contain at least one special character (!@#$%^&* etc.)"
)

// reasonSeparator joins reasons for single-line display.
const reasonSeparator = "; "

// ValidationError lists every rule a field failed.
type ValidationError struct {
	Field   string
	Reasons []string
}

// Message returns the reasons joined on one line.
func (e *ValidationError) Message() string {
	return strings.Join(e.Reasons, reasonSeparator)
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message()
}

// Is makes every ValidationError match ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ValidationErrors returns every *ValidationError in err's tree, in the
// order they were joined.
func ValidationErrors(err error) []*ValidationError {
	var out []*ValidationError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		switch u := e.(type) {
		case *ValidationError:
			out = append(out, u)
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// ValidateLogin checks length and charset. Both rules are always evaluated.
func ValidateLogin(login string) error {
	var reasons []string

	n := utf8.RuneCountInString(login)
	if n < MinLoginLength || n > MaxLoginLength {
		reasons = append(reasons, ReasonLoginLength)
	}
	for i := 0; i < len(login); i++ {
		if !isLoginByte(login[i]) {
			reasons = append(reasons, ReasonLoginCharset)
			break
		}
	}

	if len(reasons) > 0 {
		return &ValidationError{Field: "login", Reasons: reasons}
	}
	return nil
}

// ValidatePassword evaluates every strength rule independently and reports
// all unmet rules in a fixed order.
func ValidatePassword(password string) error {
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(PasswordSpecialChars, r):
			special = true
		}
	}

	var reasons []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		reasons = append(reasons, ReasonPasswordShort)
	}
	if !upper {
		reasons = append(reasons, ReasonNoUppercase)
	}
	if !lower {
		reasons = append(reasons, ReasonNoLowercase)
	}
	if !digit {
		reasons = append(reasons, ReasonNoDigit)
	}
	if !special {
		reasons = append(reasons, ReasonNoSpecial)
	}

	if len(reasons) > 0 {
		return &ValidationError{Field: "password", Reasons: reasons}
	}
	return nil
}

func isLoginByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}
