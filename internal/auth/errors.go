// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Storage-layer sentinels. Repositories wrap these so callers can use errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLogin is returned when an insert collides with an existing login.
	ErrDuplicateLogin = errors.New("login already exists")
)

// Caller-facing sentinels returned (wrapped) by Service.
var (
	ErrValidationFailed   = errors.New("validation failed")
	ErrLoginTaken         = errors.New("login already exists")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInternal           = errors.New("internal error")
)

// Error codes attached to Service errors.
const (
	CodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	CodeLoginTaken         = "AUTH_LOGIN_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInternal           = "AUTH_INTERNAL"
)

// Outcome is the caller-visible classification of a Service result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeValidationFailed
	OutcomeConflict
	OutcomeInvalidCredentials
	OutcomeInternal
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeConflict:
		return "conflict"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	default:
		return "internal_error"
	}
}

// OutcomeOf classifies an error returned by Service.
// A nil error is OutcomeOK; anything unrecognised is OutcomeInternal.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrValidationFailed):
		return OutcomeValidationFailed
	case errors.Is(err, ErrLoginTaken):
		return OutcomeConflict
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	default:
		return OutcomeInternal
	}
}

// invalidCredentials is the single error returned for every failed login,
// whatever the internal reason.
func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

// internalError hides the underlying cause from the caller. The cause is
// logged by the service before this is returned.
func internalError(operation string) error {
	return oops.Code(CodeInternal).With("operation", operation).Wrap(ErrInternal)
}
