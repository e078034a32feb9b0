// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"time"

	"github.com/passgate/passgate/pkg/errutil"
)

// EventKind identifies a terminal outcome of Register or Login.
type EventKind string

// Event kinds.
const (
	EventUserRegistered     EventKind = "user_registered"
	EventRegistrationFailed EventKind = "registration_failed"
	EventLoginSucceeded     EventKind = "login_success"
	EventLoginFailed        EventKind = "login_failed"
)

// Failure reasons. These are internal diagnostics; callers of a failed login
// only ever see ErrInvalidCredentials.
const (
	ReasonValidationError = "validation_error"
	ReasonDuplicateLogin  = "duplicate_login"
	ReasonServerError     = "server_error"
	ReasonUserNotFound    = "user_not_found"
	ReasonInvalidPassword = "invalid_password"
	ReasonMalformedHash   = "malformed_hash"
)

// Event is the single observability record emitted per operation.
// It must never carry the plaintext password or the stored hash.
type Event struct {
	Kind    EventKind
	Login   string
	Reason  string
	UserID  int64
	Details string
	Err     error
}

// Recorder receives metrics for auth activity.
type Recorder interface {
	RecordAuthEvent(kind, reason string)
	ObserveHashDuration(operation string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string)              {}
func (noopRecorder) ObserveHashDuration(string, time.Duration) {}

// emit logs the event and counts it.
func (s *Service) emit(ctx context.Context, ev Event) {
	s.recorder.RecordAuthEvent(string(ev.Kind), ev.Reason)

	attrs := []any{
		"event_type", string(ev.Kind),
		"user_login", ev.Login,
	}
	if ev.UserID != 0 {
		attrs = append(attrs, "user_id", ev.UserID)
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Details != "" {
		attrs = append(attrs, "details", ev.Details)
	}
	if ev.Err != nil {
		attrs = append(attrs, errutil.Attrs(ev.Err)...)
	}

	switch {
	case ev.Reason == ReasonServerError:
		s.logger.ErrorContext(ctx, eventMessage(ev), attrs...)
	case ev.Kind == EventLoginFailed:
		s.logger.WarnContext(ctx, eventMessage(ev), attrs...)
	case ev.Kind == EventRegistrationFailed:
		s.logger.WarnContext(ctx, eventMessage(ev), attrs...)
	default:
		s.logger.InfoContext(ctx, eventMessage(ev), attrs...)
	}
}

func eventMessage(ev Event) string {
	switch ev.Kind {
	case EventUserRegistered:
		return "user registered"
	case EventRegistrationFailed:
		return "registration failed"
	case EventLoginSucceeded:
		return "user logged in"
	case EventLoginFailed:
		return "login failed"
	}
	return string(ev.Kind)
}
