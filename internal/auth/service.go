// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/passgate/passgate/internal/auth"

// ServiceConfig holds the Service's non-storage collaborators.
type ServiceConfig struct {
	// Logger receives one event per Register/Login outcome. Required.
	Logger *slog.Logger

	// Recorder receives metrics. Optional.
	Recorder Recorder

	// MaxConcurrentHashes caps simultaneous hash/verify computations.
	// Zero means GOMAXPROCS.
	MaxConcurrentHashes int
}

// Service registers and authenticates users.
type Service struct {
	users     UserRepository
	hasher    PasswordHasher
	logger    *slog.Logger
	recorder  Recorder
	hashSlots *semaphore.Weighted
	tracer    trace.Tracer

	// dummyHash is verified against when the login does not exist so that
	// unknown logins cost the same as wrong passwords.
	dummyHash string
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher, cfg ServiceConfig) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if cfg.Logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger is required")
	}
	if cfg.MaxConcurrentHashes < 0 {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("max_concurrent_hashes", cfg.MaxConcurrentHashes).
			Errorf("max concurrent hashes cannot be negative")
	}

	slots := cfg.MaxConcurrentHashes
	if slots == 0 {
		slots = runtime.GOMAXPROCS(0)
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	dummyHash, err := newDummyHash(hasher)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "generate dummy hash").Wrap(err)
	}

	return &Service{
		users:     users,
		hasher:    hasher,
		logger:    cfg.Logger,
		recorder:  recorder,
		hashSlots: semaphore.NewWeighted(int64(slots)),
		tracer:    otel.Tracer(tracerName),
		dummyHash: dummyHash,
	}, nil
}

// newDummyHash hashes a random secret nobody knows, using the live cost settings.
func newDummyHash(hasher PasswordHasher) (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", oops.Wrap(err)
	}
	//nolint:wrapcheck // wrapped by caller
	return hasher.Hash(hex.EncodeToString(secret))
}

// Register validates the credentials, hashes the password and stores a new user.
//
// Errors classify (see OutcomeOf) as validation failure, conflict or internal.
func (s *Service) Register(ctx context.Context, login, password string) (user *User, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register", trace.WithAttributes(attribute.String("auth.login", login)))
	defer func() { finishSpan(span, err) }()

	if err := errors.Join(ValidateLogin(login), ValidatePassword(password)); err != nil {
		return nil, s.rejectRegistration(ctx, login, err)
	}

	release, err := s.acquireHashSlot(ctx)
	if err != nil {
		s.emit(ctx, Event{Kind: EventRegistrationFailed, Login: login, Reason: ReasonServerError, Err: err})
		return nil, internalError("acquire hash slot")
	}
	hash, err := s.timedHash(password)
	release()
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, s.rejectRegistration(ctx, login, verr)
		}
		s.emit(ctx, Event{Kind: EventRegistrationFailed, Login: login, Reason: ReasonServerError, Err: err})
		return nil, internalError("hash password")
	}

	user, err = s.users.Create(ctx, login, hash)
	if err != nil {
		if errors.Is(err, ErrDuplicateLogin) {
			s.emit(ctx, Event{Kind: EventRegistrationFailed, Login: login, Reason: ReasonDuplicateLogin})
			return nil, oops.Code(CodeLoginTaken).With("login", login).Wrap(ErrLoginTaken)
		}
		s.emit(ctx, Event{Kind: EventRegistrationFailed, Login: login, Reason: ReasonServerError, Err: err})
		return nil, internalError("create user")
	}

	s.emit(ctx, Event{Kind: EventUserRegistered, Login: login, UserID: user.ID})
	return user, nil
}

func (s *Service) rejectRegistration(ctx context.Context, login string, err error) error {
	verrs := ValidationErrors(err)
	fields := make([]string, 0, len(verrs))
	for _, verr := range verrs {
		fields = append(fields, verr.Error())
	}
	details := strings.Join(fields, " | ")
	s.emit(ctx, Event{Kind: EventRegistrationFailed, Login: login, Reason: ReasonValidationError, Details: details})
	return oops.Code(CodeValidationFailed).With("login", login).Wrap(err)
}

// Login authenticates a user.
//
// An unknown login and a wrong password return the same error, and both pay
// for one hash verification.
func (s *Service) Login(ctx context.Context, login, password string) (user *User, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login", trace.WithAttributes(attribute.String("auth.login", login)))
	defer func() { finishSpan(span, err) }()

	found, lookupErr := s.users.GetByLogin(ctx, login)
	userExists := true
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			s.emit(ctx, Event{Kind: EventLoginFailed, Login: login, Reason: ReasonServerError, Err: lookupErr})
			return nil, internalError("get user by login")
		}
		userExists = false
	}

	targetHash := s.dummyHash
	if userExists {
		targetHash = found.PasswordHash
	}

	release, err := s.acquireHashSlot(ctx)
	if err != nil {
		s.emit(ctx, Event{Kind: EventLoginFailed, Login: login, Reason: ReasonServerError, Err: err})
		return nil, internalError("acquire hash slot")
	}
	valid, verifyErr := s.timedVerify(password, targetHash)
	release()

	switch {
	case !userExists:
		s.emit(ctx, Event{Kind: EventLoginFailed, Login: login, Reason: ReasonUserNotFound})
		return nil, invalidCredentials()
	case verifyErr != nil:
		s.emit(ctx, Event{Kind: EventLoginFailed, Login: login, Reason: ReasonMalformedHash, UserID: found.ID, Err: verifyErr})
		return nil, invalidCredentials()
	case !valid:
		s.emit(ctx, Event{Kind: EventLoginFailed, Login: login, Reason: ReasonInvalidPassword, UserID: found.ID})
		return nil, invalidCredentials()
	}

	s.emit(ctx, Event{Kind: EventLoginSucceeded, Login: login, UserID: found.ID})
	return found, nil
}

// acquireHashSlot blocks until a hash slot is free or ctx is done.
func (s *Service) acquireHashSlot(ctx context.Context) (func(), error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return nil, oops.Code("AUTH_HASH_SLOT_UNAVAILABLE").Wrap(err)
	}
	return func() { s.hashSlots.Release(1) }, nil
}

func (s *Service) timedHash(password string) (string, error) {
	start := time.Now()
	defer func() { s.recorder.ObserveHashDuration("hash", time.Since(start)) }()
	//nolint:wrapcheck // hasher errors are coded
	return s.hasher.Hash(password)
}

func (s *Service) timedVerify(password, hash string) (bool, error) {
	start := time.Now()
	defer func() { s.recorder.ObserveHashDuration("verify", time.Since(start)) }()
	//nolint:wrapcheck // hasher errors are coded
	return s.hasher.Verify(password, hash)
}

func finishSpan(span trace.Span, err error) {
	outcome := OutcomeOf(err)
	span.SetAttributes(attribute.String("auth.outcome", outcome.String()))
	if outcome == OutcomeInternal {
		span.SetStatus(codes.Error, outcome.String())
	}
	span.End()
}
