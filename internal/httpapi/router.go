// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package httpapi exposes the auth service over HTTP/JSON.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/passgate/passgate/internal/auth"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Authenticator is the part of auth.Service the API calls.
type Authenticator interface {
	Register(ctx context.Context, login, password string) (*auth.User, error)
	Login(ctx context.Context, login, password string) (*auth.User, error)
}

// RequestRecorder counts completed requests.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int)
}

// Options configures NewRouter.
type Options struct {
	Logger         *slog.Logger
	Recorder       RequestRecorder // optional
	AllowedOrigins []string
	MaxBodyBytes   int64 // zero means DefaultMaxBodyBytes
}

// NewRouter builds the API handler.
func NewRouter(svc Authenticator, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	h := &handlers{
		svc:          svc,
		maxBodyBytes: opts.MaxBodyBytes,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(opts.Logger, opts.Recorder))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})

	return r
}
