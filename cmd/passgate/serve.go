// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/memory"
	"github.com/passgate/passgate/internal/auth/postgres"
	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/httpapi"
	"github.com/passgate/passgate/internal/logging"
	"github.com/passgate/passgate/internal/observability"
	"github.com/passgate/passgate/internal/store"
	"github.com/passgate/passgate/pkg/errutil"
)

const (
	serviceName     = "passgate"
	shutdownTimeout = 10 * time.Second
	readinessPing   = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the registration and login API. With the postgres backend the
schema is migrated before the listener opens, retrying while the database
is unreachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("store", defaults.Database.Backend, "user store backend (postgres or memory)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (env: DATABASE_URL)")
	cmd.Flags().String("http-addr", defaults.HTTP.Addr, "API listen address")
	cmd.Flags().String("metrics-addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("hash-scheme", defaults.Hash.Scheme, "password hash scheme for new users (argon2id or bcrypt)")

	return cmd
}

// runServeWithDeps runs the server until ctx is done, a signal arrives or a
// server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.SchemaEnsurer == nil {
		deps.SchemaEnsurer = store.EnsureSchema
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, cfg store.PoolConfig) (Pool, error) {
			return store.NewPool(ctx, cfg)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if deps.HTTPServerFactory == nil {
		deps.HTTPServerFactory = func(addr string, handler http.Handler, logger *slog.Logger) HTTPServer {
			return httpapi.NewServer(addr, handler, logger)
		}
	}
	if deps.LogWriter == nil {
		deps.LogWriter = os.Stderr
	}

	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogWriter)
	slog.SetDefault(logger)

	logger.Info("starting passgate",
		"store", cfg.Database.Backend,
		"http_addr", cfg.HTTP.Addr,
		"hash_scheme", auth.NormalizeScheme(cfg.Hash.Scheme),
	)

	hasher, err := auth.NewHasher(cfg.HasherConfig())
	if err != nil {
		return oops.Wrapf(err, "failed to create password hasher")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users, ready, closeStore, err := openUserStore(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	failures := make(chan error, 2)

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready, logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Wrapf(err, "failed to start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, failures, "observability", logger)
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	svcCfg := auth.ServiceConfig{Logger: logger, MaxConcurrentHashes: cfg.Hash.MaxConcurrent}
	routerOpts := httpapi.Options{Logger: logger, AllowedOrigins: cfg.HTTP.CORSAllowedOrigins}
	if metrics != nil {
		svcCfg.Recorder = metrics
		routerOpts.Recorder = metrics
	}

	svc, err := auth.NewService(users, hasher, svcCfg)
	if err != nil {
		stopServers(logger, obsServer, nil)
		return oops.Wrapf(err, "failed to create auth service")
	}

	apiServer := deps.HTTPServerFactory(cfg.HTTP.Addr, httpapi.NewRouter(svc, routerOpts), logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServers(logger, obsServer, nil)
		return oops.Wrapf(err, "failed to start http server")
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, failures, "http", logger)

	cmd.Println("Passgate listening on " + apiServer.Addr())
	logger.Info("passgate ready", "http_addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down")

	stopServers(logger, obsServer, apiServer)

	select {
	case err := <-failures:
		return oops.Wrapf(err, "server failed")
	default:
	}
	logger.Info("shutdown complete")
	return nil
}

// openUserStore returns the configured repository, its readiness check and a
// release func.
func openUserStore(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (auth.UserRepository, observability.ReadinessChecker, func(), error) {
	if cfg.Database.Backend == config.BackendMemory {
		logger.Warn("using in-memory user store; users are lost on restart")
		return memory.NewUserRepository(), func() bool { return true }, func() {}, nil
	}

	if err := deps.SchemaEnsurer(ctx, cfg.Database.URL, cfg.RetryPolicy(), logger); err != nil {
		return nil, nil, nil, oops.Wrapf(err, "failed to prepare database schema")
	}

	pool, err := deps.PoolFactory(ctx, cfg.PoolConfig())
	if err != nil {
		return nil, nil, nil, oops.Wrapf(err, "failed to connect to database")
	}
	logger.Info("connected to database")

	ready := func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), readinessPing)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logger.Warn("readiness check failed", errutil.Attrs(err)...)
			return false
		}
		return true
	}
	return postgres.NewUserRepository(pool), ready, pool.Close, nil
}

// stopServer is satisfied by both server kinds.
type stopServer interface {
	Stop(ctx context.Context) error
}

// stopServers drains the API first so in-flight requests still get metrics.
func stopServers(logger *slog.Logger, obs ObservabilityServer, api HTTPServer) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	servers := []struct {
		name string
		srv  stopServer
	}{
		{"http", api},
		{"observability", obs},
	}
	for _, s := range servers {
		if s.srv == nil {
			continue
		}
		if err := s.srv.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping server", append([]any{"server", s.name}, errutil.Attrs(err)...)...)
		}
	}
}

// monitorServerErrors cancels the run when a server fails after starting and
// forwards the failure. It exits when an error arrives, the channel closes or
// ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, failures chan<- error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", append([]any{"server", serverName}, errutil.Attrs(err)...)...)
			select {
			case failures <- oops.With("server", serverName).Wrap(err):
			default:
			}
			cancel()
		}
	case <-ctx.Done():
	}
}
