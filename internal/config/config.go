// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package config loads passgate configuration from defaults, an optional
// YAML file, the environment and command-line flags, in rising precedence.
package config

import (
	"errors"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/store"
	"github.com/passgate/passgate/internal/xdg"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the complete runtime configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	Hash     HashConfig     `koanf:"hash" json:"hash,omitempty" yaml:"hash"`
	HTTP     HTTPConfig     `koanf:"http" json:"http,omitempty" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
}

// DatabaseConfig configures the user store.
type DatabaseConfig struct {
	Backend         string        `koanf:"backend" json:"backend,omitempty" yaml:"backend" jsonschema:"enum=postgres,enum=memory,description=User store backend"`
	URL             string        `koanf:"url" json:"url,omitempty" yaml:"url" jsonschema:"description=PostgreSQL connection URL"`
	MaxConns        int32         `koanf:"max_conns" json:"max_conns,omitempty" yaml:"max_conns" jsonschema:"minimum=0"`
	ConnectAttempts int           `koanf:"connect_attempts" json:"connect_attempts,omitempty" yaml:"connect_attempts" jsonschema:"minimum=1"`
	ConnectDelay    time.Duration `koanf:"connect_delay" json:"connect_delay,omitempty" yaml:"connect_delay"`
}

// HashConfig configures password hashing.
type HashConfig struct {
	Scheme            string `koanf:"scheme" json:"scheme,omitempty" yaml:"scheme" jsonschema:"enum=argon2id,enum=argon2,enum=bcrypt"`
	Argon2TimeCost    uint32 `koanf:"argon2_time_cost" json:"argon2_time_cost,omitempty" yaml:"argon2_time_cost" jsonschema:"minimum=1"`
	Argon2MemoryCost  uint32 `koanf:"argon2_memory_cost" json:"argon2_memory_cost,omitempty" yaml:"argon2_memory_cost" jsonschema:"minimum=8,description=Memory cost in KiB"`
	Argon2Parallelism uint8  `koanf:"argon2_parallelism" json:"argon2_parallelism,omitempty" yaml:"argon2_parallelism" jsonschema:"minimum=1,maximum=255"`
	BcryptCost        int    `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" yaml:"bcrypt_cost" jsonschema:"minimum=4,maximum=31"`
	MaxConcurrent     int    `koanf:"max_concurrent" json:"max_concurrent,omitempty" yaml:"max_concurrent" jsonschema:"minimum=0,description=Concurrent hash computations; 0 means GOMAXPROCS"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr               string   `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" json:"cors_allowed_origins,omitempty" yaml:"cors_allowed_origins"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Backend:         BackendPostgres,
			ConnectAttempts: store.DefaultRetryPolicy.MaxAttempts,
			ConnectDelay:    store.DefaultRetryPolicy.Delay,
		},
		Hash: HashConfig{
			Scheme:            auth.SchemeArgon2id,
			Argon2TimeCost:    auth.DefaultArgon2Params.Time,
			Argon2MemoryCost:  auth.DefaultArgon2Params.Memory,
			Argon2Parallelism: auth.DefaultArgon2Params.Parallelism,
			BcryptCost:        12,
		},
		HTTP: HTTPConfig{
			Addr:               ":8000",
			CORSAllowedOrigins: []string{"http://localhost:3000", "http://frontend:3000"},
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
	}
}

func defaultsMap() map[string]any {
	d := Defaults()
	return map[string]any{
		"database.backend":          d.Database.Backend,
		"database.url":              d.Database.URL,
		"database.max_conns":        d.Database.MaxConns,
		"database.connect_attempts": d.Database.ConnectAttempts,
		"database.connect_delay":    d.Database.ConnectDelay,
		"hash.scheme":               d.Hash.Scheme,
		"hash.argon2_time_cost":     d.Hash.Argon2TimeCost,
		"hash.argon2_memory_cost":   d.Hash.Argon2MemoryCost,
		"hash.argon2_parallelism":   d.Hash.Argon2Parallelism,
		"hash.bcrypt_cost":          d.Hash.BcryptCost,
		"hash.max_concurrent":       d.Hash.MaxConcurrent,
		"http.addr":                 d.HTTP.Addr,
		"http.cors_allowed_origins": d.HTTP.CORSAllowedOrigins,
		"metrics.addr":              d.Metrics.Addr,
		"log.format":                d.Log.Format,
		"log.level":                 d.Log.Level,
	}
}

// envKeys maps recognised environment variables onto config keys.
var envKeys = map[string]string{
	"STORE_BACKEND":        "database.backend",
	"DATABASE_URL":         "database.url",
	"DB_MAX_CONNS":         "database.max_conns",
	"DB_CONNECT_ATTEMPTS":  "database.connect_attempts",
	"DB_CONNECT_DELAY":     "database.connect_delay",
	"HASH_SCHEME":          "hash.scheme",
	"ARGON2_TIME_COST":     "hash.argon2_time_cost",
	"ARGON2_MEMORY_COST":   "hash.argon2_memory_cost",
	"ARGON2_PARALLELISM":   "hash.argon2_parallelism",
	"BCRYPT_COST":          "hash.bcrypt_cost",
	"HASH_MAX_CONCURRENT":  "hash.max_concurrent",
	"HTTP_ADDR":            "http.addr",
	"CORS_ALLOWED_ORIGINS": "http.cors_allowed_origins",
	"METRICS_ADDR":         "metrics.addr",
	"LOG_FORMAT":           "log.format",
	"LOG_LEVEL":            "log.level",
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"store":        "database.backend",
	"database-url": "database.url",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"hash-scheme":  "hash.scheme",
}

// EnvKey returns the config key an environment variable sets, or "".
func EnvKey(name string) string {
	return envKeys[name]
}

// Load builds the effective configuration. configFile may be empty, in which
// case $XDG_CONFIG_HOME/passgate/config.yaml is used when it exists. flags may
// be nil; only flags the user set override lower layers.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	path, err := resolveConfigFile(configFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider("", ".", EnvKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf(&cfg)); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode config").Wrap(err)
	}
	cfg.HTTP.CORSAllowedOrigins = trimAll(cfg.HTTP.CORSAllowedOrigins)
	return &cfg, nil
}

// unmarshalConf decodes durations from Go duration strings and splits
// comma-separated strings into slices, so list values work from the
// environment as well as from YAML.
func unmarshalConf(out *Config) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           out,
			WeaklyTypedInput: true,
		},
	}
}

// resolveConfigFile returns the file to load, or "" for none. An explicit
// path must exist; the XDG default is optional.
func resolveConfigFile(configFile string) (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		//nolint:nilerr // no resolvable home means no default file
		return "", nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return invalid("database.backend", "backend must be 'postgres' or 'memory', got %q", c.Database.Backend)
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns", "max conns cannot be negative")
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return invalid("database", "%v", err)
	}

	switch auth.NormalizeScheme(c.Hash.Scheme) {
	case auth.SchemeArgon2id:
		if err := c.argon2Params().Validate(); err != nil {
			return invalid("hash", "%v", err)
		}
	case auth.SchemeBcrypt:
		if _, err := auth.NewBcryptHasher(c.Hash.BcryptCost); err != nil {
			return invalid("hash.bcrypt_cost", "%v", err)
		}
	default:
		return invalid("hash.scheme", "unsupported hash scheme %q", c.Hash.Scheme)
	}
	if c.Hash.MaxConcurrent < 0 {
		return invalid("hash.max_concurrent", "max concurrent hashes cannot be negative")
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

func (c *Config) argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:        c.Hash.Argon2TimeCost,
		Memory:      c.Hash.Argon2MemoryCost,
		Parallelism: c.Hash.Argon2Parallelism,
	}
}

// HasherConfig returns the hasher settings.
func (c *Config) HasherConfig() auth.HashConfig {
	return auth.HashConfig{
		Scheme:     c.Hash.Scheme,
		Argon2:     c.argon2Params(),
		BcryptCost: c.Hash.BcryptCost,
	}
}

// RetryPolicy returns the schema bootstrap retry policy.
func (c *Config) RetryPolicy() store.RetryPolicy {
	return store.RetryPolicy{
		MaxAttempts: c.Database.ConnectAttempts,
		Delay:       c.Database.ConnectDelay,
	}
}

// PoolConfig returns the connection pool settings.
func (c *Config) PoolConfig() store.PoolConfig {
	return store.PoolConfig{URL: c.Database.URL, MaxConns: c.Database.MaxConns}
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	return level, nil
}

// Redacted returns a copy safe to print: the database password is masked.
func (c *Config) Redacted() Config {
	out := *c
	out.HTTP.CORSAllowedOrigins = append([]string(nil), c.HTTP.CORSAllowedOrigins...)
	if u, err := url.Parse(c.Database.URL); err == nil && u.User != nil {
		out.Database.URL = u.Redacted()
	}
	return out
}
