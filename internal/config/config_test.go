// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package config

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/httpapi"
	"github.com/passgate/passgate/pkg/errutil"
)

// isolateEnv clears every recognised variable and points XDG at an empty dir.
func isolateEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		if v, ok := os.LookupEnv(name); ok {
			t.Setenv(name, v) // restores on cleanup
			require.NoError(t, os.Unsetenv(name))
		}
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func serveFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("store", BackendPostgres, "")
	fs.String("database-url", "", "")
	fs.String("http-addr", ":8000", "")
	fs.String("metrics-addr", "127.0.0.1:9100", "")
	fs.String("log-format", "json", "")
	fs.String("log-level", "info", "")
	fs.String("hash-scheme", auth.SchemeArgon2id, "")
	fs.Bool("unmapped", false, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, Defaults(), *cfg)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, uint32(2), cfg.Hash.Argon2TimeCost)
	assert.Equal(t, uint32(102400), cfg.Hash.Argon2MemoryCost)
	assert.Equal(t, uint8(8), cfg.Hash.Argon2Parallelism)
	assert.Equal(t, 5, cfg.Database.ConnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectDelay)
}

func TestLoad_Environment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/auth")
	t.Setenv("HASH_SCHEME", "bcrypt")
	t.Setenv("ARGON2_TIME_COST", "3")
	t.Setenv("ARGON2_MEMORY_COST", "65536")
	t.Setenv("ARGON2_PARALLELISM", "4")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("DB_CONNECT_ATTEMPTS", "7")
	t.Setenv("DB_CONNECT_DELAY", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("UNRELATED_VAR", "ignored")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/auth", cfg.Database.URL)
	assert.Equal(t, "bcrypt", cfg.Hash.Scheme)
	assert.Equal(t, uint32(3), cfg.Hash.Argon2TimeCost)
	assert.Equal(t, uint32(65536), cfg.Hash.Argon2MemoryCost)
	assert.Equal(t, uint8(4), cfg.Hash.Argon2Parallelism)
	assert.Equal(t, 10, cfg.Hash.BcryptCost)
	assert.Equal(t, 7, cfg.Database.ConnectAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.ConnectDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSAllowedOrigins)
}

func TestLoad_CORSOrigins(t *testing.T) {
	tests := []struct {
		name string
		env  string
		file string
		want []string
	}{
		{
			name: "single origin from env",
			env:  "http://a.example",
			want: []string{"http://a.example"},
		},
		{
			name: "comma-separated env is split and trimmed",
			env:  "http://a.example,http://b.example , ,http://c.example",
			want: []string{"http://a.example", "http://b.example", "http://c.example"},
		},
		{
			name: "yaml list",
			file: "http:\n  cors_allowed_origins:\n    - http://a.example\n    - http://b.example\n",
			want: []string{"http://a.example", "http://b.example"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			if tt.env != "" {
				t.Setenv("CORS_ALLOWED_ORIGINS", tt.env)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}

			cfg, err := Load(path, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.HTTP.CORSAllowedOrigins)
		})
	}
}

func TestLoad_CORSOriginsFromEnvironmentAreAllowed(t *testing.T) {
	isolateEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	router := httpapi.NewRouter(nil, httpapi.Options{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
	})
	for _, origin := range []string{"http://a.example", "http://b.example"} {
		req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"), "origin %s", origin)
	}
}

func TestLoad_Precedence(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, `
http:
  addr: ":7000"
log:
  format: text
  level: debug
`)
	t.Setenv("HTTP_ADDR", ":7500")

	fs := serveFlags()
	require.NoError(t, fs.Parse([]string{"--log-level=warn"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, ":7500", cfg.HTTP.Addr, "env beats file")
	assert.Equal(t, "text", cfg.Log.Format, "file beats defaults")
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr, "unset flag does not override")
}

func TestLoad_DefaultXDGFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "passgate"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "passgate", "config.yaml"),
		[]byte("metrics:\n  addr: \"\"\n"), 0o600))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_FileErrors(t *testing.T) {
	isolateEnv(t)

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeFile(t, "http:\n  adress: \":1\"\n"), nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_INVALID")
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Load(writeFile(t, "hash:\n  argon2_time_cost: fast\n"), nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_INVALID")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Database.URL = "postgres://u:p@localhost/auth"
		return c
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "postgres without url", mutate: func(c *Config) { c.Database.URL = "" }},
		{name: "unknown backend", mutate: func(c *Config) { c.Database.Backend = "sqlite" }},
		{name: "negative max conns", mutate: func(c *Config) { c.Database.MaxConns = -1 }},
		{name: "zero connect attempts", mutate: func(c *Config) { c.Database.ConnectAttempts = 0 }},
		{name: "zero connect delay", mutate: func(c *Config) { c.Database.ConnectDelay = 0 }},
		{name: "unknown scheme", mutate: func(c *Config) { c.Hash.Scheme = "md5" }},
		{name: "zero argon2 time", mutate: func(c *Config) { c.Hash.Argon2TimeCost = 0 }},
		{name: "bcrypt cost out of range", mutate: func(c *Config) { c.Hash.Scheme = "bcrypt"; c.Hash.BcryptCost = 40 }},
		{name: "negative hash concurrency", mutate: func(c *Config) { c.Hash.MaxConcurrent = -2 }},
		{name: "empty http addr", mutate: func(c *Config) { c.HTTP.Addr = "" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}

	t.Run("memory backend needs no url", func(t *testing.T) {
		c := Defaults()
		c.Database.Backend = BackendMemory
		require.NoError(t, c.Validate())
	})
}

func TestConfig_Derived(t *testing.T) {
	c := Defaults()
	c.Database.URL = "postgres://u:p@localhost/auth"
	c.Database.MaxConns = 4

	hc := c.HasherConfig()
	assert.Equal(t, auth.DefaultArgon2Params, hc.Argon2)
	assert.Equal(t, 12, hc.BcryptCost)

	rp := c.RetryPolicy()
	assert.Equal(t, 5, rp.MaxAttempts)
	assert.Equal(t, 5*time.Second, rp.Delay)

	pc := c.PoolConfig()
	assert.Equal(t, int32(4), pc.MaxConns)

	level, err := c.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, "INFO", level.String())
}

func TestConfig_Redacted(t *testing.T) {
	c := Defaults()
	c.Database.URL = "postgres://passgate:s3cret@db:5432/auth"

	r := c.Redacted()
	assert.NotContains(t, r.Database.URL, "s3cret")
	assert.Contains(t, r.Database.URL, "passgate:xxxxx@db:5432")
	assert.Equal(t, "postgres://passgate:s3cret@db:5432/auth", c.Database.URL, "original untouched")
}
