// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/passgate/passgate/pkg/errutil"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	t.Cleanup(func() { configFile = "" })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfigShow_RedactsPassword(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://passgate:hunter2@db:5432/passgate")

	out, err := runRoot(t, "config", "show")
	require.NoError(t, err)

	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "passgate:xxxxx@db:5432")

	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Contains(t, shown, "database")
	assert.Contains(t, shown, "hash")
}

func TestConfigShow_ReadsConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := writeConfigFile(t, "http:\n  addr: \":9999\"\n")

	out, err := runRoot(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, ":9999")
}

func TestConfigShow_RejectsSchemaViolations(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := writeConfigFile(t, "http:\n  port: 8000\n")

	_, err := runRoot(t, "--config", path, "config", "show")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_INVALID")
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	t.Run("memory backend needs no database", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "memory")
		t.Setenv("DATABASE_URL", "")

		out, err := runRoot(t, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is valid")
	})

	t.Run("postgres backend needs a url", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")

		_, err := runRoot(t, "config", "validate")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestConfigSchema_PrintsJSONSchema(t *testing.T) {
	out, err := runRoot(t, "config", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "Passgate Configuration", schema["title"])
}
