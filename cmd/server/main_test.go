package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fleetYAML = `
systems:
  - name: payments
    base_url: https://payments.internal
    type: API
    environment: PRODUCTION
    interval_seconds: 30
    rules:
      - name: slow
        type: LATENCY_MS
        severity: WARNING
        threshold: 800
        consecutive_violations: 3
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSeedThenUptime(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HW_DB_DSN", filepath.Join(dir, "cli.db"))
	t.Setenv("HW_LOG_LEVEL", "error")
	fleetPath := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(fleetPath, []byte(fleetYAML), 0o600))

	out, err := run(t, "seed", fleetPath)
	require.NoError(t, err)
	assert.Contains(t, out, "registered 1 systems and 1 rules, skipped 0 existing")

	out, err = run(t, "seed", fleetPath)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped 1 existing")

	out, err = run(t, "uptime", "payments", "--slo", "99.5")
	require.NoError(t, err)
	assert.Contains(t, out, "samples")
	assert.Contains(t, out, "objective")

	_, err = run(t, "uptime", "unknown")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("HW_DB_DSN", filepath.Join(t.TempDir(), "m.db"))
	t.Setenv("HW_LOG_LEVEL", "error")
	_, err := run(t, "migrate")
	assert.NoError(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("HW_DB_DRIVER", "oracle")
	_, err := run(t, "migrate")
	assert.Error(t, err)
}
