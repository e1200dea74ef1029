package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Collection.Interval)
	assert.Equal(t, 5*time.Second, cfg.Collection.Timeout)
	assert.True(t, cfg.Collection.InlineEvaluation)
	assert.Equal(t, "0 0 2 * * *", cfg.Retention.Cron)
	assert.Equal(t, 10*time.Minute, cfg.Lease.Retention.AtMost)
	assert.Equal(t, time.Minute, cfg.Lease.Retention.AtLeast)
	assert.Equal(t, int64(3000), cfg.Health.LatencyCriticalMs)
	assert.NotEmpty(t, cfg.InstanceID)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthwatch.yaml")
	content := []byte("addr: \":9999\"\ncollection:\n  workers: 3\nalerts:\n  interval: 2m\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("HW_RETENTION_DAYS", "7")
	t.Setenv("HW_INSTANCE_ID", "node-a")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 3, cfg.Collection.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.Interval)
	assert.Equal(t, 7, cfg.Retention.Days)
	assert.Equal(t, "node-a", cfg.InstanceID)
}

func TestLoadRejectsBadDriver(t *testing.T) {
	t.Setenv("HW_DB_DRIVER", "mysql")
	_, err := Load(New(), "")
	assert.Error(t, err)
}

func TestValidateLeaseWindow(t *testing.T) {
	cfg := Default()
	cfg.Lease.Health.AtLeast = 10 * time.Minute
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Health.LatencyCriticalMs = cfg.Health.LatencyWarningMs
	assert.Error(t, cfg.Validate())
}
