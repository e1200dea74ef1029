package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/config"
	"healthwatch/internal/logger"
	"healthwatch/internal/monitor"
	"healthwatch/internal/retention"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DB.DSN = filepath.Join(t.TempDir(), "app.db")
	cfg.Addr = "127.0.0.1:0"
	return cfg
}

func TestNewRegistersJobs(t *testing.T) {
	a, err := New(testConfig(t), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	var names []string
	for _, st := range a.scheduler.Stats() {
		names = append(names, st.Name)
	}
	assert.ElementsMatch(t, []string{monitor.JobCollection, monitor.JobHealth, monitor.JobAlerts, retention.JobName}, names)
	assert.NotNil(t, a.Monitor())
}

func TestBuildNotifierSelectsConfiguredChannels(t *testing.T) {
	log := logger.NewNop()
	assert.Equal(t, 1, buildNotifier(config.NotifyConfig{}, log).Channels())

	cfg := config.NotifyConfig{
		Telegram: config.TelegramConfig{BotToken: "t", ChatID: "c"},
		SendGrid: config.SendGridConfig{APIKey: "k", From: "a@x", To: "b@x"},
		SMTP:     config.SMTPConfig{Host: "smtp.x", Port: 587, From: "a@x", To: "b@x, c@x"},
	}
	assert.Equal(t, 4, buildNotifier(cfg, log).Channels())
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestResourceSamplerDisabledWithoutSocket(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, resourceSampler(cfg, logger.NewNop()))
}

