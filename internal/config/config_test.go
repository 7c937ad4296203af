package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SLA_SWEEP_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SLA.SweepInterval)
	assert.Equal(t, 4, cfg.SLA.SweepWorkers)
	assert.InDelta(t, 0.75, cfg.SLA.WarningRatio, 1e-9)
	assert.Equal(t, "Asia/Kolkata", cfg.SLA.ReportTimezone)
	assert.True(t, cfg.SLA.MarkTicketBreached)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Notification.SMTPAddr())
	assert.Equal(t, ":9091", cfg.App.MetricsAddr)
	assert.Equal(t, 5*time.Second, cfg.Notification.RetryBackoff)
	assert.Equal(t, time.Minute, cfg.Notification.RetryMaxBackoff)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_SWEEP_INTERVAL", "30s")
	t.Setenv("SLA_SWEEP_WORKERS", "0")
	t.Setenv("SLA_WARNING_RATIO", "0.5")
	t.Setenv("SMTP_HOST", "mail.local")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("METRICS_ADDR", "off")
	t.Setenv("NOTIFY_RETRY_BACKOFF", "2m")
	t.Setenv("NOTIFY_RETRY_MAX_BACKOFF", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SLA.SweepInterval)
	assert.Equal(t, 1, cfg.SLA.SweepWorkers)
	assert.InDelta(t, 0.5, cfg.SLA.WarningRatio, 1e-9)
	assert.Equal(t, "mail.local:2525", cfg.Notification.SMTPAddr())
	assert.Empty(t, cfg.App.MetricsAddr)
	assert.Equal(t, 2*time.Minute, cfg.Notification.RetryMaxBackoff)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("warning ratio", func(t *testing.T) {
		t.Setenv("SLA_WARNING_RATIO", "1.5")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("timezone", func(t *testing.T) {
		t.Setenv("SLA_REPORT_TIMEZONE", "Mars/Olympus")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("sweep interval", func(t *testing.T) {
		t.Setenv("SLA_SWEEP_INTERVAL", "-1m")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestGetEnvAsDurationFallsBack(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("SOME_DURATION", time.Second))
}
