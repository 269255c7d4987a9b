package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, 10*time.Second, cfg.HoldTTL)
	assert.Equal(t, 24*time.Hour, cfg.QueueTTL)
	assert.Equal(t, 48*time.Hour, cfg.OpenMatchTTL)
	assert.Equal(t, 72*time.Hour, cfg.ReportGrace)
	assert.Equal(t, time.Duration(0), cfg.ChallengeExpiry)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("HOLD_TTL", "30s")
	t.Setenv("CORS_ORIGINS", "http://localhost:3000,https://quadras.app")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 30*time.Second, cfg.HoldTTL)
	assert.Equal(t, []string{"http://localhost:3000", "https://quadras.app"}, cfg.CORSOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unparsable duration", key: "HOLD_TTL", value: "soon"},
		{name: "zero sweep interval", key: "SWEEP_INTERVAL", value: "0s"},
		{name: "negative expiry", key: "CHALLENGE_EXPIRY", value: "-1h"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "loud"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
