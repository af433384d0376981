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

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 5*time.Second, cfg.StableMatch.AttemptTimeout)
	assert.Equal(t, 3, cfg.StableMatch.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.StableMatch.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.StableMatch.MaxRetryDelay)
	assert.Equal(t, 5, cfg.Assignment.DefaultBatchSize)
	assert.Equal(t, 1, cfg.Assignment.CapacityPerCourse)
	assert.Empty(t, cfg.StableMatch.URL)
	assert.Equal(t, 24*time.Hour, cfg.Export.LinkTTL)
	assert.Equal(t, cfg.JWT.Secret, cfg.Export.LinkSecret)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STABLE_MATCH_URL", "http://engine:8081/")
	t.Setenv("STABLE_MATCH_TIMEOUT", "750ms")
	t.Setenv("STABLE_MATCH_MAX_ATTEMPTS", "0")
	t.Setenv("ASSIGNMENT_BATCH_CONCURRENCY", "4")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://engine:8081", cfg.StableMatch.URL)
	assert.Equal(t, 750*time.Millisecond, cfg.StableMatch.AttemptTimeout)
	assert.Equal(t, 3, cfg.StableMatch.MaxAttempts)
	assert.Equal(t, 4, cfg.Assignment.BatchConcurrency)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second, parseDuration("", time.Second))
	assert.Equal(t, time.Second, parseDuration("bogus", time.Second))
	assert.Equal(t, time.Second, parseDuration("-5s", time.Second))
	assert.Equal(t, 3*time.Minute, parseDuration("3m", time.Second))
}
