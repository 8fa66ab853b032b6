package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8, cfg.Scheduler.PeriodsPerDay)
	assert.Equal(t, 5, cfg.Scheduler.DaysPerWeek)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Replacement.OfferTTL)
	assert.Equal(t, time.Friday, cfg.Decay.Weekday)
	assert.Equal(t, "scheduler_notifications", cfg.RabbitMQ.Queue)
	assert.Equal(t, "scheduler:cache:", cfg.Cache.Namespace)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PERIODS_PER_DAY", "6")
	t.Setenv("OFFER_TTL", "45m")
	t.Setenv("DECAY_WEEKDAY", "Saturday")
	t.Setenv("LOCK_BACKEND", "REDIS")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Scheduler.PeriodsPerDay)
	assert.Equal(t, 45*time.Minute, cfg.Replacement.OfferTTL)
	assert.Equal(t, time.Saturday, cfg.Decay.Weekday)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 3*time.Second, parseDuration("3s", time.Minute))
}
