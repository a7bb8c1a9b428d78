package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.HistoryBackend)
	assert.Equal(t, 0.01, cfg.HouseEdge)
	assert.Equal(t, 3, cfg.KickletMaxRetries)
	assert.Equal(t, time.Second, cfg.KickletRetryBase)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.KickletEnabled())
}

func TestLoadRejectsMissingSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/arcade")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.HistoryBackend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HOUSE_EDGE", "0.02")
	t.Setenv("KICKLET_RETRY_BASE", "250ms")
	t.Setenv("KICKLET_API_TOKEN", "tok")
	t.Setenv("KICK_CHANNEL_ID", "chan")
	t.Setenv("MAX_BET", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.02, cfg.HouseEdge)
	assert.Equal(t, 250*time.Millisecond, cfg.KickletRetryBase)
	assert.Equal(t, int64(5000), cfg.MaxBet)
	assert.True(t, cfg.KickletEnabled())
}
