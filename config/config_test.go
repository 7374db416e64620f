package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "forex-wallet-app", cfg.App.Name)
	require.NotEmpty(t, cfg.HTTP.Port)
	require.NotEmpty(t, cfg.DB.DatabaseURL)
	require.Positive(t, cfg.DB.PoolMax)

	// Retry tuning the order lifecycle depends on.
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, 2, cfg.Retry.BackoffBaseSeconds)
	require.Positive(t, cfg.Retry.Concurrency)
	require.Positive(t, cfg.Retry.SweepIntervalMin)
	require.Positive(t, cfg.Retry.StaleAfterMin)

	require.Equal(t, 5, cfg.Rates.TimeoutSeconds)
	require.Equal(t, 60, cfg.Rates.CacheTTLSeconds)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, 7, cfg.Retry.MaxAttempts)
	require.Equal(t, "9090", cfg.HTTP.Port)
}
