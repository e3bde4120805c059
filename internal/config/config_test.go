package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDeviceID(t *testing.T) {
	t.Setenv("SENTRY_DEVICE_ID", "")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadAppliesArgon2Overrides(t *testing.T) {
	t.Setenv("SENTRY_DEVICE_ID", "dev-1")
	t.Setenv("SENTRY_ARGON2_ITERATIONS", "5")
	t.Setenv("SENTRY_ARGON2_MEMORY_MIB", "128")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.EqualValues(t, 5, cfg.Argon2.Iterations)
	assert.EqualValues(t, 128, cfg.Argon2.MemoryMiB)
	assert.Equal(t, "dev-1", cfg.DeviceID)
}
