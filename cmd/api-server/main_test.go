package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Env:             "test",
		HTTPPort:        "0",
		Version:         "test",
		ShutdownTimeout: time.Second,
		Overflow:        allocation.OverflowElastic,
	}
}

func TestRunReturnsStartupErrors(t *testing.T) {
	t.Run("missing roster file", func(t *testing.T) {
		cfg := testConfig()
		cfg.RosterFile = filepath.Join(t.TempDir(), "missing.yaml")

		err := run(cfg, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load roster")
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := testConfig()
		cfg.RedisAddr = "127.0.0.1:1"

		err := run(cfg, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect redis")
	})
}

func TestLoadRosterDefaultsToEmbedded(t *testing.T) {
	ros, err := loadRoster("")
	require.NoError(t, err)
	assert.NotEmpty(t, ros.Doctors)
}
