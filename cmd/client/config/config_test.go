package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("should load a file and apply defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("state_stream_url: ws://localhost:8545/ws\n"), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "ws://localhost:8545/ws", cfg.StateStreamURL)
		assert.Equal(t, "ws://localhost:8545/ws", cfg.RPCURL)
		assert.Equal(t, uint(DefaultBufferSize), cfg.BufferSize)
		assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
		assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	})

	t.Run("should let the environment override the file", func(t *testing.T) {
		t.Setenv("STATE_STREAM_URL", "ws://override:1/ws")
		t.Setenv("LOG_LEVEL", "debug")
		cfg, err := Parse([]byte("state_stream_url: ws://localhost:8545/ws\nrpc_url: http://localhost:8545\n"))
		require.NoError(t, err)
		assert.Equal(t, "ws://override:1/ws", cfg.StateStreamURL)
		assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("should require a stream url", func(t *testing.T) {
		_, err := Parse([]byte("buffer_size: 5\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "state_stream_url is required")
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("should fail on malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("state_stream_url: [unterminated\n"))
		require.Error(t, err)
	})
}
