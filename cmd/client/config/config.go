package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBufferSize = 100
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

// ClientConfig configures the stream client and the console.
type ClientConfig struct {
	// StateStreamURL is the WebSocket endpoint of the pool server, e.g. ws://localhost:8545/ws.
	StateStreamURL string `yaml:"state_stream_url"`
	// RPCURL is used by the console for pool calls. Defaults to StateStreamURL.
	RPCURL     string    `yaml:"rpc_url"`
	BufferSize uint      `yaml:"buffer_size"`
	Log        LogConfig `yaml:"log"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a YAML file, applies environment
// overrides and defaults, then validates it.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig over an in-memory document.
func Parse(data []byte) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) applyEnvOverrides() {
	if url := os.Getenv("STATE_STREAM_URL"); url != "" {
		c.StateStreamURL = url
	}
	if url := os.Getenv("RPC_URL"); url != "" {
		c.RPCURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func (c *ClientConfig) applyDefaults() {
	if c.RPCURL == "" {
		c.RPCURL = c.StateStreamURL
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate validates the configuration.
func (c *ClientConfig) Validate() error {
	if c.StateStreamURL == "" {
		return errors.New("config: state_stream_url is required")
	}
	return nil
}
