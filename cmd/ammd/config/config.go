package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr = ":8545"
	DefaultBufferSize = 64
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// Config is the daemon configuration.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	Log        LogConfig      `yaml:"log"`
	Stream     StreamConfig   `yaml:"stream"`
	Pool       PoolConfig     `yaml:"pool"`
	Genesis    []Allocation   `yaml:"genesis"`
	Liquidity  *SeedLiquidity `yaml:"initial_liquidity"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StreamConfig tunes the state stream.
type StreamConfig struct {
	BufferSize     uint     `yaml:"buffer_size"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TokenConfig describes a token deployed into the in-memory ledger.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// PoolConfig names the two pooled assets and the share token.
type PoolConfig struct {
	// Address is optional; it is derived from the asset addresses when empty.
	Address string      `yaml:"address"`
	Asset0  TokenConfig `yaml:"asset0"`
	Asset1  TokenConfig `yaml:"asset1"`
	Shares  TokenConfig `yaml:"shares"`
}

// Allocation credits an account at startup. Amounts are decimal strings in base units.
type Allocation struct {
	Account     string `yaml:"account"`
	Asset0      string `yaml:"asset0"`
	Asset1      string `yaml:"asset1"`
	ApprovePool bool   `yaml:"approve_pool"`
}

// SeedLiquidity is an optional first deposit made at startup.
type SeedLiquidity struct {
	Provider string `yaml:"provider"`
	Amount0  string `yaml:"amount0"`
	Amount1  string `yaml:"amount1"`
}

// LoadConfig loads configuration from a YAML file, applies environment
// overrides and defaults, then validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig over an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
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

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		c.ListenAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}
	if len(c.Stream.AllowedOrigins) == 0 {
		c.Stream.AllowedOrigins = []string{"*"}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	tokens := map[string]TokenConfig{
		"pool.asset0": c.Pool.Asset0,
		"pool.asset1": c.Pool.Asset1,
		"pool.shares": c.Pool.Shares,
	}
	seen := make(map[common.Address]string, len(tokens))
	for field, tok := range tokens {
		if tok.Address == "" {
			return fmt.Errorf("config: %s.address is required", field)
		}
		addr, err := ParseAddress(tok.Address)
		if err != nil {
			return fmt.Errorf("config: %s.address: %w", field, err)
		}
		if other, dup := seen[addr]; dup {
			return fmt.Errorf("config: %s and %s share address %s", field, other, addr.Hex())
		}
		seen[addr] = field
	}
	if c.Pool.Address != "" {
		if _, err := ParseAddress(c.Pool.Address); err != nil {
			return fmt.Errorf("config: pool.address: %w", err)
		}
	}

	for i, alloc := range c.Genesis {
		if _, err := ParseAddress(alloc.Account); err != nil {
			return fmt.Errorf("config: genesis[%d].account: %w", i, err)
		}
		if _, err := ParseAmount(alloc.Asset0); err != nil {
			return fmt.Errorf("config: genesis[%d].asset0: %w", i, err)
		}
		if _, err := ParseAmount(alloc.Asset1); err != nil {
			return fmt.Errorf("config: genesis[%d].asset1: %w", i, err)
		}
	}

	if l := c.Liquidity; l != nil {
		if _, err := ParseAddress(l.Provider); err != nil {
			return fmt.Errorf("config: initial_liquidity.provider: %w", err)
		}
		if _, err := ParseAmount(l.Amount0); err != nil {
			return fmt.Errorf("config: initial_liquidity.amount0: %w", err)
		}
		if _, err := ParseAmount(l.Amount1); err != nil {
			return fmt.Errorf("config: initial_liquidity.amount1: %w", err)
		}
	}
	return nil
}

// ParseAddress parses a hex address, rejecting malformed input.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAmount parses a decimal base-unit amount. An empty string is zero.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	return v, nil
}
