// Package config loads the hook setup configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	solana "github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v3"

	"github.com/cpswap/hookcpi/accounts"
	"github.com/cpswap/hookcpi/cpi"
)

// DefaultSetupProgramID is the exchange program the setup instruction is
// addressed to when none is configured.
const DefaultSetupProgramID = "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	Hook   HookConfig    `yaml:"hook"`
	Rent   accounts.Rent `yaml:"rent"`
	Ledger LedgerConfig  `yaml:"ledger"`
	Server ServerConfig  `yaml:"server"`
	Log    LogConfig     `yaml:"log"`
}

// HookConfig configures the setup flow and the validator interface it calls.
type HookConfig struct {
	// SetupProgramID is the program id the setup runs under; it owns the
	// registries it creates.
	SetupProgramID string `yaml:"setup_program_id"`

	// InitializeDiscriminator overrides cpi.InitializeDiscriminator for
	// validators that renumber their interface. Must be 8 values in [0, 255].
	InitializeDiscriminator []int  `yaml:"initialize_discriminator"`
	InterfaceVersion        string `yaml:"interface_version"`

	ExtraAccounts []ExtraAccountConfig `yaml:"extra_accounts"`
}

// LedgerConfig selects the account store.
type LedgerConfig struct {
	// Path of the badger directory. Empty keeps the ledger in memory.
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	disc := make([]int, cpi.DiscriminatorSize)
	for i, b := range cpi.InitializeDiscriminator {
		disc[i] = int(b)
	}
	return &Config{
		Hook: HookConfig{
			SetupProgramID:          DefaultSetupProgramID,
			InitializeDiscriminator: disc,
			InterfaceVersion:        cpi.InterfaceVersion,
		},
		Rent: accounts.DefaultRent(),
		Server: ServerConfig{
			Addr: ":8402",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that is parsed lazily elsewhere.
func (c *Config) Validate() error {
	if _, err := c.Hook.SetupProgram(); err != nil {
		return err
	}
	if _, err := c.Hook.Discriminator(); err != nil {
		return err
	}
	if _, err := c.Hook.ExtraAccountMetas(); err != nil {
		return err
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionThreshold <= 0 {
		return fmt.Errorf("%w: rent parameters must be positive", ErrInvalidConfig)
	}
	return nil
}

// SetupProgram parses the setup program id.
func (h HookConfig) SetupProgram() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(h.SetupProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: setup_program_id: %v", ErrInvalidConfig, err)
	}
	return key, nil
}

// Discriminator returns the initialize discriminator.
func (h HookConfig) Discriminator() (cpi.Discriminator, error) {
	var d cpi.Discriminator
	if len(h.InitializeDiscriminator) != cpi.DiscriminatorSize {
		return d, fmt.Errorf("%w: initialize_discriminator needs %d bytes, got %d",
			ErrInvalidConfig, cpi.DiscriminatorSize, len(h.InitializeDiscriminator))
	}
	for i, v := range h.InitializeDiscriminator {
		if v < 0 || v > 255 {
			return d, fmt.Errorf("%w: initialize_discriminator[%d] = %d", ErrInvalidConfig, i, v)
		}
		d[i] = byte(v)
	}
	return d, nil
}
