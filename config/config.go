package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the deployment surface of the settlement service.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	AuthToken     string `toml:"AuthToken"`
	Environment   string `toml:"Environment"`
	RateLimitRPS  int    `toml:"RateLimitRPS"`

	Engine EngineConfig `toml:"engine"`
	Lender LenderConfig `toml:"lender"`
	Fees   FeesConfig   `toml:"fees"`

	// Venues lists the swap venue addresses registered at startup. Each
	// still has to be approved as a trade target through the registry.
	Venues []string `toml:"Venues"`
}

// EngineConfig identifies the engine and its governance anchors.
type EngineConfig struct {
	Address  string `toml:"Address"`
	Admin    string `toml:"Admin"`
	Treasury string `toml:"Treasury"`
}

// LenderConfig identifies the loan provider and its premium rate.
type LenderConfig struct {
	Address    string `toml:"Address"`
	PremiumBps uint32 `toml:"PremiumBps"`
}

// FeesConfig is the initial protocol fee policy.
type FeesConfig struct {
	Enabled   bool   `toml:"Enabled"`
	FeeBps    uint32 `toml:"FeeBps"`
	Recipient string `toml:"Recipient"`
}

// Default returns the baseline configuration applied before file values.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8645",
		DataDir:       "./flasharb-data",
		Environment:   "local",
		RateLimitRPS:  25,
	}
}

// Load reads the configuration from the given path, layering file values over
// the defaults and validating the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the identities the engine refuses to run without: lender,
// initial admin, and initial treasury must all be valid non-zero addresses.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("config: RateLimitRPS must be positive")
	}
	if _, err := requireAddress("engine.Address", c.Engine.Address); err != nil {
		return err
	}
	if _, err := requireAddress("engine.Admin", c.Engine.Admin); err != nil {
		return err
	}
	if _, err := requireAddress("engine.Treasury", c.Engine.Treasury); err != nil {
		return err
	}
	if _, err := requireAddress("lender.Address", c.Lender.Address); err != nil {
		return err
	}
	if c.Lender.PremiumBps > 10_000 {
		return fmt.Errorf("config: lender.PremiumBps out of range")
	}
	for i, target := range c.Venues {
		if _, err := requireAddress(fmt.Sprintf("Venues[%d]", i), target); err != nil {
			return err
		}
	}
	if c.Fees.Enabled {
		if c.Fees.FeeBps == 0 || c.Fees.FeeBps > 10_000 {
			return fmt.Errorf("config: fees.FeeBps out of range")
		}
		if _, err := requireAddress("fees.Recipient", c.Fees.Recipient); err != nil {
			return err
		}
	}
	return nil
}

// EngineAddress returns the parsed engine identity.
func (c *Config) EngineAddress() common.Address { return common.HexToAddress(c.Engine.Address) }

// AdminAddress returns the parsed initial admin identity.
func (c *Config) AdminAddress() common.Address { return common.HexToAddress(c.Engine.Admin) }

// TreasuryAddress returns the parsed initial treasury.
func (c *Config) TreasuryAddress() common.Address { return common.HexToAddress(c.Engine.Treasury) }

// LenderAddress returns the parsed lender identity.
func (c *Config) LenderAddress() common.Address { return common.HexToAddress(c.Lender.Address) }

// FeeRecipientAddress returns the parsed fee recipient, zero when the fee is
// disabled.
func (c *Config) FeeRecipientAddress() common.Address {
	if !c.Fees.Enabled {
		return common.Address{}
	}
	return common.HexToAddress(c.Fees.Recipient)
}

// ParseVenueAddress parses a configured venue entry into an address.
func ParseVenueAddress(value string) (common.Address, error) {
	return requireAddress("Venues entry", value)
}

func requireAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("config: %s must be a hex address", field)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("config: %s must not be the zero address", field)
	}
	return addr, nil
}
