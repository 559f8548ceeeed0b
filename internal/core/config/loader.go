package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/status"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Wallet.Name == "" {
		cfg.Wallet.Name = "wallet"
	}
	if cfg.Wallet.ChainID == 0 {
		cfg.Wallet.ChainID = domain.ChainIDBase
	}
	if cfg.Wallet.Timeout == 0 {
		cfg.Wallet.Timeout = 2 * time.Minute
	}

	if cfg.Tracker.Windows == (status.Windows{}) {
		cfg.Tracker.Windows = status.DefaultWindows
	}
	if cfg.Tracker.Poll.Interval == 0 {
		cfg.Tracker.Poll.Interval = status.DefaultPollConfig.Interval
	}
	if cfg.Tracker.Poll.MaxAttempts == 0 {
		cfg.Tracker.Poll.MaxAttempts = status.DefaultPollConfig.MaxAttempts
	}

	for i := range cfg.Chain.ReadProviders {
		if cfg.Chain.ReadProviders[i].Name == "" {
			cfg.Chain.ReadProviders[i].Name = fmt.Sprintf("read-%d", i)
		}
	}
}

// Validate checks the settings needed to dispatch.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Wallet.URL == "" {
		errs = append(errs, errors.New("wallet.url is required"))
	}
	if c.Wallet.Account != "" && !common.IsHexAddress(c.Wallet.Account) {
		errs = append(errs, fmt.Errorf("wallet.account %q is not an address", c.Wallet.Account))
	}
	if c.Wallet.DisableBatch && c.Wallet.DisableLegacy {
		errs = append(errs, errors.New("wallet must allow at least one submission method"))
	}
	if len(c.Attribution.BuilderCode) > 255 {
		errs = append(errs, errors.New("attribution.builder_code exceeds 255 bytes"))
	}
	for _, p := range c.Chain.ReadProviders {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("chain.read_providers[%s].url is required", p.Name))
		}
	}
	return errors.Join(errs...)
}
