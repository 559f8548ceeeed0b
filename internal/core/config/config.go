package config

import (
	"time"

	"github.com/vietddude/calldispatch/internal/dispatch"
	redisclient "github.com/vietddude/calldispatch/internal/infra/redis"
	"github.com/vietddude/calldispatch/internal/infra/storage/postgres"
	"github.com/vietddude/calldispatch/internal/status"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Wallet      WalletConfig       `yaml:"wallet"`
	Attribution dispatch.Config    `yaml:"attribution"`
	Tracker     status.Config      `yaml:"tracker"`
	Chain       ChainConfig        `yaml:"chain"`
	Redis       redisclient.Config `yaml:"redis"`
	Database    postgres.Config    `yaml:"database"`
	Journal     JournalConfig      `yaml:"journal"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WalletConfig holds the wallet JSON-RPC endpoint and session.
type WalletConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Account string        `yaml:"account"`
	ChainID uint64        `yaml:"chain_id"`
	Timeout time.Duration `yaml:"timeout"`

	// DisableBatch and DisableLegacy hide submission methods the wallet is
	// known not to offer.
	DisableBatch  bool `yaml:"disable_batch"`
	DisableLegacy bool `yaml:"disable_legacy"`
	Simulate      bool `yaml:"simulate"`
}

// ChainConfig holds read-only chain access used for receipts and simulation.
type ChainConfig struct {
	ReadProviders []ProviderConfig `yaml:"read_providers"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// JournalConfig holds dispatch journal settings.
type JournalConfig struct {
	Retention time.Duration `yaml:"retention"` // 0 = keep forever
}
