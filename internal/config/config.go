package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	Rates    RatesConfig    `yaml:"rates"`
	State    StateConfig    `yaml:"state"`
	History  HistoryConfig  `yaml:"history"`
	Strategy StrategyConfig `yaml:"strategy"`
	Vault    VaultConfig    `yaml:"vault"`
	Backstop BackstopConfig `yaml:"backstop"`
	API      APIConfig      `yaml:"api"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

/// RatesConfig points at the conversion-rate service: REST for the startup
// snapshot, websocket for the live stream.
type RatesConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	WSURL          string        `yaml:"ws_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type StateConfig struct {
	SQLitePath       string        `yaml:"sqlite_path"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// HistoryConfig configures the optional postgres event log. An empty DSN
// disables it.
type HistoryConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	QueueSize   int    `yaml:"queue_size"`
}

// UnderlyingConfig accepts one asset for deposits. Amounts are decimal
// strings in base units; a zero or empty ceiling means no ceiling.
type UnderlyingConfig struct {
	Asset          string `yaml:"asset"`
	MinDeposit     string `yaml:"min_deposit"`
	DepositCeiling string `yaml:"deposit_ceiling"`
}

type StrategyConfig struct {
	Address         string             `yaml:"address"`
	Owner           string             `yaml:"owner"`
	Manager         string             `yaml:"manager"`
	SettlementAsset string             `yaml:"settlement_asset"`
	ReceiptAsset    string             `yaml:"receipt_asset"`
	DustFloor       string             `yaml:"dust_floor"`
	SwapSlippageBps int64              `yaml:"swap_slippage_bps"`
	Underlyings     []UnderlyingConfig `yaml:"underlyings"`
}

type VaultConfig struct {
	Address   string        `yaml:"address"`
	Owner     string        `yaml:"owner"`
	MinLockUp time.Duration `yaml:"min_lock_up"`
	MinShares string        `yaml:"min_shares"`
}

type BackstopConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Address   string        `yaml:"address"`
	Asset     string        `yaml:"asset"`
	MinLockUp time.Duration `yaml:"min_lock_up"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("VAULT_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chatID := os.Getenv("VAULT_TELEGRAM_CHAT_ID"); chatID != "" {
		cfg.Telegram.ChatID = chatID
	}
	if dsn := os.Getenv("VAULT_POSTGRES_DSN"); dsn != "" {
		cfg.History.PostgresDSN = dsn
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Rates.Timeout == 0 {
		cfg.Rates.Timeout = 10 * time.Second
	}
	if cfg.Rates.ReconnectDelay == 0 {
		cfg.Rates.ReconnectDelay = 3 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/lsd-vault-node.db"
	}
	if cfg.State.SnapshotInterval == 0 {
		cfg.State.SnapshotInterval = 30 * time.Second
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
	if cfg.Strategy.DustFloor == "" {
		cfg.Strategy.DustFloor = "0"
	}
	if cfg.Vault.MinLockUp == 0 {
		cfg.Vault.MinLockUp = 24 * time.Hour
	}
	if cfg.Vault.MinShares == "" {
		cfg.Vault.MinShares = "0"
	}
	if cfg.Backstop.MinLockUp == 0 {
		cfg.Backstop.MinLockUp = cfg.Vault.MinLockUp
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8587"
	}
}

func validate(cfg *Config) error {
	for _, field := range []struct{ name, value string }{
		{"strategy.address", cfg.Strategy.Address},
		{"strategy.owner", cfg.Strategy.Owner},
		{"strategy.settlement_asset", cfg.Strategy.SettlementAsset},
		{"strategy.receipt_asset", cfg.Strategy.ReceiptAsset},
		{"vault.address", cfg.Vault.Address},
		{"vault.owner", cfg.Vault.Owner},
	} {
		if field.value == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}
	if cfg.Backstop.Enabled && (cfg.Backstop.Address == "" || cfg.Backstop.Asset == "") {
		return errors.New("backstop.address and backstop.asset are required when enabled")
	}
	if cfg.Strategy.SwapSlippageBps < 0 || cfg.Strategy.SwapSlippageBps >= 10_000 {
		return errors.New("strategy.swap_slippage_bps must be in [0, 10000)")
	}
	for _, field := range []struct{ name, value string }{
		{"strategy.dust_floor", cfg.Strategy.DustFloor},
		{"vault.min_shares", cfg.Vault.MinShares},
	} {
		if _, err := ParseAmount(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	for _, u := range cfg.Strategy.Underlyings {
		if u.Asset == "" {
			return errors.New("strategy.underlyings entries require asset")
		}
		if u.MinDeposit != "" {
			if _, err := ParseAmount(u.MinDeposit); err != nil {
				return fmt.Errorf("underlying %s min_deposit: %w", u.Asset, err)
			}
		}
		if u.DepositCeiling != "" {
			if _, err := ParseAmount(u.DepositCeiling); err != nil {
				return fmt.Errorf("underlying %s deposit_ceiling: %w", u.Asset, err)
			}
		}
	}
	return nil
}

// ParseAmount reads a non-negative base-unit quantity from its decimal string
// form.
func ParseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}
