// Package configs loads the engine's environment-backed configuration
// bag. Process-level identity (signing key, executor contract
// addresses, notifier credentials) is secret-heavy and per-deployment,
// so .env via godotenv plus os.Getenv is the natural fit; a YAML
// overlay is kept only for the handful of compile-time tunables that
// benefit from being reviewable in source control rather than hidden
// in secrets.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Exit codes returned by cmd/main.go on startup failure.
const (
	ExitOK             = 0
	ExitMissingConfig  = 1
	ExitFatalSetup     = 2
)

// Default tunables. The three scan-interval defaults are overridable via
// the Tunables YAML overlay; MinProfitUSD and FlashloanUSDCAmount are
// overridable via their environment variables.
const (
	DefaultMinProfitUSD        = 5.0
	DefaultFlashloanUSDCAmount = "20000000000" // 20,000 USDC, 6 decimals
	DefaultScanIntervalMs      = 500
	DefaultHotScanIntervalSec  = 12
	DefaultWarmScanIntervalSec = 60
)

// Config is every environment-backed setting the engine reads at
// startup, matching the recognized option set: primary/fallback RPC
// endpoints, the signing key, the five executor contract addresses,
// optional notifier credentials, and profit/sizing tunables.
type Config struct {
	PrimaryRPC   string
	FallbackRPCs []string
	SniperRPC    string
	ScannerRPC   string

	PrivateKey string

	DexArbitrageurAddress     common.Address
	TriArbitrageurAddress     common.Address
	LiquidatorAddress         common.Address
	RadiantLiquidatorAddress  common.Address
	LodestarLiquidatorAddress common.Address

	TelegramBotToken string
	TelegramChatID   string
	DiscordWebhook   string

	MinProfitUSD        float64
	FlashloanUSDCAmount *big.Int

	ExecutionEnabled bool

	MetricsAddr string
	LogLevel    string
	SQLDSN      string

	Tunables Tunables
}

// Tunables holds the compile-time-default scan cadence knobs, optionally
// overridden by a reviewable YAML file (not secret, safe to commit).
type Tunables struct {
	ScanIntervalMs     int `yaml:"scanIntervalMs"`
	HotScanIntervalSec int `yaml:"hotScanIntervalSec"`
	WarmScanIntervalSec int `yaml:"warmScanIntervalSec"`
}

func defaultTunables() Tunables {
	return Tunables{
		ScanIntervalMs:      DefaultScanIntervalMs,
		HotScanIntervalSec:  DefaultHotScanIntervalSec,
		WarmScanIntervalSec: DefaultWarmScanIntervalSec,
	}
}

// Load reads .env (if present, errors ignored per godotenv convention
// for optional files), then the environment, then an optional YAML
// tunables overlay at tunablesPath (skipped silently if empty or
// missing), and validates required fields.
func Load(tunablesPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PrimaryRPC:   os.Getenv("PRIMARY_RPC"),
		FallbackRPCs: splitCSV(os.Getenv("FALLBACK_RPCS")),
		SniperRPC:    os.Getenv("SNIPER_RPC"),
		ScannerRPC:   os.Getenv("SCANNER_RPC"),
		PrivateKey:   os.Getenv("PRIVATE_KEY"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		DiscordWebhook:   os.Getenv("DISCORD_WEBHOOK"),

		Tunables: defaultTunables(),
	}

	for _, addr := range []struct {
		env string
		dst *common.Address
	}{
		{"DEX_ARBITRAGEUR_ADDRESS", &cfg.DexArbitrageurAddress},
		{"TRI_ARBITRAGEUR_ADDRESS", &cfg.TriArbitrageurAddress},
		{"LIQUIDATOR_ADDRESS", &cfg.LiquidatorAddress},
		{"RADIANT_LIQUIDATOR_ADDRESS", &cfg.RadiantLiquidatorAddress},
		{"LODESTAR_LIQUIDATOR_ADDRESS", &cfg.LodestarLiquidatorAddress},
	} {
		if v := os.Getenv(addr.env); v != "" {
			if !common.IsHexAddress(v) {
				return nil, fmt.Errorf("configs: %s is not a valid address: %q", addr.env, v)
			}
			*addr.dst = common.HexToAddress(v)
		}
	}

	cfg.MinProfitUSD = DefaultMinProfitUSD
	if v := os.Getenv("MIN_PROFIT_USD"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("configs: MIN_PROFIT_USD: %w", err)
		}
		cfg.MinProfitUSD = parsed
	}

	cfg.FlashloanUSDCAmount, _ = new(big.Int).SetString(DefaultFlashloanUSDCAmount, 10)
	if v := os.Getenv("FLASHLOAN_USDC_AMOUNT"); v != "" {
		amount, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("configs: FLASHLOAN_USDC_AMOUNT is not a valid integer: %q", v)
		}
		cfg.FlashloanUSDCAmount = amount
	}

	cfg.ExecutionEnabled = cfg.PrivateKey != ""

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.SQLDSN = os.Getenv("SQL_DSN")

	if tunablesPath != "" {
		if err := applyTunablesYAML(tunablesPath, &cfg.Tunables); err != nil {
			return nil, fmt.Errorf("configs: load tunables: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces the required-configuration surface: missing primary
// RPC, missing private key when execution is enabled, or no executor
// contract address configured at all are all fatal at startup.
func (c *Config) validate() error {
	if c.PrimaryRPC == "" {
		return errMissingConfig("PRIMARY_RPC is required")
	}
	if c.ExecutionEnabled && c.PrivateKey == "" {
		return errMissingConfig("PRIVATE_KEY is required when execution is enabled")
	}
	zero := common.Address{}
	if c.DexArbitrageurAddress == zero && c.TriArbitrageurAddress == zero &&
		c.LiquidatorAddress == zero && c.RadiantLiquidatorAddress == zero &&
		c.LodestarLiquidatorAddress == zero {
		return errMissingConfig("at least one executor contract address must be configured")
	}
	return nil
}

// ConfigError carries the exit code its failure should produce.
type ConfigError struct {
	ExitCode int
	msg      string
}

func (e *ConfigError) Error() string { return e.msg }

func errMissingConfig(msg string) *ConfigError {
	return &ConfigError{ExitCode: ExitMissingConfig, msg: "configs: " + msg}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyTunablesYAML(path string, t *Tunables) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read tunables file: %w", err)
	}
	return yaml.Unmarshal(data, t)
}
