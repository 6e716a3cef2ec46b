// Package config defines the top-level configuration for the auction
// service and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionlabs/auctiond/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by AUCTIOND_* environment
// variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Auction  AuctionConfig  `toml:"auction"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the
// settlement archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	AdminAPIKey string   `toml:"admin_api_key"`

	// RateLimit is the allowed requests per client per window; zero
	// disables rate limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// FeeTierConfig is one volume band of the default fee schedule. Threshold
// is a decimal string in the oracle's reference unit.
type FeeTierConfig struct {
	Numerator uint64 `toml:"numerator"`
	Threshold string `toml:"threshold"`
}

// ReferencePriceConfig fixes a static oracle conversion rate for one asset.
type ReferencePriceConfig struct {
	Asset       string `toml:"asset"`
	Numerator   uint64 `toml:"numerator"`
	Denominator uint64 `toml:"denominator"`
}

// AuctionConfig holds the auction house parameters: the escrow account,
// the default fee schedule and the static oracle table.
type AuctionConfig struct {
	HouseAddress    string                 `toml:"house_address"`
	FeeReceiver     string                 `toml:"fee_receiver"`
	FeeTiers        []FeeTierConfig        `toml:"fee_tiers"`
	ReferencePrices []ReferencePriceConfig `toml:"reference_prices"`
}

// ArchiveConfig controls the periodic export of settled auctions to blob
// storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// NotifyConfig holds operator notification channels. Only events listed in
// Events are forwarded; an empty list forwards everything.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration with TOML text (un)marshalling, e.g. "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration used when the TOML file
// leaves fields unset. The default fee schedule matches the launch
// parameters: 1% down to 0.2% across five volume bands.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "auctiond",
			User:          "auctiond",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled: false,
			Region:  "us-east-1",
			UseSSL:  true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       0,
			RateLimitWindow: duration{time.Minute},
		},
		Auction: AuctionConfig{
			FeeTiers: []FeeTierConfig{
				{Numerator: 10, Threshold: "1000000"},
				{Numerator: 8, Threshold: "10000000"},
				{Numerator: 6, Threshold: "100000000"},
				{Numerator: 4, Threshold: "1000000000"},
				{Numerator: 2, Threshold: "10000000000"},
			},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{"auction_created", "auction_settled"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "full" runs
// against Postgres and Redis, "memory" keeps all state in process (for
// development), "migrate" applies pending migrations and exits.
var validModes = map[string]bool{
	"full":    true,
	"memory":  true,
	"migrate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, memory, migrate)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	needsBackends := strings.ToLower(c.Mode) != "memory"

	if needsBackends {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
		errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
	}

	if c.Auction.HouseAddress == "" || !common.IsHexAddress(c.Auction.HouseAddress) {
		errs = append(errs, "auction: house_address must be a valid hex address")
	}
	if c.Auction.FeeReceiver != "" && !common.IsHexAddress(c.Auction.FeeReceiver) {
		errs = append(errs, "auction: fee_receiver must be a valid hex address")
	}
	if _, err := c.Auction.FeeParameters(); err != nil {
		errs = append(errs, "auction: "+err.Error())
	}
	for i, rp := range c.Auction.ReferencePrices {
		if !common.IsHexAddress(rp.Asset) {
			errs = append(errs, fmt.Sprintf("auction: reference_prices[%d]: asset must be a valid hex address", i))
		}
		if rp.Numerator == 0 || rp.Denominator == 0 {
			errs = append(errs, fmt.Sprintf("auction: reference_prices[%d]: numerator and denominator must be positive", i))
		}
	}

	if c.Archive.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "archive: s3 must be enabled when the archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// FeeParameters converts the configured default fee schedule into domain
// form. The schedule must carry exactly five tiers with strictly ascending
// thresholds; the fee-rate bound itself is enforced by the auction service.
func (a *AuctionConfig) FeeParameters() (domain.FeeParameters, error) {
	var params domain.FeeParameters
	if len(a.FeeTiers) != len(params.Tiers) {
		return params, fmt.Errorf("fee_tiers must carry exactly %d entries, got %d", len(params.Tiers), len(a.FeeTiers))
	}
	for i, t := range a.FeeTiers {
		threshold, ok := new(big.Int).SetString(t.Threshold, 10)
		if !ok || threshold.Sign() < 0 {
			return params, fmt.Errorf("fee_tiers[%d]: invalid threshold %q", i, t.Threshold)
		}
		params.Tiers[i] = domain.FeeTier{Numerator: t.Numerator, Threshold: threshold}
	}
	if a.FeeReceiver != "" {
		params.FeeReceiver = common.HexToAddress(a.FeeReceiver)
	}
	return params, nil
}
