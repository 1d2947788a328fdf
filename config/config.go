package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	NodeEnv     string `mapstructure:"NODE_ENV"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	CORSOrigin  string `mapstructure:"CORS_ORIGIN"`

	JWTSecret    string `mapstructure:"JWT_SECRET"`
	JWTExpiresIn string `mapstructure:"JWT_EXPIRES_IN"`
	NonceTTL     string `mapstructure:"NONCE_TTL"`

	Chain ChainConfig `mapstructure:",squash"`

	OutboxReplaySchedule     string `mapstructure:"OUTBOX_REPLAY_SCHEDULE"`
	MembershipExpirySchedule string `mapstructure:"MEMBERSHIP_EXPIRY_SCHEDULE"`
	OutboxMaxAttempts        int    `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxWorkers            int    `mapstructure:"OUTBOX_WORKERS"`
}

// ChainConfig is the subset of configuration the blockchain gateway needs.
type ChainConfig struct {
	RPCURL       string `mapstructure:"BLOCKCHAIN_RPC_URL"`
	ChainID      int64  `mapstructure:"BLOCKCHAIN_CHAIN_ID"`
	NetworkName  string `mapstructure:"BLOCKCHAIN_NETWORK_NAME"`
	PrivateKey   string `mapstructure:"PRIVATE_KEY"`
	PollInterval string `mapstructure:"EVENT_POLL_INTERVAL"`

	TipJarAddress               string `mapstructure:"TIPJAR_CONTRACT_ADDRESS"`
	MembershipNFTAddress        string `mapstructure:"MEMBERSHIP_NFT_CONTRACT_ADDRESS"`
	GatedContentRegistryAddress string `mapstructure:"GATED_CONTENT_REGISTRY_CONTRACT_ADDRESS"`
	FanRewardsAddress           string `mapstructure:"FAN_REWARDS_CONTRACT_ADDRESS"`
}

var defaults = map[string]interface{}{
	"NODE_ENV":                   "development",
	"PORT":                       "3000",
	"CORS_ORIGIN":                "http://localhost:3000",
	"JWT_EXPIRES_IN":             "7d",
	"NONCE_TTL":                  "5m",
	"BLOCKCHAIN_RPC_URL":         "https://sepolia.base.org",
	"BLOCKCHAIN_CHAIN_ID":        84532,
	"BLOCKCHAIN_NETWORK_NAME":    "Base Sepolia",
	"EVENT_POLL_INTERVAL":        "4s",
	"OUTBOX_REPLAY_SCHEDULE":     "@every 1m",
	"MEMBERSHIP_EXPIRY_SCHEDULE": "@every 5m",
	"OUTBOX_MAX_ATTEMPTS":        10,
	"OUTBOX_WORKERS":             2,
}

// keys without a default still have to be bound so AutomaticEnv picks them up on Unmarshal.
var boundKeys = []string{
	"DATABASE_URL",
	"REDIS_URL",
	"JWT_SECRET",
	"PRIVATE_KEY",
	"TIPJAR_CONTRACT_ADDRESS",
	"MEMBERSHIP_NFT_CONTRACT_ADDRESS",
	"GATED_CONTENT_REGISTRY_CONTRACT_ADDRESS",
	"FAN_REWARDS_CONTRACT_ADDRESS",
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}
	if _, err := ParseDuration(c.JWTExpiresIn); err != nil {
		return fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}
	if _, err := ParseDuration(c.NonceTTL); err != nil {
		return fmt.Errorf("NONCE_TTL: %w", err)
	}
	if _, err := ParseDuration(c.Chain.PollInterval); err != nil {
		return fmt.Errorf("EVENT_POLL_INTERVAL: %w", err)
	}
	if c.OutboxMaxAttempts <= 0 {
		return errors.New("OUTBOX_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.NodeEnv, "production")
}

// TokenSecret falls back to a development secret outside production.
func (c *Config) TokenSecret() []byte {
	if c.JWTSecret == "" {
		return []byte("dev-secret-do-not-use-in-prod")
	}
	return []byte(c.JWTSecret)
}

func (c *Config) TokenTTL() time.Duration {
	d, _ := ParseDuration(c.JWTExpiresIn)
	return d
}

func (c *Config) NonceLifetime() time.Duration {
	d, _ := ParseDuration(c.NonceTTL)
	return d
}

// CORSOrigins splits the comma-separated CORS_ORIGIN value.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c ChainConfig) EventPollInterval() time.Duration {
	d, _ := ParseDuration(c.PollInterval)
	return d
}

// ParseDuration accepts Go durations plus a whole-day suffix such as "7d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
