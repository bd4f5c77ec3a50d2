package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"onlinelibrary/internal/invoice"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Lending    LendingConfig    `yaml:"lending"`
	Invoice    invoice.Envelope `yaml:"invoice"`
	Auth       AuthConfig       `yaml:"auth"`
	Membership MembershipConfig `yaml:"membership"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// ConnectionString renders the lib/pq keyword/value DSN.
func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// StorageConfig selects the store backing the services.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "memory"
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LendingConfig holds the ledger policy.
type LendingConfig struct {
	StockPolicy      string `yaml:"stock_policy"` // "strict" or "legacy"
	DefaultDays      int    `yaml:"default_days"`
	LateFeePerDay    string `yaml:"late_fee_per_day"`
	MaxTxRetries     int    `yaml:"max_tx_retries"`
	TxTimeoutSeconds int    `yaml:"tx_timeout_seconds"`
	Location         string `yaml:"location"` // IANA zone used for calendar days
}

// Rate parses LateFeePerDay. Validate has already rejected bad values.
func (l LendingConfig) Rate() decimal.Decimal {
	return decimal.RequireFromString(l.LateFeePerDay)
}

// TxTimeout is the store transaction timeout.
func (l LendingConfig) TxTimeout() time.Duration {
	return time.Duration(l.TxTimeoutSeconds) * time.Second
}

// LoadLocation resolves Location.
func (l LendingConfig) LoadLocation() (*time.Location, error) {
	return time.LoadLocation(l.Location)
}

// AuthConfig contains session token settings
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
	AdminUser       string `yaml:"admin_user"`
}

// TokenTTL is the session token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// MembershipConfig throttles register and login attempts.
type MembershipConfig struct {
	AttemptsPerMinute int `yaml:"attempts_per_minute"`
	Burst             int `yaml:"burst"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// Default returns a configuration that runs against the in-memory store.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "onlinelibrary",
			Database:     "onlinelibrary",
			SSLMode:      "disable",
			MaxOpenConns: 10,
		},
		Storage: StorageConfig{Driver: "memory"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Lending: LendingConfig{
			StockPolicy:      "strict",
			DefaultDays:      1,
			LateFeePerDay:    "0.5",
			MaxTxRetries:     3,
			TxTimeoutSeconds: 5,
			Location:         "UTC",
		},
		Invoice: invoice.DefaultEnvelope,
		Auth: AuthConfig{
			TokenTTLMinutes: 60,
			AdminUser:       "admin@email.com",
		},
		Membership: MembershipConfig{AttemptsPerMinute: 5, Burst: 5},
		Telemetry:  TelemetryConfig{ServiceName: "onlinelibrary", SampleRatio: 1},
	}
}

// Load reads configuration from a YAML file over the defaults. An empty
// path skips the file and applies only defaults and the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	envString("SERVER_HOST", &c.Server.Host)
	envInt("SERVER_PORT", &c.Server.Port)

	envString("DB_HOST", &c.Database.Host)
	envInt("DB_PORT", &c.Database.Port)
	envString("DB_USER", &c.Database.User)
	envString("DB_PASSWORD", &c.Database.Password)
	envString("DB_NAME", &c.Database.Database)
	envString("DB_SSL_MODE", &c.Database.SSLMode)

	envString("STORAGE_DRIVER", &c.Storage.Driver)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	envString("LENDING_STOCK_POLICY", &c.Lending.StockPolicy)
	envString("LENDING_LATE_FEE_PER_DAY", &c.Lending.LateFeePerDay)
	envInt("LENDING_MAX_TX_RETRIES", &c.Lending.MaxTxRetries)

	envString("JWT_SECRET", &c.Auth.JWTSecret)
	envString("ADMIN_USER", &c.Auth.AdminUser)

	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	switch c.Lending.StockPolicy {
	case "strict", "legacy":
	default:
		return fmt.Errorf("unknown stock policy: %q", c.Lending.StockPolicy)
	}
	if c.Lending.DefaultDays < 1 {
		return fmt.Errorf("lending default_days must be at least 1")
	}
	if c.Lending.MaxTxRetries < 1 {
		return fmt.Errorf("lending max_tx_retries must be at least 1")
	}
	rate, err := decimal.NewFromString(c.Lending.LateFeePerDay)
	if err != nil {
		return fmt.Errorf("invalid late_fee_per_day %q: %w", c.Lending.LateFeePerDay, err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("late_fee_per_day must not be negative")
	}
	if _, err := c.Lending.LoadLocation(); err != nil {
		return fmt.Errorf("invalid lending location: %w", err)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token_ttl_minutes must be positive")
	}

	if c.Membership.AttemptsPerMinute <= 0 || c.Membership.Burst <= 0 {
		return fmt.Errorf("membership rate limit must be positive")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be within [0, 1]")
	}
	return nil
}
