package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the parameter document read when no path is given.
const DefaultPath = "params.yml"

type Config struct {
	BinanceConfig      BinanceConfig      `yaml:"binance" json:"binance"`
	SamplingConfig     SamplingConfig     `yaml:"sampling" json:"sampling"`
	PoolConfig         PoolConfig         `yaml:"symbol_pool" json:"symbol_pool"`
	OverlayConfig      OverlayConfig      `yaml:"overlay" json:"overlay"`
	Thresholds         Thresholds         `yaml:"thresholds" json:"thresholds"`
	PlannerConfig      PlannerConfig      `yaml:"planner" json:"planner"`
	RunnerConfig       RunnerConfig       `yaml:"runner" json:"runner"`
	ScannerConfig      ScannerConfig      `yaml:"scanner" json:"scanner"`
	DatabaseConfig     DatabaseConfig     `yaml:"database" json:"database"`
	RedisConfig        RedisConfig        `yaml:"redis" json:"redis"`
	VaultConfig        VaultConfig        `yaml:"vault" json:"vault"`
	NotificationConfig NotificationConfig `yaml:"notification" json:"notification"`
	ServerConfig       ServerConfig       `yaml:"server" json:"server"`
	LoggingConfig      LoggingConfig      `yaml:"logging" json:"logging"`
}

// BinanceConfig holds exchange client settings. Credentials never leave the process.
type BinanceConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	TestNet           bool          `yaml:"testnet" json:"testnet"`
	APIKey            string        `yaml:"api_key" json:"-"`
	SecretKey         string        `yaml:"secret_key" json:"-"`
	RecvWindow        time.Duration `yaml:"recv_window" json:"recv_window"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffMin        time.Duration `yaml:"backoff_min" json:"backoff_min"`
	BackoffMax        time.Duration `yaml:"backoff_max" json:"backoff_max"`
	BackoffFactor     float64       `yaml:"backoff_factor" json:"backoff_factor"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
}

type SamplingConfig struct {
	Interval string `yaml:"main_interval" json:"main_interval"`
	Bars     int    `yaml:"bars" json:"bars"`
}

type PoolConfig struct {
	MaxSymbols      int           `yaml:"max_symbols" json:"max_symbols"`
	MinQuoteVolume  float64       `yaml:"min_quote_vol" json:"min_quote_vol"`
	MinAbsChangePct float64       `yaml:"min_abs_change_pct" json:"min_abs_change_pct"`
	ScanLimit       int           `yaml:"scan_limit" json:"scan_limit"`
	SnapshotDir     string        `yaml:"snapshot_dir" json:"snapshot_dir"`
	TickerTTL       time.Duration `yaml:"ticker_ttl" json:"ticker_ttl"`
}

type OverlayConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	HalfLifeHours float64 `yaml:"half_life_hours" json:"half_life_hours"`
	TopK          int     `yaml:"top_k" json:"top_k"`
	Limit         int     `yaml:"limit" json:"limit"`
	MinHeat       float64 `yaml:"min_heat" json:"min_heat"`
	Weight        float64 `yaml:"weight" json:"weight"`
}

type RunnerConfig struct {
	NotionalUSDT  float64       `yaml:"notional_usdt" json:"notional_usdt"`
	MakerOnly     bool          `yaml:"maker_only" json:"maker_only"`
	Cooldown      time.Duration `yaml:"cooldown" json:"cooldown"`
	MaxNewPerHour int           `yaml:"max_new_per_hour" json:"max_new_per_hour"`
}

type ScannerConfig struct {
	SymbolPause  time.Duration `yaml:"symbol_pause" json:"symbol_pause"`
	TopN         int           `yaml:"top_n" json:"top_n"`
	ErrorSamples int           `yaml:"error_samples" json:"error_samples"`
}

// DatabaseConfig selects the state store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"-"`
}

// RedisConfig holds Redis configuration for the daily pool and ticker caches
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Address    string `yaml:"address" json:"address"`
	Token      string `yaml:"token" json:"-"`
	MountPath  string `yaml:"mount_path" json:"mount_path"`
	SecretPath string `yaml:"secret_path" json:"secret_path"`
	TLSEnabled bool   `yaml:"tls_enabled" json:"tls_enabled"`
	CACert     string `yaml:"ca_cert" json:"ca_cert"`
}

type NotificationConfig struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	Discord  DiscordConfig  `yaml:"discord" json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	BotToken string `yaml:"bot_token" json:"-"`
	ChatID   string `yaml:"chat_id" json:"-"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"-"`
}

// ServerConfig holds the status API configuration
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	AllowedOrigins  string        `yaml:"allowed_origins" json:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`             // DEBUG, INFO, WARN, ERROR
	Output      string `yaml:"output" json:"output"`           // stdout, stderr, or file path
	JSONFormat  bool   `yaml:"json_format" json:"json_format"` // Output as JSON
	IncludeFile bool   `yaml:"include_file" json:"include_file"`
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads .env, the parameter document at path and environment overrides,
// then validates the result. A missing document yields the defaults.
func Load(path string) (*Config, error) {
	// .env is optional; the process environment is used as-is without it
	_ = godotenv.Load()

	if path == "" {
		path = getEnvOrDefault("ATS_PARAMS", DefaultPath)
	}

	cfg, err := loadFromFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Trading switches (TRADING_ENABLED, DRY_RUN, BLACKOUT_MINUTES, NOTIFY_MUTE) are
// read at decision time by the risk package and are not copied here.
func applyEnvOverrides(cfg *Config) {
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_FAPI_BASE", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.TestNet = getEnvOrDefault("BINANCE_TESTNET", strconv.FormatBool(cfg.BinanceConfig.TestNet)) == "true"
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_API_SECRET", cfg.BinanceConfig.SecretKey)
	if ms := getEnvIntOrDefault("BINANCE_BASE_DELAY_MS", 0); ms > 0 {
		cfg.BinanceConfig.BackoffMin = time.Duration(ms) * time.Millisecond
	}
	cfg.BinanceConfig.MaxAttempts = getEnvIntOrDefault("BINANCE_MAX_ATTEMPTS", cfg.BinanceConfig.MaxAttempts)
	cfg.BinanceConfig.RecvWindow = getEnvDurationOrDefault("BINANCE_RECV_WINDOW", cfg.BinanceConfig.RecvWindow)

	cfg.PoolConfig.SnapshotDir = getEnvOrDefault("ATS_DATA_DIR", cfg.PoolConfig.SnapshotDir)
	cfg.ScannerConfig.SymbolPause = getEnvDurationOrDefault("SCAN_SYMBOL_PAUSE", cfg.ScannerConfig.SymbolPause)
	cfg.RunnerConfig.NotionalUSDT = getEnvFloatOrDefault("RUNNER_NOTIONAL_USDT", cfg.RunnerConfig.NotionalUSDT)

	cfg.DatabaseConfig.Driver = getEnvOrDefault("DATABASE_DRIVER", cfg.DatabaseConfig.Driver)
	cfg.DatabaseConfig.DSN = getEnvOrDefault("DATABASE_DSN", cfg.DatabaseConfig.DSN)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", strconv.FormatBool(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", strconv.FormatBool(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)

	// Notification config
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID_PRIMARY", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	if cfg.NotificationConfig.Telegram.BotToken != "" && cfg.NotificationConfig.Telegram.ChatID != "" {
		cfg.NotificationConfig.Telegram.Enabled = true
	}
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)
	if cfg.NotificationConfig.Discord.WebhookURL != "" {
		cfg.NotificationConfig.Discord.Enabled = true
	}
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", strconv.FormatBool(cfg.NotificationConfig.Enabled)) == "true"

	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", strconv.FormatBool(cfg.LoggingConfig.JSONFormat)) == "true"
}

// loadFromFile decodes the document over the defaults so omitted keys keep
// their default value.
func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the default parameter document to filename.
func GenerateSampleConfig(filename string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
