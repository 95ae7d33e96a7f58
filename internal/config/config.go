package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Epicor       EpicorConfig       `mapstructure:"epicor"`
	Verification VerificationConfig `mapstructure:"verification"`
	Impact       ImpactConfig       `mapstructure:"impact"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// OpenAIConfig holds OpenAI API configuration for the billable stages
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EpicorConfig holds the ERP REST endpoint configuration
type EpicorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VerificationConfig controls the sender verification gate and vendor cache
type VerificationConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DomainMatching  bool          `mapstructure:"domain_matching"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ImpactConfig holds risk tier thresholds for BOM impact classification.
// Ratios compare per-unit cost increase against assembly selling price.
type ImpactConfig struct {
	CriticalRatio float64 `mapstructure:"critical_ratio"`
	HighRatio     float64 `mapstructure:"high_ratio"`
	MediumRatio   float64 `mapstructure:"medium_ratio"`
}

// LarkConfig holds reviewer notification configuration
type LarkConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	AppID        string `mapstructure:"app_id"`
	AppSecret    string `mapstructure:"app_secret"`
	ReviewChatID string `mapstructure:"review_chat_id"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("database.path", "data/pricewatch.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.temperature", 0.2)
	viper.SetDefault("openai.max_tokens", 2000)
	viper.SetDefault("openai.timeout", 60*time.Second)

	viper.SetDefault("epicor.timeout", 30*time.Second)

	viper.SetDefault("verification.enabled", true)
	viper.SetDefault("verification.domain_matching", true)
	viper.SetDefault("verification.cache_ttl", 24*time.Hour)
	viper.SetDefault("verification.refresh_interval", time.Hour)

	viper.SetDefault("impact.critical_ratio", 0.10)
	viper.SetDefault("impact.high_ratio", 0.05)
	viper.SetDefault("impact.medium_ratio", 0.01)

	viper.SetDefault("lark.enabled", false)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("epicor.base_url", "EPICOR_BASE_URL")
	viper.BindEnv("epicor.api_key", "EPICOR_API_KEY")
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("lark.review_chat_id", "LARK_REVIEW_CHAT_ID")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Epicor.BaseURL == "" {
		return fmt.Errorf("epicor.base_url is required")
	}
	if c.Verification.CacheTTL <= 0 {
		return fmt.Errorf("verification.cache_ttl must be positive")
	}
	if c.Impact.CriticalRatio <= c.Impact.HighRatio || c.Impact.HighRatio <= c.Impact.MediumRatio {
		return fmt.Errorf("impact ratios must be strictly decreasing: critical > high > medium")
	}
	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if c.Lark.ReviewChatID == "" {
			return fmt.Errorf("lark.review_chat_id is required when lark is enabled")
		}
	}
	return nil
}
