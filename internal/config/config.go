package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Sage      SageConfig      `yaml:"sage" mapstructure:"sage"`
	Orgo      OrgoConfig      `yaml:"orgo" mapstructure:"orgo"`
	Jobs      JobsConfig      `yaml:"jobs" mapstructure:"jobs"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the job index database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for document extraction.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model" validate:"required"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
}

// SageConfig holds SAGE Connect API credentials.
type SageConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	AccountID   string `yaml:"account_id" mapstructure:"account_id"`
	LoginID     string `yaml:"login_id" mapstructure:"login_id"`
	AuthKey     string `yaml:"auth_key" mapstructure:"auth_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
}

// OrgoConfig holds the remote desktop automation service settings used for
// the ESP portal.
type OrgoConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	Key             string `yaml:"key" mapstructure:"key"`
	DesktopID       string `yaml:"desktop_id" mapstructure:"desktop_id"`
	PortalUser      string `yaml:"portal_user" mapstructure:"portal_user"`
	PortalPassword  string `yaml:"portal_password" mapstructure:"portal_password"`
	TaskTimeoutSecs int    `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs" validate:"gt=0"`
}

// JobsConfig configures on-disk job state and artifact storage.
type JobsConfig struct {
	StateDir    string `yaml:"state_dir" mapstructure:"state_dir" validate:"required"`
	ArtifactDir string `yaml:"artifact_dir" mapstructure:"artifact_dir" validate:"required"`
}

// PipelineConfig configures concurrency, rate limits, and retry behavior.
type PipelineConfig struct {
	MaxConcurrentExtractions int     `yaml:"max_concurrent_extractions" mapstructure:"max_concurrent_extractions" validate:"gt=0"`
	MaxConcurrentDetailCalls int     `yaml:"max_concurrent_detail_calls" mapstructure:"max_concurrent_detail_calls" validate:"gt=0"`
	ExtractionRatePerSec     float64 `yaml:"extraction_rate_per_sec" mapstructure:"extraction_rate_per_sec" validate:"gt=0"`
	SageRatePerSec           float64 `yaml:"sage_rate_per_sec" mapstructure:"sage_rate_per_sec" validate:"gt=0"`
	RetryMaxAttempts         int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts" validate:"gt=0"`
	RetryInitialBackoffMs    int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs        int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	CircuitFailureThreshold  int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs         int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ServerConfig configures the intake API server.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port" validate:"gt=0,lte=65535"`
	SharedSecret string   `yaml:"shared_secret" mapstructure:"shared_secret"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 16384)
	v.SetDefault("sage.base_url", "https://www.promoplace.com/ws/ws.dll/ConnectAPI")
	v.SetDefault("sage.timeout_secs", 45)
	v.SetDefault("orgo.base_url", "https://api.orgo.ai")
	v.SetDefault("orgo.task_timeout_secs", 300)
	v.SetDefault("jobs.state_dir", "jobs")
	v.SetDefault("jobs.artifact_dir", "artifacts")
	v.SetDefault("pipeline.max_concurrent_extractions", 3)
	v.SetDefault("pipeline.max_concurrent_detail_calls", 5)
	v.SetDefault("pipeline.extraction_rate_per_sec", 0.5)
	v.SetDefault("pipeline.sage_rate_per_sec", 4)
	v.SetDefault("pipeline.retry_max_attempts", 3)
	v.SetDefault("pipeline.retry_initial_backoff_ms", 500)
	v.SetDefault("pipeline.retry_max_backoff_ms", 30000)
	v.SetDefault("pipeline.circuit_failure_threshold", 5)
	v.SetDefault("pipeline.circuit_reset_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: validate")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
