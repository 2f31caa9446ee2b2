package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Blob       BlobConfig       `yaml:"blob" mapstructure:"blob"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Runner     RunnerConfig     `yaml:"runner" mapstructure:"runner"`
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Workspace  WorkspaceConfig  `yaml:"workspace" mapstructure:"workspace"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BlobConfig configures versioned artifact storage.
type BlobConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // "minio" or "fs"
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	RootDir   string `yaml:"root_dir" mapstructure:"root_dir"`
}

// QueueConfig configures task delivery back to the step handler.
type QueueConfig struct {
	HandlerBaseURL   string  `yaml:"handler_base_url" mapstructure:"handler_base_url"`
	Secret           string  `yaml:"secret" mapstructure:"secret"`
	DefaultDelaySecs int     `yaml:"default_delay_secs" mapstructure:"default_delay_secs"`
	DispatchPerSec   float64 `yaml:"dispatch_per_sec" mapstructure:"dispatch_per_sec"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	ReviewModel string `yaml:"review_model" mapstructure:"review_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RunnerConfig configures subprocess execution.
type RunnerConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SimulationConfig configures simulation runs and batches.
type SimulationConfig struct {
	MaxSimultaneousRuns int    `yaml:"max_simultaneous_runs" mapstructure:"max_simultaneous_runs"`
	SplitDelaySecs      int    `yaml:"split_delay_secs" mapstructure:"split_delay_secs"`
	TemplateRepo        string `yaml:"template_repo" mapstructure:"template_repo"`
}

// WorkspaceConfig configures local working directories for per-entity work.
type WorkspaceConfig struct {
	RootDir string `yaml:"root_dir" mapstructure:"root_dir"`
}

// ServerConfig configures the HTTP task-handler server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ILUMINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ilumina.db")
	v.SetDefault("blob.backend", "fs")
	v.SetDefault("blob.bucket", "ilumina-artifacts")
	v.SetDefault("blob.root_dir", "/tmp/ilumina/blobs")
	v.SetDefault("queue.handler_base_url", "http://localhost:8080")
	v.SetDefault("queue.default_delay_secs", 10)
	v.SetDefault("queue.dispatch_per_sec", 5.0)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.review_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("runner.timeout_secs", 600)
	v.SetDefault("simulation.max_simultaneous_runs", 5)
	v.SetDefault("simulation.split_delay_secs", 30)
	v.SetDefault("simulation.template_repo", "https://github.com/svylabs-com/ilumina-scaffolded-template.git")
	v.SetDefault("workspace.root_dir", "/tmp/ilumina/workspaces")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
