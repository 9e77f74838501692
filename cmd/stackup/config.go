package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Stack    StackConfig    `mapstructure:"stack"`
	Build    BuildConfig    `mapstructure:"build"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// StackConfig holds stack selection and manifest configuration.
type StackConfig struct {
	// Name is the stack name, used as the prefix for every engine resource.
	Name string `mapstructure:"name"`

	// Manifest is the path to the stack manifest. When the file does not
	// exist the built-in default stack is used.
	Manifest string `mapstructure:"manifest"`

	// Variables are substituted into ${VAR} placeholders in service
	// environments.
	Variables map[string]string `mapstructure:"variables"`

	// ReadyTimeout bounds the database readiness probe.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// BuildConfig holds image build configuration.
type BuildConfig struct {
	// BaseImage overrides the default application base image.
	BaseImage string `mapstructure:"base_image"`

	// Dockerfile is the path to a build descriptor on disk. When the file
	// does not exist the built-in descriptor is rendered instead.
	Dockerfile string `mapstructure:"dockerfile"`

	// Dev sets the DEV build arg on every build-sourced service: dev
	// requirements are installed into the image. Takes precedence over a
	// DEV arg set in the manifest.
	Dev bool `mapstructure:"dev"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// DatabaseConfig holds run journal database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig holds status API server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("stack.name", "dev")
	v.SetDefault("stack.manifest", "stackup.yml")
	v.SetDefault("stack.ready_timeout", "60s")
	v.SetDefault("build.base_image", "")
	v.SetDefault("build.dockerfile", "Dockerfile")
	v.SetDefault("build.dev", true)
	v.SetDefault("docker.host", "")
	v.SetDefault("database.dsn", "./data/stackup.db")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8600)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("STACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
