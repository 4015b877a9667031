// Package config loads mathquiz settings from defaults, an optional YAML
// file, a .env file and MATHQUIZ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/abhisek/mathquiz/internal/feedback"
	"github.com/abhisek/mathquiz/internal/llm"
)

// EnvPrefix prefixes every environment override, e.g. MATHQUIZ_SERVER_PORT.
const EnvPrefix = "MATHQUIZ"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App      AppConfig       `mapstructure:"app"`
	Server   ServerConfig    `mapstructure:"server"`
	Log      LogConfig       `mapstructure:"log"`
	LLM      llm.Config      `mapstructure:"llm"`
	Feedback feedback.Config `mapstructure:"feedback"`
	Store    StoreConfig     `mapstructure:"store"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// BodyLimit uses echo's size syntax, e.g. "200K".
	BodyLimit string `mapstructure:"body_limit"`
	// ProxyRateLimit is requests per minute per client on the LLM proxy.
	ProxyRateLimit  int           `mapstructure:"proxy_rate_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

func setDefaults(v *viper.Viper) {
	llmDefaults := llm.DefaultConfig()
	fbDefaults := feedback.DefaultConfig()

	v.SetDefault("app.name", "mathquiz")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", 3080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.body_limit", "200K")
	v.SetDefault("server.proxy_rate_limit", 30)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("llm.provider", llmDefaults.Provider)
	v.SetDefault("llm.timeout", llmDefaults.Timeout)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", llmDefaults.Anthropic.Model)
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", llmDefaults.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", llmDefaults.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", llmDefaults.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")

	v.SetDefault("feedback.model", fbDefaults.Model)
	v.SetDefault("feedback.mode", string(fbDefaults.Mode))
	v.SetDefault("feedback.max_tokens", fbDefaults.MaxTokens)
	v.SetDefault("feedback.temperature", fbDefaults.Temperature)
	v.SetDefault("feedback.timeout", fbDefaults.Timeout)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "")
	v.SetDefault("store.postgres_dsn", "")
}

// NewViper returns a viper instance with defaults and environment binding.
// path names an explicit config file; empty searches ./config.yaml.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. A missing ./config.yaml is fine; a missing
// explicit path is not. Variables in ./.env are loaded first and never
// override the real environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM = cfg.LLM.Discover()
	// Without an explicit provider and no key anywhere, run local only.
	if !providerExplicit(v) && cfg.LLM.Validate() != nil {
		cfg.LLM.Provider = llm.ProviderNone
	}
	cfg.Feedback.Mode = feedback.ParseMode(string(cfg.Feedback.Mode))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerExplicit reports whether llm.provider came from the environment
// or the config file rather than from its default. IsSet cannot tell them
// apart.
func providerExplicit(v *viper.Viper) bool {
	return os.Getenv(EnvPrefix+"_LLM_PROVIDER") != "" || v.InConfig("llm.provider")
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.ProxyRateLimit < 0 {
		return fmt.Errorf("server.proxy_rate_limit must not be negative, got %d", c.Server.ProxyRateLimit)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.LLM.Provider != llm.ProviderNone {
		if err := c.LLM.Validate(); err != nil {
			return err
		}
	}
	if c.Feedback.MaxTokens <= 0 {
		return fmt.Errorf("feedback.max_tokens must be positive, got %d", c.Feedback.MaxTokens)
	}
	if c.Feedback.Temperature < 0 || c.Feedback.Temperature > 2 {
		return fmt.Errorf("feedback.temperature must be in [0, 2], got %g", c.Feedback.Temperature)
	}
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("%s_STORE_POSTGRES_DSN is required for the postgres driver", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	return nil
}

// NewLogger builds the process logger from c. Output goes to w.
func NewLogger(c LogConfig, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	return log
}
