// Package config loads RouteMesh settings from defaults, an optional YAML
// file and ROUTEMESH_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/routemesh/logging"
)

// EnvPrefix prefixes every environment override (llm.model -> ROUTEMESH_LLM_MODEL).
const EnvPrefix = "ROUTEMESH"

// ConfigEnv names a config file that replaces the default search path.
const ConfigEnv = "ROUTEMESH_CONFIG"

// Config holds application configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Pizza      PizzaConfig      `mapstructure:"pizza"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Log        LogConfig        `mapstructure:"log"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // openai, anthropic or gemini
	Model       string  `mapstructure:"model"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
}

// MarketDataConfig configures the stock price API client.
type MarketDataConfig struct {
	BaseURL   string      `mapstructure:"base_url"`
	APIKeyEnv string      `mapstructure:"api_key_env"`
	APIKey    string      `mapstructure:"api_key"`
	Retry     RetryConfig `mapstructure:"retry"`
}

// RetryConfig bounds retries of transient market data failures.
type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// EngineConfig tunes turn processing.
type EngineConfig struct {
	StrictRouting bool `mapstructure:"strict_routing"`
	MaxSteps      int  `mapstructure:"max_steps"`
	AutoAccept    bool `mapstructure:"auto_accept"`
}

// PizzaConfig sets the simulated pizza latencies.
type PizzaConfig struct {
	FindDelay  time.Duration `mapstructure:"find_delay"`
	OrderDelay time.Duration `mapstructure:"order_delay"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Driver string `mapstructure:"driver"` // memory or sqlite
	Path   string `mapstructure:"path"`
}

// NATSConfig enables publishing UI events to NATS. An empty URL disables it.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("marketdata.base_url", "https://api.financialdatasets.ai")
	v.SetDefault("marketdata.api_key_env", "FINANCIAL_DATASETS_API_KEY")
	v.SetDefault("marketdata.api_key", "")
	v.SetDefault("marketdata.retry.max_retries", 3)
	v.SetDefault("marketdata.retry.initial_interval", "500ms")
	v.SetDefault("marketdata.retry.max_interval", "5s")

	v.SetDefault("engine.strict_routing", false)
	v.SetDefault("engine.max_steps", 50)
	v.SetDefault("engine.auto_accept", false)

	v.SetDefault("pizza.find_delay", "1500ms")
	v.SetDefault("pizza.order_delay", "500ms")

	v.SetDefault("checkpoint.driver", "memory")
	v.SetDefault("checkpoint.path", filepath.Join(home, ".local", "share", "routemesh", "checkpoints.db"))

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "routemesh.ui")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. The file named by $ROUTEMESH_CONFIG is required
// when set; otherwise ~/.config/routemesh/config.yaml is read if present.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")

	if path := os.Getenv(ConfigEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "routemesh"))
		}
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if os.Getenv(ConfigEnv) != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return c, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}

	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %v out of range [0,2]", c.LLM.Temperature))
	}

	if c.Engine.MaxSteps < 0 {
		errs = append(errs, errors.New("engine.max_steps must not be negative"))
	}

	if c.Pizza.FindDelay < 0 || c.Pizza.OrderDelay < 0 {
		errs = append(errs, errors.New("pizza delays must not be negative"))
	}

	switch c.Checkpoint.Driver {
	case "memory":
	case "sqlite":
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("checkpoint.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint.driver: unknown driver %q", c.Checkpoint.Driver))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ResolveAPIKey returns APIKey or, when empty, the value of $APIKeyEnv.
func (c LLMConfig) ResolveAPIKey() string {
	return resolve(c.APIKey, c.APIKeyEnv)
}

// ResolveAPIKey returns APIKey or, when empty, the value of $APIKeyEnv.
func (c MarketDataConfig) ResolveAPIKey() string {
	return resolve(c.APIKey, c.APIKeyEnv)
}

func resolve(key, env string) string {
	if key != "" || env == "" {
		return key
	}

	return os.Getenv(env)
}

// Logger builds the configured logger.
func (c LogConfig) Logger() (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewSlogLogger(level, c.Format, false), nil
}
