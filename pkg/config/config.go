package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Pipeline  PipelineConfig            `yaml:"pipeline"`
	Storage   StorageConfig             `yaml:"storage"`
	Cache     CacheConfig               `yaml:"cache"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Policy    PolicyConfig              `yaml:"policy"`
	Logging   LoggingConfig             `yaml:"logging"`
	RateLimit RateLimitConfig           `yaml:"rate_limit"`
}

type AppConfig struct {
	Name   string `yaml:"name"`
	Listen string `yaml:"listen"`
}

type ProviderConfig struct {
	APIKey      string  `yaml:"api_key"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Enabled     bool    `yaml:"enabled"`
}

type PipelineConfig struct {
	StepTimeout        time.Duration `yaml:"step_timeout"`
	RunTimeout         time.Duration `yaml:"run_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	OutputRetries      int           `yaml:"output_retries"`
	InitialBackoff     time.Duration `yaml:"initial_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	BackoffMultiplier  float64       `yaml:"backoff_multiplier"`
	Jitter             float64       `yaml:"jitter"`
	MaxParallelSteps   int           `yaml:"max_parallel_steps"`
	MaxConcurrentCalls int           `yaml:"max_concurrent_calls"`
	PromptsDir         string        `yaml:"prompts_dir"`
}

type StorageConfig struct {
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int64         `yaml:"max_entries"`
}

type GatewayConfig struct {
	Token     string `yaml:"token"`
	ChatID    int64  `yaml:"chat_id"`
	ChannelID string `yaml:"channel_id"`
	Enabled   bool   `yaml:"enabled"`
}

type PolicyConfig struct {
	DenyPatterns []string `yaml:"deny_patterns"`
	DenyFields   []string `yaml:"deny_fields"`
}

type LoggingConfig struct {
	LLMLogPath string `yaml:"llm_log_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
}

type RateLimitConfig struct {
	Capacity        float64 `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

// Default returns the configuration used when no file is present. It selects
// no provider; one must be enabled explicitly.
func Default() *Config {
	return &Config{
		App:       AppConfig{Name: "archcopilot", Listen: ":8080"},
		Providers: map[string]ProviderConfig{},
		Pipeline: PipelineConfig{
			StepTimeout:        60 * time.Second,
			RunTimeout:         5 * time.Minute,
			MaxRetries:         2,
			OutputRetries:      1,
			InitialBackoff:     500 * time.Millisecond,
			MaxBackoff:         8 * time.Second,
			BackoffMultiplier:  2,
			Jitter:             0.2,
			MaxParallelSteps:   3,
			MaxConcurrentCalls: 4,
		},
		Storage: StorageConfig{
			Path:          "archcopilot.db",
			Retention:     30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Cache:     CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 256},
		Gateways:  map[string]GatewayConfig{},
		Logging:   LoggingConfig{LLMLogPath: "llm_logs.jsonl", MaxSizeMB: 10},
		RateLimit: RateLimitConfig{Capacity: 120, RefillPerSecond: 2},
	}
}

// LoadConfig reads a YAML file over the defaults. A missing file yields the
// defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// GetDefaultProvider returns the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGateway returns a gateway config if it is enabled.
func (c *Config) GetGateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled {
		return g, true
	}
	return GatewayConfig{}, false
}

// KeyEnv is the environment variable holding the provider credential.
func (p ProviderConfig) KeyEnv(name string) string {
	if p.APIKeyEnv != "" {
		return p.APIKeyEnv
	}
	return strings.ToUpper(name) + "_API_KEY"
}

// ResolveAPIKey returns the credential from the config file or, failing that,
// the environment.
func (p ProviderConfig) ResolveAPIKey(name string) string {
	if p.APIKey != "" {
		return p.APIKey
	}
	return strings.TrimSpace(os.Getenv(p.KeyEnv(name)))
}

// NeedsKey reports whether a provider talks to a remote service.
func NeedsKey(name string) bool {
	return name != "fixture"
}

// Validate checks the configuration is usable. It fails on a missing
// credential so the process never starts serving without one.
func (c *Config) Validate() error {
	name, p := c.GetDefaultProvider()
	if name == "" {
		return errors.New("no provider enabled")
	}
	if NeedsKey(name) && p.ResolveAPIKey(name) == "" {
		return fmt.Errorf("provider %s: missing credential, set %s or api_key", name, p.KeyEnv(name))
	}

	pl := c.Pipeline
	var errs []error
	if pl.StepTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.step_timeout must be positive"))
	}
	if pl.RunTimeout < pl.StepTimeout {
		errs = append(errs, errors.New("pipeline.run_timeout must be at least step_timeout"))
	}
	if pl.MaxRetries < 0 || pl.OutputRetries < 0 {
		errs = append(errs, errors.New("pipeline retries must not be negative"))
	}
	if pl.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("pipeline.backoff_multiplier must be at least 1"))
	}
	if pl.Jitter < 0 || pl.Jitter > 1 {
		errs = append(errs, errors.New("pipeline.jitter must be between 0 and 1"))
	}
	if pl.MaxParallelSteps < 1 {
		errs = append(errs, errors.New("pipeline.max_parallel_steps must be at least 1"))
	}
	if pl.MaxConcurrentCalls < 1 {
		errs = append(errs, errors.New("pipeline.max_concurrent_calls must be at least 1"))
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit capacity and refill_per_second must be positive"))
	}
	return errors.Join(errs...)
}
