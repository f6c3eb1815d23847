// Package config handles loading and hot-reloading recap configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"recap/internal/providers"
)

// Manager loads configuration from defaults, an optional yaml file, and
// RECAP_* environment variables, and re-reads the file when it changes.
// Each Manager owns its viper instance so tests can build them freely.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager builds a manager and loads the initial configuration. cfgFile
// may be empty, in which case config.yaml is looked up in the working
// directory and ~/.recap; a missing file is not an error.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("generators", defaults.Generators)
	v.SetDefault("pipeline", defaults.Pipeline)
	v.SetDefault("search", defaults.Search)
	v.SetDefault("server", defaults.Server)
	v.SetDefault("storage", defaults.Storage)

	v.SetEnvPrefix("RECAP")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.recap")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cm := &Manager{v: v}
	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg
	return cm, nil
}

func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration.
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback invoked after each successful reload.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig starts watching the config file. A reload that fails to parse
// keeps the previous configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ToRegistryConfig converts generator settings to the registry's format,
// resolving ${ENV_VAR} references in API keys.
func (c *Config) ToRegistryConfig() map[string]providers.GeneratorConfig {
	out := make(map[string]providers.GeneratorConfig, len(c.Generators))
	for name, gen := range c.Generators {
		out[name] = providers.GeneratorConfig{
			Type:              gen.Type,
			Model:             gen.Model,
			APIKey:            ResolveEnvVars(gen.APIKey),
			BaseURL:           gen.BaseURL,
			RequestsPerMinute: gen.RequestsPerMinute,
			TimeoutSeconds:    gen.TimeoutSeconds,
			Enabled:           gen.Enabled,
		}
	}
	return out
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Recap configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENROUTER_API_KEY=xxx GEMINI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
