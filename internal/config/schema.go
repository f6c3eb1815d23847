package config

// Config holds recap configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Generators map[string]GeneratorCfg `mapstructure:"generators" yaml:"generators"`
	Pipeline   PipelineCfg             `mapstructure:"pipeline" yaml:"pipeline"`
	Search     SearchCfg               `mapstructure:"search" yaml:"search"`
	Server     ServerCfg               `mapstructure:"server" yaml:"server"`
	Storage    StorageCfg              `mapstructure:"storage" yaml:"storage"`
}

// GeneratorCfg configures a generative model backend.
type GeneratorCfg struct {
	Type              string `mapstructure:"type" yaml:"type"`       // "openrouter", "gemini"
	Model             string `mapstructure:"model" yaml:"model"`     // Model name
	APIKey            string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	BaseURL           string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
}

// PipelineCfg controls checkpoint generation runs.
type PipelineCfg struct {
	Generator             string `mapstructure:"generator" yaml:"generator"`       // Default backend name
	GridStep              int    `mapstructure:"grid_step" yaml:"grid_step"`       // Checkpoint spacing in percent
	MaxAttempts           int    `mapstructure:"max_attempts" yaml:"max_attempts"` // Retry bound per checkpoint
	RetryDelaySeconds     int    `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	LeaseTTLMinutes       int    `mapstructure:"lease_ttl_minutes" yaml:"lease_ttl_minutes"`
}

// SearchCfg holds OpenSearch connection settings. Indexing is optional;
// when disabled the pipeline simply skips emission.
type SearchCfg struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	URL       string `mapstructure:"url" yaml:"url"`
	Username  string `mapstructure:"username" yaml:"username,omitempty"`
	Password  string `mapstructure:"password" yaml:"password,omitempty"` // Supports ${ENV_VAR} syntax
	QueueSize int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// ServerCfg holds HTTP server settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// StorageCfg holds persistence settings.
type StorageCfg struct {
	// DatabasePath overrides the default {home}/recap.db location.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Generators: map[string]GeneratorCfg{
			"openrouter": {
				Type:              "openrouter",
				Model:             "anthropic/claude-3.5-sonnet",
				APIKey:            "${OPENROUTER_API_KEY}",
				RequestsPerMinute: 60,
				Enabled:           true,
			},
			"gemini": {
				Type:              "gemini",
				Model:             "gemini-2.0-flash",
				APIKey:            "${GEMINI_API_KEY}",
				RequestsPerMinute: 60,
				Enabled:           false,
			},
		},
		Pipeline: PipelineCfg{
			Generator:             "openrouter",
			GridStep:              10,
			MaxAttempts:           3,
			RetryDelaySeconds:     2,
			RequestTimeoutSeconds: 120,
			LeaseTTLMinutes:       10,
		},
		Search: SearchCfg{
			Enabled:   false,
			URL:       "http://localhost:9200",
			QueueSize: 1000,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8580,
		},
	}
}

// GetGenerator returns a generator config by name.
func (c *Config) GetGenerator(name string) (GeneratorCfg, bool) {
	cfg, ok := c.Generators[name]
	return cfg, ok
}

// EnabledGenerators returns all enabled generator backends.
func (c *Config) EnabledGenerators() map[string]GeneratorCfg {
	result := make(map[string]GeneratorCfg)
	for name, cfg := range c.Generators {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
