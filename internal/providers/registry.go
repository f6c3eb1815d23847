package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds the configured generators and their shared rate limiters.
// It supports config-driven instantiation and hot-reload.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	limiters   map[string]*RateLimiter
	logger     *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[string]Generator),
		limiters:   make(map[string]*RateLimiter),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a generator under a name with its own rate limiter.
func (r *Registry) Register(name string, gen Generator, requestsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = gen
	r.limiters[name] = NewRateLimiter(requestsPerMinute)
	r.logger.Info("registered generator", "name", name)
}

// Get returns a generator and its rate limiter by name.
func (r *Registry) Get(name string) (Generator, *RateLimiter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[name]
	if !ok {
		return nil, nil, fmt.Errorf("generator not found: %s", name)
	}
	return gen, r.limiters[name], nil
}

// List returns all registered generator names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	return names
}

// Has reports whether a generator is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.generators[name]
	return ok
}

// GeneratorConfig defines one backend to instantiate from config.
type GeneratorConfig struct {
	Type              string // "openrouter" or "gemini"
	Model             string
	APIKey            string // resolved, not a ${VAR} reference
	BaseURL           string
	RequestsPerMinute int
	TimeoutSeconds    int
	Enabled           bool
}

// Reload replaces the registered generators based on new configuration.
// Backends that are no longer configured are dropped; existing limiters are
// kept so a config reload does not reset quota accounting.
func (r *Registry) Reload(configs map[string]GeneratorConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, cfg := range configs {
		if !cfg.Enabled || cfg.APIKey == "" {
			continue
		}
		gen := newGenerator(cfg)
		if gen == nil {
			r.logger.Warn("unknown generator type", "name", name, "type", cfg.Type)
			continue
		}
		want[name] = true
		r.generators[name] = gen
		if limiter, ok := r.limiters[name]; ok {
			limiter.SetRate(cfg.RequestsPerMinute)
		} else {
			r.limiters[name] = NewRateLimiter(cfg.RequestsPerMinute)
		}
		r.logger.Info("registered generator", "name", name, "type", cfg.Type, "model", cfg.Model)
	}

	for name := range r.generators {
		if !want[name] {
			delete(r.generators, name)
			delete(r.limiters, name)
			r.logger.Info("unregistered generator", "name", name)
		}
	}
}

func newGenerator(cfg GeneratorConfig) Generator {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Type {
	case "openrouter":
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      timeout,
		})
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	default:
		return nil
	}
}
