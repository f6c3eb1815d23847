package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Generators) == 0 {
		t.Fatal("expected default generators")
	}
	or, ok := cfg.GetGenerator("openrouter")
	if !ok {
		t.Fatal("expected openrouter generator")
	}
	if or.APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if !or.Enabled {
		t.Error("expected openrouter enabled by default")
	}
	if cfg.Pipeline.GridStep != 10 {
		t.Errorf("grid step: got %d", cfg.Pipeline.GridStep)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Errorf("max attempts: got %d", cfg.Pipeline.MaxAttempts)
	}

	enabled := cfg.EnabledGenerators()
	if _, ok := enabled["gemini"]; ok {
		t.Error("gemini should be disabled by default")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToRegistryConfig(t *testing.T) {
	os.Setenv("TEST_RECAP_KEY", "rk-123")
	defer os.Unsetenv("TEST_RECAP_KEY")

	cfg := &Config{
		Generators: map[string]GeneratorCfg{
			"primary": {
				Type:              "openrouter",
				Model:             "some/model",
				APIKey:            "${TEST_RECAP_KEY}",
				RequestsPerMinute: 30,
				Enabled:           true,
			},
		},
	}

	out := cfg.ToRegistryConfig()
	got, ok := out["primary"]
	if !ok {
		t.Fatal("primary generator missing from registry config")
	}
	if got.APIKey != "rk-123" {
		t.Errorf("API key not resolved: %q", got.APIKey)
	}
	if got.RequestsPerMinute != 30 {
		t.Errorf("requests per minute: %d", got.RequestsPerMinute)
	}
}

func TestManagerLoadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "pipeline:\n  grid_step: 5\n  max_attempts: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cm, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	cfg := cm.Get()
	if cfg.Pipeline.GridStep != 5 {
		t.Errorf("grid step: got %d, want 5", cfg.Pipeline.GridStep)
	}
	if cfg.Pipeline.MaxAttempts != 7 {
		t.Errorf("max attempts: got %d, want 7", cfg.Pipeline.MaxAttempts)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Server.Port != 8580 {
		t.Errorf("server port default not applied: %d", cfg.Server.Port)
	}
}

func TestWriteDefault(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("write default: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	content := string(data)
	for _, want := range []string{"generators:", "pipeline:", "grid_step:", "${OPENROUTER_API_KEY}"} {
		if !strings.Contains(content, want) {
			t.Errorf("written config missing %q", want)
		}
	}
}
