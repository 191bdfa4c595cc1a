package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr: want=:8080 got=%q", cfg.HTTPAddr)
	}
	if cfg.SweepInterval != 24*time.Hour {
		t.Fatalf("SweepInterval: want=24h got=%s", cfg.SweepInterval)
	}
	if cfg.Worker.StaleAfter != 30*time.Minute || cfg.Worker.Concurrency != 4 {
		t.Fatalf("worker defaults: %+v", cfg.Worker)
	}
	if cfg.Vector.Provider != VectorProviderQdrant || cfg.Vector.Qdrant.VectorDim != 1536 {
		t.Fatalf("vector defaults: %+v", cfg.Vector)
	}
	if cfg.Temporal.Enabled() {
		t.Fatalf("temporal should be off without an address")
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("openai_model: gpt-4o-mini\nengagement_sweep_interval: 6h\nqdrant_url: http://qdrant:6333\ntemporal_address: temporal:7233\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENAI_MODEL", "gpt-4.1")
	t.Setenv("WORKER_CONCURRENCY", "9")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.Primary.Model != "gpt-4.1" {
		t.Fatalf("env should override file: got %q", cfg.LLM.Primary.Model)
	}
	if cfg.SweepInterval != 6*time.Hour {
		t.Fatalf("SweepInterval from file: got %s", cfg.SweepInterval)
	}
	if cfg.Vector.Qdrant.URL != "http://qdrant:6333" {
		t.Fatalf("qdrant url: got %q", cfg.Vector.Qdrant.URL)
	}
	if cfg.Worker.Concurrency != 9 {
		t.Fatalf("worker concurrency: got %d", cfg.Worker.Concurrency)
	}
	if !cfg.Temporal.Enabled() {
		t.Fatalf("temporal address from file should enable it")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadConfigObservability(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Otel.Enabled || cfg.Otel.SampleRatio != 0.1 {
		t.Fatalf("otel: %+v", cfg.Otel)
	}
	if cfg.Otel.Headers["x-api-key"] != "abc" {
		t.Fatalf("otel headers: %v", cfg.Otel.Headers)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("METRICS_ENABLED=false should disable metrics")
	}
}
