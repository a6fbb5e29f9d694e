package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recast/internal/config"
)

func TestLoadDefaultsAndExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "recast")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.Bind != "127.0.0.1:8091" {
		t.Fatalf("unexpected bind: %q", cfg.Paths.Bind)
	}
	if cfg.Queue.Backend != "auto" {
		t.Fatalf("unexpected queue backend: %q", cfg.Queue.Backend)
	}
	if cfg.Queue.AnalyzeConcurrency != 5 {
		t.Fatalf("unexpected analyze concurrency: %d", cfg.Queue.AnalyzeConcurrency)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "recast.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadParsesFileAndNormalizesValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recast.toml")
	content := strings.Join([]string{
		"[paths]",
		`bind = "0.0.0.0:9000"`,
		`public_base_url = "https://recast.example.com/"`,
		"[queue]",
		`backend = "Direct"`,
		"translate_concurrency = 7",
		"[scraper]",
		`base_url = "https://scraper.example.com/api/"`,
		"[logging]",
		`format = "JSON"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.Bind != "0.0.0.0:9000" {
		t.Fatalf("unexpected bind: %q", cfg.Paths.Bind)
	}
	if cfg.Paths.PublicBaseURL != "https://recast.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Paths.PublicBaseURL)
	}
	if cfg.Queue.Backend != "direct" {
		t.Fatalf("expected lowercased backend, got %q", cfg.Queue.Backend)
	}
	if cfg.Queue.TranslateConcurrency != 7 {
		t.Fatalf("unexpected translate concurrency: %d", cfg.Queue.TranslateConcurrency)
	}
	if cfg.Scraper.BaseURL != "https://scraper.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Scraper.BaseURL)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging format: %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recast.toml")
	if err := os.WriteFile(path, []byte("[queue]\nbackend = \"redis\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid queue backend")
	}
	if !strings.Contains(err.Error(), "queue.backend") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsPublishTimeoutBelowInterval(t *testing.T) {
	cfg := config.Default()
	cfg.Publish.PollIntervalSeconds = 30
	cfg.Publish.PollTimeoutSeconds = 10

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestStageConcurrencyFallsBackToOne(t *testing.T) {
	cfg := config.Default()
	if got := cfg.StageConcurrency("scrape"); got != 3 {
		t.Fatalf("unexpected scrape concurrency: %d", got)
	}
	if got := cfg.StageConcurrency("unknown"); got != 1 {
		t.Fatalf("expected fallback concurrency 1, got %d", got)
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[queue]") {
		t.Fatal("expected sample to contain queue section")
	}
}
