package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir       string `toml:"data_dir"`
	LogDir        string `toml:"log_dir"`
	MediaDir      string `toml:"media_dir"`
	Bind          string `toml:"bind"`
	PublicBaseURL string `toml:"public_base_url"`
}

// Queue contains job queue backend and worker pool settings.
type Queue struct {
	// Backend selects the execution backend: "auto" prefers the durable
	// store and falls back to direct dispatch, "durable" and "direct"
	// force a backend.
	Backend               string `toml:"backend"`
	PollInterval          int    `toml:"poll_interval"`
	ErrorRetryInterval    int    `toml:"error_retry_interval"`
	MaxAttempts           int    `toml:"max_attempts"`
	InitialBackoffSeconds int    `toml:"initial_backoff_seconds"`
	ScrapeConcurrency     int    `toml:"scrape_concurrency"`
	AnalyzeConcurrency    int    `toml:"analyze_concurrency"`
	TranslateConcurrency  int    `toml:"translate_concurrency"`
	GenerateConcurrency   int    `toml:"generate_concurrency"`
	PublishConcurrency    int    `toml:"publish_concurrency"`
}

// Scraper contains configuration for the asynchronous scrape provider.
type Scraper struct {
	BaseURL             string `toml:"base_url"`
	Actor               string `toml:"actor"`
	APIToken            string `toml:"api_token"`
	ResultsLimit        int    `toml:"results_limit"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxWaitSeconds      int    `toml:"max_wait_seconds"`
}

// LLM contains connection settings for the language model used by the
// semantic matcher and the caption translator.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Images contains connection settings for the slide image model.
type Images struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Publish contains configuration for the publishing platform protocol.
type Publish struct {
	GraphBaseURL        string `toml:"graph_base_url"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `toml:"poll_timeout_seconds"`
}

// Scheduler contains scrape cadence settings.
type Scheduler struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Recast.
//
// Configuration sections by subsystem:
//   - Paths: data/log/media directories, bind address, public base URL
//   - Queue: execution backend selection and per-stage concurrency
//   - Scraper: asynchronous scrape provider connection
//   - LLM: language model for topic matching and caption adaptation
//   - Images: slide rendering model
//   - Publish: publishing platform protocol endpoints and polling
//   - Scheduler: automatic scrape cadence
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Queue     Queue     `toml:"queue"`
	Scraper   Scraper   `toml:"scraper"`
	LLM       LLM       `toml:"llm"`
	Images    Images    `toml:"images"`
	Publish   Publish   `toml:"publish"`
	Scheduler Scheduler `toml:"scheduler"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/recast/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.MediaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database file backing both the entity
// store and the durable job queue.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "recast.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// PublicBaseURL returns the externally reachable URL prefix for media
// files, falling back to the bind address when unconfigured. The fallback
// only works when the publishing platform can reach the bind address.
func (c *Config) PublicBaseURL() string {
	if c.Paths.PublicBaseURL != "" {
		return c.Paths.PublicBaseURL
	}
	return "http://" + c.Paths.Bind
}

// StageConcurrency returns the configured worker pool size for a queue name.
func (c *Config) StageConcurrency(queueName string) int {
	switch queueName {
	case "scrape":
		return c.Queue.ScrapeConcurrency
	case "analyze":
		return c.Queue.AnalyzeConcurrency
	case "translate":
		return c.Queue.TranslateConcurrency
	case "generate":
		return c.Queue.GenerateConcurrency
	case "publish":
		return c.Queue.PublishConcurrency
	default:
		return 1
	}
}
