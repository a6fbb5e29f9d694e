package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeScraper()
	c.normalizeLLM()
	c.normalizeImages()
	c.normalizePublish()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	c.Paths.Bind = strings.TrimSpace(c.Paths.Bind)
	if c.Paths.Bind == "" {
		c.Paths.Bind = defaultBind
	}
	c.Paths.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Paths.PublicBaseURL), "/")
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultQueuePollInterval
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		c.Queue.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultMaxAttempts
	}
	if c.Queue.InitialBackoffSeconds <= 0 {
		c.Queue.InitialBackoffSeconds = defaultInitialBackoffSeconds
	}
	if c.Queue.ScrapeConcurrency <= 0 {
		c.Queue.ScrapeConcurrency = defaultScrapeConcurrency
	}
	if c.Queue.AnalyzeConcurrency <= 0 {
		c.Queue.AnalyzeConcurrency = defaultAnalyzeConcurrency
	}
	if c.Queue.TranslateConcurrency <= 0 {
		c.Queue.TranslateConcurrency = defaultTranslateConcurrency
	}
	if c.Queue.GenerateConcurrency <= 0 {
		c.Queue.GenerateConcurrency = defaultGenerateConcurrency
	}
	if c.Queue.PublishConcurrency <= 0 {
		c.Queue.PublishConcurrency = defaultPublishConcurrency
	}
}

func (c *Config) normalizeScraper() {
	c.Scraper.BaseURL = strings.TrimRight(strings.TrimSpace(c.Scraper.BaseURL), "/")
	if c.Scraper.BaseURL == "" {
		c.Scraper.BaseURL = defaultScraperBaseURL
	}
	c.Scraper.Actor = strings.TrimSpace(c.Scraper.Actor)
	if c.Scraper.Actor == "" {
		c.Scraper.Actor = defaultScraperActor
	}
	c.Scraper.APIToken = strings.TrimSpace(c.Scraper.APIToken)
	if c.Scraper.ResultsLimit <= 0 {
		c.Scraper.ResultsLimit = defaultScraperResultsLimit
	}
	if c.Scraper.PollIntervalSeconds <= 0 {
		c.Scraper.PollIntervalSeconds = defaultScraperPollInterval
	}
	if c.Scraper.MaxWaitSeconds <= 0 {
		c.Scraper.MaxWaitSeconds = defaultScraperMaxWait
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeImages() {
	c.Images.BaseURL = strings.TrimRight(strings.TrimSpace(c.Images.BaseURL), "/")
	if c.Images.BaseURL == "" {
		c.Images.BaseURL = defaultImagesBaseURL
	}
	c.Images.Model = strings.TrimSpace(c.Images.Model)
	if c.Images.Model == "" {
		c.Images.Model = defaultImagesModel
	}
	c.Images.APIKey = strings.TrimSpace(c.Images.APIKey)
	if c.Images.TimeoutSeconds <= 0 {
		c.Images.TimeoutSeconds = defaultImagesTimeoutSeconds
	}
}

func (c *Config) normalizePublish() {
	c.Publish.GraphBaseURL = strings.TrimRight(strings.TrimSpace(c.Publish.GraphBaseURL), "/")
	if c.Publish.GraphBaseURL == "" {
		c.Publish.GraphBaseURL = defaultGraphBaseURL
	}
	if c.Publish.PollIntervalSeconds <= 0 {
		c.Publish.PollIntervalSeconds = defaultPublishPollInterval
	}
	if c.Publish.PollTimeoutSeconds <= 0 {
		c.Publish.PollTimeoutSeconds = defaultPublishPollTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
