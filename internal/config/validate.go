package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateScraper(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case "auto", "durable", "direct":
	default:
		return fmt.Errorf("queue.backend must be one of auto, durable, direct (got %q)", c.Queue.Backend)
	}
	if err := ensurePositiveMap(map[string]int{
		"queue.poll_interval":           c.Queue.PollInterval,
		"queue.error_retry_interval":    c.Queue.ErrorRetryInterval,
		"queue.max_attempts":            c.Queue.MaxAttempts,
		"queue.initial_backoff_seconds": c.Queue.InitialBackoffSeconds,
		"queue.scrape_concurrency":      c.Queue.ScrapeConcurrency,
		"queue.analyze_concurrency":     c.Queue.AnalyzeConcurrency,
		"queue.translate_concurrency":   c.Queue.TranslateConcurrency,
		"queue.generate_concurrency":    c.Queue.GenerateConcurrency,
		"queue.publish_concurrency":     c.Queue.PublishConcurrency,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScraper() error {
	if c.Scraper.BaseURL == "" {
		return errors.New("scraper.base_url must be set")
	}
	if c.Scraper.Actor == "" {
		return errors.New("scraper.actor must be set")
	}
	return ensurePositiveMap(map[string]int{
		"scraper.results_limit":         c.Scraper.ResultsLimit,
		"scraper.poll_interval_seconds": c.Scraper.PollIntervalSeconds,
		"scraper.max_wait_seconds":      c.Scraper.MaxWaitSeconds,
	})
}

func (c *Config) validatePublish() error {
	if c.Publish.GraphBaseURL == "" {
		return errors.New("publish.graph_base_url must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"publish.poll_interval_seconds": c.Publish.PollIntervalSeconds,
		"publish.poll_timeout_seconds":  c.Publish.PollTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Publish.PollTimeoutSeconds < c.Publish.PollIntervalSeconds {
		return errors.New("publish.poll_timeout_seconds must be >= publish.poll_interval_seconds")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
