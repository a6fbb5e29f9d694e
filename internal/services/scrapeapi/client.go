// Package scrapeapi talks to the asynchronous scrape provider: start an
// actor run, poll its status, and fetch the result dataset.
package scrapeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recast/internal/services"
)

// Run terminal statuses reported by the provider.
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborted   = "ABORTED"
	StatusTimedOut  = "TIMED-OUT"
)

// Config captures provider connection settings.
type Config struct {
	BaseURL             string
	Actor               string
	APIToken            string
	ResultsLimit        int
	PollInterval        time.Duration
	MaxWait             time.Duration
}

// ScrapedPost is one post returned by the provider.
type ScrapedPost struct {
	Shortcode     string `json:"shortCode"`
	Caption       string `json:"caption"`
	LikesCount    int64  `json:"likesCount"`
	CommentsCount int64  `json:"commentsCount"`
	Timestamp     string `json:"timestamp"`
	DisplayURL    string `json:"displayUrl"`
	OwnerUsername string `json:"ownerUsername"`
}

// PostedAt parses the provider timestamp; nil when absent or unparseable.
func (p ScrapedPost) PostedAt() *time.Time {
	if p.Timestamp == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, p.Timestamp); err == nil {
			return &t
		}
	}
	return nil
}

// Client is the provider REST client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a provider client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Actor = strings.TrimSpace(cfg.Actor)
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)
	if cfg.ResultsLimit <= 0 {
		cfg.ResultsLimit = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type startRunRequest struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsLimit int      `json:"resultsLimit"`
	ResultsType  string   `json:"resultsType"`
}

// StartRun launches a scrape run for a channel username and returns the run
// id.
func (c *Client) StartRun(ctx context.Context, username string) (string, error) {
	if c.cfg.APIToken == "" {
		return "", services.Wrap(services.ErrConfiguration, "scraper", "start run", "api token not configured", nil)
	}
	endpoint := fmt.Sprintf("%s/acts/%s/runs?token=%s&waitForFinish=0",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Actor), url.QueryEscape(c.cfg.APIToken))
	payload := startRunRequest{
		DirectURLs:   []string{fmt.Sprintf("https://www.instagram.com/%s/", username)},
		ResultsLimit: c.cfg.ResultsLimit,
		ResultsType:  "posts",
	}

	var decoded struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrExternalService, "scraper", "start run", "", err)
	}
	if decoded.Data.ID == "" {
		return "", services.Wrap(services.ErrExternalService, "scraper", "start run", "provider returned no run id", nil)
	}
	return decoded.Data.ID, nil
}

// RunStatus reports a run's current status and, once available, its dataset
// id.
type RunStatus struct {
	Status    string
	DatasetID string
}

// PollRun fetches the current status of a run.
func (c *Client) PollRun(ctx context.Context, runID string) (RunStatus, error) {
	endpoint := fmt.Sprintf("%s/actor-runs/%s?token=%s",
		c.cfg.BaseURL, url.PathEscape(runID), url.QueryEscape(c.cfg.APIToken))

	var decoded struct {
		Data struct {
			Status           string `json:"status"`
			DefaultDatasetID string `json:"defaultDatasetId"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &decoded); err != nil {
		return RunStatus{}, services.Wrap(services.ErrExternalService, "scraper", "poll run", "", err)
	}
	return RunStatus{Status: decoded.Data.Status, DatasetID: decoded.Data.DefaultDatasetID}, nil
}

// FetchDataset downloads the items of a completed run.
func (c *Client) FetchDataset(ctx context.Context, datasetID string) ([]ScrapedPost, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/items?token=%s",
		c.cfg.BaseURL, url.PathEscape(datasetID), url.QueryEscape(c.cfg.APIToken))

	var posts []ScrapedPost
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &posts); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "scraper", "fetch dataset", "", err)
	}
	return posts, nil
}

// Scrape runs the full start/poll/fetch sequence with a bounded wait.
// A run that does not reach a terminal status before MaxWait is a timeout
// failure; FAILED, ABORTED, and TIMED-OUT runs fail immediately.
func (c *Client) Scrape(ctx context.Context, username string) ([]ScrapedPost, error) {
	runID, err := c.StartRun(ctx, username)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.MaxWait)
	for time.Now().Before(deadline) {
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, err := c.PollRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case StatusSucceeded:
			return c.FetchDataset(ctx, status.DatasetID)
		case StatusFailed, StatusAborted, StatusTimedOut:
			return nil, services.Wrap(services.ErrExternalService, "scraper", "run",
				fmt.Sprintf("run %s ended with status %s", runID, status.Status), nil)
		}
	}
	return nil, services.Wrap(services.ErrTimeout, "scraper", "run",
		fmt.Sprintf("run %s timed out after %s", runID, c.cfg.MaxWait), nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		body = strings.NewReader(string(encoded))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
