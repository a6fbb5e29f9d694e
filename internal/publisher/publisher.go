// Package publisher implements the carousel container choreography against
// the Graph-style publishing platform.
package publisher

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

// Carousel image bounds enforced before any platform call.
const (
	MinImages = 2
	MaxImages = 10
)

// Container status codes reported by the platform.
const (
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
	StatusExpired    = "EXPIRED"
	StatusInProgress = "IN_PROGRESS"
)

// Config captures platform connection and polling settings.
type Config struct {
	BaseURL      string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Result is the outcome of a successful carousel publish.
type Result struct {
	ChildContainerIDs []string
	ParentContainerID string
	PublishedMediaID  string
}

// Client runs the publishing protocol.
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

// NewClient constructs a platform client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Minute
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// CreateChildContainer registers one carousel image and returns its
// container id.
func (c *Client) CreateChildContainer(ctx context.Context, userID, accessToken, imageURL string) (string, error) {
	params := url.Values{
		"image_url":        {imageURL},
		"is_carousel_item": {"true"},
		"access_token":     {accessToken},
	}
	return c.postForID(ctx, fmt.Sprintf("%s/%s/media", c.cfg.BaseURL, url.PathEscape(userID)), params, "create child container")
}

// CreateCarouselContainer registers the parent container referencing the
// child ids.
func (c *Client) CreateCarouselContainer(ctx context.Context, userID, accessToken string, childIDs []string, caption string) (string, error) {
	params := url.Values{
		"media_type":   {"CAROUSEL"},
		"children":     {strings.Join(childIDs, ",")},
		"caption":      {caption},
		"access_token": {accessToken},
	}
	return c.postForID(ctx, fmt.Sprintf("%s/%s/media", c.cfg.BaseURL, url.PathEscape(userID)), params, "create carousel container")
}

// PublishContainer publishes a finished parent container and returns the
// published media id.
func (c *Client) PublishContainer(ctx context.Context, userID, accessToken, creationID string) (string, error) {
	params := url.Values{
		"creation_id":  {creationID},
		"access_token": {accessToken},
	}
	return c.postForID(ctx, fmt.Sprintf("%s/%s/media_publish", c.cfg.BaseURL, url.PathEscape(userID)), params, "publish container")
}

// WaitForContainer polls a container until it reports FINISHED. ERROR and
// EXPIRED fail immediately; a container still in progress at PollTimeout is
// a timeout failure.
func (c *Client) WaitForContainer(ctx context.Context, containerID, accessToken string) error {
	deadline := time.Now().Add(c.cfg.PollTimeout)
	for time.Now().Before(deadline) {
		endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
			c.cfg.BaseURL, url.PathEscape(containerID), url.QueryEscape(accessToken))
		var decoded struct {
			StatusCode string `json:"status_code"`
		}
		if err := c.getJSON(ctx, endpoint, &decoded); err != nil {
			return services.Wrap(services.ErrExternalService, "publisher", "poll container", "", err)
		}
		switch decoded.StatusCode {
		case StatusFinished:
			return nil
		case StatusError, StatusExpired:
			return services.Wrap(services.ErrExternalService, "publisher", "poll container",
				fmt.Sprintf("container %s status: %s", containerID, decoded.StatusCode), nil)
		}

		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return services.Wrap(services.ErrTimeout, "publisher", "poll container",
		fmt.Sprintf("container %s not finished after %s", containerID, c.cfg.PollTimeout), nil)
}

// PublishCarousel runs the full protocol: child containers, polls, parent
// container, poll, publish. The image count bounds are checked before any
// platform call.
func (c *Client) PublishCarousel(ctx context.Context, userID, accessToken string, imageURLs []string, caption string) (*Result, error) {
	if len(imageURLs) < MinImages {
		return nil, services.Wrap(services.ErrValidation, "publisher", "publish carousel",
			fmt.Sprintf("carousel requires at least %d images, have %d", MinImages, len(imageURLs)), nil)
	}
	if len(imageURLs) > MaxImages {
		return nil, services.Wrap(services.ErrValidation, "publisher", "publish carousel",
			fmt.Sprintf("carousel supports at most %d images, have %d", MaxImages, len(imageURLs)), nil)
	}

	childIDs := make([]string, 0, len(imageURLs))
	for _, imageURL := range imageURLs {
		id, err := c.CreateChildContainer(ctx, userID, accessToken, imageURL)
		if err != nil {
			return nil, err
		}
		childIDs = append(childIDs, id)
	}
	for _, id := range childIDs {
		if err := c.WaitForContainer(ctx, id, accessToken); err != nil {
			return nil, err
		}
	}

	parentID, err := c.CreateCarouselContainer(ctx, userID, accessToken, childIDs, caption)
	if err != nil {
		return nil, err
	}
	if err := c.WaitForContainer(ctx, parentID, accessToken); err != nil {
		return nil, err
	}

	mediaID, err := c.PublishContainer(ctx, userID, accessToken, parentID)
	if err != nil {
		return nil, err
	}
	return &Result{ChildContainerIDs: childIDs, ParentContainerID: parentID, PublishedMediaID: mediaID}, nil
}

func (c *Client) postForID(ctx context.Context, endpoint string, params url.Values, operation string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "publisher", operation, "new request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "publisher", operation, "http error", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "publisher", operation, "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", services.Wrap(services.ErrExternalService, "publisher", operation,
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", services.Wrap(services.ErrExternalService, "publisher", operation, "decode response", err)
	}
	if decoded.ID == "" {
		return "", services.Wrap(services.ErrExternalService, "publisher", operation, "platform returned no id", nil)
	}
	return decoded.ID, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
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
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, target)
}
