// Package slides renders carousel slide images through the image model
// and stores the results under the media directory.
package slides

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recast/internal/services"
)

// Config captures image model connection settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Image is one rendered slide image.
type Image struct {
	Data     []byte
	MimeType string
}

// Renderer is the image model REST client.
type Renderer struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the renderer.
type Option func(*Renderer)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Renderer) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// NewRenderer constructs an image model client.
func NewRenderer(cfg Config, opts ...Option) *Renderer {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Model == "" {
		cfg.Model = "gemini-3-pro-image-preview"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	renderer := &Renderer{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(renderer)
	}
	return renderer
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Render submits a prompt and returns the first inline image of the
// response.
func (r *Renderer) Render(ctx context.Context, prompt string) (*Image, error) {
	if r.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "slides", "render", "api key not configured", nil)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		r.cfg.BaseURL, url.PathEscape(r.cfg.Model), url.QueryEscape(r.cfg.APIKey))
	payload := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render", "new request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render", "http error", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render", "read body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}

	var decoded generateResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render", "decode response", err)
	}
	if len(decoded.Candidates) == 0 {
		return nil, services.Wrap(services.ErrExternalService, "slides", "render", "no candidates in response", nil)
	}
	for _, p := range decoded.Candidates[0].Content.Parts {
		if p.InlineData == nil {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalService, "slides", "render", "decode image data", err)
		}
		mimeType := p.InlineData.MimeType
		if mimeType == "" {
			mimeType = "image/png"
		}
		return &Image{Data: raw, MimeType: mimeType}, nil
	}
	return nil, services.Wrap(services.ErrExternalService, "slides", "render", "no image data in response", nil)
}
