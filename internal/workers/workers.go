// Package workers implements the five pipeline stages: scrape, analyze,
// translate, generate, and publish. Each stage consumes one queue, mutates
// persisted entity state, and may enqueue jobs on the next queue.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/matcher"
	"recast/internal/publisher"
	"recast/internal/scorer"
	"recast/internal/services"
	"recast/internal/services/scrapeapi"
	"recast/internal/slides"
	"recast/internal/store"
	"recast/internal/translator"
)

// Scraper fetches a channel's recent posts from the scrape provider.
type Scraper interface {
	Scrape(ctx context.Context, username string) ([]scrapeapi.ScrapedPost, error)
}

// TopicMatcher classifies a caption against destination topics.
type TopicMatcher interface {
	Match(ctx context.Context, caption string, destinations []*store.Destination) ([]matcher.Match, error)
}

// CaptionTranslator adapts a caption into slide texts with a quality
// score.
type CaptionTranslator interface {
	Translate(ctx context.Context, caption, retryFeedback string) (*translator.Result, error)
}

// SlideRenderer renders one slide image from a prompt.
type SlideRenderer interface {
	Render(ctx context.Context, prompt string) (*slides.Image, error)
}

// CarouselPublisher runs the container choreography against the
// publishing platform.
type CarouselPublisher interface {
	PublishCarousel(ctx context.Context, userID, accessToken string, imageURLs []string, caption string) (*publisher.Result, error)
}

// Concurrency maps a queue name to its worker pool size.
type Concurrency func(queue string) int

// Deps wires the stage workers to their collaborators.
type Deps struct {
	Store      *store.Store
	Queue      jobs.Queue
	Hub        *events.Hub
	Scorer     *scorer.Scorer
	Scraper    Scraper
	Matcher    TopicMatcher
	Translator CaptionTranslator
	Renderer   SlideRenderer
	Storage    *slides.Storage
	Publisher  CarouselPublisher
	// PublicBaseURL is the fallback media URL prefix when the
	// public_base_url setting is unset.
	PublicBaseURL string
	Logger        *slog.Logger
}

// Workers owns the five stage handlers.
type Workers struct {
	deps   Deps
	logger *slog.Logger
}

// New constructs the stage workers.
func New(deps Deps) *Workers {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Workers{
		deps:   deps,
		logger: logger.With(logging.String(logging.FieldComponent, "workers")),
	}
}

// Register binds every stage handler to its queue.
func (w *Workers) Register(concurrency Concurrency) {
	w.deps.Queue.RegisterConsumer(QueueScrape, decode(w.handleScrape), concurrency(QueueScrape))
	w.deps.Queue.RegisterConsumer(QueueAnalyze, decode(w.handleAnalyze), concurrency(QueueAnalyze))
	w.deps.Queue.RegisterConsumer(QueueTranslate, decode(w.handleTranslate), concurrency(QueueTranslate))
	w.deps.Queue.RegisterConsumer(QueueGenerate, decode(w.handleGenerate), concurrency(QueueGenerate))
	w.deps.Queue.RegisterConsumer(QueuePublish, decode(w.handlePublish), concurrency(QueuePublish))
}

// decode adapts a typed handler to the queue's raw payload contract.
// Undecodable payloads are validation failures, never retried.
func decode[P any](handler func(ctx context.Context, payload P) error) jobs.Handler {
	return func(ctx context.Context, raw []byte) error {
		var payload P
		if err := json.Unmarshal(raw, &payload); err != nil {
			return services.Wrap(services.ErrValidation, "workers", "decode payload", "", err)
		}
		return handler(ctx, payload)
	}
}

// mediaBaseURL resolves the URL prefix the publishing platform fetches
// slide images from: the public_base_url setting when set, otherwise the
// configured fallback.
func (w *Workers) mediaBaseURL(ctx context.Context) string {
	base := w.deps.PublicBaseURL
	if value, ok, err := w.deps.Store.GetSetting(ctx, store.SettingPublicBaseURL); err == nil && ok && value != "" {
		base = value
	}
	return strings.TrimRight(base, "/")
}

func (w *Workers) mediaURL(ctx context.Context, relPath string) string {
	return fmt.Sprintf("%s/media/%s", w.mediaBaseURL(ctx), relPath)
}
