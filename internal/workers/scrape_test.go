package workers

import (
	"context"
	"errors"
	"testing"

	"recast/internal/services"
	"recast/internal/services/scrapeapi"
)

func TestScrapeStoresPostsAndEnqueuesAnalyze(t *testing.T) {
	f := newFixture(t)
	channel := f.channel(t, "fitness_daily")
	f.scraper.posts = []scrapeapi.ScrapedPost{
		{Shortcode: "AAA", Caption: "first", LikesCount: 10, CommentsCount: 2},
		{Shortcode: "BBB", Caption: "second", LikesCount: 20, CommentsCount: 4},
		{Shortcode: ""}, // provider sometimes emits malformed rows
	}

	if err := f.workers.handleScrape(context.Background(), ScrapePayload{ChannelID: channel.ID}); err != nil {
		t.Fatalf("scrape: %v", err)
	}

	post, err := f.store.GetPostByShortcode(context.Background(), "AAA")
	if err != nil || post == nil {
		t.Fatalf("post not stored: %v %v", post, err)
	}
	updated, err := f.store.GetChannel(context.Background(), channel.ID)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if updated.LastScrapedAt == nil || updated.TotalPostsScraped != 2 {
		t.Fatalf("channel not marked scraped: %+v", updated)
	}

	analyze := f.queue.submitted(QueueAnalyze)
	if len(analyze) != 2 {
		t.Fatalf("expected 2 analyze jobs, got %d", len(analyze))
	}
}

func TestScrapeRescrapeDeduplicates(t *testing.T) {
	f := newFixture(t)
	channel := f.channel(t, "fitness_daily")
	f.scraper.posts = []scrapeapi.ScrapedPost{{Shortcode: "AAA", Caption: "first"}}

	if err := f.workers.handleScrape(context.Background(), ScrapePayload{ChannelID: channel.ID}); err != nil {
		t.Fatalf("first scrape: %v", err)
	}
	if err := f.workers.handleScrape(context.Background(), ScrapePayload{ChannelID: channel.ID}); err != nil {
		t.Fatalf("second scrape: %v", err)
	}

	updated, err := f.store.GetChannel(context.Background(), channel.ID)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if updated.TotalPostsScraped != 1 {
		t.Fatalf("counter = %d, want 1", updated.TotalPostsScraped)
	}
	// No new posts on the second run, so nothing further was enqueued.
	if got := len(f.queue.submitted(QueueAnalyze)); got != 1 {
		t.Fatalf("expected 1 analyze job, got %d", got)
	}
}

func TestScrapeUnknownChannel(t *testing.T) {
	f := newFixture(t)
	err := f.workers.handleScrape(context.Background(), ScrapePayload{ChannelID: 999})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestScrapeProviderFailurePropagates(t *testing.T) {
	f := newFixture(t)
	channel := f.channel(t, "fitness_daily")
	f.scraper.err = services.Wrap(services.ErrExternalService, "scraper", "run", "provider down", nil)

	err := f.workers.handleScrape(context.Background(), ScrapePayload{ChannelID: channel.ID})
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}
