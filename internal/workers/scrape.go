package workers

import (
	"context"
	"fmt"
	"time"

	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/store"
)

// handleScrape fetches a channel's recent posts, stores the new ones, and
// enqueues analysis for every post still missing an engagement rate.
func (w *Workers) handleScrape(ctx context.Context, payload ScrapePayload) error {
	channel, err := w.deps.Store.GetChannel(ctx, payload.ChannelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return services.Wrap(services.ErrNotFound, "scrape", "load channel",
			fmt.Sprintf("channel %d not found", payload.ChannelID), nil)
	}
	logger := w.logger.With(
		logging.String(logging.FieldChannel, channel.Username),
		logging.Int64(logging.FieldChannelID, channel.ID))

	logger.Info("scraping channel")
	w.deps.Hub.Record(ctx, events.Event{
		Type:       "scrape_started",
		Message:    fmt.Sprintf("Scraping @%s", channel.Username),
		EntityType: "channel",
		EntityID:   &channel.ID,
	})

	scraped, err := w.deps.Scraper.Scrape(ctx, channel.Username)
	if err != nil {
		return err
	}

	var newPosts int64
	for _, item := range scraped {
		if item.Shortcode == "" {
			continue
		}
		_, created, err := w.deps.Store.InsertPost(ctx, store.NewPostParams{
			ChannelID:  channel.ID,
			Shortcode:  item.Shortcode,
			Caption:    item.Caption,
			Likes:      item.LikesCount,
			Comments:   item.CommentsCount,
			DisplayURL: item.DisplayURL,
			PostedAt:   item.PostedAt(),
		})
		if err != nil {
			return err
		}
		if created {
			newPosts++
		}
	}

	if err := w.deps.Store.MarkChannelScraped(ctx, channel.ID, time.Now().UTC(), newPosts); err != nil {
		return err
	}
	w.deps.Hub.Record(ctx, events.Event{
		Type:       events.TypeChannelScraped,
		Message:    fmt.Sprintf("Scraped @%s: %d new posts (%d total)", channel.Username, newPosts, len(scraped)),
		EntityType: "channel",
		EntityID:   &channel.ID,
	})
	logger.Info("scrape completed",
		logging.Int64("new_posts", newPosts),
		logging.Int("total_posts", len(scraped)))

	if newPosts == 0 {
		return nil
	}
	pending, err := w.deps.Store.UnanalyzedChannelPosts(ctx, channel.ID)
	if err != nil {
		return err
	}
	for _, post := range pending {
		if err := w.deps.Queue.Submit(ctx, QueueAnalyze, AnalyzePayload{PostID: post.ID}, jobs.SubmitOptions{}); err != nil {
			return err
		}
	}
	return nil
}
