package workers

import (
	"context"
	"fmt"
	"strings"

	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
)

// handleAnalyze scores a post against its channel baseline and, when
// viral, fans it out to topic-matched destinations. Translation is
// triggered at most once per post.
func (w *Workers) handleAnalyze(ctx context.Context, payload AnalyzePayload) error {
	post, err := w.deps.Store.GetPost(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return services.Wrap(services.ErrNotFound, "analyze", "load post",
			fmt.Sprintf("post %d not found", payload.PostID), nil)
	}
	logger := w.logger.With(logging.Int64(logging.FieldPostID, post.ID))

	result, err := w.deps.Scorer.Score(ctx, post)
	if err != nil {
		return err
	}
	if err := w.deps.Store.SetPostScore(ctx, post.ID, result.EngagementRate, result.ViralScore, result.IsViral); err != nil {
		return err
	}
	logger.Info("post analyzed",
		logging.Float64(logging.FieldScore, result.ViralScore),
		logging.Bool("viral", result.IsViral),
		logging.String("reason", result.Reason))
	if !result.IsViral {
		return nil
	}

	w.deps.Hub.Record(ctx, events.Event{
		Type:       events.TypePostViral,
		Message:    fmt.Sprintf("Post %s is viral: %s", post.Shortcode, result.Reason),
		EntityType: "post",
		EntityID:   &post.ID,
	})

	if strings.TrimSpace(post.Caption) == "" {
		logger.Info("viral post has no caption, skipping routing")
		return nil
	}

	destinations, err := w.deps.Store.ListDestinations(ctx, true)
	if err != nil {
		return err
	}
	matches, err := w.deps.Matcher.Match(ctx, post.Caption, destinations)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		logger.Info("no destination matched viral post")
		return nil
	}

	for _, match := range matches {
		decision, created, err := w.deps.Store.CreateRoutingDecision(ctx, post.ID, match.DestinationID, match.Score, match.Reason)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		w.deps.Hub.Record(ctx, events.Event{
			Type:       events.TypePostRouted,
			Message:    fmt.Sprintf("Post %s routed to destination %d (score %.0f)", post.Shortcode, match.DestinationID, match.Score),
			EntityType: "routing_decision",
			EntityID:   &decision.ID,
		})
	}

	// The routing fan-out may reach many destinations but the caption is
	// adapted once per post.
	existing, err := w.deps.Store.TranslationForPost(ctx, post.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return w.deps.Queue.Submit(ctx, QueueTranslate, TranslatePayload{PostID: post.ID}, jobs.SubmitOptions{})
}
