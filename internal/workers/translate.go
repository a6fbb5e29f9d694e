package workers

import (
	"context"
	"fmt"

	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/translator"
)

// handleTranslate adapts a post's caption into slide texts. Results below
// the quality threshold are retried with feedback up to the retry budget;
// when the budget is spent the best-effort result is accepted.
func (w *Workers) handleTranslate(ctx context.Context, payload TranslatePayload) error {
	post, err := w.deps.Store.GetPost(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return services.Wrap(services.ErrNotFound, "translate", "load post",
			fmt.Sprintf("post %d not found", payload.PostID), nil)
	}

	translation, err := w.deps.Store.BeginTranslation(ctx, post.ID, payload.RetryCount)
	if err != nil {
		return err
	}
	logger := w.logger.With(
		logging.Int64(logging.FieldPostID, post.ID),
		logging.Int64(logging.FieldTranslationID, translation.ID),
		logging.Int64(logging.FieldAttempt, payload.RetryCount+1))

	result, err := w.deps.Translator.Translate(ctx, post.Caption, payload.Feedback)
	if err != nil {
		if _, failErr := w.deps.Store.FailTranslation(ctx, translation.ID, err.Error()); failErr != nil {
			logger.Error("failed to mark translation failed", logging.Error(failErr))
		}
		w.deps.Hub.Record(ctx, events.Event{
			Type:       events.TypeTranslationFailed,
			Message:    fmt.Sprintf("Translation failed for post %s: %v", post.Shortcode, err),
			EntityType: "translation",
			EntityID:   &translation.ID,
		})
		return err
	}

	if err := w.deps.Store.SaveTranslationResult(ctx, translation.ID, result.Slides, result.QualityScore); err != nil {
		return err
	}
	logger.Info("translation produced",
		logging.Float64("quality_score", result.QualityScore),
		logging.Int("slide_count", len(result.Slides)))

	if result.QualityScore < translator.QualityThreshold && payload.RetryCount < translator.MaxRetries {
		w.deps.Hub.Record(ctx, events.Event{
			Type:       events.TypeTranslationRetry,
			Message:    fmt.Sprintf("Translation for post %s scored %g/10, retrying", post.Shortcode, result.QualityScore),
			EntityType: "translation",
			EntityID:   &translation.ID,
		})
		return w.deps.Queue.Submit(ctx, QueueTranslate, TranslatePayload{
			PostID:     post.ID,
			RetryCount: payload.RetryCount + 1,
			Feedback:   translator.Feedback(result.QualityScore),
		}, jobs.SubmitOptions{})
	}

	if _, err := w.deps.Store.CompleteTranslation(ctx, translation.ID); err != nil {
		return err
	}
	w.deps.Hub.Record(ctx, events.Event{
		Type:       events.TypeTranslationCompleted,
		Message:    fmt.Sprintf("Translation completed for post %s (quality %g/10, %d slides)", post.Shortcode, result.QualityScore, len(result.Slides)),
		EntityType: "translation",
		EntityID:   &translation.ID,
	})
	return w.deps.Queue.Submit(ctx, QueueGenerate, GeneratePayload{
		TranslationID: translation.ID,
		PostID:        post.ID,
	}, jobs.SubmitOptions{})
}
