package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"recast/internal/events"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/services"
	"recast/internal/slides"
	"recast/internal/store"
)

// maxSlideAttempts bounds rendering retries per slide, with progressively
// simpler prompts on later attempts.
const maxSlideAttempts = 3

// handleGenerate renders the content slides shared by all destinations,
// then one call-to-action slide per still-relevant destination. A slide
// that failed in one invocation does not abort its siblings. Once every
// content slide is completed, a publishing job is created per non-rejected
// routing decision and Publish is enqueued.
func (w *Workers) handleGenerate(ctx context.Context, payload GeneratePayload) error {
	translation, err := w.deps.Store.GetTranslation(ctx, payload.TranslationID)
	if err != nil {
		return err
	}
	if translation == nil {
		return services.Wrap(services.ErrNotFound, "generate", "load translation",
			fmt.Sprintf("translation %d not found", payload.TranslationID), nil)
	}
	if len(translation.SlideTexts) == 0 {
		return services.Wrap(services.ErrValidation, "generate", "load translation",
			fmt.Sprintf("translation %d has no slide texts", translation.ID), nil)
	}
	post, err := w.deps.Store.GetPost(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return services.Wrap(services.ErrNotFound, "generate", "load post",
			fmt.Sprintf("post %d not found", payload.PostID), nil)
	}
	logger := w.logger.With(
		logging.Int64(logging.FieldPostID, post.ID),
		logging.Int64(logging.FieldTranslationID, translation.ID))

	decisions, err := w.deps.Store.ActiveRoutingDecisionsForPost(ctx, post.ID)
	if err != nil {
		return err
	}

	// Content slides are shared, so the CTA slide is the one extra.
	totalSlides := len(translation.SlideTexts) + 1
	for i, slideText := range translation.SlideTexts {
		position := int64(i + 1)
		prompt := func(attempt int64) string {
			if attempt <= 1 {
				return slides.BuildPrompt(slideText, slides.PromptOptions{
					SlideNumber: int(position),
					TotalSlides: totalSlides,
				})
			}
			return slides.BuildRetryPrompt(slideText, int(attempt))
		}
		if err := w.renderSlide(ctx, logger, translation.ID, position, nil, slideText, post.Shortcode, prompt); err != nil {
			return err
		}
	}

	ctaPosition := int64(len(translation.SlideTexts) + 1)
	for _, decision := range decisions {
		destination, err := w.deps.Store.GetDestination(ctx, decision.DestinationID)
		if err != nil {
			return err
		}
		if destination == nil {
			continue
		}
		ctaText := destination.CTATemplate
		if strings.TrimSpace(ctaText) == "" {
			ctaText = fmt.Sprintf("עקבו אחרינו @%s", destination.Handle)
		}
		destID := destination.ID
		prompt := func(attempt int64) string {
			if attempt <= 1 {
				return slides.BuildPrompt(ctaText, slides.PromptOptions{
					IsCTA:       true,
					CTAHandle:   destination.Handle,
					BrandColors: brandColors(destination),
				})
			}
			return slides.BuildRetryPrompt(ctaText, int(attempt))
		}
		if err := w.renderSlide(ctx, logger, translation.ID, ctaPosition, &destID, ctaText, post.Shortcode, prompt); err != nil {
			return err
		}
	}

	return w.checkSlideCompletion(ctx, logger, translation.ID, post.Shortcode, decisions)
}

// renderSlide creates or resumes one slide record and renders it with
// bounded retries. A slide that exhausts its attempts is marked failed;
// the error is recorded but not returned so sibling slides continue.
func (w *Workers) renderSlide(ctx context.Context, logger *slog.Logger, translationID, position int64, destinationID *int64, slideText, shortcode string, prompt func(attempt int64) string) error {
	existing, err := w.deps.Store.GetSlideAt(ctx, translationID, position, destinationID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Status == store.SlideCompleted {
		return nil
	}
	slide := existing
	if slide == nil {
		slide, _, err = w.deps.Store.EnsureSlide(ctx, translationID, position, destinationID, slideText)
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxSlideAttempts; attempt++ {
		slide, err = w.deps.Store.MarkSlideGenerating(ctx, slide.ID)
		if err != nil {
			return err
		}

		image, renderErr := w.deps.Renderer.Render(ctx, prompt(int64(attempt)))
		if renderErr != nil {
			lastErr = renderErr
			logger.Warn("slide render attempt failed",
				logging.Int64(logging.FieldSlideNumber, position),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(renderErr))
			continue
		}
		path, saveErr := w.deps.Storage.Save(slides.SlidePath(translationID, int(position), destinationID, image.MimeType), image)
		if saveErr != nil {
			lastErr = saveErr
			continue
		}
		if _, err := w.deps.Store.CompleteSlide(ctx, slide.ID, path); err != nil {
			return err
		}
		logger.Info("slide rendered",
			logging.Int64(logging.FieldSlideNumber, position),
			logging.Int(logging.FieldAttempt, attempt))
		return nil
	}

	if _, err := w.deps.Store.FailSlide(ctx, slide.ID, lastErr.Error()); err != nil {
		return err
	}
	w.deps.Hub.Record(ctx, events.Event{
		Type:       events.TypeSlideFailed,
		Message:    fmt.Sprintf("Slide %d failed for %s after %d attempts", position, shortcode, maxSlideAttempts),
		EntityType: "carousel_slide",
		EntityID:   &slide.ID,
	})
	return nil
}

// checkSlideCompletion creates queued publishing jobs once every content
// slide is completed. Re-runs on every invocation; the upsert keyed on the
// routing decision keeps job creation idempotent.
func (w *Workers) checkSlideCompletion(ctx context.Context, logger *slog.Logger, translationID int64, shortcode string, decisions []*store.RoutingDecision) error {
	contentSlides, err := w.deps.Store.ContentSlidesForTranslation(ctx, translationID)
	if err != nil {
		return err
	}
	if len(contentSlides) == 0 {
		return nil
	}
	completed := 0
	for _, slide := range contentSlides {
		if slide.Status == store.SlideCompleted {
			completed++
		}
	}
	if completed != len(contentSlides) {
		return nil
	}

	w.deps.Hub.Record(ctx, events.Event{
		Type:    events.TypeSlidesCompleted,
		Message: fmt.Sprintf("All %d content slides completed for %s", completed, shortcode),
	})

	for _, decision := range decisions {
		job, created, err := w.deps.Store.EnsurePublishingJob(ctx, decision.ID)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		w.deps.Hub.Record(ctx, events.Event{
			Type:       events.TypePublishQueued,
			Message:    fmt.Sprintf("Publishing queued for %s to destination %d", shortcode, decision.DestinationID),
			EntityType: "publishing_job",
			EntityID:   &job.ID,
		})
		if err := w.deps.Queue.Submit(ctx, QueuePublish, PublishPayload{PublishingJobID: job.ID}, jobs.SubmitOptions{}); err != nil {
			return err
		}
	}
	logger.Info("publishing jobs enqueued", logging.Int("decisions", len(decisions)))
	return nil
}

func brandColors(destination *store.Destination) string {
	colors := make([]string, 0, 2)
	for _, color := range []string{destination.BrandColorPrim, destination.BrandColorSec} {
		if strings.TrimSpace(color) != "" {
			colors = append(colors, color)
		}
	}
	return strings.Join(colors, ", ")
}
