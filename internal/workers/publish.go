package workers

import (
	"context"
	"fmt"
	"strings"

	"recast/internal/events"
	"recast/internal/logging"
	"recast/internal/publisher"
	"recast/internal/services"
	"recast/internal/store"
)

// handlePublish resolves a publishing job's entity chain and runs the
// container choreography. Destinations without auto-publish park the job
// in awaiting_approval before any platform call is made.
func (w *Workers) handlePublish(ctx context.Context, payload PublishPayload) error {
	job, err := w.deps.Store.GetPublishingJob(ctx, payload.PublishingJobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "publish", "load job",
			fmt.Sprintf("publishing job %d not found", payload.PublishingJobID), nil)
	}
	decision, err := w.deps.Store.GetRoutingDecision(ctx, job.RoutingDecisionID)
	if err != nil {
		return err
	}
	if decision == nil {
		return services.Wrap(services.ErrNotFound, "publish", "load decision",
			fmt.Sprintf("routing decision %d not found", job.RoutingDecisionID), nil)
	}
	destination, err := w.deps.Store.GetDestination(ctx, decision.DestinationID)
	if err != nil {
		return err
	}
	if destination == nil {
		return services.Wrap(services.ErrNotFound, "publish", "load destination",
			fmt.Sprintf("destination %d not found", decision.DestinationID), nil)
	}
	post, err := w.deps.Store.GetPost(ctx, decision.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return services.Wrap(services.ErrNotFound, "publish", "load post",
			fmt.Sprintf("post %d not found", decision.PostID), nil)
	}
	logger := w.logger.With(
		logging.Int64(logging.FieldPublishingID, job.ID),
		logging.String(logging.FieldDestination, destination.Handle))

	if !destination.AutoPublish {
		if _, err := w.deps.Store.TransitionPublishingJob(ctx, job.ID, store.PublishingAwaitingApproval); err != nil {
			return err
		}
		w.deps.Hub.Record(ctx, events.Event{
			Type:       events.TypePublishAwaiting,
			Message:    fmt.Sprintf("Publishing of %s to @%s awaiting manual approval", post.Shortcode, destination.Handle),
			EntityType: "publishing_job",
			EntityID:   &job.ID,
		})
		logger.Info("publishing awaiting manual approval")
		return nil
	}

	translation, err := w.deps.Store.TranslationForPost(ctx, post.ID)
	if err != nil {
		return err
	}
	if translation == nil || len(translation.SlideTexts) == 0 {
		return services.Wrap(services.ErrNotFound, "publish", "load translation",
			fmt.Sprintf("no translation with slides for post %d", post.ID), nil)
	}
	caption := strings.Join(translation.SlideTexts, "\n\n")

	imageURLs, err := w.carouselImageURLs(ctx, translation.ID, destination.ID)
	if err != nil {
		return err
	}
	if len(imageURLs) < publisher.MinImages {
		return services.Wrap(services.ErrValidation, "publish", "collect images",
			fmt.Sprintf("not enough images for carousel (need %d+, have %d)", publisher.MinImages, len(imageURLs)), nil)
	}
	if len(imageURLs) > publisher.MaxImages {
		imageURLs = imageURLs[:publisher.MaxImages]
	}

	if _, err := w.deps.Store.BeginPublishingAttempt(ctx, job.ID); err != nil {
		return err
	}
	w.deps.Hub.Record(ctx, events.Event{
		Type:       "publish_started",
		Message:    fmt.Sprintf("Publishing %s to @%s", post.Shortcode, destination.Handle),
		EntityType: "publishing_job",
		EntityID:   &job.ID,
	})

	result, err := w.deps.Publisher.PublishCarousel(ctx, destination.PlatformUserID, destination.AccessToken, imageURLs, caption)
	if err != nil {
		if _, failErr := w.deps.Store.FailPublishingJob(ctx, job.ID, err.Error()); failErr != nil {
			logger.Error("failed to mark publishing job failed", logging.Error(failErr))
		}
		w.deps.Hub.Record(ctx, events.Event{
			Type:       events.TypePublishFailed,
			Message:    fmt.Sprintf("Publishing %s to @%s failed: %v", post.Shortcode, destination.Handle, err),
			EntityType: "publishing_job",
			EntityID:   &job.ID,
		})
		return err
	}

	if _, err := w.deps.Store.CompletePublishingJob(ctx, job.ID, result.ChildContainerIDs, result.ParentContainerID, result.PublishedMediaID); err != nil {
		return err
	}
	if _, err := w.deps.Store.TransitionRoutingDecision(ctx, decision.ID, store.RoutingPublished, false); err != nil {
		return err
	}
	w.deps.Hub.Record(ctx, events.Event{
		Type:       events.TypePublishCompleted,
		Message:    fmt.Sprintf("Published %s to @%s (media: %s)", post.Shortcode, destination.Handle, result.PublishedMediaID),
		EntityType: "publishing_job",
		EntityID:   &job.ID,
		Metadata:   fmt.Sprintf(`{"published_media_id":%q}`, result.PublishedMediaID),
	})
	logger.Info("carousel published", logging.String("media_id", result.PublishedMediaID))
	return nil
}

// carouselImageURLs collects the completed content slide URLs in position
// order, plus this destination's completed call-to-action slide when one
// exists.
func (w *Workers) carouselImageURLs(ctx context.Context, translationID, destinationID int64) ([]string, error) {
	all, err := w.deps.Store.SlidesForTranslation(ctx, translationID)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, slide := range all {
		if slide.DestinationID != nil || slide.Status != store.SlideCompleted || slide.ImagePath == "" {
			continue
		}
		urls = append(urls, w.mediaURL(ctx, slide.ImagePath))
	}
	for _, slide := range all {
		if slide.DestinationID == nil || *slide.DestinationID != destinationID {
			continue
		}
		if slide.Status == store.SlideCompleted && slide.ImagePath != "" {
			urls = append(urls, w.mediaURL(ctx, slide.ImagePath))
			break
		}
	}
	return urls, nil
}
