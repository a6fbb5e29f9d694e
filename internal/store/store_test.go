package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"recast/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustChannel(t *testing.T, s *store.Store, username string) *store.Channel {
	t.Helper()
	channel, err := s.CreateChannel(context.Background(), store.NewChannelParams{Username: username})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return channel
}

func mustDestination(t *testing.T, s *store.Store, name string) *store.Destination {
	t.Helper()
	destination, err := s.CreateDestination(context.Background(), store.NewDestinationParams{
		Name:   name,
		Handle: "@" + name,
		Topic:  "fitness and wellness",
	})
	if err != nil {
		t.Fatalf("create destination: %v", err)
	}
	return destination
}

func mustPost(t *testing.T, s *store.Store, channelID int64, shortcode string) *store.Post {
	t.Helper()
	post, created, err := s.InsertPost(context.Background(), store.NewPostParams{
		ChannelID: channelID,
		Shortcode: shortcode,
		Caption:   "caption for " + shortcode,
		Likes:     100,
		Comments:  10,
	})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	if !created {
		t.Fatalf("expected post %s to be created", shortcode)
	}
	return post
}

func TestChannelRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	threshold := 2.5
	channel, err := s.CreateChannel(ctx, store.NewChannelParams{
		Username:          "@fitness_daily",
		DisplayName:       "Fitness Daily",
		ScrapeFrequency:   store.FrequencyHourly,
		ViralityThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if channel.Username != "fitness_daily" {
		t.Fatalf("expected @ stripped, got %q", channel.Username)
	}
	if channel.ScrapeFrequency != store.FrequencyHourly {
		t.Fatalf("unexpected frequency: %q", channel.ScrapeFrequency)
	}
	if channel.ViralityThreshold == nil || *channel.ViralityThreshold != 2.5 {
		t.Fatalf("unexpected threshold: %v", channel.ViralityThreshold)
	}
	if !channel.IsActive {
		t.Fatal("expected channel active by default")
	}

	scrapedAt := time.Now()
	if err := s.MarkChannelScraped(ctx, channel.ID, scrapedAt, 7); err != nil {
		t.Fatalf("mark scraped: %v", err)
	}
	reloaded, err := s.GetChannelByUsername(ctx, "fitness_daily")
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if reloaded.TotalPostsScraped != 7 {
		t.Fatalf("unexpected total scraped: %d", reloaded.TotalPostsScraped)
	}
	if reloaded.LastScrapedAt == nil {
		t.Fatal("expected last scraped timestamp")
	}

	if err := s.SetChannelActive(ctx, channel.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := s.ListChannels(ctx, true)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active channels, got %d", len(active))
	}
}

func TestCreateChannelRejectsBadFrequency(t *testing.T) {
	s := openStore(t)
	_, err := s.CreateChannel(context.Background(), store.NewChannelParams{
		Username:        "someone",
		ScrapeFrequency: "weekly",
	})
	if err == nil {
		t.Fatal("expected error for invalid frequency")
	}
}

func TestInsertPostDeduplicatesByShortcode(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")

	first, created, err := s.InsertPost(ctx, store.NewPostParams{ChannelID: channel.ID, Shortcode: "ABC123", Likes: 50})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create")
	}

	second, created, err := s.InsertPost(ctx, store.NewPostParams{ChannelID: channel.ID, Shortcode: "ABC123", Likes: 999})
	if err != nil {
		t.Fatalf("reinsert post: %v", err)
	}
	if created {
		t.Fatal("expected duplicate shortcode to be ignored")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row, got %d and %d", first.ID, second.ID)
	}
	if second.Likes != 50 {
		t.Fatalf("duplicate insert must not overwrite, likes = %d", second.Likes)
	}
}

func TestRecentChannelPostsOrdersBySourceTimestamp(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")

	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	if _, _, err := s.InsertPost(ctx, store.NewPostParams{ChannelID: channel.ID, Shortcode: "old", PostedAt: &older}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := s.InsertPost(ctx, store.NewPostParams{ChannelID: channel.ID, Shortcode: "new", PostedAt: &newer}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// No source timestamp: ordering falls back to scrape time.
	if _, _, err := s.InsertPost(ctx, store.NewPostParams{ChannelID: channel.ID, Shortcode: "unknown"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	posts, err := s.RecentChannelPosts(ctx, channel.ID, 10)
	if err != nil {
		t.Fatalf("recent posts: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(posts))
	}
	if posts[0].Shortcode != "unknown" {
		t.Fatalf("expected scrape-time post first, got %q", posts[0].Shortcode)
	}
	if posts[1].Shortcode != "new" || posts[2].Shortcode != "old" {
		t.Fatalf("unexpected order: %q, %q", posts[1].Shortcode, posts[2].Shortcode)
	}
}

func TestSetPostScoreAndUnanalyzedFilter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	post := mustPost(t, s, channel.ID, "P1")
	mustPost(t, s, channel.ID, "P2")

	if err := s.SetPostScore(ctx, post.ID, 110, 3.2, true); err != nil {
		t.Fatalf("set score: %v", err)
	}

	unanalyzed, err := s.UnanalyzedChannelPosts(ctx, channel.ID)
	if err != nil {
		t.Fatalf("unanalyzed: %v", err)
	}
	if len(unanalyzed) != 1 || unanalyzed[0].Shortcode != "P2" {
		t.Fatalf("expected only P2 unanalyzed, got %+v", unanalyzed)
	}

	scored, err := s.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if scored.EngagementRate == nil || *scored.EngagementRate != 110 {
		t.Fatalf("unexpected engagement rate: %v", scored.EngagementRate)
	}
	if !scored.IsViral {
		t.Fatal("expected post viral")
	}
}

func TestRoutingDecisionLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")

	decision, created, err := s.CreateRoutingDecision(ctx, post.ID, destination.ID, 85, "strong topical overlap")
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	if !created {
		t.Fatal("expected decision created")
	}
	if decision.Status != store.RoutingPending {
		t.Fatalf("unexpected status: %q", decision.Status)
	}

	_, created, err = s.CreateRoutingDecision(ctx, post.ID, destination.ID, 99, "dup")
	if err != nil {
		t.Fatalf("duplicate decision: %v", err)
	}
	if created {
		t.Fatal("expected duplicate pair to be ignored")
	}

	approved, err := s.TransitionRoutingDecision(ctx, decision.ID, store.RoutingApproved, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.UserOverride {
		t.Fatal("expected user override recorded")
	}

	if _, err := s.TransitionRoutingDecision(ctx, decision.ID, store.RoutingPending, false); err == nil {
		t.Fatal("expected invalid transition error")
	} else {
		var invalid *store.ErrInvalidTransition
		if !errors.As(err, &invalid) {
			t.Fatalf("unexpected error type: %v", err)
		}
	}

	if _, err := s.TransitionRoutingDecision(ctx, decision.ID, store.RoutingPublished, false); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := s.TransitionRoutingDecision(ctx, decision.ID, store.RoutingApproved, true); err == nil {
		t.Fatal("published must be terminal")
	}
}

func TestTranslationQualityRetryFlow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	post := mustPost(t, s, channel.ID, "P1")

	translation, err := s.BeginTranslation(ctx, post.ID, 0)
	if err != nil {
		t.Fatalf("begin translation: %v", err)
	}
	if translation.Status != store.TranslationTranslating {
		t.Fatalf("unexpected status: %q", translation.Status)
	}

	if err := s.SaveTranslationResult(ctx, translation.ID, []string{"slide one", "slide two"}, 5); err != nil {
		t.Fatalf("save result: %v", err)
	}

	// Quality retry reuses the same row with a bumped retry count.
	retried, err := s.BeginTranslation(ctx, post.ID, 1)
	if err != nil {
		t.Fatalf("begin retry: %v", err)
	}
	if retried.ID != translation.ID {
		t.Fatalf("expected same translation row, got %d and %d", translation.ID, retried.ID)
	}
	if retried.RetryCount != 1 {
		t.Fatalf("unexpected retry count: %d", retried.RetryCount)
	}

	if err := s.SaveTranslationResult(ctx, translation.ID, []string{"better one", "better two"}, 8); err != nil {
		t.Fatalf("save result: %v", err)
	}
	completed, err := s.CompleteTranslation(ctx, translation.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != store.TranslationCompleted {
		t.Fatalf("unexpected status: %q", completed.Status)
	}
	if len(completed.SlideTexts) != 2 || completed.SlideTexts[0] != "better one" {
		t.Fatalf("unexpected slides: %v", completed.SlideTexts)
	}

	if _, err := s.BeginTranslation(ctx, post.ID, 2); err == nil {
		t.Fatal("completed translation must not restart")
	}
}

func TestSlideEnsureAndSharedUniqueness(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")
	translation, err := s.BeginTranslation(ctx, post.ID, 0)
	if err != nil {
		t.Fatalf("begin translation: %v", err)
	}

	shared, created, err := s.EnsureSlide(ctx, translation.ID, 1, nil, "hook text")
	if err != nil {
		t.Fatalf("ensure slide: %v", err)
	}
	if !created {
		t.Fatal("expected slide created")
	}

	again, created, err := s.EnsureSlide(ctx, translation.ID, 1, nil, "different text")
	if err != nil {
		t.Fatalf("re-ensure slide: %v", err)
	}
	if created {
		t.Fatal("expected shared slide uniqueness to hold")
	}
	if again.ID != shared.ID {
		t.Fatalf("expected same slide, got %d and %d", shared.ID, again.ID)
	}

	// A CTA slide at the same position for a destination is distinct.
	cta, created, err := s.EnsureSlide(ctx, translation.ID, 1, &destination.ID, "follow us")
	if err != nil {
		t.Fatalf("ensure cta: %v", err)
	}
	if !created {
		t.Fatal("expected cta slide created")
	}
	if cta.ID == shared.ID {
		t.Fatal("cta must be a separate row")
	}

	generating, err := s.MarkSlideGenerating(ctx, shared.ID)
	if err != nil {
		t.Fatalf("mark generating: %v", err)
	}
	if generating.Attempts != 1 {
		t.Fatalf("unexpected attempts: %d", generating.Attempts)
	}
	completedSlide, err := s.CompleteSlide(ctx, shared.ID, "slides/1/slide_1.png")
	if err != nil {
		t.Fatalf("complete slide: %v", err)
	}
	if completedSlide.ImagePath != "slides/1/slide_1.png" {
		t.Fatalf("unexpected image path: %q", completedSlide.ImagePath)
	}
	if _, err := s.MarkSlideGenerating(ctx, shared.ID); err == nil {
		t.Fatal("completed slide must not regenerate")
	}

	content, err := s.ContentSlidesForTranslation(ctx, translation.ID)
	if err != nil {
		t.Fatalf("content slides: %v", err)
	}
	if len(content) != 1 || content[0].ID != shared.ID {
		t.Fatalf("expected only shared slide in content set, got %d", len(content))
	}
}

func TestPublishingJobLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")
	decision, _, err := s.CreateRoutingDecision(ctx, post.ID, destination.ID, 80, "match")
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}

	job, created, err := s.EnsurePublishingJob(ctx, decision.ID)
	if err != nil {
		t.Fatalf("ensure job: %v", err)
	}
	if !created || job.Status != store.PublishingQueued {
		t.Fatalf("unexpected job: created=%v status=%q", created, job.Status)
	}

	_, created, err = s.EnsurePublishingJob(ctx, decision.ID)
	if err != nil {
		t.Fatalf("re-ensure job: %v", err)
	}
	if created {
		t.Fatal("expected one live job per decision")
	}

	started, err := s.BeginPublishingAttempt(ctx, job.ID)
	if err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	if started.Status != store.PublishingCreating || started.Attempts != 1 {
		t.Fatalf("unexpected state: %q attempts=%d", started.Status, started.Attempts)
	}

	published, err := s.CompletePublishingJob(ctx, job.ID, []string{"c1", "c2"}, "carousel-1", "media-9")
	if err != nil {
		t.Fatalf("complete job: %v", err)
	}
	if published.Status != store.PublishingPublished {
		t.Fatalf("unexpected status: %q", published.Status)
	}
	if len(published.ContainerIDs) != 2 || published.PublishedMediaID != "media-9" {
		t.Fatalf("unexpected artifacts: %+v", published)
	}

	if _, err := s.TransitionPublishingJob(ctx, job.ID, store.PublishingQueued); err == nil {
		t.Fatal("published must be terminal")
	}
}

func TestPublishingApprovalAndRetryTransitions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")
	decision, _, err := s.CreateRoutingDecision(ctx, post.ID, destination.ID, 80, "match")
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	job, _, err := s.EnsurePublishingJob(ctx, decision.ID)
	if err != nil {
		t.Fatalf("ensure job: %v", err)
	}

	waiting, err := s.TransitionPublishingJob(ctx, job.ID, store.PublishingAwaitingApproval)
	if err != nil {
		t.Fatalf("awaiting approval: %v", err)
	}
	if waiting.Status != store.PublishingAwaitingApproval {
		t.Fatalf("unexpected status: %q", waiting.Status)
	}
	requeued, err := s.TransitionPublishingJob(ctx, job.ID, store.PublishingQueued)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if requeued.Status != store.PublishingQueued {
		t.Fatalf("unexpected status: %q", requeued.Status)
	}

	if _, err := s.BeginPublishingAttempt(ctx, job.ID); err != nil {
		t.Fatalf("begin attempt: %v", err)
	}
	failed, err := s.FailPublishingJob(ctx, job.ID, "graph error")
	if err != nil {
		t.Fatalf("fail job: %v", err)
	}
	if failed.Error != "graph error" {
		t.Fatalf("unexpected error text: %q", failed.Error)
	}
	if _, err := s.TransitionPublishingJob(ctx, job.ID, store.PublishingQueued); err != nil {
		t.Fatalf("manual retry: %v", err)
	}
}

func TestPublishingAttemptReentry(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")
	decision, _, err := s.CreateRoutingDecision(ctx, post.ID, destination.ID, 80, "match")
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	job, _, err := s.EnsurePublishingJob(ctx, decision.ID)
	if err != nil {
		t.Fatalf("ensure job: %v", err)
	}

	if _, err := s.BeginPublishingAttempt(ctx, job.ID); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := s.FailPublishingJob(ctx, job.ID, "container error"); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	// A failed job accepts the next automatic attempt without a manual
	// requeue in between.
	second, err := s.BeginPublishingAttempt(ctx, job.ID)
	if err != nil {
		t.Fatalf("attempt after failure: %v", err)
	}
	if second.Status != store.PublishingCreating || second.Attempts != 2 {
		t.Fatalf("unexpected state: %q attempts=%d", second.Status, second.Attempts)
	}

	// A job left in creating_containers by a crashed process accepts
	// re-dispatch directly.
	third, err := s.BeginPublishingAttempt(ctx, job.ID)
	if err != nil {
		t.Fatalf("attempt after crash: %v", err)
	}
	if third.Status != store.PublishingCreating || third.Attempts != 3 {
		t.Fatalf("unexpected state: %q attempts=%d", third.Status, third.Attempts)
	}

	published, err := s.CompletePublishingJob(ctx, job.ID, []string{"c1"}, "carousel-1", "media-1")
	if err != nil {
		t.Fatalf("complete job: %v", err)
	}
	if published.Status != store.PublishingPublished {
		t.Fatalf("unexpected status: %q", published.Status)
	}
}

func TestCascadeDeleteChannelRemovesDownstream(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")
	decision, _, err := s.CreateRoutingDecision(ctx, post.ID, destination.ID, 80, "match")
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	translation, err := s.BeginTranslation(ctx, post.ID, 0)
	if err != nil {
		t.Fatalf("begin translation: %v", err)
	}
	if _, _, err := s.EnsureSlide(ctx, translation.ID, 1, nil, "text"); err != nil {
		t.Fatalf("ensure slide: %v", err)
	}
	if _, _, err := s.EnsurePublishingJob(ctx, decision.ID); err != nil {
		t.Fatalf("ensure job: %v", err)
	}

	if err := s.DeleteChannel(ctx, channel.ID); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	if got, err := s.GetPost(ctx, post.ID); err != nil || got != nil {
		t.Fatalf("expected post cascade-deleted, got %v err %v", got, err)
	}
	if got, err := s.GetTranslation(ctx, translation.ID); err != nil || got != nil {
		t.Fatalf("expected translation cascade-deleted, got %v err %v", got, err)
	}
	if got, err := s.GetRoutingDecision(ctx, decision.ID); err != nil || got != nil {
		t.Fatalf("expected decision cascade-deleted, got %v err %v", got, err)
	}
}

func TestSettingsAndThreshold(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if _, ok, err := s.GlobalViralityThreshold(ctx); err != nil || ok {
		t.Fatalf("expected unset threshold, ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, store.SettingGlobalViralityThreshold, "2.5"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	threshold, ok, err := s.GlobalViralityThreshold(ctx)
	if err != nil || !ok || threshold != 2.5 {
		t.Fatalf("unexpected threshold: %v ok=%v err=%v", threshold, ok, err)
	}
	if err := s.SetSetting(ctx, store.SettingGlobalViralityThreshold, "not a number"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if _, ok, _ := s.GlobalViralityThreshold(ctx); ok {
		t.Fatal("unparseable threshold must read as unset")
	}
}

func TestActivityLogRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	entityID := int64(42)
	if _, err := s.AppendActivity(ctx, "post_viral", "post went viral", "post", &entityID, `{"score":3.1}`); err != nil {
		t.Fatalf("append activity: %v", err)
	}
	if _, err := s.AppendActivity(ctx, "scrape_completed", "scrape done", "channel", nil, ""); err != nil {
		t.Fatalf("append activity: %v", err)
	}

	recent, err := s.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(recent))
	}
	if recent[0].EventType != "scrape_completed" {
		t.Fatalf("expected newest first, got %q", recent[0].EventType)
	}
	if recent[1].EntityID == nil || *recent[1].EntityID != 42 {
		t.Fatalf("unexpected entity id: %v", recent[1].EntityID)
	}
}

func TestStatsCounts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	channel := mustChannel(t, s, "source")
	destination := mustDestination(t, s, "fithub")
	post := mustPost(t, s, channel.ID, "P1")
	if err := s.SetPostScore(ctx, post.ID, 200, 4.0, true); err != nil {
		t.Fatalf("set score: %v", err)
	}
	if _, _, err := s.CreateRoutingDecision(ctx, post.ID, destination.ID, 80, "match"); err != nil {
		t.Fatalf("create decision: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Channels != 1 || stats.Destinations != 1 || stats.Posts != 1 || stats.ViralPosts != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.RoutingByStatus[store.RoutingPending] != 1 {
		t.Fatalf("unexpected routing counts: %+v", stats.RoutingByStatus)
	}
}
