package scorer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"recast/internal/scorer"
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

func newChannel(t *testing.T, s *store.Store, threshold *float64) *store.Channel {
	t.Helper()
	channel, err := s.CreateChannel(context.Background(), store.NewChannelParams{
		Username:          "source",
		ViralityThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return channel
}

func addPost(t *testing.T, s *store.Store, channelID, likes, comments int64) *store.Post {
	t.Helper()
	post, _, err := s.InsertPost(context.Background(), store.NewPostParams{
		ChannelID: channelID,
		Shortcode: fmt.Sprintf("SC%d-%d-%d", channelID, likes, comments),
		Likes:     likes,
		Comments:  comments,
	})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return post
}

// fillBaseline inserts posts with the given engagement rates as likes.
func fillBaseline(t *testing.T, s *store.Store, channelID int64, rates []int64) {
	t.Helper()
	for i, rate := range rates {
		_, _, err := s.InsertPost(context.Background(), store.NewPostParams{
			ChannelID: channelID,
			Shortcode: fmt.Sprintf("BASE%d-%d", channelID, i),
			Likes:     rate,
		})
		if err != nil {
			t.Fatalf("insert baseline post: %v", err)
		}
	}
}

func TestScoreInsufficientBaseline(t *testing.T) {
	s := openStore(t)
	channel := newChannel(t, s, nil)
	fillBaseline(t, s, channel.ID, []int64{100, 100, 100, 100})
	post := addPost(t, s, channel.ID, 400, 100)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.IsViral {
		t.Fatal("sparse baseline must not flag viral")
	}
	if result.ViralScore != 0 {
		t.Fatalf("expected score 0, got %v", result.ViralScore)
	}
	if result.EngagementRate != 500 {
		t.Fatalf("engagement rate must still be computed, got %v", result.EngagementRate)
	}
	if result.Reason != "insufficient baseline data (5/10 posts)" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestScoreViralAtThreshold(t *testing.T) {
	s := openStore(t)
	channel := newChannel(t, s, nil)
	// Eleven baseline posts plus the scored post: total engagement 1200
	// over 12 posts, mean 100.
	rates := []int64{90, 90, 90, 90, 90, 90, 90, 90, 90, 90, 0}
	fillBaseline(t, s, channel.ID, rates)
	post := addPost(t, s, channel.ID, 300, 0)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.ViralScore != 3.0 {
		t.Fatalf("expected score 3.0, got %v", result.ViralScore)
	}
	if !result.IsViral {
		t.Fatal("score equal to threshold must be viral")
	}
	if result.Reason != "3.0x above baseline (threshold 3x)" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestScoreBelowThreshold(t *testing.T) {
	s := openStore(t)
	channel := newChannel(t, s, nil)
	rates := []int64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 0}
	fillBaseline(t, s, channel.ID, rates)
	post := addPost(t, s, channel.ID, 200, 0)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.ViralScore != 2.0 || result.IsViral {
		t.Fatalf("expected 2.0 not viral, got %v viral=%v", result.ViralScore, result.IsViral)
	}
	if result.Reason != "2.0x below 3x threshold" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestScoreHiddenLikesUsesCommentsOnlyBaseline(t *testing.T) {
	s := openStore(t)
	channel := newChannel(t, s, nil)
	// Eleven hidden-likes posts; with the scored post the comments-only
	// mean is (10*20 + 0 + 40) / 12 = 20.
	for i, comments := range []int64{20, 20, 20, 20, 20, 20, 20, 20, 20, 20, 0} {
		_, _, err := s.InsertPost(context.Background(), store.NewPostParams{
			ChannelID: channel.ID,
			Shortcode: fmt.Sprintf("HIDDEN%d", i),
			Likes:     -1,
			Comments:  comments,
		})
		if err != nil {
			t.Fatalf("insert baseline post: %v", err)
		}
	}
	post := addPost(t, s, channel.ID, -1, 40)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.EngagementRate != 40 {
		t.Fatalf("expected comments-only rate 40, got %v", result.EngagementRate)
	}
	if result.ViralScore != 2.0 {
		t.Fatalf("expected score 2.0, got %v", result.ViralScore)
	}
	if result.IsViral {
		t.Fatal("2.0 is below the default threshold")
	}
}

func TestScoreZeroBaselineGuard(t *testing.T) {
	s := openStore(t)
	channel := newChannel(t, s, nil)
	fillBaseline(t, s, channel.ID, []int64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	post := addPost(t, s, channel.ID, 0, 0)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.IsViral || result.ViralScore != 0 {
		t.Fatalf("expected guard result, got %+v", result)
	}
	if result.Reason != "baseline rate is zero" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestScoreChannelThresholdOverridesGlobal(t *testing.T) {
	s := openStore(t)
	override := 2.0
	channel := newChannel(t, s, &override)
	if err := s.SetSetting(context.Background(), store.SettingGlobalViralityThreshold, "5.0"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	rates := []int64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 0}
	fillBaseline(t, s, channel.ID, rates)
	post := addPost(t, s, channel.ID, 200, 0)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !result.IsViral {
		t.Fatalf("channel override 2.0 should flag score %v viral", result.ViralScore)
	}
}

func TestScoreGlobalSettingThreshold(t *testing.T) {
	s := openStore(t)
	channel := newChannel(t, s, nil)
	if err := s.SetSetting(context.Background(), store.SettingGlobalViralityThreshold, "1.5"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	rates := []int64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 0}
	fillBaseline(t, s, channel.ID, rates)
	post := addPost(t, s, channel.ID, 200, 0)

	result, err := scorer.New(s).Score(context.Background(), post)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !result.IsViral {
		t.Fatalf("global threshold 1.5 should flag score %v viral", result.ViralScore)
	}
}
