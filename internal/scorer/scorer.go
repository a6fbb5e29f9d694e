// Package scorer computes virality scores for scraped posts against their
// channel's recent engagement baseline.
package scorer

import (
	"context"
	"fmt"

	"recast/internal/store"
)

const (
	// DefaultThreshold is the virality multiplier used when neither the
	// channel nor the global setting provides one.
	DefaultThreshold = 3.0
	// baselineMinPosts is the sample size below which posts are stored but
	// never flagged viral.
	baselineMinPosts = 10
	// baselineWindow is how many recent posts feed the baseline.
	baselineWindow = 100
)

// HiddenLikes marks a post whose source hides like counts. Scoring then
// falls back to comments only.
const HiddenLikes = -1

// Result is the outcome of scoring one post.
type Result struct {
	EngagementRate float64
	ViralScore     float64
	IsViral        bool
	Reason         string
}

// Scorer scores posts using baselines read from the store.
type Scorer struct {
	store *store.Store
}

// New constructs a Scorer.
func New(s *store.Store) *Scorer {
	return &Scorer{store: s}
}

// engagementRate returns the post's raw engagement and whether it came from
// comments only.
func engagementRate(likes, comments int64) (float64, bool) {
	if likes == HiddenLikes {
		return float64(comments), true
	}
	return float64(likes + comments), false
}

type baseline struct {
	avgRate             float64
	commentsOnlyAvgRate float64
	postCount           int
}

func (s *Scorer) channelBaseline(ctx context.Context, channelID int64) (baseline, error) {
	posts, err := s.store.RecentChannelPosts(ctx, channelID, baselineWindow)
	if err != nil {
		return baseline{}, fmt.Errorf("load baseline posts: %w", err)
	}

	var (
		totalNormal       float64
		totalCommentsOnly float64
		countNormal       int
		countCommentsOnly int
	)
	for _, post := range posts {
		if post.Likes == HiddenLikes {
			totalCommentsOnly += float64(post.Comments)
			countCommentsOnly++
		} else {
			totalNormal += float64(post.Likes + post.Comments)
			countNormal++
		}
	}

	b := baseline{postCount: len(posts)}
	if countNormal > 0 {
		b.avgRate = totalNormal / float64(countNormal)
	}
	if countCommentsOnly > 0 {
		b.commentsOnlyAvgRate = totalCommentsOnly / float64(countCommentsOnly)
	}
	return b, nil
}

// threshold resolves the virality multiplier: channel override first, then
// the global setting, then the default.
func (s *Scorer) threshold(ctx context.Context, channel *store.Channel) (float64, error) {
	if channel.ViralityThreshold != nil && *channel.ViralityThreshold > 0 {
		return *channel.ViralityThreshold, nil
	}
	global, ok, err := s.store.GlobalViralityThreshold(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return global, nil
	}
	return DefaultThreshold, nil
}

// Score evaluates a post against its channel baseline. The post itself is
// part of the baseline window, matching how the pipeline scores posts after
// they are stored.
func (s *Scorer) Score(ctx context.Context, post *store.Post) (*Result, error) {
	channel, err := s.store.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, fmt.Errorf("channel %d not found", post.ChannelID)
	}

	b, err := s.channelBaseline(ctx, post.ChannelID)
	if err != nil {
		return nil, err
	}
	threshold, err := s.threshold(ctx, channel)
	if err != nil {
		return nil, err
	}

	rate, commentsOnly := engagementRate(post.Likes, post.Comments)

	if b.postCount < baselineMinPosts {
		return &Result{
			EngagementRate: rate,
			Reason:         fmt.Sprintf("insufficient baseline data (%d/%d posts)", b.postCount, baselineMinPosts),
		}, nil
	}

	baselineRate := b.avgRate
	if commentsOnly {
		baselineRate = b.commentsOnlyAvgRate
	}
	if baselineRate == 0 {
		return &Result{
			EngagementRate: rate,
			Reason:         "baseline rate is zero",
		}, nil
	}

	score := rate / baselineRate
	viral := score >= threshold
	reason := fmt.Sprintf("%.1fx below %gx threshold", score, threshold)
	if viral {
		reason = fmt.Sprintf("%.1fx above baseline (threshold %gx)", score, threshold)
	}
	return &Result{
		EngagementRate: rate,
		ViralScore:     score,
		IsViral:        viral,
		Reason:         reason,
	}, nil
}
