package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var postColumns = []string{
	"id", "channel_id", "shortcode", "caption", "likes", "comments",
	"display_url", "posted_at", "engagement_rate", "viral_score", "is_viral", "created_at",
}

// NewPostParams describes a scraped post. Likes of -1 marks hidden like
// counts.
type NewPostParams struct {
	ChannelID  int64
	Shortcode  string
	Caption    string
	Likes      int64
	Comments   int64
	DisplayURL string
	PostedAt   *time.Time
}

// InsertPost stores a scraped post. Posts are deduplicated by shortcode:
// inserting an already-known shortcode is a no-op and returns created=false.
func (s *Store) InsertPost(ctx context.Context, params NewPostParams) (*Post, bool, error) {
	if params.Shortcode == "" {
		return nil, false, errors.New("post shortcode required")
	}

	query, args, err := builder.Insert("posts").
		Columns("channel_id", "shortcode", "caption", "likes", "comments", "display_url", "posted_at", "created_at").
		Values(params.ChannelID, params.Shortcode, params.Caption, params.Likes, params.Comments,
			params.DisplayURL, nullableTime(params.PostedAt), now()).
		Suffix("ON CONFLICT(shortcode) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build insert post: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("insert post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	post, err := s.GetPostByShortcode(ctx, params.Shortcode)
	if err != nil {
		return nil, false, err
	}
	return post, affected > 0, nil
}

// GetPost fetches a post by id; nil when absent.
func (s *Store) GetPost(ctx context.Context, id int64) (*Post, error) {
	return s.getPostWhere(ctx, sq.Eq{"id": id})
}

// GetPostByShortcode fetches a post by its unique shortcode; nil when absent.
func (s *Store) GetPostByShortcode(ctx context.Context, shortcode string) (*Post, error) {
	return s.getPostWhere(ctx, sq.Eq{"shortcode": shortcode})
}

func (s *Store) getPostWhere(ctx context.Context, pred any) (*Post, error) {
	query, args, err := builder.Select(postColumns...).From("posts").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select post: %w", err)
	}
	post, err := scanPost(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// RecentChannelPosts returns up to limit posts for a channel, most recent
// first. Ordering prefers the source timestamp and falls back to the scrape
// time for posts without one.
func (s *Store) RecentChannelPosts(ctx context.Context, channelID int64, limit uint64) ([]*Post, error) {
	query, args, err := builder.Select(postColumns...).
		From("posts").
		Where(sq.Eq{"channel_id": channelID}).
		OrderBy("COALESCE(posted_at, created_at) DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent posts: %w", err)
	}
	return s.queryPosts(ctx, query, args)
}

// UnanalyzedChannelPosts returns the channel's posts that have not been
// scored yet.
func (s *Store) UnanalyzedChannelPosts(ctx context.Context, channelID int64) ([]*Post, error) {
	query, args, err := builder.Select(postColumns...).
		From("posts").
		Where(sq.And{sq.Eq{"channel_id": channelID}, sq.Expr("engagement_rate IS NULL")}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unanalyzed posts: %w", err)
	}
	return s.queryPosts(ctx, query, args)
}

func (s *Store) queryPosts(ctx context.Context, query string, args []any) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// SetPostScore persists the analysis result for a post.
func (s *Store) SetPostScore(ctx context.Context, id int64, engagementRate, viralScore float64, viral bool) error {
	query, args, err := builder.Update("posts").
		Set("engagement_rate", engagementRate).
		Set("viral_score", viralScore).
		Set("is_viral", boolInt(viral)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set post score: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set post score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("post %d not found", id)
	}
	return nil
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		post     Post
		postedAt sql.NullString
		rate     sql.NullFloat64
		score    sql.NullFloat64
		viral    int64
		created  string
	)
	err := row.Scan(
		&post.ID, &post.ChannelID, &post.Shortcode, &post.Caption, &post.Likes, &post.Comments,
		&post.DisplayURL, &postedAt, &rate, &score, &viral, &created,
	)
	if err != nil {
		return nil, err
	}
	post.PostedAt = parseNullTime(postedAt)
	post.EngagementRate = nullableFloat(rate)
	post.ViralScore = nullableFloat(score)
	post.IsViral = viral != 0
	post.CreatedAt = parseTime(created)
	return &post, nil
}
