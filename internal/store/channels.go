package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var channelColumns = []string{
	"id", "username", "display_name", "scrape_frequency", "virality_threshold",
	"last_scraped_at", "total_posts_scraped", "is_active", "created_at", "updated_at",
}

// NewChannelParams describes a channel to create.
type NewChannelParams struct {
	Username          string
	DisplayName       string
	ScrapeFrequency   ScrapeFrequency
	ViralityThreshold *float64
}

// CreateChannel inserts a new source channel.
func (s *Store) CreateChannel(ctx context.Context, params NewChannelParams) (*Channel, error) {
	username := strings.TrimSpace(strings.TrimPrefix(params.Username, "@"))
	if username == "" {
		return nil, errors.New("channel username required")
	}
	frequency := params.ScrapeFrequency
	if frequency == "" {
		frequency = FrequencyDaily
	}
	if !frequency.Valid() {
		return nil, fmt.Errorf("invalid scrape frequency %q", frequency)
	}

	ts := now()
	query, args, err := builder.Insert("channels").
		Columns("username", "display_name", "scrape_frequency", "virality_threshold", "created_at", "updated_at").
		Values(username, params.DisplayName, string(frequency), nullableFloat64(params.ViralityThreshold), ts, ts).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert channel: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetChannel(ctx, id)
}

// GetChannel fetches a channel by id; nil when absent.
func (s *Store) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	return s.getChannelWhere(ctx, sq.Eq{"id": id})
}

// GetChannelByUsername fetches a channel by username; nil when absent.
func (s *Store) GetChannelByUsername(ctx context.Context, username string) (*Channel, error) {
	username = strings.TrimSpace(strings.TrimPrefix(username, "@"))
	return s.getChannelWhere(ctx, sq.Eq{"username": username})
}

func (s *Store) getChannelWhere(ctx context.Context, pred any) (*Channel, error) {
	query, args, err := builder.Select(channelColumns...).From("channels").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select channel: %w", err)
	}
	channel, err := scanChannel(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return channel, nil
}

// ListChannels returns channels ordered by username. When activeOnly is set,
// inactive channels are excluded.
func (s *Store) ListChannels(ctx context.Context, activeOnly bool) ([]*Channel, error) {
	q := builder.Select(channelColumns...).From("channels").OrderBy("username")
	if activeOnly {
		q = q.Where(sq.Eq{"is_active": 1})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list channels: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

// MarkChannelScraped records a completed scrape and adds newPosts to the
// running total.
func (s *Store) MarkChannelScraped(ctx context.Context, id int64, scrapedAt time.Time, newPosts int64) error {
	query, args, err := builder.Update("channels").
		Set("last_scraped_at", timestamp(scrapedAt)).
		Set("total_posts_scraped", sq.Expr("total_posts_scraped + ?", newPosts)).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark scraped: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark channel scraped: %w", err)
	}
	return nil
}

// SetChannelActive toggles whether the scheduler and scrape worker consider
// the channel.
func (s *Store) SetChannelActive(ctx context.Context, id int64, active bool) error {
	return s.updateChannel(ctx, id, map[string]any{"is_active": boolInt(active)})
}

// SetChannelThreshold sets or clears the per-channel virality threshold
// override.
func (s *Store) SetChannelThreshold(ctx context.Context, id int64, threshold *float64) error {
	return s.updateChannel(ctx, id, map[string]any{"virality_threshold": nullableFloat64(threshold)})
}

// SetChannelFrequency updates the scrape cadence.
func (s *Store) SetChannelFrequency(ctx context.Context, id int64, frequency ScrapeFrequency) error {
	if !frequency.Valid() {
		return fmt.Errorf("invalid scrape frequency %q", frequency)
	}
	return s.updateChannel(ctx, id, map[string]any{"scrape_frequency": string(frequency)})
}

func (s *Store) updateChannel(ctx context.Context, id int64, sets map[string]any) error {
	q := builder.Update("channels").Set("updated_at", now()).Where(sq.Eq{"id": id})
	for column, value := range sets {
		q = q.Set(column, value)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update channel: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("channel %d not found", id)
	}
	return nil
}

// DeleteChannel removes a channel and, via cascade, its posts and their
// downstream records.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	query, args, err := builder.Delete("channels").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete channel: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	var (
		channel       Channel
		frequency     string
		threshold     sql.NullFloat64
		lastScraped   sql.NullString
		active        int64
		created, updated string
	)
	err := row.Scan(
		&channel.ID, &channel.Username, &channel.DisplayName, &frequency, &threshold,
		&lastScraped, &channel.TotalPostsScraped, &active, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	channel.ScrapeFrequency = ScrapeFrequency(frequency)
	channel.ViralityThreshold = nullableFloat(threshold)
	channel.LastScrapedAt = parseNullTime(lastScraped)
	channel.IsActive = active != 0
	channel.CreatedAt = parseTime(created)
	channel.UpdatedAt = parseTime(updated)
	return &channel, nil
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func nullableFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
