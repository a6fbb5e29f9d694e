package store

import (
	"context"
	"fmt"
)

// PipelineStats summarizes pipeline progress for status surfaces.
type PipelineStats struct {
	Channels          int64
	Destinations      int64
	Posts             int64
	ViralPosts        int64
	RoutingByStatus   map[RoutingStatus]int64
	TranslationsByStatus map[TranslationStatus]int64
	PublishingByStatus map[PublishingStatus]int64
}

// Stats computes entity counts grouped by status.
func (s *Store) Stats(ctx context.Context) (*PipelineStats, error) {
	stats := &PipelineStats{
		RoutingByStatus:      make(map[RoutingStatus]int64),
		TranslationsByStatus: make(map[TranslationStatus]int64),
		PublishingByStatus:   make(map[PublishingStatus]int64),
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(1) FROM channels", &stats.Channels},
		{"SELECT COUNT(1) FROM destinations", &stats.Destinations},
		{"SELECT COUNT(1) FROM posts", &stats.Posts},
		{"SELECT COUNT(1) FROM posts WHERE is_viral = 1", &stats.ViralPosts},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	if err := s.countByStatus(ctx, "routing_decisions", func(status string, count int64) {
		stats.RoutingByStatus[RoutingStatus(status)] = count
	}); err != nil {
		return nil, err
	}
	if err := s.countByStatus(ctx, "translations", func(status string, count int64) {
		stats.TranslationsByStatus[TranslationStatus(status)] = count
	}); err != nil {
		return nil, err
	}
	if err := s.countByStatus(ctx, "publishing_jobs", func(status string, count int64) {
		stats.PublishingByStatus[PublishingStatus(status)] = count
	}); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) countByStatus(ctx context.Context, table string, record func(status string, count int64)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM "+table+" GROUP BY status")
	if err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return fmt.Errorf("scan %s count: %w", table, err)
		}
		record(status, count)
	}
	return rows.Err()
}
