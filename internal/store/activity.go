package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AppendActivity records an audit event row.
func (s *Store) AppendActivity(ctx context.Context, eventType, message, entityType string, entityID *int64, metadata string) (*Activity, error) {
	query, args, err := builder.Insert("activity_log").
		Columns("event_type", "message", "entity_type", "entity_id", "metadata", "created_at").
		Values(eventType, message, entityType, nullableInt64(entityID), metadata, now()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert activity: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	activities, err := s.RecentActivity(ctx, 1)
	if err != nil {
		return nil, err
	}
	for _, activity := range activities {
		if activity.ID == id {
			return activity, nil
		}
	}
	return &Activity{ID: id, EventType: eventType, Message: message, EntityType: entityType, EntityID: entityID, Metadata: metadata}, nil
}

// RecentActivity returns up to limit audit rows, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit uint64) ([]*Activity, error) {
	query, args, err := builder.Select("id", "event_type", "message", "entity_type", "entity_id", "metadata", "created_at").
		From("activity_log").
		OrderBy("id DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent activity: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		var (
			activity Activity
			entityID sql.NullInt64
			created  string
		)
		if err := rows.Scan(&activity.ID, &activity.EventType, &activity.Message,
			&activity.EntityType, &entityID, &activity.Metadata, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if entityID.Valid {
			v := entityID.Int64
			activity.EntityID = &v
		}
		activity.CreatedAt = parseTime(created)
		activities = append(activities, &activity)
	}
	return activities, rows.Err()
}
