package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var destinationColumns = []string{
	"id", "name", "platform_user_id", "handle", "access_token", "topic",
	"brand_color_primary", "brand_color_secondary", "logo_url", "cta_template",
	"auto_publish", "is_active", "created_at", "updated_at",
}

// NewDestinationParams describes a destination account to create.
type NewDestinationParams struct {
	Name           string
	PlatformUserID string
	Handle         string
	AccessToken    string
	Topic          string
	BrandColorPrim string
	BrandColorSec  string
	LogoURL        string
	CTATemplate    string
	AutoPublish    bool
}

// CreateDestination inserts a new destination account.
func (s *Store) CreateDestination(ctx context.Context, params NewDestinationParams) (*Destination, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("destination name required")
	}

	ts := now()
	query, args, err := builder.Insert("destinations").
		Columns("name", "platform_user_id", "handle", "access_token", "topic",
			"brand_color_primary", "brand_color_secondary", "logo_url", "cta_template",
			"auto_publish", "created_at", "updated_at").
		Values(name, params.PlatformUserID, strings.TrimPrefix(params.Handle, "@"), params.AccessToken, params.Topic,
			params.BrandColorPrim, params.BrandColorSec, params.LogoURL, params.CTATemplate,
			boolInt(params.AutoPublish), ts, ts).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert destination: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert destination: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetDestination(ctx, id)
}

// GetDestination fetches a destination by id; nil when absent.
func (s *Store) GetDestination(ctx context.Context, id int64) (*Destination, error) {
	query, args, err := builder.Select(destinationColumns...).From("destinations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select destination: %w", err)
	}
	destination, err := scanDestination(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get destination: %w", err)
	}
	return destination, nil
}

// ListDestinations returns destinations ordered by name. When activeOnly is
// set, inactive destinations are excluded.
func (s *Store) ListDestinations(ctx context.Context, activeOnly bool) ([]*Destination, error) {
	q := builder.Select(destinationColumns...).From("destinations").OrderBy("name")
	if activeOnly {
		q = q.Where(sq.Eq{"is_active": 1})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list destinations: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var destinations []*Destination
	for rows.Next() {
		destination, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		destinations = append(destinations, destination)
	}
	return destinations, rows.Err()
}

// SetDestinationActive toggles whether the matcher considers the destination.
func (s *Store) SetDestinationActive(ctx context.Context, id int64, active bool) error {
	return s.updateDestination(ctx, id, map[string]any{"is_active": boolInt(active)})
}

// SetDestinationAutoPublish toggles whether publishing jobs for the
// destination run without manual approval.
func (s *Store) SetDestinationAutoPublish(ctx context.Context, id int64, auto bool) error {
	return s.updateDestination(ctx, id, map[string]any{"auto_publish": boolInt(auto)})
}

func (s *Store) updateDestination(ctx context.Context, id int64, sets map[string]any) error {
	q := builder.Update("destinations").Set("updated_at", now()).Where(sq.Eq{"id": id})
	for column, value := range sets {
		q = q.Set(column, value)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update destination: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update destination: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("destination %d not found", id)
	}
	return nil
}

// DeleteDestination removes a destination and cascades to its routing
// decisions and CTA slides.
func (s *Store) DeleteDestination(ctx context.Context, id int64) error {
	query, args, err := builder.Delete("destinations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete destination: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete destination: %w", err)
	}
	return nil
}

func scanDestination(row rowScanner) (*Destination, error) {
	var (
		destination      Destination
		autoPublish      int64
		active           int64
		created, updated string
	)
	err := row.Scan(
		&destination.ID, &destination.Name, &destination.PlatformUserID, &destination.Handle,
		&destination.AccessToken, &destination.Topic, &destination.BrandColorPrim,
		&destination.BrandColorSec, &destination.LogoURL, &destination.CTATemplate,
		&autoPublish, &active, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	destination.AutoPublish = autoPublish != 0
	destination.IsActive = active != 0
	destination.CreatedAt = parseTime(created)
	destination.UpdatedAt = parseTime(updated)
	return &destination, nil
}
