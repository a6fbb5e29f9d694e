package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var routingColumns = []string{
	"id", "post_id", "destination_id", "match_score", "match_reason",
	"status", "user_override", "created_at", "updated_at",
}

// CreateRoutingDecision records a topic match between a post and a
// destination. A decision already existing for the pair is returned
// unchanged with created=false.
func (s *Store) CreateRoutingDecision(ctx context.Context, postID, destinationID int64, matchScore float64, matchReason string) (*RoutingDecision, bool, error) {
	ts := now()
	query, args, err := builder.Insert("routing_decisions").
		Columns("post_id", "destination_id", "match_score", "match_reason", "status", "created_at", "updated_at").
		Values(postID, destinationID, matchScore, matchReason, string(RoutingPending), ts, ts).
		Suffix("ON CONFLICT(post_id, destination_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build insert routing decision: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("insert routing decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	decision, err := s.getRoutingWhere(ctx, sq.Eq{"post_id": postID, "destination_id": destinationID})
	if err != nil {
		return nil, false, err
	}
	return decision, affected > 0, nil
}

// GetRoutingDecision fetches a routing decision by id; nil when absent.
func (s *Store) GetRoutingDecision(ctx context.Context, id int64) (*RoutingDecision, error) {
	return s.getRoutingWhere(ctx, sq.Eq{"id": id})
}

func (s *Store) getRoutingWhere(ctx context.Context, pred any) (*RoutingDecision, error) {
	query, args, err := builder.Select(routingColumns...).From("routing_decisions").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select routing decision: %w", err)
	}
	decision, err := scanRouting(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routing decision: %w", err)
	}
	return decision, nil
}

// RoutingDecisionsForPost returns every routing decision for a post.
func (s *Store) RoutingDecisionsForPost(ctx context.Context, postID int64) ([]*RoutingDecision, error) {
	return s.listRouting(ctx, sq.Eq{"post_id": postID})
}

// ActiveRoutingDecisionsForPost returns the post's decisions that have not
// been rejected. These are the decisions that receive CTA slides and
// publishing jobs.
func (s *Store) ActiveRoutingDecisionsForPost(ctx context.Context, postID int64) ([]*RoutingDecision, error) {
	return s.listRouting(ctx, sq.And{
		sq.Eq{"post_id": postID},
		sq.NotEq{"status": string(RoutingRejected)},
	})
}

// RoutingDecisionsByStatus returns decisions in the given status, oldest
// first.
func (s *Store) RoutingDecisionsByStatus(ctx context.Context, status RoutingStatus) ([]*RoutingDecision, error) {
	return s.listRouting(ctx, sq.Eq{"status": string(status)})
}

func (s *Store) listRouting(ctx context.Context, pred any) ([]*RoutingDecision, error) {
	query, args, err := builder.Select(routingColumns...).From("routing_decisions").Where(pred).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list routing decisions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*RoutingDecision
	for rows.Next() {
		decision, err := scanRouting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routing decision: %w", err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, rows.Err()
}

// TransitionRoutingDecision moves a decision to next, enforcing the status
// state machine. userOverride marks manual approve/reject actions.
func (s *Store) TransitionRoutingDecision(ctx context.Context, id int64, next RoutingStatus, userOverride bool) (*RoutingDecision, error) {
	decision, err := s.GetRoutingDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, fmt.Errorf("routing decision %d not found", id)
	}
	if !decision.Status.CanTransition(next) {
		return nil, &ErrInvalidTransition{Entity: "routing decision", From: string(decision.Status), To: string(next)}
	}

	q := builder.Update("routing_decisions").
		Set("status", string(next)).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id, "status": string(decision.Status)})
	if userOverride {
		q = q.Set("user_override", 1)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition routing decision: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition routing decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("routing decision %d changed concurrently", id)
	}
	return s.GetRoutingDecision(ctx, id)
}

func scanRouting(row rowScanner) (*RoutingDecision, error) {
	var (
		decision         RoutingDecision
		status           string
		override         int64
		created, updated string
	)
	err := row.Scan(
		&decision.ID, &decision.PostID, &decision.DestinationID, &decision.MatchScore,
		&decision.MatchReason, &status, &override, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	decision.Status = RoutingStatus(status)
	decision.UserOverride = override != 0
	decision.CreatedAt = parseTime(created)
	decision.UpdatedAt = parseTime(updated)
	return &decision, nil
}
