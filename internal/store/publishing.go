package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var publishingColumns = []string{
	"id", "routing_decision_id", "status", "attempts", "container_ids",
	"carousel_container_id", "published_media_id", "error", "created_at", "updated_at",
}

// EnsurePublishingJob creates the queued publishing job for a routing
// decision if none exists. Concurrent callers race safely on the unique
// constraint; exactly one observes created=true.
func (s *Store) EnsurePublishingJob(ctx context.Context, routingDecisionID int64) (*PublishingJob, bool, error) {
	ts := now()
	query, args, err := builder.Insert("publishing_jobs").
		Columns("routing_decision_id", "status", "created_at", "updated_at").
		Values(routingDecisionID, string(PublishingQueued), ts, ts).
		Suffix("ON CONFLICT(routing_decision_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build insert publishing job: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("insert publishing job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	job, err := s.PublishingJobForDecision(ctx, routingDecisionID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, fmt.Errorf("publishing job for decision %d not found after insert", routingDecisionID)
	}
	return job, affected > 0, nil
}

// GetPublishingJob fetches a publishing job by id; nil when absent.
func (s *Store) GetPublishingJob(ctx context.Context, id int64) (*PublishingJob, error) {
	return s.getPublishingWhere(ctx, sq.Eq{"id": id})
}

// PublishingJobForDecision fetches the job for a routing decision; nil when
// absent.
func (s *Store) PublishingJobForDecision(ctx context.Context, routingDecisionID int64) (*PublishingJob, error) {
	return s.getPublishingWhere(ctx, sq.Eq{"routing_decision_id": routingDecisionID})
}

func (s *Store) getPublishingWhere(ctx context.Context, pred any) (*PublishingJob, error) {
	query, args, err := builder.Select(publishingColumns...).From("publishing_jobs").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select publishing job: %w", err)
	}
	job, err := scanPublishing(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publishing job: %w", err)
	}
	return job, nil
}

// PublishingJobsByStatus returns jobs in the given status, oldest first. An
// empty status returns every job.
func (s *Store) PublishingJobsByStatus(ctx context.Context, status PublishingStatus) ([]*PublishingJob, error) {
	q := builder.Select(publishingColumns...).From("publishing_jobs").OrderBy("id")
	if status != "" {
		q = q.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list publishing jobs: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publishing jobs: %w", err)
	}
	defer rows.Close()

	var jobsList []*PublishingJob
	for rows.Next() {
		job, err := scanPublishing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publishing job: %w", err)
		}
		jobsList = append(jobsList, job)
	}
	return jobsList, rows.Err()
}

// TransitionPublishingJob moves a job to next, enforcing the status state
// machine with an optimistic guard on the current status.
func (s *Store) TransitionPublishingJob(ctx context.Context, id int64, next PublishingStatus) (*PublishingJob, error) {
	return s.transitionPublishing(ctx, id, next, nil)
}

// BeginPublishingAttempt moves a job to creating_containers and bumps the
// attempt counter. Valid from queued, from failed (automatic retry), and
// from creating_containers itself (a reclaimed in-flight attempt).
func (s *Store) BeginPublishingAttempt(ctx context.Context, id int64) (*PublishingJob, error) {
	return s.transitionPublishing(ctx, id, PublishingCreating, map[string]any{
		"attempts": sq.Expr("attempts + 1"),
	})
}

// CompletePublishingJob records the protocol artifacts and marks the job
// published.
func (s *Store) CompletePublishingJob(ctx context.Context, id int64, containerIDs []string, carouselContainerID, publishedMediaID string) (*PublishingJob, error) {
	encoded, err := json.Marshal(containerIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal container ids: %w", err)
	}
	return s.transitionPublishing(ctx, id, PublishingPublished, map[string]any{
		"container_ids":         string(encoded),
		"carousel_container_id": carouselContainerID,
		"published_media_id":    publishedMediaID,
		"error":                 "",
	})
}

// FailPublishingJob marks the job failed with the error text.
func (s *Store) FailPublishingJob(ctx context.Context, id int64, errText string) (*PublishingJob, error) {
	return s.transitionPublishing(ctx, id, PublishingFailed, map[string]any{"error": errText})
}

func (s *Store) transitionPublishing(ctx context.Context, id int64, next PublishingStatus, sets map[string]any) (*PublishingJob, error) {
	job, err := s.GetPublishingJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("publishing job %d not found", id)
	}
	if !job.Status.CanTransition(next) {
		return nil, &ErrInvalidTransition{Entity: "publishing job", From: string(job.Status), To: string(next)}
	}

	q := builder.Update("publishing_jobs").
		Set("status", string(next)).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id, "status": string(job.Status)})
	for column, value := range sets {
		q = q.Set(column, value)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition publishing job: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition publishing job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("publishing job %d changed concurrently", id)
	}
	return s.GetPublishingJob(ctx, id)
}

func scanPublishing(row rowScanner) (*PublishingJob, error) {
	var (
		job              PublishingJob
		status           string
		containerIDs     string
		created, updated string
	)
	err := row.Scan(
		&job.ID, &job.RoutingDecisionID, &status, &job.Attempts, &containerIDs,
		&job.CarouselContainerID, &job.PublishedMediaID, &job.Error, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if containerIDs != "" {
		if err := json.Unmarshal([]byte(containerIDs), &job.ContainerIDs); err != nil {
			return nil, fmt.Errorf("decode container ids: %w", err)
		}
	}
	job.Status = PublishingStatus(status)
	job.CreatedAt = parseTime(created)
	job.UpdatedAt = parseTime(updated)
	return &job, nil
}
