package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var translationColumns = []string{
	"id", "post_id", "slide_texts", "quality_score", "retry_count",
	"status", "error", "created_at", "updated_at",
}

// BeginTranslation creates or reuses the post's translation record and moves
// it to translating. The retry count is persisted so queued retries survive
// a restart.
func (s *Store) BeginTranslation(ctx context.Context, postID, retryCount int64) (*Translation, error) {
	ts := now()
	query, args, err := builder.Insert("translations").
		Columns("post_id", "status", "retry_count", "created_at", "updated_at").
		Values(postID, string(TranslationTranslating), retryCount, ts, ts).
		Suffix("ON CONFLICT(post_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert translation: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert translation: %w", err)
	}

	existing, err := s.TranslationForPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("translation for post %d not found after insert", postID)
	}
	if existing.Status != TranslationTranslating || existing.RetryCount != retryCount {
		if !existing.Status.CanTransition(TranslationTranslating) {
			return nil, &ErrInvalidTransition{Entity: "translation", From: string(existing.Status), To: string(TranslationTranslating)}
		}
		update, uargs, err := builder.Update("translations").
			Set("status", string(TranslationTranslating)).
			Set("retry_count", retryCount).
			Set("error", "").
			Set("updated_at", now()).
			Where(sq.Eq{"id": existing.ID}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build update translation: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, update, uargs...); err != nil {
			return nil, fmt.Errorf("update translation: %w", err)
		}
	}
	return s.TranslationForPost(ctx, postID)
}

// TranslationForPost fetches the post's translation; nil when absent.
func (s *Store) TranslationForPost(ctx context.Context, postID int64) (*Translation, error) {
	return s.getTranslationWhere(ctx, sq.Eq{"post_id": postID})
}

// GetTranslation fetches a translation by id; nil when absent.
func (s *Store) GetTranslation(ctx context.Context, id int64) (*Translation, error) {
	return s.getTranslationWhere(ctx, sq.Eq{"id": id})
}

func (s *Store) getTranslationWhere(ctx context.Context, pred any) (*Translation, error) {
	query, args, err := builder.Select(translationColumns...).From("translations").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select translation: %w", err)
	}
	translation, err := scanTranslation(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get translation: %w", err)
	}
	return translation, nil
}

// SaveTranslationResult persists slide texts and the quality score while the
// translation stays in translating. Used between quality-gate retries.
func (s *Store) SaveTranslationResult(ctx context.Context, id int64, slideTexts []string, qualityScore float64) error {
	encoded, err := json.Marshal(slideTexts)
	if err != nil {
		return fmt.Errorf("marshal slide texts: %w", err)
	}
	query, args, err := builder.Update("translations").
		Set("slide_texts", string(encoded)).
		Set("quality_score", qualityScore).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save translation result: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save translation result: %w", err)
	}
	return nil
}

// CompleteTranslation marks the translation completed.
func (s *Store) CompleteTranslation(ctx context.Context, id int64) (*Translation, error) {
	return s.transitionTranslation(ctx, id, TranslationCompleted, "")
}

// FailTranslation marks the translation failed and records the error text.
func (s *Store) FailTranslation(ctx context.Context, id int64, errText string) (*Translation, error) {
	return s.transitionTranslation(ctx, id, TranslationFailed, errText)
}

func (s *Store) transitionTranslation(ctx context.Context, id int64, next TranslationStatus, errText string) (*Translation, error) {
	translation, err := s.GetTranslation(ctx, id)
	if err != nil {
		return nil, err
	}
	if translation == nil {
		return nil, fmt.Errorf("translation %d not found", id)
	}
	if !translation.Status.CanTransition(next) {
		return nil, &ErrInvalidTransition{Entity: "translation", From: string(translation.Status), To: string(next)}
	}

	query, args, err := builder.Update("translations").
		Set("status", string(next)).
		Set("error", errText).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id, "status": string(translation.Status)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transition translation: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transition translation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("translation %d changed concurrently", id)
	}
	return s.GetTranslation(ctx, id)
}

func scanTranslation(row rowScanner) (*Translation, error) {
	var (
		translation      Translation
		slideTexts       string
		quality          sql.NullFloat64
		status           string
		created, updated string
	)
	err := row.Scan(
		&translation.ID, &translation.PostID, &slideTexts, &quality, &translation.RetryCount,
		&status, &translation.Error, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if slideTexts != "" {
		if err := json.Unmarshal([]byte(slideTexts), &translation.SlideTexts); err != nil {
			return nil, fmt.Errorf("decode slide texts: %w", err)
		}
	}
	translation.QualityScore = nullableFloat(quality)
	translation.Status = TranslationStatus(status)
	translation.CreatedAt = parseTime(created)
	translation.UpdatedAt = parseTime(updated)
	return &translation, nil
}
