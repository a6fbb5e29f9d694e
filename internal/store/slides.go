package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var slideColumns = []string{
	"id", "translation_id", "position", "destination_id", "slide_text",
	"image_path", "status", "attempts", "error", "created_at", "updated_at",
}

// EnsureSlide creates the slide record for (translation, position,
// destination) if it does not exist. A nil destinationID identifies the
// shared content slide at that position. Returns the record and whether it
// was created by this call.
func (s *Store) EnsureSlide(ctx context.Context, translationID, position int64, destinationID *int64, slideText string) (*CarouselSlide, bool, error) {
	ts := now()
	query, args, err := builder.Insert("carousel_slides").
		Columns("translation_id", "position", "destination_id", "slide_text", "status", "created_at", "updated_at").
		Values(translationID, position, nullableInt64(destinationID), slideText, string(SlidePending), ts, ts).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build insert slide: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("insert slide: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	slide, err := s.GetSlideAt(ctx, translationID, position, destinationID)
	if err != nil {
		return nil, false, err
	}
	if slide == nil {
		return nil, false, fmt.Errorf("slide %d/%d not found after insert", translationID, position)
	}
	return slide, affected > 0, nil
}

// GetSlideAt fetches the slide for (translation, position, destination);
// nil when absent.
func (s *Store) GetSlideAt(ctx context.Context, translationID, position int64, destinationID *int64) (*CarouselSlide, error) {
	pred := sq.And{
		sq.Eq{"translation_id": translationID},
		sq.Eq{"position": position},
	}
	if destinationID == nil {
		pred = append(pred, sq.Expr("destination_id IS NULL"))
	} else {
		pred = append(pred, sq.Eq{"destination_id": *destinationID})
	}
	return s.getSlideWhere(ctx, pred)
}

// GetSlide fetches a slide by id; nil when absent.
func (s *Store) GetSlide(ctx context.Context, id int64) (*CarouselSlide, error) {
	return s.getSlideWhere(ctx, sq.Eq{"id": id})
}

func (s *Store) getSlideWhere(ctx context.Context, pred any) (*CarouselSlide, error) {
	query, args, err := builder.Select(slideColumns...).From("carousel_slides").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select slide: %w", err)
	}
	slide, err := scanSlide(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slide: %w", err)
	}
	return slide, nil
}

// SlidesForTranslation returns every slide of a translation ordered by
// position, content slides before CTA slides at equal positions.
func (s *Store) SlidesForTranslation(ctx context.Context, translationID int64) ([]*CarouselSlide, error) {
	query, args, err := builder.Select(slideColumns...).
		From("carousel_slides").
		Where(sq.Eq{"translation_id": translationID}).
		OrderBy("position", "destination_id IS NOT NULL", "destination_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list slides: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slides: %w", err)
	}
	defer rows.Close()

	var slides []*CarouselSlide
	for rows.Next() {
		slide, err := scanSlide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slide: %w", err)
		}
		slides = append(slides, slide)
	}
	return slides, rows.Err()
}

// ContentSlidesForTranslation returns the shared (destination-less) slides
// ordered by position.
func (s *Store) ContentSlidesForTranslation(ctx context.Context, translationID int64) ([]*CarouselSlide, error) {
	slides, err := s.SlidesForTranslation(ctx, translationID)
	if err != nil {
		return nil, err
	}
	content := slides[:0]
	for _, slide := range slides {
		if slide.DestinationID == nil {
			content = append(content, slide)
		}
	}
	return content, nil
}

// MarkSlideGenerating moves a slide to generating and bumps the attempt
// counter.
func (s *Store) MarkSlideGenerating(ctx context.Context, id int64) (*CarouselSlide, error) {
	slide, err := s.GetSlide(ctx, id)
	if err != nil {
		return nil, err
	}
	if slide == nil {
		return nil, fmt.Errorf("slide %d not found", id)
	}
	if !slide.Status.CanTransition(SlideGenerating) {
		return nil, &ErrInvalidTransition{Entity: "carousel slide", From: string(slide.Status), To: string(SlideGenerating)}
	}

	query, args, err := builder.Update("carousel_slides").
		Set("status", string(SlideGenerating)).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build mark slide generating: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("mark slide generating: %w", err)
	}
	return s.GetSlide(ctx, id)
}

// CompleteSlide records the rendered image path and marks the slide
// completed.
func (s *Store) CompleteSlide(ctx context.Context, id int64, imagePath string) (*CarouselSlide, error) {
	return s.finishSlide(ctx, id, SlideCompleted, imagePath, "")
}

// FailSlide marks the slide failed with the error text.
func (s *Store) FailSlide(ctx context.Context, id int64, errText string) (*CarouselSlide, error) {
	return s.finishSlide(ctx, id, SlideFailed, "", errText)
}

func (s *Store) finishSlide(ctx context.Context, id int64, next SlideStatus, imagePath, errText string) (*CarouselSlide, error) {
	slide, err := s.GetSlide(ctx, id)
	if err != nil {
		return nil, err
	}
	if slide == nil {
		return nil, fmt.Errorf("slide %d not found", id)
	}
	if !slide.Status.CanTransition(next) {
		return nil, &ErrInvalidTransition{Entity: "carousel slide", From: string(slide.Status), To: string(next)}
	}

	q := builder.Update("carousel_slides").
		Set("status", string(next)).
		Set("error", errText).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id, "status": string(slide.Status)})
	if imagePath != "" {
		q = q.Set("image_path", imagePath)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build finish slide: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finish slide: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("slide %d changed concurrently", id)
	}
	return s.GetSlide(ctx, id)
}

func scanSlide(row rowScanner) (*CarouselSlide, error) {
	var (
		slide            CarouselSlide
		destinationID    sql.NullInt64
		status           string
		created, updated string
	)
	err := row.Scan(
		&slide.ID, &slide.TranslationID, &slide.Position, &destinationID, &slide.SlideText,
		&slide.ImagePath, &status, &slide.Attempts, &slide.Error, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if destinationID.Valid {
		v := destinationID.Int64
		slide.DestinationID = &v
	}
	slide.Status = SlideStatus(status)
	slide.CreatedAt = parseTime(created)
	slide.UpdatedAt = parseTime(updated)
	return &slide, nil
}
