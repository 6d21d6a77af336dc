package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/lms-recordings/internal/models"
)

const recordingColumns = `id, course_id, teacher_id, title, storage_key, content_type, size_bytes, is_published, is_demo, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*models.LectureRecording, error) {
	var r models.LectureRecording
	if err := row.Scan(&r.ID, &r.CourseID, &r.TeacherID, &r.Title, &r.StorageKey,
		&r.ContentType, &r.SizeBytes, &r.IsPublished, &r.IsDemo, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateRecording(ctx context.Context, rec models.LectureRecording) (*models.LectureRecording, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO lecture_recordings (course_id, teacher_id, title, storage_key, content_type, size_bytes, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+recordingColumns,
		rec.CourseID, rec.TeacherID, rec.Title, rec.StorageKey, rec.ContentType, rec.SizeBytes, rec.IsPublished)
	return scanRecording(row)
}

func (s *Store) GetRecording(ctx context.Context, id string) (*models.LectureRecording, error) {
	r, err := scanRecording(s.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM lecture_recordings WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// GetRecordingByKey ищет запись по ключу объекта в хранилище.
func (s *Store) GetRecordingByKey(ctx context.Context, key string) (*models.LectureRecording, error) {
	r, err := scanRecording(s.db.QueryRowContext(ctx,
		`SELECT `+recordingColumns+` FROM lecture_recordings WHERE storage_key = $1 ORDER BY created_at LIMIT 1`, key))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// FirstPublishedRecording: самая ранняя опубликованная запись курса или nil.
func (s *Store) FirstPublishedRecording(ctx context.Context, courseID string) (*models.LectureRecording, error) {
	r, err := scanRecording(s.db.QueryRowContext(ctx, `
		SELECT `+recordingColumns+`
		FROM lecture_recordings
		WHERE course_id = $1 AND is_published
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) ListRecordings(ctx context.Context, courseID string, publishedOnly bool) ([]models.LectureRecording, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordingColumns+`
		FROM lecture_recordings
		WHERE course_id = $1 AND (is_published OR NOT $2::boolean)
		ORDER BY created_at ASC, id ASC`, courseID, publishedOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.LectureRecording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) SetRecordingPublished(ctx context.Context, id string, published bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE lecture_recordings SET is_published = $2 WHERE id = $1`, id, published)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDemoRecording помечает запись демо-записью курса, снимая флаг с остальных
// в той же транзакции. Параллельная гонка упирается в частичный уникальный индекс.
func (s *Store) SetDemoRecording(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var courseID string
	if err := tx.QueryRowContext(ctx, `SELECT course_id FROM lecture_recordings WHERE id = $1 FOR UPDATE`, id).Scan(&courseID); err != nil {
		return notFound(err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE lecture_recordings SET is_demo = false
		WHERE course_id = $1 AND is_demo AND id <> $2`, courseID, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE lecture_recordings SET is_demo = true WHERE id = $1`, id); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}
