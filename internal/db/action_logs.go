package db

import (
	"context"
	"time"

	"github.com/Spok95/lms-recordings/internal/models"
)

const ActionDemoView = "demo_video_view"

func (s *Store) LogAction(ctx context.Context, userID, action string, courseID, resourceID *string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_logs (user_id, action, course_id, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`, userID, action, courseID, resourceID, at)
	return err
}

// ListDemoViews: история демо-просмотров из журнала действий, новые сверху.
func (s *Store) ListDemoViews(ctx context.Context, since time.Time) ([]models.DemoView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, COALESCE(course_id::text, ''), COALESCE(resource_id::text, ''), created_at
		FROM action_logs
		WHERE action = $1 AND created_at >= $2
		ORDER BY created_at DESC`, ActionDemoView, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.DemoView
	for rows.Next() {
		var v models.DemoView
		if err := rows.Scan(&v.UserID, &v.CourseID, &v.ResourceID, &v.ViewedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
