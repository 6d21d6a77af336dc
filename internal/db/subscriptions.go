package db

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/Spok95/lms-recordings/internal/models"
)

// HasActiveSubscription: неистёкшая подписка на курс с планом, покрывающим записи.
func (s *Store) HasActiveSubscription(ctx context.Context, userID, courseID string, now time.Time) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND course_id = $2
			  AND status = 'active'
			  AND starts_at <= $3 AND expires_at > $3
			  AND plan_type = ANY($4)
		)`, userID, courseID, now, pq.Array(models.RecordingPlans())).Scan(&ok)
	return ok, err
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, plan_type, status, starts_at, expires_at, payment_verification_id
		FROM subscriptions WHERE user_id = $1
		ORDER BY expires_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.CourseID, &sub.PlanType, &sub.Status,
			&sub.StartsAt, &sub.ExpiresAt, &sub.PaymentVerificationID); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ExpireSubscriptions переводит просроченные активные подписки в expired.
func (s *Store) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
