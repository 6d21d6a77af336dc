package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/Spok95/lms-recordings/internal/models"
)

const paymentColumns = `id, user_id, course_id, plan_type, amount_cents, reference, status, reviewed_by, reviewed_at, created_at`

func scanPayment(row rowScanner) (*models.PaymentVerification, error) {
	var p models.PaymentVerification
	if err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.PlanType, &p.AmountCents, &p.Reference,
		&p.Status, &p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreatePaymentVerification(ctx context.Context, p models.PaymentVerification) (*models.PaymentVerification, error) {
	return scanPayment(s.db.QueryRowContext(ctx, `
		INSERT INTO payment_verifications (user_id, course_id, plan_type, amount_cents, reference)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+paymentColumns,
		p.UserID, p.CourseID, string(p.PlanType), p.AmountCents, p.Reference))
}

func (s *Store) GetPaymentVerification(ctx context.Context, id string) (*models.PaymentVerification, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_verifications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListPaymentVerifications; пустой status: все записи.
func (s *Store) ListPaymentVerifications(ctx context.Context, status models.VerificationStatus) ([]models.PaymentVerification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payment_verifications
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.PaymentVerification
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// lockPending блокирует заявку; ErrConflict, если она уже рассмотрена.
func lockPending(ctx context.Context, tx *sql.Tx, id string) (*models.PaymentVerification, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_verifications WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if p.Status != models.VerificationPending {
		return nil, ErrConflict
	}
	return p, nil
}

// ApprovePaymentVerification одобряет заявку и создаёт подписку [now, now+period).
func (s *Store) ApprovePaymentVerification(ctx context.Context, id, adminID string, now time.Time, period time.Duration) (*models.Subscription, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := lockPending(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE payment_verifications SET status = 'approved', reviewed_by = $2, reviewed_at = $3
		WHERE id = $1`, id, adminID, now); err != nil {
		return nil, err
	}

	sub := models.Subscription{
		UserID:                p.UserID,
		CourseID:              p.CourseID,
		PlanType:              p.PlanType,
		Status:                models.SubscriptionActive,
		StartsAt:              now,
		ExpiresAt:             now.Add(period),
		PaymentVerificationID: &p.ID,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (user_id, course_id, plan_type, status, starts_at, expires_at, payment_verification_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		sub.UserID, sub.CourseID, string(sub.PlanType), string(sub.Status), sub.StartsAt, sub.ExpiresAt, p.ID).
		Scan(&sub.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) RejectPaymentVerification(ctx context.Context, id, adminID string, now time.Time) (*models.PaymentVerification, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := lockPending(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE payment_verifications SET status = 'rejected', reviewed_by = $2, reviewed_at = $3
		WHERE id = $1`, id, adminID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	p.Status = models.VerificationRejected
	p.ReviewedBy = &adminID
	p.ReviewedAt = &now
	return p, nil
}
