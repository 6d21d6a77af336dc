package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/models"
)

var (
	ErrNotFound        = errors.New("payment verification not found")
	ErrCourseNotFound  = errors.New("course not found")
	ErrAlreadyReviewed = errors.New("payment verification already reviewed")
	ErrInvalid         = errors.New("invalid payment verification")
)

type Store interface {
	CourseExists(ctx context.Context, courseID string) (bool, error)
	CreatePaymentVerification(ctx context.Context, p models.PaymentVerification) (*models.PaymentVerification, error)
	ListPaymentVerifications(ctx context.Context, status models.VerificationStatus) ([]models.PaymentVerification, error)
	ApprovePaymentVerification(ctx context.Context, id, adminID string, now time.Time, period time.Duration) (*models.Subscription, error)
	RejectPaymentVerification(ctx context.Context, id, adminID string, now time.Time) (*models.PaymentVerification, error)
	GetPaymentVerification(ctx context.Context, id string) (*models.PaymentVerification, error)
}

type Notifier interface {
	PaymentSubmitted(ctx context.Context, p *models.PaymentVerification)
	PaymentReviewed(ctx context.Context, p *models.PaymentVerification)
}

// Service ведёт ручную проверку оплат.
// Подписка появляется только после одобрения.
type Service struct {
	store  Store
	notify Notifier
	period time.Duration
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Store, notify Notifier, subscriptionDays int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		notify: notify,
		period: time.Duration(subscriptionDays) * 24 * time.Hour,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) Submit(ctx context.Context, userID, courseID string, plan models.PlanType, amountCents int64, reference string) (*models.PaymentVerification, error) {
	if amountCents < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalid)
	}
	ok, err := s.store.CourseExists(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("check course: %w", err)
	}
	if !ok {
		return nil, ErrCourseNotFound
	}
	p, err := s.store.CreatePaymentVerification(ctx, models.PaymentVerification{
		UserID: userID, CourseID: courseID, PlanType: plan,
		AmountCents: amountCents, Reference: strings.TrimSpace(reference),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment verification: %w", err)
	}
	s.log.Info("payment verification submitted",
		zap.String("id", p.ID), zap.String("user_id", userID), zap.String("plan", string(plan)))
	s.notify.PaymentSubmitted(ctx, p)
	return p, nil
}

func (s *Service) List(ctx context.Context, status models.VerificationStatus) ([]models.PaymentVerification, error) {
	return s.store.ListPaymentVerifications(ctx, status)
}

func (s *Service) Approve(ctx context.Context, id, adminID string) (*models.Subscription, error) {
	sub, err := s.store.ApprovePaymentVerification(ctx, id, adminID, s.now(), s.period)
	if err != nil {
		return nil, mapErr(err)
	}
	s.log.Info("payment approved", zap.String("id", id), zap.String("admin_id", adminID),
		zap.String("subscription_id", sub.ID), zap.Time("expires_at", sub.ExpiresAt))
	if p, err := s.store.GetPaymentVerification(ctx, id); err == nil {
		s.notify.PaymentReviewed(ctx, p)
	}
	return sub, nil
}

func (s *Service) Reject(ctx context.Context, id, adminID string) (*models.PaymentVerification, error) {
	p, err := s.store.RejectPaymentVerification(ctx, id, adminID, s.now())
	if err != nil {
		return nil, mapErr(err)
	}
	s.log.Info("payment rejected", zap.String("id", id), zap.String("admin_id", adminID))
	s.notify.PaymentReviewed(ctx, p)
	return p, nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrConflict):
		return ErrAlreadyReviewed
	}
	return err
}
