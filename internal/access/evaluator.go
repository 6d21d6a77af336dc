package access

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/metrics"
	"github.com/Spok95/lms-recordings/internal/models"
)

type Store interface {
	UserRole(ctx context.Context, userID string) (models.Role, error)
	IsCourseTeacher(ctx context.Context, courseID, userID string) (bool, error)
	HasActiveSubscription(ctx context.Context, userID, courseID string, now time.Time) (bool, error)
	ActiveDemoGrant(ctx context.Context, userID, courseID string, accessType models.AccessType, now time.Time) (*models.DemoAccessGrant, error)
}

type Evaluator struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewEvaluator(store Store, log *zap.Logger) *Evaluator {
	return &Evaluator{store: store, log: log, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// CanAccessLectureRecordings answers for the course as a whole.
func (e *Evaluator) CanAccessLectureRecordings(ctx context.Context, userID, courseID string) Decision {
	return e.decide(ctx, userID, courseID, "", true)
}

// CheckRecording answers for one recording: uploader and publish state apply.
func (e *Evaluator) CheckRecording(ctx context.Context, userID string, rec *models.LectureRecording) Decision {
	return e.decide(ctx, userID, rec.CourseID, rec.TeacherID, rec.IsPublished)
}

func (e *Evaluator) decide(ctx context.Context, userID, courseID, uploaderID string, published bool) Decision {
	d, err := e.gather(ctx, userID, courseID, uploaderID, published)
	if err != nil {
		e.log.Warn("entitlement lookup failed",
			zap.String("user_id", userID), zap.String("course_id", courseID), zap.Error(err))
		d = LookupFailed()
	}
	if !d.Allowed {
		metrics.AccessDenied.WithLabelValues(string(d.Reason)).Inc()
	}
	return d
}

// gather queries only what the ladder needs, in ladder order.
func (e *Evaluator) gather(ctx context.Context, userID, courseID, uploaderID string, published bool) (Decision, error) {
	role, err := e.store.UserRole(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	in := Input{Role: role, Published: published, Uploader: uploaderID != "" && uploaderID == userID}

	switch role {
	case models.Teacher:
		if !in.Uploader {
			if in.AssignedTeacher, err = e.store.IsCourseTeacher(ctx, courseID, userID); err != nil {
				return Decision{}, err
			}
		}
	case models.Student:
		if !published {
			break
		}
		now := e.now()
		if in.Subscription, err = e.store.HasActiveSubscription(ctx, userID, courseID, now); err != nil {
			return Decision{}, err
		}
		if !in.Subscription {
			grant, err := e.store.ActiveDemoGrant(ctx, userID, courseID, models.AccessLectureRecording, now)
			if err != nil {
				return Decision{}, err
			}
			in.Demo = grant.ActiveAt(now)
		}
	}
	return Evaluate(in), nil
}
