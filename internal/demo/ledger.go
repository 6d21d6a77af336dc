package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/metrics"
	"github.com/Spok95/lms-recordings/internal/models"
	"github.com/Spok95/lms-recordings/internal/observability"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrLimitReached   = errors.New("demo limit reached")
	ErrNoActiveGrant  = errors.New("no active demo access")
)

type Store interface {
	CourseExists(ctx context.Context, courseID string) (bool, error)
	UserRole(ctx context.Context, userID string) (models.Role, error)
	GetDemoGrant(ctx context.Context, userID, courseID string, accessType models.AccessType) (*models.DemoAccessGrant, error)
	CountDemoCourses(ctx context.Context, userID string, accessType models.AccessType) (int, error)
	UpsertDemoGrant(ctx context.Context, in db.DemoUpsert) (*models.DemoAccessGrant, error)
	EnsureEnrollment(ctx context.Context, courseID, studentID string, typ models.EnrollmentType) (bool, error)
	TouchDemoGrant(ctx context.Context, userID, courseID string, accessType models.AccessType, resourceID string, now time.Time) (bool, error)
	LogAction(ctx context.Context, userID, action string, courseID, resourceID *string, at time.Time) error
}

// Ledger ведёт журнал демо-доступа.
type Ledger struct {
	store      Store
	ttl        time.Duration
	maxCourses int
	log        *zap.Logger
	now        func() time.Time
	locks      *keyLocks
}

func NewLedger(store Store, ttl time.Duration, maxCourses int, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, ttl: ttl, maxCourses: maxCourses, log: log, now: time.Now, locks: newKeyLocks()}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Grant: самостоятельная выдача. Повторный запрос на тот же курс
// возвращает существующую запись без продления окна.
func (l *Ledger) Grant(ctx context.Context, userID, courseID string, accessType models.AccessType) (*models.DemoAccessGrant, error) {
	if err := l.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}

	unlock := l.locks.lock(userID + "|" + string(accessType))
	defer unlock()

	existing, err := l.store.GetDemoGrant(ctx, userID, courseID, accessType)
	if err != nil {
		return nil, fmt.Errorf("load demo grant: %w", err)
	}
	if existing != nil {
		l.ensureEnrollment(ctx, userID, courseID)
		return existing, nil
	}

	if l.maxCourses > 0 {
		n, err := l.store.CountDemoCourses(ctx, userID, accessType)
		if err != nil {
			return nil, fmt.Errorf("count demo courses: %w", err)
		}
		if n >= l.maxCourses {
			return nil, ErrLimitReached
		}
	}

	now := l.now()
	g, err := l.store.UpsertDemoGrant(ctx, db.DemoUpsert{
		UserID: userID, CourseID: courseID, AccessType: accessType,
		Now: now, ExpiresAt: now.Add(l.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert demo grant: %w", err)
	}
	metrics.DemoGrants.WithLabelValues("self").Inc()
	l.log.Info("demo granted",
		zap.String("user_id", userID), zap.String("course_id", courseID),
		zap.String("access_type", string(accessType)), zap.Time("expires_at", g.ExpiresAt))

	l.ensureEnrollment(ctx, userID, courseID)
	return g, nil
}

// AdminGrant выдаёт демо от имени администратора: лимит не проверяется,
// окно всегда начинается заново.
func (l *Ledger) AdminGrant(ctx context.Context, adminID, targetUserID, courseID string, accessType models.AccessType) (*models.DemoAccessGrant, error) {
	if err := l.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if _, err := l.store.UserRole(ctx, targetUserID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := l.now()
	g, err := l.store.UpsertDemoGrant(ctx, db.DemoUpsert{
		UserID: targetUserID, CourseID: courseID, AccessType: accessType,
		GrantedBy: &adminID, Now: now, ExpiresAt: now.Add(l.ttl), ResetWindow: true,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert demo grant: %w", err)
	}
	metrics.DemoGrants.WithLabelValues("admin").Inc()
	l.log.Info("demo granted by admin",
		zap.String("admin_id", adminID), zap.String("user_id", targetUserID),
		zap.String("course_id", courseID), zap.String("access_type", string(accessType)))

	l.ensureEnrollment(ctx, targetUserID, courseID)
	return g, nil
}

// TrackView отмечает просмотр на активном гранте и пишет его в журнал действий.
// resource_id перезаписывается, история восстанавливается по журналу.
func (l *Ledger) TrackView(ctx context.Context, userID, courseID, recordingID string, accessType models.AccessType) error {
	now := l.now()
	ok, err := l.store.TouchDemoGrant(ctx, userID, courseID, accessType, recordingID, now)
	if err != nil {
		return fmt.Errorf("touch demo grant: %w", err)
	}
	if !ok {
		return ErrNoActiveGrant
	}
	if err := l.store.LogAction(ctx, userID, db.ActionDemoView, &courseID, &recordingID, now); err != nil {
		l.log.Warn("demo view not logged", zap.String("user_id", userID), zap.Error(err))
		observability.CaptureErr(err)
	}
	return nil
}

// Status: грант пользователя (если есть) и активен ли он сейчас.
func (l *Ledger) Status(ctx context.Context, userID, courseID string, accessType models.AccessType) (*models.DemoAccessGrant, bool, error) {
	g, err := l.store.GetDemoGrant(ctx, userID, courseID, accessType)
	if err != nil {
		return nil, false, err
	}
	return g, g.ActiveAt(l.now()), nil
}

func (l *Ledger) requireCourse(ctx context.Context, courseID string) error {
	ok, err := l.store.CourseExists(ctx, courseID)
	if err != nil {
		return fmt.Errorf("check course: %w", err)
	}
	if !ok {
		return ErrCourseNotFound
	}
	return nil
}

// ensureEnrollment: ошибка только логируется, грант уже выдан.
func (l *Ledger) ensureEnrollment(ctx context.Context, userID, courseID string) {
	created, err := l.store.EnsureEnrollment(ctx, courseID, userID, models.EnrollmentDemo)
	if err != nil {
		l.log.Warn("demo enrollment not created",
			zap.String("user_id", userID), zap.String("course_id", courseID), zap.Error(err))
		observability.CaptureErr(err)
		return
	}
	if created {
		l.log.Debug("demo enrollment created", zap.String("user_id", userID), zap.String("course_id", courseID))
	}
}
