// Package playback issues signed playback tokens and authorizes stream
// requests, either by such a token or by a live session.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/access"
	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/metrics"
	"github.com/Spok95/lms-recordings/internal/models"
	"github.com/Spok95/lms-recordings/internal/token"
)

const MsgPreviewOnly = "Preview access only available for the first lecture."

var (
	ErrNotFound     = errors.New("recording not found")
	ErrInvalidToken = errors.New("invalid playback token")
	// ErrLookupFailed: проверка прав упала на хранилище, доступ закрыт, ответ 500.
	ErrLookupFailed = errors.New("entitlement lookup failed")
)

// DeniedError carries the entitlement decision back to the HTTP layer.
type DeniedError struct {
	Decision access.Decision
}

func (e *DeniedError) Error() string { return e.Decision.Message }

func denied(d access.Decision) error {
	if d.Reason == access.ReasonLookupFailed {
		return ErrLookupFailed
	}
	return &DeniedError{Decision: d}
}

type Store interface {
	GetRecording(ctx context.Context, id string) (*models.LectureRecording, error)
	GetRecordingByKey(ctx context.Context, key string) (*models.LectureRecording, error)
	FirstPublishedRecording(ctx context.Context, courseID string) (*models.LectureRecording, error)
}

type Checker interface {
	CheckRecording(ctx context.Context, userID string, rec *models.LectureRecording) access.Decision
}

type Service struct {
	store   Store
	checker Checker
	signer  *token.Signer
	log     *zap.Logger
	now     func() time.Time
}

func NewService(store Store, checker Checker, signer *token.Signer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, checker: checker, signer: signer, log: log, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue выдаёт токен на запись recordingID. caller == nil: гость.
func (s *Service) Issue(ctx context.Context, recordingID string, caller *identity.Identity) (string, token.Claims, error) {
	if !s.signer.Configured() {
		s.log.Error("playback token requested but ACCESS_TOKEN_SECRET is not set")
		return "", token.Claims{}, token.ErrMisconfigured
	}

	rec, err := s.recording(ctx, s.store.GetRecording, recordingID)
	if err != nil {
		return "", token.Claims{}, err
	}

	subject, path := token.GuestSubject, "guest"
	if caller == nil {
		if err := s.checkPreview(ctx, rec); err != nil {
			return "", token.Claims{}, err
		}
	} else {
		if d := s.checker.CheckRecording(ctx, caller.UserID, rec); !d.Allowed {
			return "", token.Claims{}, denied(d)
		}
		subject, path = caller.UserID, "user"
	}

	raw, claims, err := s.signer.Mint(subject, rec.StorageKey, rec.CourseID, s.now())
	if err != nil {
		return "", token.Claims{}, err
	}
	metrics.TokensIssued.WithLabelValues(path).Inc()
	return raw, claims, nil
}

// AuthorizeToken проверяет подписанный токен для ключа key.
// Валидный токен сам по себе достаточен; гостевой дополнительно
// перепроверяет, что запись всё ещё первая опубликованная.
func (s *Service) AuthorizeToken(ctx context.Context, raw, key string) (*models.LectureRecording, token.Claims, error) {
	claims, err := s.signer.VerifyAt(raw, s.now())
	if errors.Is(err, token.ErrMisconfigured) {
		return nil, claims, err
	}
	if err != nil {
		return nil, claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Key != key {
		return nil, claims, fmt.Errorf("%w: key mismatch", ErrInvalidToken)
	}
	rec, err := s.recording(ctx, s.store.GetRecordingByKey, key)
	if err != nil {
		return nil, claims, err
	}
	if claims.CourseID != rec.CourseID {
		return nil, claims, fmt.Errorf("%w: course mismatch", ErrInvalidToken)
	}
	if claims.IsGuest() {
		if err := s.checkPreview(ctx, rec); err != nil {
			return nil, claims, err
		}
	}
	return rec, claims, nil
}

// AuthorizeSession прогоняет полную лестницу ролей для живой сессии.
func (s *Service) AuthorizeSession(ctx context.Context, key string, caller *identity.Identity) (*models.LectureRecording, error) {
	rec, err := s.recording(ctx, s.store.GetRecordingByKey, key)
	if err != nil {
		return nil, err
	}
	if d := s.checker.CheckRecording(ctx, caller.UserID, rec); !d.Allowed {
		return nil, denied(d)
	}
	return rec, nil
}

func (s *Service) checkPreview(ctx context.Context, rec *models.LectureRecording) error {
	first, err := s.store.FirstPublishedRecording(ctx, rec.CourseID)
	if err != nil {
		return fmt.Errorf("first published recording: %w", err)
	}
	if first == nil || first.ID != rec.ID {
		metrics.AccessDenied.WithLabelValues("preview_only").Inc()
		return denied(access.Decision{Message: MsgPreviewOnly})
	}
	return nil
}

func (s *Service) recording(ctx context.Context, get func(context.Context, string) (*models.LectureRecording, error), ref string) (*models.LectureRecording, error) {
	rec, err := get(ctx, ref)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}
	if rec.StorageKey == "" {
		return nil, ErrNotFound
	}
	return rec, nil
}
