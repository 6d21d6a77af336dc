package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/models"
	"github.com/Spok95/lms-recordings/internal/progress"
	"github.com/Spok95/lms-recordings/internal/storage"
)

var (
	ErrForbidden       = errors.New("not allowed to upload to this course")
	ErrCourseNotFound  = errors.New("course not found")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported content type")
)

var allowedExt = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".m4v": true}

type Store interface {
	CourseExists(ctx context.Context, courseID string) (bool, error)
	IsCourseTeacher(ctx context.Context, courseID, userID string) (bool, error)
	CreateRecording(ctx context.Context, rec models.LectureRecording) (*models.LectureRecording, error)
}

type Request struct {
	CourseID    string
	Uploader    string
	Role        models.Role
	UploadID    string
	Title       string
	Filename    string
	ContentType string
	// Size < 0: размер заранее неизвестен.
	Size int64
	Body io.Reader
}

type Service struct {
	objects  storage.Objects
	store    Store
	registry *progress.Registry
	maxBytes int64
	log      *zap.Logger
}

func NewService(objects storage.Objects, store Store, registry *progress.Registry, maxBytes int64, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{objects: objects, store: store, registry: registry, maxBytes: maxBytes, log: log}
}

// Authorize проверяет право загрузки в курс (назначенный преподаватель или админ).
func (s *Service) Authorize(ctx context.Context, courseID, userID string, role models.Role) error {
	ok, err := s.store.CourseExists(ctx, courseID)
	if err != nil {
		return fmt.Errorf("check course: %w", err)
	}
	if !ok {
		return ErrCourseNotFound
	}
	switch {
	case role.IsAdmin():
		return nil
	case role == models.Teacher:
		assigned, err := s.store.IsCourseTeacher(ctx, courseID, userID)
		if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		if assigned {
			return nil
		}
	}
	return ErrForbidden
}

// NewUploadID резервирует id в реестре прогресса; пустой requested: сгенерировать.
func (s *Service) NewUploadID(requested string) (string, error) {
	id := requested
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.registry.Open(id); err != nil {
		return "", err
	}
	return id, nil
}

// Upload пишет файл в хранилище и создаёт неопубликованную запись.
// Запись в реестре прогресса req.UploadID удаляется на любом выходе.
func (s *Service) Upload(ctx context.Context, req Request) (*models.LectureRecording, error) {
	defer s.registry.Dispose(req.UploadID)

	fail := func(status progress.Status, err error) (*models.LectureRecording, error) {
		s.registry.Publish(req.UploadID, progress.Event{Status: status, Error: err.Error()})
		return nil, err
	}

	if s.maxBytes > 0 && req.Size > s.maxBytes {
		return fail(progress.StatusError, ErrTooLarge)
	}
	ct := strings.ToLower(req.ContentType)
	if !strings.HasPrefix(ct, "video/") && ct != "application/octet-stream" {
		return fail(progress.StatusError, ErrUnsupportedType)
	}
	if ct == "application/octet-stream" {
		ct = "video/mp4"
	}

	key := ObjectKey(req.CourseID, req.Filename)
	s.registry.Publish(req.UploadID, progress.Event{Status: progress.StatusStarted, Total: req.Size})

	body := &countingReader{r: req.Body, total: req.Size, limit: s.maxBytes, publish: func(ev progress.Event) {
		s.registry.Publish(req.UploadID, ev)
	}}
	if err := s.objects.Put(ctx, key, body, req.Size, ct); err != nil {
		if errors.Is(body.err, ErrTooLarge) {
			return fail(progress.StatusError, ErrTooLarge)
		}
		if ctx.Err() != nil {
			return fail(progress.StatusCancelled, ctx.Err())
		}
		s.log.Error("upload to storage failed", zap.String("key", key), zap.Error(err))
		return fail(progress.StatusError, fmt.Errorf("store object: %w", err))
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
	}
	rec, err := s.store.CreateRecording(ctx, models.LectureRecording{
		CourseID:    req.CourseID,
		TeacherID:   req.Uploader,
		Title:       title,
		StorageKey:  key,
		ContentType: ct,
		SizeBytes:   body.n,
	})
	if err != nil {
		return fail(progress.StatusError, fmt.Errorf("create recording: %w", err))
	}

	s.registry.Publish(req.UploadID, progress.Event{
		Status: progress.StatusDone, Bytes: body.n, Total: body.n, Percent: 100, RecordingID: rec.ID,
	})
	s.log.Info("recording uploaded",
		zap.String("recording_id", rec.ID), zap.String("course_id", rec.CourseID), zap.Int64("bytes", body.n))
	return rec, nil
}

// ObjectKey: courses/{courseId}/recordings/{uuid}{ext}
func ObjectKey(courseID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		ext = ""
	}
	return fmt.Sprintf("courses/%s/recordings/%s%s", courseID, uuid.NewString(), ext)
}

const unknownSizeStep = 1 << 20

// countingReader публикует прогресс при смене процента и режет поток сверх limit.
type countingReader struct {
	r       io.Reader
	n       int64
	total   int64
	limit   int64
	pct     int
	last    int64
	err     error
	publish func(progress.Event)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.err = ErrTooLarge
		return n, ErrTooLarge
	}
	if n > 0 {
		pct := -1
		if c.total > 0 {
			pct = int(c.n * 100 / c.total)
		}
		if pct != c.pct || (c.total <= 0 && c.n-c.last >= unknownSizeStep) {
			c.pct, c.last = pct, c.n
			c.publish(progress.Event{Status: progress.StatusProgress, Bytes: c.n, Total: c.total, Percent: max(pct, 0)})
		}
	}
	return n, err
}
