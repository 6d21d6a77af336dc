// Package api is the HTTP surface: playback tokens, the range proxy,
// demo access, recording management and manual payment review.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/access"
	"github.com/Spok95/lms-recordings/internal/demo"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/metrics"
	"github.com/Spok95/lms-recordings/internal/models"
	"github.com/Spok95/lms-recordings/internal/observability"
	"github.com/Spok95/lms-recordings/internal/payments"
	"github.com/Spok95/lms-recordings/internal/playback"
	"github.com/Spok95/lms-recordings/internal/progress"
	"github.com/Spok95/lms-recordings/internal/stream"
	"github.com/Spok95/lms-recordings/internal/upload"
)

type Store interface {
	GetRecording(ctx context.Context, id string) (*models.LectureRecording, error)
	ListRecordings(ctx context.Context, courseID string, publishedOnly bool) ([]models.LectureRecording, error)
	SetRecordingPublished(ctx context.Context, id string, published bool) error
	SetDemoRecording(ctx context.Context, id string) error
	IsCourseTeacher(ctx context.Context, courseID, userID string) (bool, error)
	CourseExists(ctx context.Context, courseID string) (bool, error)
	ListDemoGrants(ctx context.Context) ([]models.DemoAccessGrant, error)
	ListDemoViews(ctx context.Context, since time.Time) ([]models.DemoView, error)
	Ping(ctx context.Context) error
}

type Resolver interface {
	Resolve(ctx context.Context, raw string) (*identity.Identity, error)
}

type CourseAccess interface {
	CanAccessLectureRecordings(ctx context.Context, userID, courseID string) access.Decision
}

type Deps struct {
	Log         *zap.Logger
	Store       Store
	Identity    Resolver
	Access      CourseAccess
	Playback    *playback.Service
	Proxy       *stream.Proxy
	Demo        *demo.Ledger
	Uploads     *upload.Service
	Progress    *progress.Registry
	Payments    *payments.Service
	CORSOrigins []string
	Location    *time.Location
	// UploadMaxBytes ограничивает тело multipart-запроса; 0: без лимита.
	UploadMaxBytes int64
}

type Server struct {
	Deps
	log      *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Server{Deps: d, log: log, upgrader: progress.NewUpgrader(d.CORSOrigins), now: time.Now}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(observability.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.CORSOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/lecture-recordings/access-token", s.handleIssueToken)
		r.Get("/lecture-recordings/stream", s.handleStream)
		r.Head("/lecture-recordings/stream", s.handleStream)
		// ключ в пути: старые плееры
		r.Get("/lecture-recordings/stream/*", s.handleStream)
		r.Head("/lecture-recordings/stream/*", s.handleStream)

		// id загрузки сам по себе служит ключом: EventSource не умеет слать заголовки
		r.Get("/uploads/{uploadId}/events", s.handleUploadEvents)
		r.Get("/uploads/{uploadId}/ws", s.handleUploadWS)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)

			r.Get("/courses/{courseId}/access", s.handleCourseAccess)
			r.Get("/courses/{courseId}/recordings", s.handleListRecordings)
			r.Post("/courses/{courseId}/recordings", s.handleUploadRecording)
			r.Patch("/recordings/{id}/publish", s.handlePublish)
			r.Put("/recordings/{id}/demo", s.handleSetDemo)

			r.Post("/demo-access", s.handleDemoGrant)
			r.Get("/demo-access", s.handleDemoStatus)
			r.Post("/demo-access/track-view", s.handleTrackView)

			r.Post("/payment-verifications", s.handleSubmitPayment)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/demo-access", s.handleAdminDemoGrant)
				r.Get("/demo-access/export", s.handleDemoExport)
				r.Get("/payment-verifications", s.handleListPayments)
				r.Post("/payment-verifications/{id}/approve", s.handleApprovePayment)
				r.Post("/payment-verifications/{id}/reject", s.handleRejectPayment)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	if err := s.Store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db not ok")
		return
	}
	metrics.ObserveDBPing(time.Since(t0))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
