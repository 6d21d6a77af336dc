package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/ctxutil"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/metrics"
)

type callerKey struct{}

func withCaller(ctx context.Context, id *identity.Identity) context.Context {
	ctx = context.WithValue(ctx, callerKey{}, id)
	ctx = ctxutil.WithUserID(ctx, id.UserID)
	return ctxutil.WithRole(ctx, string(id.Role))
}

func callerFrom(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(callerKey{}).(*identity.Identity)
	return id
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		t0 := time.Now()
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.ObserveHTTP(route, code, time.Since(t0))

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", code),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(t0)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		}
		if code >= 500 {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	})
}

// resolveCaller возвращает (nil, nil) для гостя без заголовка и ошибку для битого токена.
func (s *Server) resolveCaller(r *http.Request) (*identity.Identity, error) {
	raw := identity.BearerToken(r)
	if raw == "" {
		return nil, nil
	}
	return s.Identity.Resolve(r.Context(), raw)
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Identity.Resolve(r.Context(), identity.BearerToken(r))
		if err != nil {
			if !errors.Is(err, identity.ErrNoCredential) && !errors.Is(err, identity.ErrUnauthorized) {
				s.fail(w, r, err)
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), id)))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := callerFrom(r.Context())
		if id == nil || !id.Role.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
