package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/access"
	"github.com/Spok95/lms-recordings/internal/ctxutil"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/metrics"
	"github.com/Spok95/lms-recordings/internal/models"
	"github.com/Spok95/lms-recordings/internal/playback"
	"github.com/Spok95/lms-recordings/internal/token"
	"github.com/Spok95/lms-recordings/internal/upload"
)

type issueTokenRequest struct {
	RecordingID string `json:"recordingId"`
}

type issueTokenResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := parseUUID("recordingId", req.RecordingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	r = r.WithContext(ctxutil.WithOp(r.Context(), "issue_token"))
	caller, err := s.resolveCaller(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if caller != nil {
		r = r.WithContext(withCaller(r.Context(), caller))
	}

	raw, claims, err := s.Playback.Issue(r.Context(), id, caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, issueTokenResponse{Success: true, Token: raw, ExpiresAt: claims.ExpiresAt})
}

// handleStream берёт ключ из ?key= (или из пути) и принимает подписанный
// токен (?token= или Bearer); без него пробует сессионный JWT и проверяет доступ заново.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	key, err := streamKey(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw = identity.BearerToken(r)
	}
	if raw == "" {
		metrics.AccessDenied.WithLabelValues("no_credential").Inc()
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r = r.WithContext(ctxutil.WithOp(r.Context(), "stream"))
	ctx := r.Context()
	if token.LooksSigned(raw) {
		if _, _, err := s.Playback.AuthorizeToken(ctx, raw, key); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		caller, err := s.Identity.Resolve(ctx, raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		r = r.WithContext(withCaller(ctx, caller))
		if _, err := s.Playback.AuthorizeSession(r.Context(), key, caller); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	if err := s.Proxy.Serve(w, r, key); err != nil {
		s.fail(w, r, err)
	}
}

func streamKey(r *http.Request) (string, error) {
	if key := r.URL.Query().Get("key"); key != "" {
		return key, nil
	}
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		return "", badRequest("key is required")
	}
	return key, nil
}

func (s *Server) handleCourseAccess(w http.ResponseWriter, r *http.Request) {
	courseID, err := parseUUID("courseId", chi.URLParam(r, "courseId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	caller := callerFrom(r.Context())
	d := s.Access.CanAccessLectureRecordings(r.Context(), caller.UserID, courseID)
	if d.Reason == access.ReasonLookupFailed {
		s.fail(w, r, playback.ErrLookupFailed)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	courseID, err := parseUUID("courseId", chi.URLParam(r, "courseId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok, err := s.Store.CourseExists(r.Context(), courseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	staff, err := s.canManage(r.Context(), callerFrom(r.Context()), courseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recs, err := s.Store.ListRecordings(r.Context(), courseID, !staff)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.LectureRecording{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs})
}

// handleUploadRecording читает multipart потоково: поля title, uploadId и
// size должны идти до части file.
func (s *Server) handleUploadRecording(w http.ResponseWriter, r *http.Request) {
	courseID, err := parseUUID("courseId", chi.URLParam(r, "courseId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	r = r.WithContext(ctxutil.WithOp(r.Context(), "upload_recording"))
	caller := callerFrom(r.Context())
	if err := s.Uploads.Authorize(r.Context(), courseID, caller.UserID, caller.Role); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.UploadMaxBytes+maxJSONBody)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.fail(w, r, badRequest("multipart/form-data expected"))
		return
	}

	req := upload.Request{CourseID: courseID, Uploader: caller.UserID, Role: caller.Role, Size: -1}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.fail(w, r, badRequest("file part is missing"))
			return
		}
		if err != nil {
			s.fail(w, r, badRequest("invalid multipart body"))
			return
		}

		if part.FormName() != "file" {
			v, err := io.ReadAll(io.LimitReader(part, 4096))
			if err != nil {
				s.fail(w, r, badRequest("invalid multipart body"))
				return
			}
			if err := setUploadField(&req, part.FormName(), strings.TrimSpace(string(v))); err != nil {
				s.fail(w, r, err)
				return
			}
			continue
		}

		req.UploadID, err = s.Uploads.NewUploadID(req.UploadID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		req.Filename = part.FileName()
		req.ContentType = part.Header.Get("Content-Type")
		req.Body = part

		rec, err := s.Uploads.Upload(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"uploadId": req.UploadID, "recording": rec})
		return
	}
}

func setUploadField(req *upload.Request, name, v string) error {
	switch name {
	case "title":
		req.Title = v
	case "uploadId":
		if v == "" {
			return nil
		}
		id, err := parseUUID("uploadId", v)
		if err != nil {
			return err
		}
		req.UploadID = id
	case "size":
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return badRequest("size must be a non-negative integer")
		}
		req.Size = n
	}
	return nil
}

type publishRequest struct {
	IsPublished bool `json:"isPublished"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, ok := s.managedRecording(w, r)
	if !ok {
		return
	}
	if err := s.Store.SetRecordingPublished(r.Context(), id, req.IsPublished); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("recording publish state changed",
		zap.String("recording_id", id), zap.Bool("published", req.IsPublished))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDemo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.managedRecording(w, r)
	if !ok {
		return
	}
	if err := s.Store.SetDemoRecording(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// managedRecording достаёт {id} и проверяет, что вызывающий управляет курсом записи.
func (s *Server) managedRecording(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := parseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return "", false
	}
	rec, err := s.Store.GetRecording(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return "", false
	}
	caller := callerFrom(r.Context())
	ok := caller.Role == models.Teacher && rec.TeacherID == caller.UserID
	if !ok {
		ok, err = s.canManage(r.Context(), caller, rec.CourseID)
		if err != nil {
			s.fail(w, r, err)
			return "", false
		}
	}
	if !ok {
		writeError(w, http.StatusForbidden, upload.ErrForbidden.Error())
		return "", false
	}
	return id, true
}

func (s *Server) canManage(ctx context.Context, caller *identity.Identity, courseID string) (bool, error) {
	switch {
	case caller == nil:
		return false, nil
	case caller.Role.IsAdmin():
		return true, nil
	case caller.Role == models.Teacher:
		ok, err := s.Store.IsCourseTeacher(ctx, courseID, caller.UserID)
		if err != nil {
			return false, fmt.Errorf("check assignment: %w", err)
		}
		return ok, nil
	}
	return false, nil
}

func (s *Server) handleUploadEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID("uploadId", chi.URLParam(r, "uploadId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Progress.ServeSSE(w, r, id); err != nil {
		s.fail(w, r, err)
	}
}

func (s *Server) handleUploadWS(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID("uploadId", chi.URLParam(r, "uploadId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Progress.ServeWS(w, r, id, s.upgrader); err != nil {
		s.fail(w, r, err)
	}
}
