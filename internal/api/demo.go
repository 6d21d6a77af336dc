package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Spok95/lms-recordings/internal/export"
	"github.com/Spok95/lms-recordings/internal/models"
)

type demoGrantRequest struct {
	CourseID   string `json:"courseId"`
	AccessType string `json:"accessType"`
}

type adminDemoGrantRequest struct {
	UserID     string `json:"userId"`
	CourseID   string `json:"courseId"`
	AccessType string `json:"accessType"`
}

type trackViewRequest struct {
	CourseID    string `json:"courseId"`
	RecordingID string `json:"recordingId"`
	AccessType  string `json:"accessType"`
}

// пустой accessType: записи лекций
func parseAccessType(v string) (models.AccessType, error) {
	if v == "" {
		return models.AccessLectureRecording, nil
	}
	t, ok := models.ParseAccessType(v)
	if !ok {
		return "", badRequest("unknown accessType %q", v)
	}
	return t, nil
}

func (s *Server) handleDemoGrant(w http.ResponseWriter, r *http.Request) {
	var req demoGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	courseID, err := parseUUID("courseId", req.CourseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := parseAccessType(req.AccessType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.Demo.Grant(r.Context(), callerFrom(r.Context()).UserID, courseID, at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleDemoStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	courseID, err := parseUUID("courseId", q.Get("courseId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := parseAccessType(q.Get("accessType"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, active, err := s.Demo.Status(r.Context(), callerFrom(r.Context()).UserID, courseID, at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": active, "grant": g})
}

func (s *Server) handleTrackView(w http.ResponseWriter, r *http.Request) {
	var req trackViewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	courseID, err := parseUUID("courseId", req.CourseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	recID, err := parseUUID("recordingId", req.RecordingID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := parseAccessType(req.AccessType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Demo.TrackView(r.Context(), callerFrom(r.Context()).UserID, courseID, recID, at); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleAdminDemoGrant(w http.ResponseWriter, r *http.Request) {
	var req adminDemoGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	userID, err := parseUUID("userId", req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	courseID, err := parseUUID("courseId", req.CourseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := parseAccessType(req.AccessType)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.Demo.AdminGrant(r.Context(), callerFrom(r.Context()).UserID, userID, courseID, at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

const maxExportDays = 3650

// handleDemoExport отдаёт xlsx: гранты и просмотры за последние ?days= (по умолчанию 30, не больше maxExportDays).
func (s *Server) handleDemoExport(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxExportDays {
			s.fail(w, r, badRequest("days must be between 1 and %d", maxExportDays))
			return
		}
		days = n
	}
	now := s.now()
	grants, err := s.Store.ListDemoGrants(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views, err := s.Store.ListDemoViews(r.Context(), now.Add(-time.Duration(days)*24*time.Hour))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteDemoLedger(&buf, grants, views, now, s.Location); err != nil {
		s.fail(w, r, err)
		return
	}
	name := export.BuildDemoLedgerFilename(now.In(s.Location))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
