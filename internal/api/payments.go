package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Spok95/lms-recordings/internal/models"
)

type submitPaymentRequest struct {
	CourseID    string `json:"courseId"`
	PlanType    string `json:"planType"`
	AmountCents int64  `json:"amountCents"`
	Reference   string `json:"reference"`
}

func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req submitPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	courseID, err := parseUUID("courseId", req.CourseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	plan, ok := models.ParsePlanType(req.PlanType)
	if !ok {
		s.fail(w, r, badRequest("unknown planType %q", req.PlanType))
		return
	}
	p, err := s.Payments.Submit(r.Context(), callerFrom(r.Context()).UserID, courseID, plan, req.AmountCents, req.Reference)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	status := models.VerificationStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.VerificationPending, models.VerificationApproved, models.VerificationRejected:
	default:
		s.fail(w, r, badRequest("unknown status %q", status))
		return
	}
	list, err := s.Payments.List(r.Context(), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.PaymentVerification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": list})
}

func (s *Server) handleApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sub, err := s.Payments.Approve(r.Context(), id, callerFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": sub})
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID("id", chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.Payments.Reject(r.Context(), id, callerFrom(r.Context()).UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
