package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/lms-recordings/internal/ctxutil"
	"github.com/Spok95/lms-recordings/internal/db"
	"github.com/Spok95/lms-recordings/internal/demo"
	"github.com/Spok95/lms-recordings/internal/identity"
	"github.com/Spok95/lms-recordings/internal/observability"
	"github.com/Spok95/lms-recordings/internal/payments"
	"github.com/Spok95/lms-recordings/internal/playback"
	"github.com/Spok95/lms-recordings/internal/progress"
	"github.com/Spok95/lms-recordings/internal/storage"
	"github.com/Spok95/lms-recordings/internal/token"
	"github.com/Spok95/lms-recordings/internal/upload"
)

const maxJSONBody = 1 << 20

// errBadRequest оборачивает ошибки валидации входа.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid json body")
	}
	return nil
}

func parseUUID(field, v string) (string, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return "", badRequest("%s must be a uuid", field)
	}
	return id.String(), nil
}

// fail переводит доменную ошибку в HTTP-ответ. Всё неизвестное: 500 без деталей.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var denied *playback.DeniedError
	switch {
	case errors.As(err, &denied):
		body := map[string]any{"error": denied.Decision.Message}
		if denied.Decision.RequiresSubscription {
			body["requiresSubscription"] = true
		}
		writeJSON(w, http.StatusForbidden, body)
	case errors.Is(err, errBadRequest),
		errors.Is(err, payments.ErrInvalid),
		errors.Is(err, upload.ErrUnsupportedType),
		errors.Is(err, progress.ErrExists):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, identity.ErrNoCredential),
		errors.Is(err, identity.ErrUnauthorized),
		errors.Is(err, playback.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, upload.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, demo.ErrLimitReached),
		errors.Is(err, demo.ErrNoActiveGrant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, playback.ErrNotFound),
		errors.Is(err, demo.ErrCourseNotFound),
		errors.Is(err, demo.ErrUserNotFound),
		errors.Is(err, upload.ErrCourseNotFound),
		errors.Is(err, payments.ErrNotFound),
		errors.Is(err, payments.ErrCourseNotFound),
		errors.Is(err, progress.ErrUnknown),
		errors.Is(err, storage.ErrObjectNotFound),
		errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, payments.ErrAlreadyReviewed),
		errors.Is(err, db.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, token.ErrMisconfigured):
		writeError(w, http.StatusInternalServerError, "playback tokens are not configured")
	default:
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		}
		if op, ok := ctxutil.Op(r.Context()); ok {
			fields = append(fields, zap.String("op", op))
		}
		if uid, ok := ctxutil.UserID(r.Context()); ok {
			fields = append(fields, zap.String("user_id", uid))
		}
		if role, ok := ctxutil.Role(r.Context()); ok {
			fields = append(fields, zap.String("role", role))
		}
		s.log.Error("request failed", fields...)
		observability.CaptureRequestErr(r, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
