package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/catalog"
	"appointly/backend/internal/service/conflicts"
	"appointly/backend/internal/store"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	ValidServices []string       `json:"valid_services,omitempty"`
	Weekday       string         `json:"weekday,omitempty"`
	Hours         []intervalJSON `json:"hours,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &requestError{msg: "invalid request body"}
	}
	return nil
}

// requestError is a malformed request caught before reaching a service.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// writeError maps err to a status code and a JSON error body. Rejections log
// at Info, caller mistakes at Warn and anything unexpected at Error.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, body := describeError(err)
	log = log.With(
		slog.String("request_id", requestIDFromContext(r.Context())),
		slog.String("code", body.Code),
	)
	switch {
	case status >= 500:
		log.Error("request failed", slog.Any("err", err))
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		log.Info("request rejected", slog.String("reason", body.Message))
	default:
		log.Warn("invalid request", slog.String("reason", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func describeError(err error) (int, errorBody) {
	var (
		reqErr   *requestError
		bookErr  *booking.ValidationError
		availErr *availability.ValidationError
		catErr   *catalog.ValidationError
		rejErr   *booking.RejectionError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, errorBody{Code: booking.CodeInvalidInput, Message: reqErr.Error()}
	case errors.As(err, &bookErr):
		return http.StatusBadRequest, errorBody{Code: bookErr.Code, Message: bookErr.Error(), ValidServices: bookErr.ValidServices}
	case errors.As(err, &availErr):
		return http.StatusBadRequest, errorBody{Code: booking.CodeInvalidInput, Message: availErr.Error()}
	case errors.As(err, &catErr):
		return http.StatusBadRequest, errorBody{Code: booking.CodeInvalidInput, Message: catErr.Error()}
	case errors.As(err, &rejErr):
		return rejectionStatus(rejErr.Reason()), errorBody{
			Code:    string(rejErr.Reason()),
			Message: rejErr.Error(),
			Weekday: weekdayName(rejErr.Decision),
			Hours:   intervalsJSON(rejErr.Decision.Hours),
		}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "authentication required"}
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, errorBody{Code: "FORBIDDEN", Message: "not allowed"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "not found"}
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, errorBody{Code: string(conflicts.ReasonTimeConflict), Message: "requested time conflicts with an existing appointment"}
	case errors.Is(err, store.ErrIdempotencyConflict):
		return http.StatusConflict, errorBody{Code: "IDEMPOTENCY_CONFLICT", Message: "idempotency key was already used for a different request"}
	case errors.Is(err, store.ErrWindowOverlap):
		return http.StatusConflict, errorBody{Code: "WINDOW_OVERLAP", Message: "window overlaps an existing availability window"}
	case errors.Is(err, store.ErrDuplicateService):
		return http.StatusConflict, errorBody{Code: "DUPLICATE_SERVICE", Message: "a service with this name already exists"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, errorBody{Code: "TIMEOUT", Message: "request timed out"}
	}
	return http.StatusServiceUnavailable, errorBody{Code: "UNAVAILABLE", Message: "temporarily unavailable, retry later"}
}

func rejectionStatus(reason conflicts.Reason) int {
	if reason == conflicts.ReasonTimeConflict {
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

func weekdayName(d conflicts.Decision) string {
	if d.Reason == conflicts.ReasonTimeConflict {
		return ""
	}
	return d.Weekday.String()
}
