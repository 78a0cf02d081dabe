package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/randevubu/randevubu.server-sub006/internal/booking"
	"github.com/randevubu/randevubu.server-sub006/internal/rules"
	"github.com/randevubu/randevubu.server-sub006/libs/auth"
)

type errorResponse struct {
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	Violations []violationItem `json:"violations,omitempty"`
}

type violationItem struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Limit   float64 `json:"limit,omitempty"`
	Actual  float64 `json:"actual,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeBookingError maps the booking error taxonomy onto HTTP statuses.
// Policy rejections are 422 so clients can tell "fix your request" (400)
// from "the request is well-formed but not allowed".
func writeBookingError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var be *booking.Error
	if !errors.As(err, &be) {
		logger.Error("unclassified booking error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch be.Kind {
	case booking.KindPolicyViolation:
		status = http.StatusUnprocessableEntity
	case booking.KindSlotTaken:
		status = http.StatusConflict
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindCustomerBanned, booking.KindAccessDenied:
		status = http.StatusForbidden
	case booking.KindBusinessClosed, booking.KindServiceUnavailable,
		booking.KindStaffUnavailable, booking.KindIncompleteProfile:
		status = http.StatusUnprocessableEntity
	case booking.KindTransient:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusServiceUnavailable || status == http.StatusInternalServerError {
		logger.Error("booking infrastructure error", "err", err)
	}

	writeJSON(w, status, errorResponse{
		Error:      be.Message,
		Code:       be.Kind.String(),
		Violations: violationItems(be.Violations),
	})
}

func violationItems(vs []rules.Violation) []violationItem {
	if len(vs) == 0 {
		return nil
	}
	out := make([]violationItem, 0, len(vs))
	for _, v := range vs {
		out = append(out, violationItem{Code: v.Code, Message: v.Message, Limit: v.Limit, Actual: v.Actual})
	}
	return out
}

// bearerClaims authenticates the request from its Authorization header.
func bearerClaims(r *http.Request, secret string) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, auth.ErrInvalidToken
	}
	return auth.VerifyHS256(strings.TrimSpace(token), secret)
}
