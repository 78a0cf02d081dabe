package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/availability"
	"github.com/randevubu/randevubu.server-sub006/internal/booking"
	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/directory"
	"github.com/randevubu/randevubu.server-sub006/internal/model"
	"github.com/randevubu/randevubu.server-sub006/internal/rules"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
	"github.com/randevubu/randevubu.server-sub006/libs/auth"
)

type AppointmentHandler struct {
	coord     *booking.Coordinator
	appts     *storage.AppointmentRepository
	dir       directory.Directory
	clock     clock.Clock
	logger    *slog.Logger
	jwtSecret string
}

func NewAppointmentHandler(coord *booking.Coordinator, appts *storage.AppointmentRepository, dir directory.Directory, clk clock.Clock, logger *slog.Logger, jwtSecret string) *AppointmentHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &AppointmentHandler{
		coord:     coord,
		appts:     appts,
		dir:       dir,
		clock:     clk,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/appointments", h.appointments)
	mux.HandleFunc("/appointments/confirm", h.transition(model.StatusConfirmed))
	mux.HandleFunc("/appointments/complete", h.transition(model.StatusCompleted))
	mux.HandleFunc("/appointments/no-show", h.transition(model.StatusNoShow))
	mux.HandleFunc("/appointments/cancel", h.cancel)
	mux.HandleFunc("/slots", h.slots)
}

type createAppointmentRequest struct {
	BusinessID string `json:"business_id"`
	ServiceID  string `json:"service_id"`
	StaffID    string `json:"staff_id"`
	StartTime  string `json:"start_time"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	CustomerID    string `json:"customer_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Price         string `json:"price,omitempty"`
	Currency      string `json:"currency,omitempty"`
	BookedAt      string `json:"booked_at"`
	CanceledAt    string `json:"canceled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
}

func appointmentToItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		ServiceID:     a.ServiceID,
		StaffID:       a.StaffID,
		CustomerID:    a.CustomerID,
		StartTime:     a.StartTime.Format(time.RFC3339),
		EndTime:       a.EndTime.Format(time.RFC3339),
		Status:        string(a.Status),
		Price:         a.Price,
		Currency:      a.Currency,
		BookedAt:      a.BookedAt.Format(time.RFC3339),
		CancelReason:  a.CancelReason,
	}
	if a.CanceledAt != nil {
		item.CanceledAt = a.CanceledAt.Format(time.RFC3339)
	}
	return item
}

func (h *AppointmentHandler) appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	claims, err := bearerClaims(r, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.BusinessID == "" || req.ServiceID == "" || req.StaffID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "business_id, service_id and staff_id are required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "start_time must be RFC3339")
		return
	}

	appt, err := h.coord.Book(r.Context(), booking.Request{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		StaffID:    req.StaffID,
		CustomerID: claims.Sub,
		Start:      start,
	})
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentToItem(appt))
}

func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	claims, err := bearerClaims(r, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}
	if !staffRole(claims) {
		writeError(w, http.StatusForbidden, "access_denied", "staff role required")
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	if businessID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "business_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	appts, err := h.appts.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		h.logger.Error("listing appointments", "business_id", businessID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentToItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// transition builds the handler for the staff-side lifecycle moves. The
// target status is fixed per route; legality of the move itself is decided
// inside the coordinator under the row lock.
func (h *AppointmentHandler) transition(to model.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		claims, err := bearerClaims(r, h.jwtSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		if !staffRole(claims) {
			writeError(w, http.StatusForbidden, "access_denied", "staff role required")
			return
		}

		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AppointmentID) == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "appointment_id is required")
			return
		}

		appt, err := h.coord.Transition(r.Context(), strings.TrimSpace(req.AppointmentID), to, strings.TrimSpace(req.Reason))
		if err != nil {
			writeBookingError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentToItem(appt))
	}
}

// cancel is the one transition customers may trigger themselves, on their
// own appointments only.
func (h *AppointmentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	claims, err := bearerClaims(r, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.AppointmentID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "appointment_id is required")
		return
	}
	id := strings.TrimSpace(req.AppointmentID)

	if !staffRole(claims) {
		appt, err := h.appts.Get(r.Context(), id)
		if err != nil {
			if storage.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "not_found", "appointment not found")
				return
			}
			h.logger.Error("loading appointment for ownership check", "appointment_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		if appt.CustomerID != claims.Sub {
			writeError(w, http.StatusForbidden, "access_denied", "not your appointment")
			return
		}
	}

	appt, err := h.coord.Cancel(r.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		writeBookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentToItem(appt))
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// slots lists the free starts for one staff member on one business-local
// day. Read-only and racy by nature: the booking transaction re-checks.
func (h *AppointmentHandler) slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	day := strings.TrimSpace(q.Get("date"))
	if businessID == "" || serviceID == "" || staffID == "" || day == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "business_id, service_id, staff_id and date are required")
		return
	}

	ctx := r.Context()
	business, err := h.dir.FindBusiness(ctx, businessID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "business not found")
			return
		}
		h.logger.Error("business lookup", "business_id", businessID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	service, err := h.dir.FindService(ctx, serviceID)
	if err != nil || service.BusinessID != businessID {
		writeError(w, http.StatusNotFound, "not_found", "service not found")
		return
	}

	loc := clock.LoadLocation(business.Timezone)
	dayStart, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
		return
	}
	windowStart, windowEnd := clock.DayBounds(dayStart, loc)

	busyAppts, err := h.appts.ListBlockingIntervals(ctx, businessID, staffID, windowStart, windowEnd)
	if err != nil {
		h.logger.Error("loading busy intervals", "staff_id", staffID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	busy := make([]availability.Busy, 0, len(busyAppts))
	for _, a := range busyAppts {
		busy = append(busy, availability.Busy{Start: a.StartTime, End: a.EndTime})
	}

	duration := time.Duration(service.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	minNotice := service.MinNotificationHours
	if minNotice <= 0 {
		minNotice = business.MinNotificationHours
	}
	if minNotice <= 0 {
		minNotice = rules.DefaultMinNotificationHours
	}

	starts := availability.Slots(availability.Query{
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		Duration:      duration,
		Step:          duration,
		EarliestStart: h.clock.Now().Add(time.Duration(minNotice * float64(time.Hour))),
	}, busy)

	items := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		items = append(items, slotItem{
			StartTime: s.Format(time.RFC3339),
			EndTime:   s.Add(duration).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

func staffRole(claims *auth.Claims) bool {
	return claims.Role == "staff" || claims.Role == "owner" || claims.Role == "admin"
}
