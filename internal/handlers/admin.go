package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/randevubu/randevubu.server-sub006/internal/clock"
	"github.com/randevubu/randevubu.server-sub006/internal/metrics"
	"github.com/randevubu/randevubu.server-sub006/internal/scheduler"
	"github.com/randevubu/randevubu.server-sub006/internal/storage"
)

// AdminHandler is the operator surface: trigger a reminder pass, inspect
// dead letters and read the daily counters.
type AdminHandler struct {
	runner    *scheduler.Runner
	dead      *storage.DeadLetterRepository
	metrics   *metrics.Recorder
	logger    *slog.Logger
	jwtSecret string
}

func NewAdminHandler(runner *scheduler.Runner, dead *storage.DeadLetterRepository, rec *metrics.Recorder, logger *slog.Logger, jwtSecret string) *AdminHandler {
	return &AdminHandler{
		runner:    runner,
		dead:      dead,
		metrics:   rec,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/reminders/run", h.runReminders)
	mux.HandleFunc("/admin/dead-letters", h.deadLetters)
	mux.HandleFunc("/admin/metrics/reminders", h.reminderMetrics)
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	claims, err := bearerClaims(r, h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return false
	}
	if claims.Role != "admin" {
		writeError(w, http.StatusForbidden, "access_denied", "admin role required")
		return false
	}
	return true
}

// runReminders executes one tick synchronously. It competes for the same
// lock as the scheduled loop, so triggering it during a tick is safe and
// simply reports zero work.
func (h *AdminHandler) runReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if !h.authorize(w, r) {
		return
	}

	stats := h.runner.Tick(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"processed":  stats.Processed,
		"sent":       stats.Sent,
		"failed":     stats.Failed,
		"suppressed": stats.Suppressed,
	})
}

type deadLetterItem struct {
	ID            int64  `json:"id"`
	AppointmentID string `json:"appointment_id"`
	CustomerID    string `json:"customer_id"`
	BusinessID    string `json:"business_id"`
	Error         string `json:"error"`
	CreatedAt     string `json:"created_at"`
}

func (h *AdminHandler) deadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if !h.authorize(w, r) {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := h.dead.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing dead letters", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	items := make([]deadLetterItem, 0, len(rows))
	for _, dl := range rows {
		items = append(items, deadLetterItem{
			ID:            dl.ID,
			AppointmentID: dl.AppointmentID,
			CustomerID:    dl.CustomerID,
			BusinessID:    dl.BusinessID,
			Error:         dl.Error,
			CreatedAt:     dl.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": items})
}

func (h *AdminHandler) reminderMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if !h.authorize(w, r) {
		return
	}

	day := strings.TrimSpace(r.URL.Query().Get("day"))
	if day == "" {
		day = clock.DayKey(time.Now(), time.UTC)
	}
	counters, err := h.metrics.ReminderDay(r.Context(), day)
	if err != nil {
		h.logger.Error("reading reminder metrics", "day", day, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "counters": counters})
}
