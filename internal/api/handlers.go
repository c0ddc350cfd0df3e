package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/schedule"
)

// Stable reason codes crossing the API boundary. Clients branch on these,
// never on message text.
const (
	reasonValidation      = "validation_error"
	reasonConflict        = "conflict_error"
	reasonQuota           = "quota_exceeded"
	reasonAuthz           = "authorization_error"
	reasonNotFound        = "not_found"
	reasonTransition      = "invalid_transition"
	reasonUnauthenticated = "unauthenticated"
	reasonRateLimited     = "rate_limited"
	reasonInternal        = "internal_error"
)

func (s *HTTPServer) writeEngineError(w http.ResponseWriter, err error) {
	status, reason := http.StatusInternalServerError, reasonInternal
	switch {
	case errors.Is(err, database.ErrInvalidRange),
		errors.Is(err, database.ErrOutsideHours),
		errors.Is(err, database.ErrNotesTooLong):
		status, reason = http.StatusBadRequest, reasonValidation
	case errors.Is(err, database.ErrOverlapConflict),
		errors.Is(err, database.ErrConcurrentModification):
		status, reason = http.StatusConflict, reasonConflict
	case errors.Is(err, database.ErrQuotaExceeded):
		status, reason = http.StatusConflict, reasonQuota
	case errors.Is(err, database.ErrUnauthorized):
		status, reason = http.StatusForbidden, reasonAuthz
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrUserNotFound):
		status, reason = http.StatusNotFound, reasonNotFound
	case errors.Is(err, database.ErrInvalidTransition):
		status, reason = http.StatusConflict, reasonTransition
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("engine operation failed")
		writeError(w, status, reason, "internal error")
		return
	}
	metrics.IncRejected(reason)
	writeError(w, status, reason, err.Error())
}

func (s *HTTPServer) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, reasonUnauthenticated, "missing actor identity")
		return models.Actor{}, false
	}
	return actor, true
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := s.actor(w, r)
	if !ok {
		return models.Actor{}, false
	}
	if !actor.IsAdmin() {
		metrics.IncRejected(reasonAuthz)
		writeError(w, http.StatusForbidden, reasonAuthz, "admin role required")
		return models.Actor{}, false
	}
	return actor, true
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonValidation, "invalid user id")
		return 0, false
	}
	return id, true
}

// queryWeekAnchor parses the optional ?date=YYYY-MM-DD parameter that
// selects a reporting week; defaults to now.
func queryWeekAnchor(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, reasonValidation, "invalid request body")
		return
	}
	if req.UserID == 0 {
		req.UserID = actor.ID
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, reasonValidation, "start_time and end_time are required")
		return
	}

	booking, err := s.engine.CreateBooking(r.Context(), actor, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.invalidateWeeklyReport(r, booking.StartTime)
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	booking, err := s.engine.GetBooking(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var patch models.BookingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, reasonValidation, "invalid request body")
		return
	}

	booking, err := s.engine.UpdateBooking(r.Context(), actor, r.PathValue("id"), patch)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.invalidateWeeklyReport(r, booking.StartTime)
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	booking, err := s.engine.CancelBooking(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.invalidateWeeklyReport(r, booking.StartTime)
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	bookings, err := s.engine.GetUserBookings(r.Context(), actor, userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings, "count": len(bookings)})
}

func (s *HTTPServer) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	count, err := s.engine.CancelAllBookings(r.Context(), actor, userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"cancelled": count})
}

func (s *HTTPServer) handleWeeklyCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if !actor.CanActFor(userID) {
		metrics.IncRejected(reasonAuthz)
		writeError(w, http.StatusForbidden, reasonAuthz, database.ErrUnauthorized.Error())
		return
	}

	at, err := queryWeekAnchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonValidation, "invalid date format; expected YYYY-MM-DD")
		return
	}

	count, err := s.engine.WeeklyCount(r.Context(), userID, at)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *HTTPServer) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	at, err := queryWeekAnchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonValidation, "invalid date format; expected YYYY-MM-DD")
		return
	}

	weekKey := schedule.WeekOf(at, s.loc).Key()
	if s.state != nil {
		if cached, err := s.state.GetCachedReport(r.Context(), weekKey); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	report, err := s.engine.UsersBelowWeeklyTarget(r.Context(), at)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if s.state != nil {
		if err := s.state.SetCachedReport(r.Context(), weekKey, report); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache weekly report")
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	count, err := s.engine.SweepCompleted(r.Context(), time.Now())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"completed": count})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, reasonNotFound, "export is not configured")
		return
	}

	at, err := queryWeekAnchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, reasonValidation, "invalid date format; expected YYYY-MM-DD")
		return
	}
	// Экспортируем месяц вокруг выбранной даты
	start := at.AddDate(0, -1, 0)
	end := at.AddDate(0, 1, 0)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=bookings_%s.xlsx", at.Format("2006-01-02")))
	if err := s.exporter.WriteBookings(r.Context(), w, start, end); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
	}
}

// invalidateWeeklyReport drops the cached report for the week a mutation
// touched; stale advisory data is acceptable but cheap to avoid here.
func (s *HTTPServer) invalidateWeeklyReport(r *http.Request, at time.Time) {
	if s.state == nil {
		return
	}
	weekKey := schedule.WeekOf(at, s.loc).Key()
	if err := s.state.ClearCachedReport(r.Context(), weekKey); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate weekly report cache")
	}
}
