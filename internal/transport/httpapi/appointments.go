package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"appointly/backend/internal/service/booking"
)

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, badRequest(name + " must be a UUID")
	}
	return id, nil
}

func (a *API) checkConflict(w http.ResponseWriter, r *http.Request) {
	businessID := mux.Vars(r)["businessID"]
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	var exclude uuid.UUID
	if req.ExcludeAppointmentID != "" {
		id, err := uuid.Parse(req.ExcludeAppointmentID)
		if err != nil {
			writeError(w, r, a.log, badRequest("exclude_appointment_id must be a UUID"))
			return
		}
		exclude = id
	}

	decision, err := a.bookings.CheckConflict(r.Context(), booking.CheckInput{
		BusinessID:      businessID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		ServiceName:     req.ServiceName,
		ExcludeID:       exclude,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionJSON(decision, callerID(r) == businessID))
}

func (a *API) bookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	appt, err := a.bookings.Book(r.Context(), booking.BookInput{
		BusinessID:     mux.Vars(r)["businessID"],
		ServiceName:    req.ServiceName,
		Date:           req.Date,
		StartTime:      req.StartTime,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentJSON(appt))
}

func (a *API) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	appt, err := a.bookings.UpdateBooking(r.Context(), booking.UpdateInput{
		BusinessID:    mux.Vars(r)["businessID"],
		AppointmentID: id,
		ServiceName:   req.ServiceName,
		Date:          req.Date,
		StartTime:     req.StartTime,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentJSON(appt))
}

func (a *API) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if err := a.bookings.Delete(r.Context(), mux.Vars(r)["businessID"], id); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listMyAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := a.bookings.List(r.Context(), callerID(r), q.Get("date"), q.Get("service"))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentsJSON(rows)})
}

func (a *API) searchMyAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := a.bookings.Search(r.Context(), callerID(r), q.Get("phone"), q.Get("name"))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentsJSON(rows)})
}

func (a *API) getMyAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	appt, err := a.bookings.Get(r.Context(), callerID(r), id)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentJSON(appt))
}

func (a *API) dailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.bookings.DailyStats(r.Context(), callerID(r), mux.Vars(r)["date"])
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsJSON(stats))
}
