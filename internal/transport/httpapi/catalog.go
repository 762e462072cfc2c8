package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/catalog"
)

func (a *API) listBusinessServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.catalog.List(r.Context(), mux.Vars(r)["businessID"])
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": toServicesJSON(services)})
}

func (a *API) listMyServices(w http.ResponseWriter, r *http.Request) {
	services, err := a.catalog.List(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": toServicesJSON(services)})
}

func (a *API) createService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	svc, err := a.catalog.Create(r.Context(), catalog.CreateInput{
		OwnerID:         callerID(r),
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceJSON(svc))
}

func (a *API) updateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	var req updateServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	svc, err := a.catalog.Update(r.Context(), catalog.UpdateInput{
		OwnerID:         callerID(r),
		ID:              id,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceJSON(svc))
}

func (a *API) deleteService(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if err := a.catalog.Delete(r.Context(), callerID(r), id); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listBusinessAvailability returns every window, or only one weekday's when
// ?weekday= is given.
func (a *API) listBusinessAvailability(w http.ResponseWriter, r *http.Request) {
	businessID := mux.Vars(r)["businessID"]
	var (
		windows []domain.AvailabilityWindow
		err     error
	)
	if raw := r.URL.Query().Get("weekday"); raw != "" {
		day, perr := domain.ParseWeekday(raw)
		if perr != nil {
			writeError(w, r, a.log, badRequest("weekday must be a day name or 0..6"))
			return
		}
		windows, err = a.availability.GetWindows(r.Context(), businessID, day)
	} else {
		windows, err = a.availability.ListWindows(r.Context(), businessID)
	}
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": toWindowsJSON(windows)})
}

func (a *API) listMyWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := a.availability.ListWindows(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": toWindowsJSON(windows)})
}

func (a *API) createWindow(w http.ResponseWriter, r *http.Request) {
	var req createWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	win, err := a.availability.CreateWindow(r.Context(), availability.CreateWindowInput{
		OwnerID:   callerID(r),
		DayOfWeek: string(req.DayOfWeek),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowJSON(win))
}

func (a *API) deleteWindow(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	if err := a.availability.DeleteWindow(r.Context(), callerID(r), id); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listOpenings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var step int
	if raw := q.Get("step"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, a.log, badRequest("step must be a number of minutes"))
			return
		}
		step = n
	}
	openings, err := a.availability.Openings(r.Context(), availability.OpeningsInput{
		BusinessID:  mux.Vars(r)["businessID"],
		ServiceName: q.Get("service"),
		From:        q.Get("from"),
		To:          q.Get("to"),
		StepMinutes: step,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"openings": toOpeningsJSON(openings)})
}
