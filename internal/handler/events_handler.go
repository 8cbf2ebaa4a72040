package handler

import (
	"encoding/json"
	"net/http"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Event endpoints — calendar CRUD
// ============================================================

// eventFilterFromQuery builds the conjunctive predicate set from the
// query string; absent params mean no constraint.
func eventFilterFromQuery(r *http.Request) domain.EventFilter {
	q := r.URL.Query()
	return domain.EventFilter{
		AssignedTo: q.Get("assigned_to"),
		Category:   domain.EventCategory(q.Get("category")),
		StartDate:  q.Get("start_date"),
		EndDate:    q.Get("end_date"),
	}
}

func listEventsHandler(svc *service.EventService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.List(r.Context(), eventFilterFromQuery(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func createEventHandler(svc *service.EventService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev domain.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		created, err := svc.Create(r.Context(), ProfileFromContext(r.Context()), &ev)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateEventHandler(svc *service.EventService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "eventId")

		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := svc.Update(r.Context(), ProfileFromContext(r.Context()), id, fields); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteEventHandler(svc *service.EventService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "eventId")

		if err := svc.Delete(r.Context(), ProfileFromContext(r.Context()), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
