package handler

import (
	"net/http"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/repository"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Team roster endpoints
// ============================================================

func listUsersHandler(users *repository.Users, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roster, err := users.List(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, roster)
	}
}

func getUserHandler(users *repository.Users, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "userId")

		user, err := users.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if user == nil {
			writeError(w, http.StatusNotFound, "user not found: "+id)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// ============================================================
// Performance endpoints
// ============================================================

func teamPerformanceHandler(svc *service.PerformanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.TeamSummary(r.Context(), eventFilterFromQuery(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func agentPerformanceHandler(svc *service.PerformanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := chi.URLParam(r, "agentId")

		summary, err := svc.AgentSummary(r.Context(), agentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// ============================================================
// Own-profile endpoint — the only profile mutation in scope
// ============================================================

func updateProfileHandler(users *repository.Users, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile := ProfileFromContext(r.Context())
		id := chi.URLParam(r, "userId")
		if profile == nil || (profile.ID != id && profile.Role != domain.RoleSupervisor) {
			writeError(w, http.StatusForbidden, "forbidden: update profile")
			return
		}

		var fields map[string]any
		if err := decodeBody(r, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := users.Update(r.Context(), id, fields); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
