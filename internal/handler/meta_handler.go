package handler

import (
	"encoding/json"
	"net/http"

	"github.com/equipedash/equipe-dash-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Group goal endpoints
// ============================================================

func getMetaHandler(svc *service.MetaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status, err := svc.Get(r.Context(), q.Get("from"), q.Get("to"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

type setMetaRequest struct {
	NumericValue float64 `json:"numeric_value"`
}

func setMetaHandler(svc *service.MetaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setMetaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		meta, err := svc.Set(r.Context(), ProfileFromContext(r.Context()), req.NumericValue)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}
