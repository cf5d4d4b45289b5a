// internal/app/features/reconciliation/runs.go
package reconciliation

import (
	"errors"
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/paging"
	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
)

var runStates = map[string]bool{
	models.RunPending:   true,
	models.RunCompleted: true,
	models.RunPartial:   true,
	models.RunFailed:    true,
	models.RunRepaired:  true,
}

// ListRuns serves GET /api/reconcile/runs?state=&limit=, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	state := strings.ToLower(strings.TrimSpace(query.Get(r, "state")))
	if state != "" && !runStates[state] {
		h.ErrLog.Respond(w, r, &inputval.Error{Fields: map[string]string{
			"state": "state must be pending, completed, partial, failed or repaired",
		}})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list reconcile runs")
	defer cancel()

	runs, err := h.Runs.Recent(ctx, state, paging.ParseLimit(r))
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, runs)
}

// GetRun serves GET /api/reconcile/runs/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get reconcile run")
	defer cancel()

	run, err := h.Runs.GetByRunID(ctx, runID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		uierrors.Write(w, http.StatusNotFound, uierrors.CodeNotFound, "run not found: "+runID)
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, run)
}
