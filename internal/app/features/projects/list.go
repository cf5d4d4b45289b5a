// internal/app/features/projects/list.go
package projects

import (
	"net/http"
	"strings"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	"github.com/dalemusser/projecttracker/internal/app/system/paging"
	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// List serves GET /api/projects, optionally filtered by ?status=, one page
// at a time (?limit=, ?offset=).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(query.Get(r, "status")))
	if status != "" && status != models.ProjectRunning && status != models.ProjectCompleted {
		uierrors.JSON(w, http.StatusBadRequest, uierrors.Envelope{
			Code:    uierrors.CodeValidation,
			Message: `status must be "running" or "completed"`,
			Fields:  map[string]string{"status": `must be "running" or "completed"`},
		})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list projects")
	defer cancel()

	limit, offset := paging.ParseLimit(r), paging.ParseOffset(r)
	projects, err := h.Store.List(ctx, status, paging.LimitPlusOne(limit), offset)
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, paging.NewPage(projects, limit, offset))
}

// ListRunning serves GET /api/projects/running.
func (h *Handler) ListRunning(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list running projects")
	defer cancel()

	projects, err := h.Store.ListRunning(ctx)
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, projects)
}

// Get serves GET /api/projects/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get project")
	defer cancel()

	p, err := h.Store.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		notFound(w, id.Hex())
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	uierrors.JSON(w, http.StatusOK, p)
}

// projectID parses the {id} route parameter. A malformed id cannot name a
// project, so it is answered with 404.
func (h *Handler) projectID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		notFound(w, raw)
		return primitive.NilObjectID, false
	}
	return id, true
}

func notFound(w http.ResponseWriter, id string) {
	uierrors.Write(w, http.StatusNotFound, uierrors.CodeNotFound, "project not found: "+id)
}
