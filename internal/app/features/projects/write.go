// internal/app/features/projects/write.go
package projects

import (
	"errors"
	"fmt"
	"net/http"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.uber.org/zap"
)

const (
	msgCreated       = "Project created"
	msgUpdated       = "Project updated"
	msgDeleted       = "Project deleted"
	msgTaskCompleted = "Task marked complete"
	msgAllCompleted  = "All tasks completed, project marked as completed"
)

type projectResponse struct {
	Message string          `json:"message"`
	Project *models.Project `json:"project"`
}

type completeTaskResponse struct {
	Message      string          `json:"message"`
	Project      *models.Project `json:"project"`
	AllCompleted bool            `json:"all_completed"`
}

// partialResponse is sent with 207 when the project was written but some
// participants were not. The run is left for the repair worker.
type partialResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	RunID   string          `json:"run_id"`
	IDs     []string        `json:"ids"`
	Project *models.Project `json:"project,omitempty"`
}

// Create serves POST /api/projects.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := inputval.DecodeJSON(r, &req); err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.ErrLog.Respond(w, r, &reconcile.ValidationError{Message: err.Error()})
		return
	}
	in.ExpectedVersion = nil

	p, err := h.Rec.Create(r.Context(), in)
	if h.partial(w, r, p, err) {
		h.Audit.ProjectCreated(r.Context(), r, p)
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	h.Audit.ProjectCreated(r.Context(), r, p)
	uierrors.JSON(w, http.StatusCreated, projectResponse{Message: msgCreated, Project: p})
}

// Update serves PUT /api/projects/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if err := inputval.DecodeJSON(r, &req); err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.ErrLog.Respond(w, r, &reconcile.ValidationError{Message: err.Error()})
		return
	}

	p, err := h.Rec.Update(r.Context(), id, in)
	if h.partial(w, r, p, err) {
		h.Audit.ProjectUpdated(r.Context(), r, p)
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	h.Audit.ProjectUpdated(r.Context(), r, p)
	uierrors.JSON(w, http.StatusOK, projectResponse{Message: msgUpdated, Project: p})
}

// CompleteTask serves PUT /api/projects/{id}/complete-task.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	var req completeTaskRequest
	if err := inputval.DecodeJSON(r, &req); err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	userID := req.userID()

	p, all, err := h.Rec.CompleteTask(r.Context(), id, req.TaskName, userID)
	if h.partial(w, r, p, err) {
		h.Audit.TaskCompleted(r.Context(), r, id, req.TaskName, userID, all)
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	h.Audit.TaskCompleted(r.Context(), r, id, req.TaskName, userID, all)

	msg := msgTaskCompleted
	if all {
		msg = msgAllCompleted
	}
	uierrors.JSON(w, http.StatusOK, completeTaskResponse{Message: msg, Project: p, AllCompleted: all})
}

// Delete serves DELETE /api/projects/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r)
	if !ok {
		return
	}
	err := h.Rec.Delete(r.Context(), id)
	if h.partial(w, r, nil, err) {
		h.Audit.ProjectDeleted(r.Context(), r, id)
		return
	}
	if err != nil {
		h.ErrLog.Respond(w, r, err)
		return
	}
	h.Audit.ProjectDeleted(r.Context(), r, id)
	uierrors.JSON(w, http.StatusOK, map[string]string{"message": msgDeleted})
}

// partial answers 207 when err is a partial failure and reports whether it did.
func (h *Handler) partial(w http.ResponseWriter, r *http.Request, p *models.Project, err error) bool {
	var pf *reconcile.PartialFailureError
	if !errors.As(err, &pf) {
		return false
	}
	failed := pf.FailedIDs()
	ids := make([]string, 0, len(failed))
	for _, id := range failed {
		ids = append(ids, id.Hex())
	}
	h.Log.Warn("participant updates failed",
		zap.String("run_id", pf.RunID),
		zap.String("project_id", pf.ProjectID.Hex()),
		zap.Strings("user_ids", ids))
	h.Audit.ReconcilePartial(r.Context(), r, pf.RunID, pf.ProjectID, failed)

	uierrors.JSON(w, http.StatusMultiStatus, partialResponse{
		Code:    uierrors.CodePartialFailure,
		Message: fmt.Sprintf("project saved, %d of %d participant updates failed", len(pf.Failures), pf.Attempted),
		RunID:   pf.RunID,
		IDs:     ids,
		Project: p,
	})
	return true
}
