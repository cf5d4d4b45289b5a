// internal/app/features/reconciliation/repair.go
package reconciliation

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	"github.com/dalemusser/projecttracker/internal/app/system/inputval"
	"go.uber.org/zap"
)

type repairRequest struct {
	UserIDs []string `json:"user_ids" validate:"omitempty,max=5000,dive,objectid"`
}

// Repair serves POST /api/reconcile/repair. An empty body or an empty
// user_ids list repairs every user. Users that still could not be written
// are listed in failed_user_ids; the status stays 200.
func (h *Handler) Repair(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if r.ContentLength != 0 {
		if err := inputval.DecodeJSON(r, &req); err != nil {
			h.ErrLog.Respond(w, r, err)
			return
		}
	}
	ids, err := inputval.ObjectIDs(req.UserIDs)
	if err != nil {
		h.ErrLog.Respond(w, r, &inputval.Error{Fields: map[string]string{"user_ids": err.Error()}})
		return
	}

	rep, err := h.Rec.Repair(r.Context(), ids)
	if err != nil && rep.RunID == "" {
		h.ErrLog.Respond(w, r, err)
		return
	}
	if err != nil {
		h.Log.Warn("repair finished with failures", zap.String("run_id", rep.RunID), zap.Error(err))
	}
	h.Audit.RepairRequested(r.Context(), r, rep.RunID, rep.Checked, rep.Fixed, len(rep.Failed))
	if h.AfterRepair != nil {
		h.AfterRepair(context.WithoutCancel(r.Context()))
	}
	uierrors.JSON(w, http.StatusOK, rep)
}
