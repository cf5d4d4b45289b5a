package health

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/projecttracker/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	DB     *mongo.Database // optional; enables the reconciliation backlog check
	Log    *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(client *mongo.Client, db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		DB:     db,
		Log:    logger,
	}
}

type healthResponse struct {
	Status      string `json:"status"` // ok | degraded | error
	Database    string `json:"database"`
	PartialRuns *int64 `json:"partial_runs,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// 200 with status "ok", or "degraded" while partial reconciliation runs are
// waiting for repair. 503 when MongoDB does not answer a ping:
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		uierrors.JSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:   "error",
			Database: "disconnected",
			Message:  "Database unavailable",
			Error:    err.Error(),
		})
		return
	}

	resp := healthResponse{Status: "ok", Database: "connected"}
	if h.DB != nil {
		n, err := h.DB.Collection("reconciliations").CountDocuments(ctx, bson.M{"state": models.RunPartial})
		if err != nil {
			h.Log.Warn("health-check: partial run count failed", zap.Error(err))
		} else {
			resp.PartialRuns = &n
			if n > 0 {
				resp.Status = "degraded"
			}
		}
	}
	uierrors.JSON(w, http.StatusOK, resp)
}
