// internal/app/features/reconciliation/handler.go
package reconciliation

import (
	"context"
	"net/http"

	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	reconciliationstore "github.com/dalemusser/projecttracker/internal/app/store/reconciliations"
	"github.com/dalemusser/projecttracker/internal/app/system/auditlog"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler exposes manual repair and the run journal.
type Handler struct {
	Rec    *reconcile.Reconciler
	Runs   *reconciliationstore.Store
	Audit  *auditlog.Logger
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger

	// AfterRepair, when set, runs after every manual repair (metrics refresh).
	AfterRepair func(ctx context.Context)
}

// NewHandler constructs a reconciliation Handler.
func NewHandler(db *mongo.Database, rec *reconcile.Reconciler, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Rec:    rec,
		Runs:   reconciliationstore.New(db),
		Audit:  audit,
		Log:    logger,
		ErrLog: errLog,
	}
}

// Routes returns the router mounted under /api/reconcile.
func Routes(h *Handler, limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/runs", h.ListRuns)
	r.Get("/runs/{runID}", h.GetRun)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/repair", h.Repair)
	})
	return r
}
