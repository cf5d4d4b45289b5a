// internal/app/features/projects/handler.go
package projects

import (
	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	projectstore "github.com/dalemusser/projecttracker/internal/app/store/projects"
	"github.com/dalemusser/projecttracker/internal/app/system/auditlog"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler owns the project API. Reads go straight to the store; every write
// goes through the reconciler.
type Handler struct {
	Store  *projectstore.Store
	Rec    *reconcile.Reconciler
	Audit  *auditlog.Logger
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler constructs a projects Handler.
func NewHandler(db *mongo.Database, rec *reconcile.Reconciler, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Store:  projectstore.New(db),
		Rec:    rec,
		Audit:  audit,
		Log:    logger,
		ErrLog: errLog,
	}
}
