// internal/app/features/users/handler.go
package users

import (
	uierrors "github.com/dalemusser/projecttracker/internal/app/features/errors"
	userstore "github.com/dalemusser/projecttracker/internal/app/store/users"
	"github.com/dalemusser/projecttracker/internal/app/system/auditlog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the user directory. It never writes availability or
// assigned_projects; those belong to the reconciler.
type Handler struct {
	Store  *userstore.Store
	Audit  *auditlog.Logger
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler constructs a users Handler.
func NewHandler(db *mongo.Database, audit *auditlog.Logger, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Store:  userstore.New(db),
		Audit:  audit,
		Log:    logger,
		ErrLog: errLog,
	}
}
