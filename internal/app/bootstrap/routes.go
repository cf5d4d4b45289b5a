// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"

	auditlogfeature "github.com/dalemusser/projecttracker/internal/app/features/auditlog"
	errorsfeature "github.com/dalemusser/projecttracker/internal/app/features/errors"
	healthfeature "github.com/dalemusser/projecttracker/internal/app/features/health"
	projectsfeature "github.com/dalemusser/projecttracker/internal/app/features/projects"
	reconciliationfeature "github.com/dalemusser/projecttracker/internal/app/features/reconciliation"
	usersfeature "github.com/dalemusser/projecttracker/internal/app/features/users"
	"github.com/dalemusser/projecttracker/internal/app/system/httplog"
	"github.com/dalemusser/projecttracker/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup and
// Startup have completed. The JSON API lives under /api; /health and
// /metrics sit at the root for load balancers and scrapers.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	s := current()
	if s == nil {
		return nil, fmt.Errorf("BuildHandler called before Startup")
	}
	return newRouter(deps, s, logger), nil
}

func newRouter(deps DBDeps, s *services, logger *zap.Logger) http.Handler {
	db := deps.TrackerMongoDatabase
	errLog := errorsfeature.NewErrorLogger(logger)
	limit := s.limiter.Middleware

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httplog.Middleware(logger.Named("http")))
	r.Use(s.collector.Instrument)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.TrackerMongoClient, db, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", metrics.Handler(s.registry))

	r.Route("/api", func(api chi.Router) {
		projectsHandler := projectsfeature.NewHandler(db, s.reconciler, s.audit, errLog, logger)
		api.Mount("/projects", projectsfeature.Routes(projectsHandler, limit))

		usersHandler := usersfeature.NewHandler(db, s.audit, errLog, logger)
		api.Mount("/users", usersfeature.Routes(usersHandler, limit))

		reconcileHandler := reconciliationfeature.NewHandler(db, s.reconciler, s.audit, errLog, logger)
		reconcileHandler.AfterRepair = s.refresh
		api.Mount("/reconcile", reconciliationfeature.Routes(reconcileHandler, limit))

		auditHandler := auditlogfeature.NewHandler(db, errLog, logger)
		api.Mount("/audit", auditlogfeature.Routes(auditHandler))

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			errorsfeature.Write(w, http.StatusNotFound, errorsfeature.CodeNotFound, "no such endpoint")
		})
	})
	return r
}
