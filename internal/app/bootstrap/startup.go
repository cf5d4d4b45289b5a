// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"
	"time"

	auditstore "github.com/dalemusser/projecttracker/internal/app/store/audit"
	metricsstore "github.com/dalemusser/projecttracker/internal/app/store/metrics"
	projectstore "github.com/dalemusser/projecttracker/internal/app/store/projects"
	reconciliationstore "github.com/dalemusser/projecttracker/internal/app/store/reconciliations"
	userstore "github.com/dalemusser/projecttracker/internal/app/store/users"
	"github.com/dalemusser/projecttracker/internal/app/system/auditlog"
	"github.com/dalemusser/projecttracker/internal/app/system/metrics"
	"github.com/dalemusser/projecttracker/internal/app/system/ratelimit"
	"github.com/dalemusser/projecttracker/internal/app/system/reconcile"
	"github.com/dalemusser/projecttracker/internal/app/system/timeouts"
	"github.com/dalemusser/projecttracker/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// services are built once in Startup and shared by BuildHandler and Shutdown.
type services struct {
	registry   *prometheus.Registry
	collector  *metrics.Collector
	reconciler *reconcile.Reconciler
	audit      *auditlog.Logger
	limiter    *ratelimit.Limiter
	repair     *workers.Repair
	refresh    func(ctx context.Context)
}

var (
	svcMu sync.Mutex
	svc   *services
)

func current() *services {
	svcMu.Lock()
	defer svcMu.Unlock()
	return svc
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It applies
// the store timeouts, builds the reconciler and starts the repair worker.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.TimeoutPing,
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
		Batch:  appCfg.TimeoutBatch,
	})
	t := timeouts.Current()
	logger.Info("store timeouts configured",
		zap.Duration("ping", t.Ping),
		zap.Duration("short", t.Short),
		zap.Duration("medium", t.Medium),
		zap.Duration("long", t.Long),
		zap.Duration("batch", t.Batch))

	s := buildServices(deps.TrackerMongoDatabase, appCfg, logger)
	s.refresh(ctx)
	if s.repair != nil {
		s.repair.Start()
	}

	svcMu.Lock()
	svc = s
	svcMu.Unlock()
	return nil
}

func buildServices(db *mongo.Database, appCfg AppConfig, logger *zap.Logger) *services {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	rec := reconcile.New(
		projectstore.New(db),
		userstore.New(db),
		reconciliationstore.New(db),
		logger.Named("reconcile"),
		reconcile.WithMetrics(collector),
		reconcile.WithRepairBatchSize(appCfg.RepairUserBatch),
	)

	s := &services{
		registry:   reg,
		collector:  collector,
		reconciler: rec,
		audit: auditlog.New(auditstore.New(db), logger.Named("audit"), auditlog.Config{
			Projects:  appCfg.AuditLogProjects,
			Users:     appCfg.AuditLogUsers,
			Reconcile: appCfg.AuditLogReconcile,
		}),
		limiter: ratelimit.New(appCfg.RateLimitPerMinute, appCfg.RateLimitBurst, 10*time.Minute),
		refresh: func(ctx context.Context) {
			rctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), logger, "refresh gauges")
			defer cancel()
			collector.SetCounts(metricsstore.FetchCounts(rctx, db))
		},
	}

	if appCfg.RepairInterval > 0 {
		s.repair = workers.NewRepair(rec, logger.Named("repair"), appCfg.RepairInterval, appCfg.RepairBatch, appCfg.RepairTimeout)
		s.repair.AfterRun(s.refresh)
	}
	return s
}
