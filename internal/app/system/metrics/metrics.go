// internal/app/system/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	metricsstore "github.com/dalemusser/projecttracker/internal/app/store/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the tracker's Prometheus series. It satisfies
// reconcile.Metrics.
type Collector struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	userWrites   *prometheus.CounterVec
	projects     *prometheus.GaugeVec
	users        *prometheus.GaugeVec
	partialRuns  prometheus.Gauge
	httpRequests *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_reconcile_runs_total",
			Help: "Reconciliation runs by operation and final state.",
		}, []string{"operation", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_reconcile_run_seconds",
			Help:    "Wall time of reconciliation runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		userWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_reconcile_user_writes_total",
			Help: "Per-user writes issued by reconciliation runs.",
		}, []string{"operation", "outcome"}),
		projects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracker_projects",
			Help: "Projects by status.",
		}, []string{"status"}),
		users: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracker_users",
			Help: "Users by availability.",
		}, []string{"availability"}),
		partialRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_reconcile_partial_runs",
			Help: "Runs waiting for repair.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.runs,
		c.runDuration,
		c.userWrites,
		c.projects,
		c.users,
		c.partialRuns,
		c.httpRequests,
	)
	return c
}

// ObserveRun records one finished reconciliation run.
func (c *Collector) ObserveRun(op, state string, d time.Duration) {
	c.runs.WithLabelValues(op, state).Inc()
	c.runDuration.WithLabelValues(op).Observe(d.Seconds())
}

// AddUserWrites records per-user write outcomes of one run.
func (c *Collector) AddUserWrites(op string, ok, failed int) {
	if ok > 0 {
		c.userWrites.WithLabelValues(op, "ok").Add(float64(ok))
	}
	if failed > 0 {
		c.userWrites.WithLabelValues(op, "failed").Add(float64(failed))
	}
}

// SetCounts publishes store totals as gauges.
func (c *Collector) SetCounts(n metricsstore.Counts) {
	c.projects.WithLabelValues("running").Set(float64(n.RunningProjects))
	c.projects.WithLabelValues("completed").Set(float64(n.CompletedProjects))
	c.users.WithLabelValues("available").Set(float64(n.AvailableUsers))
	c.users.WithLabelValues("occupied").Set(float64(n.OccupiedUsers))
	c.partialRuns.Set(float64(n.PartialRuns))
}

// Instrument counts requests by their chi route pattern, so ids in the
// path do not create new series.
func (c *Collector) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
