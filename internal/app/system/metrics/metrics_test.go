package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	metricsstore "github.com/dalemusser/projecttracker/internal/app/store/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRun("update", "completed", 20*time.Millisecond)
	c.ObserveRun("update", "completed", 30*time.Millisecond)
	c.ObserveRun("update", "partial", 10*time.Millisecond)

	if got := testutil.ToFloat64(c.runs.WithLabelValues("update", "completed")); got != 2 {
		t.Errorf("completed runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.runs.WithLabelValues("update", "partial")); got != 1 {
		t.Errorf("partial runs = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.runDuration, "tracker_reconcile_run_seconds"); n != 1 {
		t.Errorf("run duration series = %d, want 1", n)
	}
}

func TestAddUserWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.AddUserWrites("create", 3, 0)
	c.AddUserWrites("create", 1, 2)

	if got := testutil.ToFloat64(c.userWrites.WithLabelValues("create", "ok")); got != 4 {
		t.Errorf("ok writes = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.userWrites.WithLabelValues("create", "failed")); got != 2 {
		t.Errorf("failed writes = %v, want 2", got)
	}
}

func TestSetCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetCounts(metricsstore.Counts{
		RunningProjects:   2,
		CompletedProjects: 5,
		AvailableUsers:    7,
		OccupiedUsers:     3,
		PartialRuns:       1,
	})

	tests := []struct {
		name string
		g    prometheus.Collector
		want float64
	}{
		{"running", c.projects.WithLabelValues("running"), 2},
		{"completed", c.projects.WithLabelValues("completed"), 5},
		{"available", c.users.WithLabelValues("available"), 7},
		{"occupied", c.users.WithLabelValues("occupied"), 3},
		{"partial runs", c.partialRuns, 1},
	}
	for _, tc := range tests {
		if got := testutil.ToFloat64(tc.g); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestInstrument_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := chi.NewRouter()
	r.Use(c.Instrument)
	r.Get("/api/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/api/projects/{id}", "404"))
	if got != 2 {
		t.Errorf("requests for route = %v, want 2", got)
	}
}

func TestHandler_ExposesSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveRun("delete", "completed", time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `tracker_reconcile_runs_total{operation="delete",state="completed"} 1`) {
		t.Errorf("scrape output missing run counter:\n%s", body)
	}
}
