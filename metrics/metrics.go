// Package metrics exposes Prometheus-format metrics on a dedicated
// listener, separate from the API server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	submissionsAccepted = metrics.NewCounter("threshnet_submissions_accepted_total")
	submissionsRejected = metrics.NewCounter("threshnet_submissions_rejected_total")
	verdictsYes         = metrics.NewCounter(`threshnet_verdicts_total{decision="yes"}`)
	verdictsNo          = metrics.NewCounter(`threshnet_verdicts_total{decision="no"}`)
	epochSetups         = metrics.NewCounter("threshnet_epoch_setups_total")
	enrollments         = metrics.NewCounter("threshnet_enrollments_total")
)

// IncSubmissionAccepted counts a submission that passed verification.
func IncSubmissionAccepted() { submissionsAccepted.Inc() }

// IncSubmissionRejected counts a submission that failed a consistency check.
func IncSubmissionRejected() { submissionsRejected.Inc() }

// IncVerdict counts an issued verdict by decision.
func IncVerdict(yes bool) {
	if yes {
		verdictsYes.Inc()
	} else {
		verdictsNo.Inc()
	}
}

// IncEpochSetup counts dealer setup derivations.
func IncEpochSetup() { epochSetups.Inc() }

// IncEnrollment counts admitted parties.
func IncEnrollment() { enrollments.Inc() }

// MetricsServer serves /metrics in Prometheus text format.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given listen address. An empty
// address disables the server; ListenAndServe and Shutdown become no-ops.
func New(name, addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	metrics.GetOrCreateCounter(fmt.Sprintf("%s_up", name)).Set(1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving metrics until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	if m.srv == nil {
		return nil
	}
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
