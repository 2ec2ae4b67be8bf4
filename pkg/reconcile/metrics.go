package reconcile

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	whmetrics "github.com/wheelhouse-build/wheelhouse/pkg/metrics"
)

var (
	// A sweep is dominated by index and cluster round trips, one set per
	// package, so scale the buckets to catalog size rather than a single
	// request.
	sweepDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "wheelhouse",
		Subsystem: "reconcile",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a full reconciliation sweep, in seconds.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{whmetrics.LabelSuccess})

	packagesByAction = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: "wheelhouse",
		Subsystem: "reconcile",
		Name:      "packages",
		Help:      "Number of packages per decided action, as of the last sweep.",
	}, []string{whmetrics.LabelAction})
)
