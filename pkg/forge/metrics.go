package forge

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	whmetrics "github.com/wheelhouse-build/wheelhouse/pkg/metrics"
)

var mergesTotal = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
	Namespace: "wheelhouse",
	Subsystem: "forge",
	Name:      "merges_total",
	Help:      "Count of pull requests merged by the gate.",
}, []string{whmetrics.LabelSuccess})
