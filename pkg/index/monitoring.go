package index

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	whmetrics "github.com/wheelhouse-build/wheelhouse/pkg/metrics"
)

var requestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "wheelhouse",
	Subsystem: "index",
	Name:      "request_duration_seconds",
	Help:      "Duration of index version lookups, in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{whmetrics.LabelSuccess})

type instrumentedClient struct {
	next Client
}

// NewInstrumentedClient records a duration histogram around every lookup.
// A never-published package is a successful lookup, not a failure.
func NewInstrumentedClient(next Client) Client {
	return &instrumentedClient{next: next}
}

func (c *instrumentedClient) LatestVersion(ctx context.Context, name string) (version string, err error) {
	start := time.Now()
	defer func() {
		requestDuration.With(
			whmetrics.LabelSuccess, fmt.Sprint(err == nil || err == ErrNotPublished),
		).Observe(time.Since(start).Seconds())
	}()
	return c.next.LatestVersion(ctx, name)
}
