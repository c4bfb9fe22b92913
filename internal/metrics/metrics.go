// Package metrics exposes a handful of Prometheus counters for the cache
// and refresh behavior, in the spirit of gcsfuse's common/otel_metrics.go
// and metrics package, minus the OpenTelemetry exporter plumbing this
// system's size budget has no room for.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RefreshSuccesses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ros3fs",
		Name:      "refresh_successes_total",
		Help:      "Number of metadata refresh cycles that completed successfully.",
	})

	RefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ros3fs",
		Name:      "refresh_failures_total",
		Help:      "Number of metadata refresh cycles that failed to list the bucket or save the snapshot.",
	})

	ContentFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ros3fs",
		Name:      "content_fetches_total",
		Help:      "Number of object bodies fetched from the store on a cache miss.",
	})

	ContentCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ros3fs",
		Name:      "content_cache_hits_total",
		Help:      "Number of reads served from an already-populated content file.",
	})
)

// Registry is a dedicated registry (rather than the global default) so
// embedding ros3fs in another process never collides with its metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(RefreshSuccesses, RefreshFailures, ContentFetches, ContentCacheHits)
}

// Serve starts an HTTP server exposing Registry at /metrics on addr. It
// blocks until ctx is canceled, then shuts the server down, and is meant to
// be run in its own goroutine by cmd (the caller decides whether addr is
// configured at all).
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errc:
		return err
	}
}
