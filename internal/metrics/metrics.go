// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes the process's Prometheus counters and gauges.
// Scraping the /metrics endpoint is out of scope; this package only
// registers and serves it.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Registry bundles every metric the indexer records.
type Registry struct {
	BatchesIngested   *prometheus.CounterVec
	LogsDecoded       *prometheus.CounterVec
	DecodeErrors      *prometheus.CounterVec
	CheckpointLag     *prometheus.GaugeVec
	ResolverCacheHits *prometheus.CounterVec
	StoreWriteLatency *prometheus.HistogramVec

	server *http.Server
}

// New registers every metric with the global default Prometheus registerer
// (via promauto), so a second call in the same process panics on duplicate
// registration.
func New() *Registry {
	return &Registry{
		BatchesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runic",
			Name:      "batches_ingested_total",
			Help:      "Number of ingestion batches consumed, by chain and source.",
		}, []string{"chain_id", "source"}),
		LogsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runic",
			Name:      "logs_decoded_total",
			Help:      "Number of logs successfully decoded, by chain and event type.",
		}, []string{"chain_id", "event_type"}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runic",
			Name:      "decode_errors_total",
			Help:      "Number of logs that failed to decode, by chain.",
		}, []string{"chain_id"}),
		CheckpointLag: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "runic",
			Name:      "checkpoint_lag_blocks",
			Help:      "Blocks between chain tip and last written checkpoint.",
		}, []string{"chain_id"}),
		ResolverCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runic",
			Name:      "resolver_cache_total",
			Help:      "Price resolver route cache outcomes, by chain and result.",
		}, []string{"chain_id", "result"}),
		StoreWriteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "runic",
			Name:      "store_write_seconds",
			Help:      "Latency of store write operations, by store and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
	}
}

// Serve starts the /metrics HTTP endpoint and blocks until ctx is canceled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	r.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return r.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
