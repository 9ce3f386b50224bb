// Package metrics holds the Prometheus collectors for the feed and ticker.
//
// Registers on a private registry:
//
//	polyticker_feed_dials_total{result}
//	polyticker_feed_reconnects_total
//	polyticker_feed_messages_total{type}
//	polyticker_feed_open_connections
//	polyticker_ticker_updates_total
//	polyticker_store_errors_total
//	go_* and process_* system metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "polyticker"

var (
	Registry = prometheus.NewRegistry()

	FeedDials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dials_total",
			Help:      "Feed websocket dial attempts by result",
		},
		[]string{"result"},
	)

	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Reconnect waits scheduled after a closed or failed session",
		},
	)

	FeedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_total",
			Help:      "Normalized feed messages by type",
		},
		[]string{"type"},
	)

	FeedOpenConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "open_connections",
			Help:      "Feed websocket sessions currently open",
		},
	)

	TickerUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ticker",
			Name:      "updates_total",
			Help:      "Ticker records changed by an incoming message",
		},
	)

	StoreErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Failed latest-quote writes",
		},
	)
)

func init() {
	Registry.MustRegister(
		FeedDials,
		FeedReconnects,
		FeedMessages,
		FeedOpenConnections,
		TickerUpdates,
		StoreErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("path", path).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
