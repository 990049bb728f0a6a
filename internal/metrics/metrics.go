package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcollab_events_applied_total",
		Help: "Inbound events applied to the local session state, by kind",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcollab_events_dropped_total",
		Help: "Inbound events dropped before reaching session state, by reason",
	}, []string{"reason"})

	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcollab_connect_attempts_total",
		Help: "Transport open attempts grouped by trigger",
	}, []string{"trigger"})

	transportErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcollab_transport_errors_total",
		Help: "Transport-level failures that moved the session to disconnected",
	})

	historyFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatcollab_history_fetch_duration_seconds",
		Help:    "Duration of history pulls grouped by outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"status"})

	sendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcollab_messages_sent_total",
		Help: "Outbound message submissions grouped by outcome",
	}, []string{"status"})

	connectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatcollab_connection_state",
		Help: "1 for the current connection state, 0 for the others",
	}, []string{"state"})
)

// ObserveEvent counts an applied inbound event.
func ObserveEvent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	eventsApplied.WithLabelValues(kind).Inc()
}

// ObserveDrop counts an inbound event rejected by validation or lookup.
func ObserveDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	eventsDropped.WithLabelValues(reason).Inc()
}

// ObserveConnect counts a transport open; trigger is "manual" or "retry".
func ObserveConnect(trigger string) {
	connectAttempts.WithLabelValues(trigger).Inc()
}

func ObserveTransportError() {
	transportErrors.Inc()
}

func ObserveHistoryFetch(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	historyFetchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func ObserveSend(success bool) {
	if success {
		sendTotal.WithLabelValues("success").Inc()
		return
	}
	sendTotal.WithLabelValues("failed").Inc()
}

// SetConnectionState flips the state gauge so exactly one label reads 1.
func SetConnectionState(state string) {
	for _, candidate := range []string{"connecting", "connected", "disconnected"} {
		value := 0.0
		if candidate == state {
			value = 1
		}
		connectionState.WithLabelValues(candidate).Set(value)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
