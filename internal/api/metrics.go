// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpipe_requests_total",
		Help: "Number of HTTP requests handled, by gateway and status",
	}, []string{"gateway", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adpipe_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by gateway",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 16), // 10ms .. ~5.5min
	}, []string{"gateway"})

	inferenceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpipe_inference_runs_total",
		Help: "Number of backend graph executions, by gateway and outcome",
	}, []string{"gateway", "outcome"})
)

// instrument records a counter and latency observation per request.
func instrument(gateway string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			requestsTotal.WithLabelValues(gateway, strconv.Itoa(ww.Status())).Inc()
			requestDuration.WithLabelValues(gateway).Observe(time.Since(start).Seconds())
		})
	}
}

func recordInference(gateway string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	inferenceRuns.WithLabelValues(gateway, outcome).Inc()
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
