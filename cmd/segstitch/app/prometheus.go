// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultBuckets = []float64{5, 10, 20, 50, 100, 200, 500, 1000, 5000, 30000}
	prometheusMW   prometheusMiddleware
)

const (
	uploadReqsName    = "upload_requests_total"
	uploadLatencyName = "upload_request_duration_milliseconds"
	streamReqsName    = "stream_requests_total"
	streamLatencyName = "stream_request_duration_milliseconds"
	service           = "segstitch"
)

// prometheusMiddleware provides a handler that exposes prometheus metrics for various requests
type prometheusMiddleware struct {
	uploadReqs    *prometheus.CounterVec
	uploadLatency *prometheus.HistogramVec
	streamReqs    *prometheus.CounterVec
	streamLatency *prometheus.HistogramVec
}

func init() {
	prometheusMW.uploadReqs = newCounter(uploadReqsName,
		"Number of upload requests processed, partitioned by status code.", service)
	prometheusMW.uploadLatency = newHistogram(uploadLatencyName,
		"Upload response latency.", service, defaultBuckets)
	prometheusMW.streamReqs = newCounter(streamReqsName,
		"Number of stream requests processed, partitioned by status code.", service)
	prometheusMW.streamLatency = newHistogram(streamLatencyName,
		"Stream response latency (full relay time).", service, defaultBuckets)
}

// NewPrometheusMiddleware returns a new prometheus Middleware handler.
func NewPrometheusMiddleware() func(next http.Handler) http.Handler {
	return prometheusMW.handler
}

func (mw prometheusMiddleware) handler(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := strconv.Itoa(ww.Status())
		latencyMS := float64(time.Since(start).Nanoseconds()) * 1e-6

		switch {
		case r.Method == http.MethodPost && path == "/videos":
			mw.uploadReqs.WithLabelValues(status).Inc()
			mw.uploadLatency.WithLabelValues(status).Observe(latencyMS)
		case strings.HasSuffix(path, "/stream") || path == "/getstream":
			mw.streamReqs.WithLabelValues(status).Inc()
			mw.streamLatency.WithLabelValues(status).Observe(latencyMS)
		}
	}
	return http.HandlerFunc(fn)
}

func newCounter(counterName, help, serviceName string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        counterName,
			Help:        help,
			ConstLabels: prometheus.Labels{"service": serviceName},
		},
		[]string{"code"},
	)
	prometheus.MustRegister(cv)
	return cv
}

func newHistogram(histogramName, help, serviceName string, buckets []float64) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        histogramName,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": serviceName},
		Buckets:     buckets,
	},
		[]string{"code"},
	)
	prometheus.MustRegister(h)
	return h
}
