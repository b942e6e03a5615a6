// Copyright 2025 The Scriptorium Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus instrumentation for the pipeline and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DocumentsIngested counts documents written during imports.
	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptorium_documents_ingested_total",
		Help: "Documents ingested across all imports.",
	})

	// ScansSkipped counts source files rejected during imports.
	ScansSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptorium_scans_skipped_total",
		Help: "Source files skipped during import because their names could not be parsed.",
	})

	// SearchesStarted counts searches accepted for processing.
	SearchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptorium_searches_started_total",
		Help: "Searches accepted for processing.",
	})

	// MegadocsBuilt counts megadoc artifacts assembled, by filetype.
	MegadocsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptorium_megadocs_built_total",
		Help: "Megadoc artifacts assembled.",
	}, []string{"filetype"})

	// UploadRetries counts retried object store uploads.
	UploadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scriptorium_upload_retries_total",
		Help: "Retried object store uploads.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scriptorium_http_requests_total",
		Help: "HTTP requests served, by method, route pattern, and status code.",
	}, []string{"method", "path", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scriptorium_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
