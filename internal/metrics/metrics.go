package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	modelReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetify",
			Name:      "model_requests_total",
			Help:      "Total inference requests by operation and result",
		},
		[]string{"operation", "result"},
	)

	modelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sheetify",
			Name:      "model_request_duration_seconds",
			Help:      "Duration of inference requests by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	pagesScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetify",
			Name:      "pages_scanned_total",
			Help:      "Pages rendered and uploaded during the scan phase, by result",
		},
		[]string{"result"},
	)

	pagesExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetify",
			Name:      "pages_extracted_total",
			Help:      "Pages run through extraction, by mode and result",
		},
		[]string{"mode", "result"},
	)

	rowsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetify",
			Name:      "rows_extracted_total",
			Help:      "Rows parsed out of model responses, by mode",
		},
		[]string{"mode"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetify",
			Name:      "retries_total",
			Help:      "Remote call retries by operation",
		},
		[]string{"operation"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sheetify",
			Name:      "jobs_total",
			Help:      "Document jobs by mode and result",
		},
		[]string{"mode", "result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(modelReqs, modelLatency, pagesScanned, pagesExtracted, rowsExtracted, retriesTotal, jobsTotal)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveModel(operation, result string, dur time.Duration) {
	modelReqs.WithLabelValues(operation, result).Inc()
	modelLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

func IncScanned(result string)         { pagesScanned.WithLabelValues(result).Inc() }
func IncExtracted(mode, result string) { pagesExtracted.WithLabelValues(mode, result).Inc() }
func AddRows(mode string, n int)       { rowsExtracted.WithLabelValues(mode).Add(float64(n)) }
func IncRetry(operation string)        { retriesTotal.WithLabelValues(operation).Inc() }
func IncJob(mode, result string)       { jobsTotal.WithLabelValues(mode, result).Inc() }
