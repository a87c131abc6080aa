// core/metrics.go
package core

// HealthLogger exposes retrieval/admission counters on a prometheus
// registry and a structured JSON log, following the gauge/counter
// construction-and-registration pattern of the teacher's
// core/system_health_logging.go HealthLogger (rebuilt for STAT7 counters
// instead of chain height/peer/supply gauges).

import (
	"os"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// HealthLogger tracks admission and retrieval throughput for the /metrics
// endpoint and writes structured JSON events to a log file.
type HealthLogger struct {
	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex

	registry *prometheus.Registry

	admittedCounter   prometheus.Counter
	repairedCounter   prometheus.Counter
	rejectedCounter   prometheus.Counter
	retrievalCounter  prometheus.Counter
	cacheHitCounter   prometheus.Counter
	anchorGauge       prometheus.Gauge
	goroutinesGauge   prometheus.Gauge
}

// NewHealthLogger configures a HealthLogger writing JSON logs to path. If
// path is empty, logs go to stderr only.
func NewHealthLogger(path string) (*HealthLogger, error) {
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})

	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		lg.SetOutput(f)
	}

	reg := prometheus.NewRegistry()
	h := &HealthLogger{log: lg, file: f, registry: reg}

	h.admittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stat7_admitted_total",
		Help: "Total bit-chains admitted without repair.",
	})
	h.repairedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stat7_repaired_admitted_total",
		Help: "Total bit-chains admitted after conservator repair.",
	})
	h.rejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stat7_rejected_total",
		Help: "Total admission attempts rejected.",
	})
	h.retrievalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stat7_retrieval_queries_total",
		Help: "Total retrieval queries served.",
	})
	h.cacheHitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stat7_retrieval_cache_hits_total",
		Help: "Total retrieval queries served from cache.",
	})
	h.anchorGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stat7_anchor_count",
		Help: "Current number of semantic anchors across all realms.",
	})
	h.goroutinesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stat7_goroutines",
		Help: "Number of running goroutines.",
	})

	reg.MustRegister(
		h.admittedCounter, h.repairedCounter, h.rejectedCounter,
		h.retrievalCounter, h.cacheHitCounter, h.anchorGauge, h.goroutinesGauge,
	)
	return h, nil
}

// Registry returns the prometheus registry for mounting at /metrics.
func (h *HealthLogger) Registry() *prometheus.Registry { return h.registry }

// RecordAdmission increments the appropriate admission counter and logs a
// structured event.
func (h *HealthLogger) RecordAdmission(status JourneyStatus, bitChainID string) {
	switch status {
	case StatusAdmitted:
		h.admittedCounter.Inc()
	case StatusRepaired:
		h.repairedCounter.Inc()
	default:
		h.rejectedCounter.Inc()
	}
	h.log.WithFields(logrus.Fields{
		"bitchain_id": bitChainID,
		"status":      string(status),
	}).Info("admission recorded")
}

// RecordRetrieval increments retrieval counters and logs the query outcome.
func (h *HealthLogger) RecordRetrieval(mode QueryMode, cacheHit bool, elapsedMS float64) {
	h.retrievalCounter.Inc()
	if cacheHit {
		h.cacheHitCounter.Inc()
	}
	h.log.WithFields(logrus.Fields{
		"mode":       string(mode),
		"cache_hit":  cacheHit,
		"elapsed_ms": elapsedMS,
	}).Info("retrieval recorded")
}

// SampleRuntime refreshes the goroutine gauge and anchor-count gauge.
func (h *HealthLogger) SampleRuntime(anchorCount int) {
	h.anchorGauge.Set(float64(anchorCount))
	h.goroutinesGauge.Set(float64(runtime.NumGoroutine()))
}

// Close flushes and closes the underlying log file, if any.
func (h *HealthLogger) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}
