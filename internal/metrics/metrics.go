package metrics

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Walk metrics
var (
	// PathsExaminedTotal counts every path the decision procedure visited
	PathsExaminedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saferm_paths_examined_total",
		Help: "Total number of paths the deletion decision procedure was applied to.",
	})

	// DeletionsTotal counts removed files, directories, and symlinks
	DeletionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saferm_deletions_total",
		Help: "Total number of paths deleted (or narrated under dry run).",
	})

	// UnmountsTotal counts unmounted mount points
	UnmountsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saferm_unmounts_total",
		Help: "Total number of mount points unmounted.",
	})

	// SkipsTotal counts policy rejections, labeled by the skip reason
	SkipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saferm_skips_total",
		Help: "Total number of paths skipped by a safety predicate.",
	}, []string{"reason"})

	// ErrorsTotal counts recoverable per-path failures
	ErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "saferm_errors_total",
		Help: "Total number of per-path deletion failures.",
	})
)

var (
	initOnce    sync.Once
	serverMutex sync.Mutex
	currentSrv  *http.Server
)

// Init registers all metrics with the default Prometheus registry.
// Safe to call multiple times (uses sync.Once).
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(PathsExaminedTotal)
		prometheus.MustRegister(DeletionsTotal)
		prometheus.MustRegister(UnmountsTotal)
		prometheus.MustRegister(SkipsTotal)
		prometheus.MustRegister(ErrorsTotal)
	})
}

// StartServer starts the metrics HTTP server on the specified address.
// Exposes /metrics (Prometheus) and /health. Intended for long walks over
// large trees; one-shot runs leave it disabled.
func StartServer(addr string, logger *log.Logger) {
	serverMutex.Lock()
	defer serverMutex.Unlock()

	if currentSrv != nil {
		logger.Printf("metrics server already running on %s", currentSrv.Addr)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	currentSrv = srv

	go func() {
		logger.Printf("metrics server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	// Give server 100ms to start
	time.Sleep(100 * time.Millisecond)
}
