package metrics

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

// Collector records coordinator events as Prometheus metrics and keeps
// per-trigger save statistics for the debug endpoint.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	saveCounter    *prometheus.CounterVec
	saveDuration   *prometheus.HistogramVec
	initCounter    *prometheus.CounterVec
	deniedCounter  *prometheus.CounterVec
	activeSessions *prometheus.GaugeVec

	// Internal tracking
	saves     map[string]*SaveStats
	lastReset time.Time

	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// SaveStats tracks saves for one trigger.
type SaveStats struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastSave      time.Time     `json:"last_save"`
}

var _ types.MetricsRecorder = (*Collector)(nil)

// NewCollector creates a collector. A nil config enables metrics with defaults.
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Address:   ":9090",
			Path:      "/metrics",
			Namespace: "viewersettings",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		config:    config,
		logger:    logger.With("component", "metrics"),
		saves:     make(map[string]*SaveStats),
		lastReset: time.Now(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Registry returns the Prometheus registry, or nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Start serves the metrics endpoint in the background.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	path := c.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/saves", c.debugSavesHandler)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.config.Address, err)
	}

	c.mu.Lock()
	c.listener = ln
	c.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !stderr.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server error", "error", err)
		}
	}()
	c.logger.Info("Serving metrics", "address", ln.Addr().String(), "path", path)
	return nil
}

// Addr returns the listening address once started.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.RLock()
	server := c.server
	c.mu.RUnlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// RecordInit implements types.MetricsRecorder.
func (c *Collector) RecordInit(backend string, result types.InitResult) {
	if !c.config.Enabled {
		return
	}
	c.initCounter.With(prometheus.Labels{
		"backend": backend,
		"result":  strings.ToLower(result.String()),
	}).Inc()
}

// RecordAccessDenied implements types.MetricsRecorder.
func (c *Collector) RecordAccessDenied(backend string, reason errors.AccessReason) {
	if !c.config.Enabled {
		return
	}
	c.deniedCounter.With(prometheus.Labels{
		"backend": backend,
		"reason":  strings.ToLower(reason.String()),
	}).Inc()
}

// RecordSave implements types.MetricsRecorder.
func (c *Collector) RecordSave(backend, trigger string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	stats, ok := c.saves[trigger]
	if !ok {
		stats = &SaveStats{}
		c.saves[trigger] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	stats.AvgDuration = time.Duration(int64(stats.TotalDuration) / stats.Count)
	stats.LastSave = time.Now()
	if err != nil {
		stats.Errors++
	}
	c.mu.Unlock()

	c.saveCounter.With(prometheus.Labels{
		"backend": backend,
		"trigger": trigger,
		"status":  classifyError(err),
	}).Inc()
	c.saveDuration.With(prometheus.Labels{
		"backend": backend,
	}).Observe(duration.Seconds())
}

// RecordActive implements types.MetricsRecorder.
func (c *Collector) RecordActive(backend string, delta int) {
	if !c.config.Enabled {
		return
	}
	c.activeSessions.With(prometheus.Labels{"backend": backend}).Add(float64(delta))
}

// SaveStats returns a copy of the per-trigger save statistics.
func (c *Collector) SaveStats() map[string]SaveStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]SaveStats, len(c.saves))
	for k, v := range c.saves {
		out[k] = *v
	}
	return out
}

// ResetStats clears the save statistics. Prometheus counters are untouched.
func (c *Collector) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves = make(map[string]*SaveStats)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.saveCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "settings_saves_total",
			Help:      "Total number of settings saves",
		},
		[]string{"backend", "trigger", "status"},
	)

	c.saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "settings_save_duration_seconds",
			Help:      "Duration of settings saves in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"backend"},
	)

	c.initCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "settings_init_results_total",
			Help:      "Initialization outcomes",
		},
		[]string{"backend", "result"},
	)

	c.deniedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "settings_access_denied_total",
			Help:      "Refused read-write initializations",
		},
		[]string{"backend", "reason"},
	)

	c.activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "settings_active_coordinators",
			Help:      "Number of active settings coordinators",
		},
		[]string{"backend"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.saveCounter,
		c.saveDuration,
		c.initCounter,
		c.deniedCounter,
		c.activeSessions,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// classifyError maps a save error to a status label.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderr.Is(err, context.Canceled), stderr.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	if code, ok := errors.CodeOf(err); ok {
		return strings.ToLower(string(code))
	}
	return "error"
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"viewersettings-metrics"}`))
}

func (c *Collector) debugSavesHandler(w http.ResponseWriter, r *http.Request) {
	stats := c.SaveStats()
	c.mu.RLock()
	lastReset := c.lastReset
	c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Settings Saves\n")
	writef("==============\n\n")
	writef("Since: %v\n\n", lastReset.Format(time.RFC3339))

	if len(stats) == 0 {
		writef("No saves recorded.\n")
		return
	}

	writef("%-12s %8s %8s %14s %10s\n", "Trigger", "Count", "Errors", "Avg Duration", "Last")
	for _, trigger := range []string{"explicit", "autosave", "close"} {
		if s, ok := stats[trigger]; ok {
			writef("%-12s %8d %8d %14v %10s\n", trigger, s.Count, s.Errors, s.AvgDuration, s.LastSave.Format("15:04:05"))
			delete(stats, trigger)
		}
	}
	for trigger, s := range stats {
		writef("%-12s %8d %8d %14v %10s\n", trigger, s.Count, s.Errors, s.AvgDuration, s.LastSave.Format("15:04:05"))
	}
}
