// Package stats keeps per-backend request counters for the object-storage adapters.
package stats

import (
	"sync"
	"time"
)

// BackendMetrics tracks object-storage request metrics
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error"`
	LastErrorTime   time.Time     `json:"last_error_time"`
}

// Collector aggregates BackendMetrics. The zero value is ready to use.
type Collector struct {
	mu      sync.RWMutex
	metrics BackendMetrics
}

// RecordRequest records one request with its duration and outcome
func (c *Collector) RecordRequest(duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.Requests++
	if err != nil {
		c.metrics.Errors++
		c.metrics.LastError = err.Error()
		c.metrics.LastErrorTime = time.Now()
	}

	// Rolling average latency
	if c.metrics.Requests == 1 {
		c.metrics.AverageLatency = duration
	} else {
		c.metrics.AverageLatency = time.Duration(
			(int64(c.metrics.AverageLatency)*9 + int64(duration)) / 10,
		)
	}
}

// RecordBytesUploaded adds n to the uploaded byte count
func (c *Collector) RecordBytesUploaded(n int64) {
	c.mu.Lock()
	c.metrics.BytesUploaded += n
	c.mu.Unlock()
}

// RecordBytesDownloaded adds n to the downloaded byte count
func (c *Collector) RecordBytesDownloaded(n int64) {
	c.mu.Lock()
	c.metrics.BytesDownloaded += n
	c.mu.Unlock()
}

// Snapshot returns a copy of the current metrics
func (c *Collector) Snapshot() BackendMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// ErrorRate returns the fraction of failed requests
func (c *Collector) ErrorRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.metrics.Requests == 0 {
		return 0
	}
	return float64(c.metrics.Errors) / float64(c.metrics.Requests)
}
