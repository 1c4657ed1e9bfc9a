// Package metrics reports process-level server statistics from a
// rolling window of request timestamps.
package metrics

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// window is how far back a request still counts toward the rate.
	window = time.Second
	// maxTimestamps caps the rolling window at the most recent entries.
	maxTimestamps = 1000

	bytesPerMB = 1024 * 1024
)

// Snapshot is the metrics payload served to clients. ResponseTime is a
// placeholder estimate, not a measured value; callers must not treat
// it as accurate telemetry.
type Snapshot struct {
	ResponseTime      float64 `json:"responseTime"`
	RequestsPerSecond int     `json:"requestsPerSecond"`
	ActiveConnections int     `json:"activeConnections"`
	MemoryUsage       float64 `json:"memoryUsage"`
	TotalMemory       float64 `json:"totalMemory"`
	FreeMemory        float64 `json:"freeMemory"`
}

// Reporter owns the rolling request window. It is safe for concurrent
// use by request handlers.
type Reporter struct {
	mu         sync.Mutex
	timestamps []time.Time

	now func() time.Time
}

// NewReporter constructs a Reporter with an empty window.
func NewReporter() *Reporter {
	return &Reporter{now: time.Now}
}

// Track records one observed request and evicts stale entries.
func (r *Reporter) Track() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.timestamps = append(r.timestamps, now)
	r.evictLocked(now)
}

// Snapshot samples the current process and window state.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	now := r.now()
	r.evictLocked(now)
	requestsPerSecond := 0
	for _, ts := range r.timestamps {
		if now.Sub(ts) <= window {
			requestsPerSecond++
		}
	}
	activeConnections := len(r.timestamps)
	r.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var totalMB, freeMB float64
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMB = float64(vm.Total) / bytesPerMB
		freeMB = float64(vm.Available) / bytesPerMB
	}

	return Snapshot{
		ResponseTime:      round2(rand.Float64()*50 + 10),
		RequestsPerSecond: requestsPerSecond,
		ActiveConnections: activeConnections,
		MemoryUsage:       round2(float64(memStats.HeapAlloc) / bytesPerMB),
		TotalMemory:       round2(totalMB),
		FreeMemory:        round2(freeMB),
	}
}

// evictLocked drops entries older than the window, then truncates to
// the most recent maxTimestamps. Callers must hold mu.
func (r *Reporter) evictLocked(now time.Time) {
	kept := r.timestamps[:0]
	for _, ts := range r.timestamps {
		if now.Sub(ts) <= window {
			kept = append(kept, ts)
		}
	}
	r.timestamps = kept

	if len(r.timestamps) > maxTimestamps {
		r.timestamps = r.timestamps[len(r.timestamps)-maxTimestamps:]
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
