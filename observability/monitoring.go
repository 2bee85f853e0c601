package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// MonitoringStats is the health snapshot exposed on /health.
type MonitoringStats struct {
	Connections   int       `json:"connections"`
	UsersOnline   int       `json:"users_online"`
	Rooms         int       `json:"rooms"`
	ActiveCalls   int       `json:"active_calls"`
	Goroutines    int       `json:"goroutines"`
	AllocMemMb    uint64    `json:"alloc_mem_mb"`
	NumGC         uint32    `json:"num_gc"`
	ProcessCPU    float64   `json:"process_cpu_percent"`
	ProcessMemory float32   `json:"process_memory_percent"`
	ProcessStatus string    `json:"process_status,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MonitoringManager keeps the latest snapshot built by the telemetry worker.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

// Update stores stats after completing them with Go runtime figures.
func (mm *MonitoringManager) Update(stats MonitoringStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	stats.Goroutines = runtime.NumGoroutine()
	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now().UTC()
	}

	mm.mu.Lock()
	mm.latestStats = stats
	mm.mu.Unlock()

	mm.log.Debug("Stats updated",
		"connections", stats.Connections,
		"users_online", stats.UsersOnline,
		"active_calls", stats.ActiveCalls,
		"mem_mb", stats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
