package workers

import (
	"chat-hub/observability"
	"chat-hub/runtime"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type callCounter interface {
	ActiveCount() int
}

// TelemetryWorker samples the hub and the server process on every tick and
// publishes the snapshot to the monitoring manager and the gauges.
type TelemetryWorker struct {
	log            *slog.Logger
	hub            *runtime.Hub
	calls          callCounter
	monitoring     *observability.MonitoringManager
	metrics        *observability.Metrics
	metricInterval time.Duration
}

func NewTelemetryWorker(
	log *slog.Logger,
	hub *runtime.Hub,
	calls callCounter,
	monitoring *observability.MonitoringManager,
	metrics *observability.Metrics,
	metricInterval time.Duration,
) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		hub:            hub,
		calls:          calls,
		monitoring:     monitoring,
		metrics:        metrics,
		metricInterval: metricInterval,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process telemetry unavailable", "error", err)
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	w.sample(proc)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *TelemetryWorker) sample(proc *process.Process) {
	stats := observability.MonitoringStats{
		Connections: w.hub.Count(),
		UsersOnline: w.hub.Presence.Count(),
		Rooms:       w.hub.Rooms.RoomCount(),
		ActiveCalls: w.calls.ActiveCount(),
		UpdatedAt:   time.Now().UTC(),
	}
	if proc != nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats.ProcessCPU = cpu
		} else {
			w.log.Debug("Error while finding process cpu usage", "error", err)
		}
		if ram, err := proc.MemoryPercent(); err == nil {
			stats.ProcessMemory = ram
		} else {
			w.log.Debug("Error while finding process ram usage", "error", err)
		}
		if status, err := proc.Status(); err == nil {
			stats.ProcessStatus = status
		}
	}
	w.monitoring.Update(stats)
	w.metrics.SetProcessUsage(stats.ProcessCPU, stats.ProcessMemory)
	w.metrics.SetActiveCalls(stats.ActiveCalls)
}
