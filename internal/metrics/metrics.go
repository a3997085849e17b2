// Package metrics handles Prometheus metrics initialization and system monitoring.
package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Collectors are created eagerly so packages can record values before (or
// without) InitMetrics registering them.
var (
	CPUChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_gate_cpu_checks_total",
		Help: "Total number of CPU support checks, by verdict.",
	}, []string{"result"})
	CPUSupported = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ffmpeg_gate_cpu_supported",
		Help: "1 when the host CPU can run the bundled ffmpeg binaries.",
	}, []string{"family", "abi"})

	FFmpegRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_gate_runs_total",
		Help: "Total number of ffmpeg runs, by outcome.",
	}, []string{"status"})
	FFmpegRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ffmpeg_gate_run_duration_seconds",
		Help:    "Duration of ffmpeg runs in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})
	FFmpegRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ffmpeg_gate_running",
		Help: "1 while an ffmpeg command is running.",
	})
	InstallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_gate_binary_installs_total",
		Help: "Binary install attempts, by outcome.",
	}, []string{"status"})

	JobsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ffmpeg_gate_jobs_queued",
		Help: "Number of jobs waiting in the queue.",
	})
	JobsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ffmpeg_gate_jobs_dropped_total",
		Help: "Jobs rejected because the queue was full.",
	})

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ffmpeg_gate_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path"})

	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_bytes",
		Help: "Current memory usage in bytes.",
	})
	SystemMemoryPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_used_percent",
		Help: "Host memory in use, percent.",
	})
	CpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "Current CPU usage percentage.",
	})
	Goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goroutines",
		Help: "Number of running goroutines.",
	})
)

var initOnce sync.Once

// InitMetrics registers all Prometheus metrics with the default registry.
// Repeated calls are no-ops.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			CPUChecksTotal,
			CPUSupported,
			FFmpegRunsTotal,
			FFmpegRunDuration,
			FFmpegRunning,
			InstallsTotal,
			JobsQueued,
			JobsDroppedTotal,
			RequestsTotal,
			MemoryUsage,
			SystemMemoryPercent,
			CpuUsage,
			Goroutines,
		)
		log.Info("Prometheus metrics initialized")
	})
}

// RecordCheck counts a support verdict and publishes it as a gauge.
func RecordCheck(family, abi string, supported bool) {
	result, value := "unsupported", 0.0
	if supported {
		result, value = "supported", 1.0
	}
	CPUChecksTotal.WithLabelValues(result).Inc()
	CPUSupported.WithLabelValues(family, abi).Set(value)
}

// ObserveRun records one finished ffmpeg run.
func ObserveRun(status string, d time.Duration) {
	FFmpegRunsTotal.WithLabelValues(status).Inc()
	FFmpegRunDuration.Observe(d.Seconds())
}

// UpdateSystemMetrics updates memory, CPU, and goroutine metrics.
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.Set(float64(m.Alloc))
	Goroutines.Set(float64(runtime.NumGoroutine()))

	if vm, err := mem.VirtualMemory(); err == nil {
		SystemMemoryPercent.Set(vm.UsedPercent)
	}

	cpuPercent, err := cpu.Percent(time.Second, false)
	if err == nil && len(cpuPercent) > 0 {
		CpuUsage.Set(cpuPercent[0])
	}
}

// StartSystemMetrics refreshes the system gauges every interval until stop
// is closed.
func StartSystemMetrics(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				UpdateSystemMetrics()
			case <-stop:
				return
			}
		}
	}()
}
