package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitMetricsTwice(t *testing.T) {
	InitMetrics()
	InitMetrics()
}

func TestRecordCheck(t *testing.T) {
	before := testutil.ToFloat64(CPUChecksTotal.WithLabelValues("unsupported"))
	RecordCheck("arm", "armeabi", false)
	if got := testutil.ToFloat64(CPUChecksTotal.WithLabelValues("unsupported")); got != before+1 {
		t.Errorf("unsupported checks = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(CPUSupported.WithLabelValues("arm", "armeabi")); got != 0 {
		t.Errorf("gauge = %v, want 0", got)
	}

	RecordCheck("arm64", "arm64-v8a", true)
	if got := testutil.ToFloat64(CPUSupported.WithLabelValues("arm64", "arm64-v8a")); got != 1 {
		t.Errorf("gauge = %v, want 1", got)
	}
}

func TestObserveRun(t *testing.T) {
	before := testutil.ToFloat64(FFmpegRunsTotal.WithLabelValues("success"))
	ObserveRun("success", 1500*time.Millisecond)
	if got := testutil.ToFloat64(FFmpegRunsTotal.WithLabelValues("success")); got != before+1 {
		t.Errorf("runs = %v, want %v", got, before+1)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	UpdateSystemMetrics()
	if testutil.ToFloat64(Goroutines) <= 0 {
		t.Error("goroutine gauge should be positive")
	}
	t.Logf("cpu=%v%% mem=%v%%", testutil.ToFloat64(CpuUsage), testutil.ToFloat64(SystemMemoryPercent))
}
