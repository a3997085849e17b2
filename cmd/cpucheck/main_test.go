package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
)

func TestPrintReport(t *testing.T) {
	rep := &cpucheck.Report{Family: "arm", ABI: "armeabi-v7a", AssetsDir: "armeabi-v7a", Features: []string{"armv7", "neon"}, Supported: true, BrandName: "Cortex-A9"}

	var buf bytes.Buffer
	if err := printReport(&buf, rep, false, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "supported\n") {
		t.Errorf("plain output should start with the verdict:\n%s", out)
	}
	for _, want := range []string{"family:  arm", "[armv7 neon]", "cpu:     Cortex-A9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("plain output should not contain color codes")
	}

	buf.Reset()
	rep.Supported = false
	_ = printReport(&buf, rep, false, true)
	if !strings.HasPrefix(buf.String(), colorRed+"unsupported"+colorReset) {
		t.Errorf("colored output = %q", buf.String())
	}
}

func TestPrintReportJSON(t *testing.T) {
	rep := &cpucheck.Report{Family: "x86_64", ABI: "x86_64", Features: []string{}, Supported: true}
	var buf bytes.Buffer
	if err := printReport(&buf, rep, true, true); err != nil {
		t.Fatal(err)
	}
	var got cpucheck.Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if !got.Supported || got.Family != "x86_64" {
		t.Errorf("decoded = %+v", got)
	}
}
