package cpucheck

import (
	"fmt"
	"os"
	"time"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpufeatures"
)

// Report is the serialisable outcome of a check on one host.
type Report struct {
	Hostname  string    `json:"hostname"`
	Arch      string    `json:"arch"`
	Family    string    `json:"family"`
	ABI       string    `json:"abi"`
	AssetsDir string    `json:"assets_dir"`
	Features  []string  `json:"features"`
	Vendor    string    `json:"vendor,omitempty"`
	BrandName string    `json:"brand_name,omitempty"`
	Supported bool      `json:"supported"`
	CheckedAt time.Time `json:"checked_at"`
}

// NewReport evaluates f and captures the result.  abi overrides the ABI
// derived from f when non-empty.
func NewReport(f *cpufeatures.Features, abi string) *Report {
	hostname, _ := os.Hostname()
	if abi == "" {
		abi = HostABI(f)
	}
	features := f.SupportedExtensions()
	if features == nil {
		features = []string{}
	}
	return &Report{
		Hostname:  hostname,
		Arch:      f.Arch,
		Family:    f.Family.String(),
		ABI:       abi,
		AssetsDir: AssetsDir(abi),
		Features:  features,
		Vendor:    f.Vendor,
		BrandName: f.BrandName,
		Supported: SupportsFFmpeg(abi, f),
		CheckedAt: time.Now().UTC(),
	}
}

// HostReport builds a report for the running process.
func HostReport() *Report {
	return NewReport(cpufeatures.Detect(), "")
}

// String returns a one-line description for logs.
func (r *Report) String() string {
	verdict := "unsupported"
	if r.Supported {
		verdict = "supported"
	}
	return fmt.Sprintf("%s: family=%s abi=%s assets=%s features=%v",
		verdict, r.Family, r.ABI, r.AssetsDir, r.Features)
}
