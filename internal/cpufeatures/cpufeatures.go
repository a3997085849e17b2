// Package cpufeatures identifies the processor the current process runs on:
// its instruction-set family and the optional extensions it supports.  The
// result decides whether the prebuilt ffmpeg binaries can run here and is
// surfaced in logs, metrics and the HTTP API.
//
// Sources, in order of trust:
//   - runtime.GOARCH for the family of the running process
//   - golang.org/x/sys/cpu for hwcaps/CPUID bits the runtime decoded
//   - gopsutil's cpu.Info for vendor, brand and the kernel flag list
//   - /proc/cpuinfo "CPU architecture" for the ARM revision (ARMv7 bit)
package cpufeatures

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Features holds the detected family, feature bits and descriptive metadata.
type Features struct {
	Arch   string     // GOARCH of the running process
	Family Family     // instruction-set family
	Set    FeatureSet // extension bits, meaning depends on Family

	// --- Metadata ---
	Vendor    string // "GenuineIntel", "ARM", ...
	BrandName string // full model name, when the kernel reports one
}

// CPUFamily returns the detected family.
func (f *Features) CPUFamily() Family { return f.Family }

// CPUFeatures returns the detected feature bitset.
func (f *Features) CPUFeatures() FeatureSet { return f.Set }

var (
	detectOnce sync.Once
	cached     *Features
)

// Detect identifies the host processor.  Detection runs once per process;
// later calls return the same value.
func Detect() *Features {
	detectOnce.Do(func() {
		cpuinfo, err := os.ReadFile("/proc/cpuinfo")
		if err != nil {
			log.Debugf("cpufeatures: /proc/cpuinfo unavailable: %v", err)
		}
		cached = DetectFrom(runtime.GOARCH, hwcapFeatures(), string(cpuinfo), hostInfo())
	})
	return cached
}

// hostInfo asks gopsutil for the per-CPU descriptions.  Failures are not
// fatal; the hwcap bits alone are enough for the support decision.
func hostInfo() []cpu.InfoStat {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := cpu.InfoWithContext(ctx)
	if err != nil {
		log.Debugf("cpufeatures: cpu.Info failed: %v", err)
		return nil
	}
	return info
}

// DetectFrom combines the individual sources into a Features value.  It is
// separated from Detect so the merge rules can be tested without the host.
func DetectFrom(goarch string, hw FeatureSet, cpuinfo string, info []cpu.InfoStat) *Features {
	f := &Features{
		Arch:   goarch,
		Family: FamilyFromGOARCH(goarch),
		Set:    hw,
	}

	var flags []string
	if len(info) > 0 {
		f.Vendor = info[0].VendorID
		f.BrandName = info[0].ModelName
		flags = info[0].Flags
	}

	switch f.Family {
	case FamilyARM:
		arch := ParseCPUArchitecture(cpuinfo)
		f.Set |= ARMFeaturesFromFlags(flags, arch)
		if f.Vendor == "" {
			f.Vendor = "ARM"
		}
	case FamilyARM64:
		f.Set |= ARM64FeaturesFromFlags(flags)
		if f.Vendor == "" {
			f.Vendor = "ARM"
		}
	case FamilyX86, FamilyX86_64:
		f.Set |= X86FeaturesFromFlags(flags)
	default:
		// No named extension bits on other families.
		f.Set = 0
	}

	if f.BrandName == "" {
		if name, ok := cpuinfoField(cpuinfo, "model name"); ok {
			f.BrandName = name
		} else if name, ok := cpuinfoField(cpuinfo, "Hardware"); ok {
			f.BrandName = name
		}
	}
	return f
}

// Has reports whether the given extension bit is present.
func (f *Features) Has(bit Feature) bool {
	return f.Set.Has(bit)
}

// SupportedExtensions returns the names of all detected extensions.
func (f *Features) SupportedExtensions() []string {
	return f.Set.Names(f.Family)
}

// Summary returns a one-line string suitable for log output, e.g.
// "arm: armv7 vfpv3 neon (ARM)".
func (f *Features) Summary() string {
	exts := f.SupportedExtensions()
	vendor := f.Vendor
	if vendor == "" {
		vendor = f.Arch
	}
	if len(exts) == 0 {
		return fmt.Sprintf("%s: no ISA extensions detected (%s)", f.Family, vendor)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Family, strings.Join(exts, " "), vendor)
}
