// Package cpucheck decides whether the current processor can run the
// prebuilt ffmpeg/openh264 binaries.  The binaries ship for ARMv7+, ARM64,
// x86 and x86-64; everything else, including ARMv6 and families that are
// unknown or added later, is reported as unsupported.
package cpucheck

import (
	"runtime"
	"strings"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpufeatures"
)

// Detector is the CPU identification the check depends on.
// *cpufeatures.Features implements it for the host.
type Detector interface {
	CPUFamily() cpufeatures.Family
	CPUFeatures() cpufeatures.FeatureSet
}

// IsSupported applies the support table to d.  The feature bitset is only
// consulted for 32-bit ARM.
func IsSupported(d Detector) bool {
	switch d.CPUFamily() {
	case cpufeatures.FamilyARM:
		return d.CPUFeatures().Has(cpufeatures.ARMv7)
	case cpufeatures.FamilyARM64, cpufeatures.FamilyX86, cpufeatures.FamilyX86_64:
		return true
	default:
		return false
	}
}

// IsCPUSupported reports whether the host processor is supported.
func IsCPUSupported() bool {
	return IsSupported(cpufeatures.Detect())
}

// Android-style ABI names the binaries are packaged under.
const (
	ABIArmeabi    = "armeabi"
	ABIArmeabiV7a = "armeabi-v7a"
	ABIArm64V8a   = "arm64-v8a"
	ABIX86        = "x86"
	ABIX86_64     = "x86_64"
)

// SupportsFFmpeg combines the ABI a package was built for with the CPU
// check.  Only armeabi-v7a needs the runtime ARMv7 probe; the 64-bit and
// x86 ABIs imply a capable CPU.
func SupportsFFmpeg(abi string, d Detector) bool {
	switch strings.ToLower(abi) {
	case ABIX86, ABIX86_64, ABIArm64V8a:
		return true
	case ABIArmeabiV7a:
		return IsSupported(d)
	default:
		return false
	}
}

// AssetsDir returns the asset directory holding binaries for abi.  There
// are only two builds: ARM binaries are shared by every arm* ABI and x86
// binaries by every x86* ABI.
func AssetsDir(abi string) string {
	abi = strings.ToLower(abi)
	switch {
	case strings.HasPrefix(abi, "arm"):
		return ABIArmeabiV7a
	case strings.HasPrefix(abi, "x86"):
		return ABIX86
	default:
		return ABIArmeabiV7a
	}
}

// HostABI names the ABI for d.  Unknown families fall back to the GOARCH
// recorded in d when it is a *cpufeatures.Features, else the process's.
func HostABI(d Detector) string {
	switch d.CPUFamily() {
	case cpufeatures.FamilyARM:
		if d.CPUFeatures().Has(cpufeatures.ARMv7) {
			return ABIArmeabiV7a
		}
		return ABIArmeabi
	case cpufeatures.FamilyARM64:
		return ABIArm64V8a
	case cpufeatures.FamilyX86:
		return ABIX86
	case cpufeatures.FamilyX86_64:
		return ABIX86_64
	default:
		if f, ok := d.(*cpufeatures.Features); ok && f.Arch != "" {
			return f.Arch
		}
		return runtime.GOARCH
	}
}
