package cpufeatures

import (
	"runtime"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
)

func TestDetect(t *testing.T) {
	f := Detect()
	if f == nil {
		t.Fatal("Detect() returned nil")
	}
	t.Logf("Arch:       %s", f.Arch)
	t.Logf("Family:     %s", f.Family)
	t.Logf("Vendor:     %s", f.Vendor)
	t.Logf("Brand:      %s", f.BrandName)
	t.Logf("Summary:    %s", f.Summary())
	t.Logf("Extensions: %v", f.SupportedExtensions())

	if f.Arch != runtime.GOARCH {
		t.Errorf("Arch = %q, want %q", f.Arch, runtime.GOARCH)
	}
	if f.Family != FamilyFromGOARCH(runtime.GOARCH) {
		t.Errorf("Family = %s, want %s", f.Family, FamilyFromGOARCH(runtime.GOARCH))
	}
	if Detect() != f {
		t.Error("Detect() should return the cached value on repeated calls")
	}
}

func TestFamilyFromGOARCH(t *testing.T) {
	tests := []struct {
		goarch string
		want   Family
	}{
		{"arm", FamilyARM},
		{"arm64", FamilyARM64},
		{"386", FamilyX86},
		{"amd64", FamilyX86_64},
		{"mipsle", FamilyMIPS},
		{"mips64le", FamilyMIPS64},
		{"riscv64", FamilyRISCV64},
		{"ppc64le", FamilyUnknown},
		{"wasm", FamilyUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.goarch, func(t *testing.T) {
			if got := FamilyFromGOARCH(tt.goarch); got != tt.want {
				t.Errorf("FamilyFromGOARCH(%q) = %s, want %s", tt.goarch, got, tt.want)
			}
		})
	}
}

func TestFamilyString(t *testing.T) {
	if FamilyX86_64.String() != "x86_64" {
		t.Errorf("FamilyX86_64.String() = %q", FamilyX86_64.String())
	}
	if Family(99).String() != "unknown" {
		t.Errorf("out-of-range family should print as unknown, got %q", Family(99).String())
	}
}

func TestParseCPUArchitecture(t *testing.T) {
	tests := []struct {
		name    string
		cpuinfo string
		want    int
	}{
		{"armv7", "Processor\t: ARMv7 Processor rev 10 (v7l)\nCPU architecture: 7\nCPU variant\t: 0x2\n", 7},
		{"armv6", "CPU architecture: 6TEJ\n", 6},
		{"armv5", "CPU architecture: 5TEJ\n", 5},
		{"aarch64 kernel", "CPU architecture: AArch64\n", 8},
		{"armv8 number", "CPU architecture\t: 8\n", 8},
		{"missing", "processor\t: 0\nvendor_id\t: GenuineIntel\n", 0},
		{"garbage", "CPU architecture: ?\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCPUArchitecture(tt.cpuinfo); got != tt.want {
				t.Errorf("ParseCPUArchitecture() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestARMFeaturesFromFlags(t *testing.T) {
	tests := []struct {
		name     string
		flags    []string
		arch     int
		wantV7   bool
		wantNEON bool
	}{
		{"v7 from architecture", []string{"half", "thumb", "vfp"}, 7, true, false},
		{"v6 plain", []string{"swp", "half", "thumb", "fastmult", "vfp", "edsp", "java"}, 6, false, false},
		{"v7 inferred from neon", []string{"vfp", "neon", "vfpv3"}, 0, true, true},
		{"v7 inferred from idiva", []string{"idiva"}, 0, true, false},
		{"nothing known", nil, 0, false, false},
		{"armv8 32-bit process", []string{"neon", "vfpv4", "idiva", "idivt", "aes", "crc32"}, 8, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ARMFeaturesFromFlags(tt.flags, tt.arch)
			if s.Has(ARMv7) != tt.wantV7 {
				t.Errorf("ARMv7 = %v, want %v (set %v)", s.Has(ARMv7), tt.wantV7, s.Names(FamilyARM))
			}
			if s.Has(ARMNEON) != tt.wantNEON {
				t.Errorf("NEON = %v, want %v", s.Has(ARMNEON), tt.wantNEON)
			}
		})
	}
}

func TestARMFeaturesImplications(t *testing.T) {
	s := ARMFeaturesFromFlags([]string{"neon", "vfpv4"}, 7)
	for _, bit := range []Feature{ARMVFPv3, ARMVFPD32, ARMVFPFMA, ARMNEONFMA, ARMVFPFP16, ARMLDREXSTREX} {
		if !s.Has(bit) {
			t.Errorf("expected bit %b in %v", bit, s.Names(FamilyARM))
		}
	}
}

func TestX86FeaturesFromFlags(t *testing.T) {
	flags := strings.Fields("fpu vme sse2 ssse3 sse4_1 sse4_2 popcnt aes avx avx2 movbe rdrand sha_ni")
	s := X86FeaturesFromFlags(flags)
	want := []string{"ssse3", "popcnt", "movbe", "sse4.1", "sse4.2", "aes-ni", "avx", "rdrand", "avx2", "sha-ni"}
	got := s.Names(FamilyX86_64)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestARM64FeaturesFromFlags(t *testing.T) {
	s := ARM64FeaturesFromFlags([]string{"fp", "asimd", "evtstrm", "aes", "pmull", "sha1", "sha2", "crc32", "atomics"})
	for _, bit := range []Feature{ARM64FP, ARM64ASIMD, ARM64AES, ARM64PMULL, ARM64SHA1, ARM64SHA2, ARM64CRC32} {
		if !s.Has(bit) {
			t.Errorf("missing ARM64 bit %b", bit)
		}
	}
}

func TestDetectFrom(t *testing.T) {
	t.Run("arm v7 via cpuinfo", func(t *testing.T) {
		info := []cpu.InfoStat{{ModelName: "ARMv7 Processor rev 10 (v7l)", Flags: []string{"half", "thumb", "vfp"}}}
		f := DetectFrom("arm", 0, "CPU architecture: 7\n", info)
		if f.Family != FamilyARM {
			t.Fatalf("Family = %s", f.Family)
		}
		if !f.Has(ARMv7) {
			t.Errorf("ARMv7 should be set, got %v", f.SupportedExtensions())
		}
		if f.Vendor != "ARM" {
			t.Errorf("Vendor = %q, want ARM fallback", f.Vendor)
		}
	})

	t.Run("arm v6", func(t *testing.T) {
		f := DetectFrom("arm", 0, "CPU architecture: 6TEJ\nHardware\t: BCM2835\n", nil)
		if f.Has(ARMv7) {
			t.Error("ARMv7 must not be set on an ARMv6 core")
		}
		if f.BrandName != "BCM2835" {
			t.Errorf("BrandName = %q, want cpuinfo Hardware fallback", f.BrandName)
		}
	})

	t.Run("hwcap bits are kept", func(t *testing.T) {
		f := DetectFrom("amd64", FeatureSet(X86AVX2), "", []cpu.InfoStat{{VendorID: "GenuineIntel", Flags: []string{"sse4_2"}}})
		if !f.Has(X86AVX2) || !f.Has(X86SSE42) {
			t.Errorf("expected hwcap and flag bits merged, got %v", f.SupportedExtensions())
		}
	})

	t.Run("unknown family drops bits", func(t *testing.T) {
		f := DetectFrom("ppc64le", FeatureSet(ARMv7), "", nil)
		if f.Family != FamilyUnknown || f.Set != 0 {
			t.Errorf("got family %s set %b", f.Family, f.Set)
		}
	})
}

func TestSummary(t *testing.T) {
	f := &Features{
		Arch:   "arm",
		Family: FamilyARM,
		Set:    FeatureSet(ARMv7) | FeatureSet(ARMNEON),
		Vendor: "ARM",
	}
	s := f.Summary()
	t.Logf("Summary: %s", s)
	for _, ext := range []string{"armv7", "neon", "ARM"} {
		if !strings.Contains(s, ext) {
			t.Errorf("Summary should contain %s, got: %s", ext, s)
		}
	}

	empty := &Features{Arch: "mips", Family: FamilyMIPS}
	if !strings.Contains(empty.Summary(), "no ISA extensions") {
		t.Errorf("unexpected summary for empty set: %s", empty.Summary())
	}
}

func TestFeatureSetHasZero(t *testing.T) {
	var s FeatureSet = 0xff
	if s.Has(0) {
		t.Error("Has(0) should be false")
	}
}
