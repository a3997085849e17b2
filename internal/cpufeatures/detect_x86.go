//go:build 386 || amd64

package cpufeatures

import "golang.org/x/sys/cpu"

// hwcapFeatures uses CPUID as decoded by x/sys/cpu.  MOVBE and SHA-NI are
// not exposed there and come from the kernel flag list instead.
func hwcapFeatures() FeatureSet {
	var s FeatureSet
	for _, f := range []struct {
		ok  bool
		bit Feature
	}{
		{cpu.X86.HasSSSE3, X86SSSE3},
		{cpu.X86.HasPOPCNT, X86POPCNT},
		{cpu.X86.HasSSE41, X86SSE41},
		{cpu.X86.HasSSE42, X86SSE42},
		{cpu.X86.HasAES, X86AESNI},
		{cpu.X86.HasAVX, X86AVX},
		{cpu.X86.HasRDRAND, X86RDRAND},
		{cpu.X86.HasAVX2, X86AVX2},
	} {
		if f.ok {
			s = s.With(f.bit)
		}
	}
	return s
}
