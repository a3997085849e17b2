package cpufeatures

// Feature is a single bit in a FeatureSet.  Bit meanings depend on the
// Family the set was detected for, so the same value names different
// extensions on ARM, ARM64 and x86.
type Feature uint64

// FeatureSet is the bitmask of optional instruction-set extensions
// reported for the running processor.
type FeatureSet uint64

// ARM (32-bit) features.
const (
	ARMv7 Feature = 1 << iota
	ARMVFPv3
	ARMNEON
	ARMLDREXSTREX
	ARMVFPv2
	ARMVFPD32
	ARMVFPFP16
	ARMVFPFMA
	ARMNEONFMA
	ARMIDIVARM
	ARMIDIVThumb2
	ARMiWMMXt
	ARMAES
	ARMPMULL
	ARMSHA1
	ARMSHA2
	ARMCRC32
)

// ARM64 features.
const (
	ARM64FP Feature = 1 << iota
	ARM64ASIMD
	ARM64AES
	ARM64PMULL
	ARM64SHA1
	ARM64SHA2
	ARM64CRC32
)

// x86 and x86-64 features.
const (
	X86SSSE3 Feature = 1 << iota
	X86POPCNT
	X86MOVBE
	X86SSE41
	X86SSE42
	X86AESNI
	X86AVX
	X86RDRAND
	X86AVX2
	X86SHANI
)

type featureName struct {
	bit  Feature
	name string
}

var armFeatureNames = []featureName{
	{ARMv7, "armv7"},
	{ARMVFPv3, "vfpv3"},
	{ARMNEON, "neon"},
	{ARMLDREXSTREX, "ldrex_strex"},
	{ARMVFPv2, "vfpv2"},
	{ARMVFPD32, "vfp_d32"},
	{ARMVFPFP16, "vfp_fp16"},
	{ARMVFPFMA, "vfp_fma"},
	{ARMNEONFMA, "neon_fma"},
	{ARMIDIVARM, "idiv_arm"},
	{ARMIDIVThumb2, "idiv_thumb2"},
	{ARMiWMMXt, "iwmmxt"},
	{ARMAES, "aes"},
	{ARMPMULL, "pmull"},
	{ARMSHA1, "sha1"},
	{ARMSHA2, "sha2"},
	{ARMCRC32, "crc32"},
}

var arm64FeatureNames = []featureName{
	{ARM64FP, "fp"},
	{ARM64ASIMD, "asimd"},
	{ARM64AES, "aes"},
	{ARM64PMULL, "pmull"},
	{ARM64SHA1, "sha1"},
	{ARM64SHA2, "sha2"},
	{ARM64CRC32, "crc32"},
}

var x86FeatureNames = []featureName{
	{X86SSSE3, "ssse3"},
	{X86POPCNT, "popcnt"},
	{X86MOVBE, "movbe"},
	{X86SSE41, "sse4.1"},
	{X86SSE42, "sse4.2"},
	{X86AESNI, "aes-ni"},
	{X86AVX, "avx"},
	{X86RDRAND, "rdrand"},
	{X86AVX2, "avx2"},
	{X86SHANI, "sha-ni"},
}

// Has reports whether every bit of f is set.
func (s FeatureSet) Has(f Feature) bool {
	return uint64(s)&uint64(f) == uint64(f) && f != 0
}

// With returns s with f set.
func (s FeatureSet) With(f Feature) FeatureSet {
	return s | FeatureSet(f)
}

// Names returns the human-readable names of the bits set in s, interpreted
// for the given family.  Unknown families have no named bits.
func (s FeatureSet) Names(family Family) []string {
	var table []featureName
	switch family {
	case FamilyARM:
		table = armFeatureNames
	case FamilyARM64:
		table = arm64FeatureNames
	case FamilyX86, FamilyX86_64:
		table = x86FeatureNames
	}
	var out []string
	for _, fn := range table {
		if s.Has(fn.bit) {
			out = append(out, fn.name)
		}
	}
	return out
}
