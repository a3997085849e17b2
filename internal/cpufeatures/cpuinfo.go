package cpufeatures

import (
	"strconv"
	"strings"
)

// cpuinfoField returns the value of the first "key : value" line in a
// /proc/cpuinfo dump whose key matches exactly.
func cpuinfoField(content, key string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == key {
			return strings.TrimSpace(parts[1]), true
		}
	}
	return "", false
}

// ParseCPUArchitecture extracts the ARM architecture revision from the
// "CPU architecture" line of /proc/cpuinfo.  Values such as "5TEJ" yield 5,
// "AArch64" yields 8.  It returns 0 when the field is absent or unreadable.
func ParseCPUArchitecture(cpuinfo string) int {
	value, ok := cpuinfoField(cpuinfo, "CPU architecture")
	if !ok {
		return 0
	}
	if strings.EqualFold(value, "aarch64") {
		return 8
	}
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(value[:end])
	if err != nil {
		return 0
	}
	return n
}

// flagSet turns a kernel flag list into a lookup set.
func flagSet(flags []string) map[string]bool {
	set := make(map[string]bool, len(flags))
	for _, f := range flags {
		set[strings.ToLower(strings.TrimSpace(f))] = true
	}
	return set
}

// ARMFeaturesFromFlags builds the 32-bit ARM feature set from the kernel
// hwcap names ("Features" line of /proc/cpuinfo) and the architecture
// revision returned by ParseCPUArchitecture.  With arch == 0 the ARMv7 bit
// is inferred from hwcaps that only exist on ARMv7 and later.
func ARMFeaturesFromFlags(flags []string, arch int) FeatureSet {
	has := flagSet(flags)
	var s FeatureSet

	if arch >= 6 {
		s = s.With(ARMLDREXSTREX)
	}
	if arch >= 7 {
		s = s.With(ARMv7)
	}
	if arch == 0 {
		for _, name := range []string{"vfpv3", "vfpv3d16", "neon", "vfpv4", "idiva", "lpae", "thumbee"} {
			if has[name] {
				s = s.With(ARMv7).With(ARMLDREXSTREX)
				break
			}
		}
	}

	if has["vfp"] {
		s = s.With(ARMVFPv2)
	}
	if has["vfpv3"] || has["vfpv3d16"] {
		s = s.With(ARMVFPv3).With(ARMVFPv2)
	}
	if has["vfpd32"] {
		s = s.With(ARMVFPD32)
	}
	if has["neon"] {
		s = s.With(ARMNEON).With(ARMVFPv3).With(ARMVFPD32)
	}
	if has["vfpv4"] {
		s = s.With(ARMVFPFP16).With(ARMVFPFMA)
		if has["neon"] {
			s = s.With(ARMNEONFMA)
		}
	}
	if has["half"] && s.Has(ARMVFPv3) {
		s = s.With(ARMVFPFP16)
	}
	if has["idiva"] {
		s = s.With(ARMIDIVARM)
	}
	if has["idivt"] {
		s = s.With(ARMIDIVThumb2)
	}
	if has["iwmmxt"] {
		s = s.With(ARMiWMMXt)
	}
	if has["aes"] {
		s = s.With(ARMAES)
	}
	if has["pmull"] {
		s = s.With(ARMPMULL)
	}
	if has["sha1"] {
		s = s.With(ARMSHA1)
	}
	if has["sha2"] {
		s = s.With(ARMSHA2)
	}
	if has["crc32"] {
		s = s.With(ARMCRC32)
	}
	return s
}

// ARM64FeaturesFromFlags builds the ARM64 feature set from kernel hwcap names.
func ARM64FeaturesFromFlags(flags []string) FeatureSet {
	has := flagSet(flags)
	var s FeatureSet
	for name, bit := range map[string]Feature{
		"fp":    ARM64FP,
		"asimd": ARM64ASIMD,
		"aes":   ARM64AES,
		"pmull": ARM64PMULL,
		"sha1":  ARM64SHA1,
		"sha2":  ARM64SHA2,
		"crc32": ARM64CRC32,
	} {
		if has[name] {
			s = s.With(bit)
		}
	}
	return s
}

// X86FeaturesFromFlags builds the x86 feature set from the "flags" line of
// /proc/cpuinfo.
func X86FeaturesFromFlags(flags []string) FeatureSet {
	has := flagSet(flags)
	var s FeatureSet
	for name, bit := range map[string]Feature{
		"ssse3":  X86SSSE3,
		"popcnt": X86POPCNT,
		"movbe":  X86MOVBE,
		"sse4_1": X86SSE41,
		"sse4_2": X86SSE42,
		"aes":    X86AESNI,
		"avx":    X86AVX,
		"rdrand": X86RDRAND,
		"avx2":   X86AVX2,
		"sha_ni": X86SHANI,
	} {
		if has[name] {
			s = s.With(bit)
		}
	}
	return s
}
