//go:build arm

package cpufeatures

import "golang.org/x/sys/cpu"

// hwcapFeatures reads the auxv hwcaps the Go runtime already parsed.  The
// ARMv7 bit is only inferred here; Detect refines it from /proc/cpuinfo.
func hwcapFeatures() FeatureSet {
	var flags []string
	add := func(ok bool, name string) {
		if ok {
			flags = append(flags, name)
		}
	}
	add(cpu.ARM.HasVFP, "vfp")
	add(cpu.ARM.HasVFPv3, "vfpv3")
	add(cpu.ARM.HasVFPv3D16, "vfpv3d16")
	add(cpu.ARM.HasVFPD32, "vfpd32")
	add(cpu.ARM.HasVFPv4, "vfpv4")
	add(cpu.ARM.HasNEON, "neon")
	add(cpu.ARM.HasHALF, "half")
	add(cpu.ARM.HasIDIVA, "idiva")
	add(cpu.ARM.HasIDIVT, "idivt")
	add(cpu.ARM.HasIWMMXT, "iwmmxt")
	add(cpu.ARM.HasTHUMBEE, "thumbee")
	add(cpu.ARM.HasLPAE, "lpae")
	add(cpu.ARM.HasAES, "aes")
	add(cpu.ARM.HasPMULL, "pmull")
	add(cpu.ARM.HasSHA1, "sha1")
	add(cpu.ARM.HasSHA2, "sha2")
	add(cpu.ARM.HasCRC32, "crc32")
	return ARMFeaturesFromFlags(flags, 0)
}
