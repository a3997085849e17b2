//go:build arm64

package cpufeatures

import "golang.org/x/sys/cpu"

func hwcapFeatures() FeatureSet {
	var s FeatureSet
	if cpu.ARM64.HasFP {
		s = s.With(ARM64FP)
	}
	if cpu.ARM64.HasASIMD {
		s = s.With(ARM64ASIMD)
	}
	if cpu.ARM64.HasAES {
		s = s.With(ARM64AES)
	}
	if cpu.ARM64.HasPMULL {
		s = s.With(ARM64PMULL)
	}
	if cpu.ARM64.HasSHA1 {
		s = s.With(ARM64SHA1)
	}
	if cpu.ARM64.HasSHA2 {
		s = s.With(ARM64SHA2)
	}
	if cpu.ARM64.HasCRC32 {
		s = s.With(ARM64CRC32)
	}
	return s
}
