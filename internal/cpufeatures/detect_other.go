//go:build !arm && !arm64 && !386 && !amd64

package cpufeatures

// hwcapFeatures is empty on families without named feature bits.
func hwcapFeatures() FeatureSet {
	return 0
}
