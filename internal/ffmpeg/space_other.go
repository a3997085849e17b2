//go:build !linux && !darwin && !freebsd

package ffmpeg

func checkFreeSpace(path string, need uint64) error {
	return nil
}
