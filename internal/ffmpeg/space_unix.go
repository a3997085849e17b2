//go:build linux || darwin || freebsd

package ffmpeg

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkFreeSpace fails when the filesystem holding path has less than
// need bytes available to unprivileged users.
func checkFreeSpace(path string, need uint64) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Errorf("failed to check storage space: %w", err)
	}
	available := stat.Bavail * uint64(stat.Bsize)
	if available < need {
		return fmt.Errorf("insufficient storage space: %d bytes available, %d bytes required", available, need)
	}
	return nil
}
