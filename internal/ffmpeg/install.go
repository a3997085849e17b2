package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/metrics"
)

// Install copies the binaries for abi from the asset tree into the exec
// dir.  An installed file is replaced when its size differs from the asset
// (an upgraded bundle); a missing asset is tolerated while an installed
// copy exists.  Installed files are made executable.
func Install(l Layout, abi string) error {
	assets := filepath.Join(l.AssetsRoot, cpucheck.AssetsDir(abi))
	log.Infof("Installing ffmpeg binaries from %s into %s", assets, l.ExecDir)

	if err := os.MkdirAll(l.ExecDir, 0755); err != nil {
		metrics.InstallsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to create exec dir %s: %w", l.ExecDir, err)
	}

	for _, name := range []string{H264Library, FFmpegBinary} {
		if err := installFile(filepath.Join(assets, name), filepath.Join(l.ExecDir, name)); err != nil {
			metrics.InstallsTotal.WithLabelValues("failure").Inc()
			return fmt.Errorf("install %s: %w", name, err)
		}
	}

	metrics.InstallsTotal.WithLabelValues("success").Inc()
	return nil
}

func installFile(src, dst string) error {
	srcInfo, srcErr := os.Stat(src)
	dstInfo, dstErr := os.Stat(dst)

	if dstErr == nil && srcErr == nil && srcInfo.Size() > 0 && srcInfo.Size() != dstInfo.Size() {
		log.Infof("%s is out of date (%d bytes, asset %d bytes), replacing", dst, dstInfo.Size(), srcInfo.Size())
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("%s is out of date and cannot be updated: %w", dst, err)
		}
		dstErr = fs.ErrNotExist
	}

	if errors.Is(dstErr, fs.ErrNotExist) {
		if srcErr != nil {
			return fmt.Errorf("asset unavailable: %w", srcErr)
		}
		if err := checkFreeSpace(filepath.Dir(dst), uint64(srcInfo.Size())); err != nil {
			return err
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		log.Debugf("Copied %s -> %s (%d bytes)", src, dst, srcInfo.Size())
	} else if dstErr != nil {
		return dstErr
	}

	return makeExecutable(dst)
}

// copyFile writes through a temporary file so a crash never leaves a
// truncated binary at dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open asset: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush asset copy: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move asset into place: %w", err)
	}
	return nil
}

func makeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0111 == 0111 {
		return nil
	}
	log.Debugf("%s is not executable, trying to make it executable ...", path)
	if err := os.Chmod(path, info.Mode().Perm()|0755); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", path, err)
	}
	return nil
}
