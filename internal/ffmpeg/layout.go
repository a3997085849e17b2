// Package ffmpeg installs the bundled ffmpeg binaries and runs commands
// with them.  Commands only run when the CPU gate passed; at most one
// command runs at a time.
package ffmpeg

import (
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// File names inside the exec and asset directories.
const (
	FFmpegBinary = "ffmpeg"
	H264Library  = "libopenh264.so"
)

// Layout locates the installed binaries and the per-ABI asset tree they
// are installed from.
type Layout struct {
	ExecDir    string // installed binaries, also LD_LIBRARY_PATH
	AssetsRoot string // contains one directory per cpucheck.AssetsDir
}

// FFmpegPath is the installed ffmpeg executable.
func (l Layout) FFmpegPath() string {
	return filepath.Join(l.ExecDir, FFmpegBinary)
}

// H264Path is the installed openh264 library.
func (l Layout) H264Path() string {
	return filepath.Join(l.ExecDir, H264Library)
}

// Environment builds the environment for an ffmpeg process.  The process
// gets only these variables: LD_LIBRARY_PATH pointing at the exec dir,
// followed by extra sorted by key.  An LD_LIBRARY_PATH in extra is ignored.
func Environment(l Layout, extra map[string]string) []string {
	env := []string{"LD_LIBRARY_PATH=" + l.ExecDir}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k == "LD_LIBRARY_PATH" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// mergeEnv overlays override on base without modifying either.
func mergeEnv(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
