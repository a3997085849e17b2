package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

func newLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	return Layout{
		ExecDir:    filepath.Join(root, "bin"),
		AssetsRoot: filepath.Join(root, "assets"),
	}
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{ExecDir: "/data/bin"}
	if got := l.FFmpegPath(); got != "/data/bin/ffmpeg" {
		t.Errorf("FFmpegPath() = %q", got)
	}
	if got := l.H264Path(); got != "/data/bin/libopenh264.so" {
		t.Errorf("H264Path() = %q", got)
	}
}

func TestEnvironment(t *testing.T) {
	l := Layout{ExecDir: "/data/bin"}
	got := Environment(l, map[string]string{
		"ANDROID_ROOT":    "/system",
		"ANDROID_DATA":    "/data",
		"LD_LIBRARY_PATH": "/elsewhere",
	})
	want := []string{"LD_LIBRARY_PATH=/data/bin", "ANDROID_DATA=/data", "ANDROID_ROOT=/system"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Environment() = %v, want %v", got, want)
	}
}

func TestMergeEnv(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	out := mergeEnv(base, map[string]string{"B": "3"})
	if out["A"] != "1" || out["B"] != "3" {
		t.Errorf("mergeEnv() = %v", out)
	}
	if base["B"] != "2" {
		t.Error("mergeEnv modified base")
	}
}

func TestInstallFresh(t *testing.T) {
	l := newLayout(t)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", FFmpegBinary), "ffmpeg-v1", 0644)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", H264Library), "h264-v1", 0644)

	if err := Install(l, "arm64-v8a"); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	for _, p := range []string{l.FFmpegPath(), l.H264Path()} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("%s not installed: %v", p, err)
		}
		if info.Mode().Perm()&0111 != 0111 {
			t.Errorf("%s mode = %v, want executable", p, info.Mode())
		}
	}
	data, _ := os.ReadFile(l.FFmpegPath())
	if string(data) != "ffmpeg-v1" {
		t.Errorf("installed ffmpeg = %q", data)
	}
}

func TestInstallX86Assets(t *testing.T) {
	l := newLayout(t)
	writeFile(t, filepath.Join(l.AssetsRoot, "x86", FFmpegBinary), "x86-ffmpeg", 0644)
	writeFile(t, filepath.Join(l.AssetsRoot, "x86", H264Library), "x86-h264", 0644)

	if err := Install(l, "x86_64"); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	data, _ := os.ReadFile(l.FFmpegPath())
	if string(data) != "x86-ffmpeg" {
		t.Errorf("installed ffmpeg = %q", data)
	}
}

func TestInstallReplacesOutdated(t *testing.T) {
	l := newLayout(t)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", FFmpegBinary), "ffmpeg-version-two", 0644)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", H264Library), "h264", 0644)
	writeFile(t, l.FFmpegPath(), "ffmpeg-v1", 0755)

	if err := Install(l, "armeabi-v7a"); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	data, _ := os.ReadFile(l.FFmpegPath())
	if string(data) != "ffmpeg-version-two" {
		t.Errorf("installed ffmpeg = %q, want replaced copy", data)
	}
}

func TestInstallKeepsCurrent(t *testing.T) {
	l := newLayout(t)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", FFmpegBinary), "aaaa", 0644)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", H264Library), "h264", 0644)
	writeFile(t, l.FFmpegPath(), "bbbb", 0644)

	if err := Install(l, "armeabi-v7a"); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	data, _ := os.ReadFile(l.FFmpegPath())
	if string(data) != "bbbb" {
		t.Errorf("same-size install should be kept, got %q", data)
	}
	info, _ := os.Stat(l.FFmpegPath())
	if info.Mode().Perm()&0111 != 0111 {
		t.Errorf("kept binary should be made executable, mode %v", info.Mode())
	}
}

func TestInstallMissingAsset(t *testing.T) {
	l := newLayout(t)
	writeFile(t, filepath.Join(l.AssetsRoot, "armeabi-v7a", H264Library), "h264", 0644)

	if err := Install(l, "armeabi-v7a"); err == nil {
		t.Fatal("Install() should fail without an ffmpeg asset")
	}
}

func TestInstallMissingAssetAlreadyInstalled(t *testing.T) {
	l := newLayout(t)
	writeFile(t, l.FFmpegPath(), "ffmpeg", 0755)
	writeFile(t, l.H264Path(), "h264", 0755)

	if err := Install(l, "armeabi-v7a"); err != nil {
		t.Fatalf("Install() with installed copies error: %v", err)
	}
}
