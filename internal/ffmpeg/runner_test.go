package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

const fakeFFmpeg = `#!/bin/sh
case "$1" in
-version)
	echo "ffmpeg version 4.4.1 Copyright (c) 2000-2021 the FFmpeg developers"
	;;
ok)
	echo "frame=1" >&2
	echo "frame=2" >&2
	echo "done"
	;;
fail)
	echo "boom" >&2
	exit 3
	;;
env)
	echo "LD=$LD_LIBRARY_PATH FOO=$FOO" >&2
	;;
sleep)
	exec sleep "$2"
	;;
progress)
	i=1
	while [ $i -le 6 ]; do
		printf 'frame=%d fps=25 time=00:00:0%d.00\r' $i $i >&2
		sleep 0.4
		i=$((i+1))
	done
	printf '\n' >&2
	;;
longline)
	head -c 2200000 /dev/zero | tr '\0' x >&2
	printf '\ntail\n' >&2
	;;
esac
`

type recorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recorder) RecordRun(_ context.Context, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

type eventHandler struct {
	NopHandler
	mu     sync.Mutex
	events []string
	lines  []string
}

func (h *eventHandler) add(ev string) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *eventHandler) OnStart()         { h.add("start") }
func (h *eventHandler) OnFinish()        { h.add("finish") }
func (h *eventHandler) OnSuccess(string) { h.add("success") }
func (h *eventHandler) OnFailure(string) { h.add("failure") }

func (h *eventHandler) OnProgress(line string) {
	h.mu.Lock()
	h.lines = append(h.lines, line)
	h.mu.Unlock()
}

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	l := newLayout(t)
	writeFile(t, l.FFmpegPath(), fakeFFmpeg, 0755)
	opts.Layout = l
	if opts.Environment == nil {
		opts.Environment = map[string]string{}
	}
	opts.Environment["PATH"] = os.Getenv("PATH")
	return NewRunner(opts)
}

func TestExecuteSuccess(t *testing.T) {
	rec := &recorder{}
	r := newTestRunner(t, Options{Supported: true, Recorder: rec})
	h := &eventHandler{}

	job, err := r.Execute(context.Background(), []string{"ok"}, nil, h)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if job.ID == "" {
		t.Error("job should have an ID")
	}
	res := job.Wait()
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.Status() != "success" {
		t.Errorf("Status() = %q", res.Status())
	}
	if !strings.Contains(res.Output, "frame=2") || !strings.Contains(res.Output, "done") {
		t.Errorf("output = %q", res.Output)
	}
	if got := strings.Join(h.events, ","); got != "start,success,finish" {
		t.Errorf("events = %s", got)
	}
	if len(h.lines) != 2 {
		t.Errorf("progress lines = %v", h.lines)
	}
	if len(rec.results) != 1 || rec.results[0].ID != job.ID {
		t.Errorf("recorded = %+v", rec.results)
	}
	if r.Running() {
		t.Error("Running() should be false after Wait")
	}
}

func TestExecuteFailure(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})
	h := &eventHandler{}

	job, err := r.Execute(context.Background(), []string{"fail"}, nil, h)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	res := job.Wait()
	if res.Success || res.ExitCode != 3 {
		t.Fatalf("result = %+v, want exit 3", res)
	}
	if res.Status() != "failure" {
		t.Errorf("Status() = %q", res.Status())
	}
	if got := strings.Join(h.events, ","); got != "start,failure,finish" {
		t.Errorf("events = %s", got)
	}
}

func TestExecuteEnvironment(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true, Environment: map[string]string{"FOO": "base"}})

	job, err := r.Execute(context.Background(), []string{"env"}, map[string]string{"FOO": "call"}, nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	res := job.Wait()
	want := "LD=" + r.opts.Layout.ExecDir + " FOO=call"
	if !strings.Contains(res.Output, want) {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestExecuteRejected(t *testing.T) {
	tests := []struct {
		name      string
		supported bool
		args      []string
		want      error
	}{
		{"unsupported cpu", false, []string{"ok"}, ErrNotSupported},
		{"unsupported cpu empty args", false, nil, ErrNotSupported},
		{"empty args", true, nil, ErrEmptyCommand},
		{"empty slice", true, []string{}, ErrEmptyCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, Options{Supported: tt.supported})
			if _, err := r.Execute(context.Background(), tt.args, nil, nil); !errors.Is(err, tt.want) {
				t.Errorf("Execute() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExecuteAlreadyRunning(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})

	job, err := r.Execute(context.Background(), []string{"sleep", "5"}, nil, nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !r.Running() {
		t.Error("Running() should be true")
	}
	if _, err := r.Execute(context.Background(), []string{"ok"}, nil, nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Execute() error = %v, want ErrAlreadyRunning", err)
	}
	r.Kill()
	job.Wait()

	next, err := r.Execute(context.Background(), []string{"ok"}, nil, nil)
	if err != nil {
		t.Fatalf("Execute() after finish error: %v", err)
	}
	next.Wait()
}

func TestKill(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})
	if !r.Kill() {
		t.Error("Kill() with nothing started should return true")
	}

	job, err := r.Execute(context.Background(), []string{"sleep", "30"}, nil, nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !r.Kill() {
		t.Error("Kill() of a running command should return true")
	}

	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("killed job did not finish")
	}
	res := job.Wait()
	if !errors.Is(res.Err, ErrKilled) || res.Status() != "killed" {
		t.Errorf("result = %+v, want killed", res)
	}
	if r.Kill() {
		t.Error("Kill() after the command finished should return false")
	}
}

func TestExecuteStalled(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true, ProgressTimeout: 200 * time.Millisecond})

	job, err := r.Execute(context.Background(), []string{"sleep", "30"}, nil, nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("stalled job was not stopped")
	}
	res := job.Wait()
	if !errors.Is(res.Err, ErrStalled) || res.Status() != "stalled" {
		t.Errorf("result = %+v, want stalled", res)
	}
}

func TestExecuteContextCancel(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})
	ctx, cancel := context.WithCancel(context.Background())

	job, err := r.Execute(ctx, []string{"sleep", "30"}, nil, nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	cancel()
	res := job.Wait()
	if res.Success || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("result = %+v, want canceled", res)
	}
}

func TestSetTimeout(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})
	r.SetTimeout(time.Second)
	if r.timeout != 0 {
		t.Errorf("timeout below minimum should be ignored, got %s", r.timeout)
	}
	r.SetTimeout(30 * time.Second)
	if r.timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s", r.timeout)
	}

	r = newTestRunner(t, Options{Supported: true, Timeout: 5 * time.Second})
	if r.timeout != 0 {
		t.Errorf("NewRunner should ignore a 5s timeout, got %s", r.timeout)
	}
}

func TestVersion(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})
	v, err := r.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	if v != "4.4.1" {
		t.Errorf("Version() = %q, want 4.4.1", v)
	}
}

func TestResultStatus(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Success: true}, "success"},
		{Result{Err: errors.New("exit status 1")}, "failure"},
		{Result{Err: ErrTimeout}, "timeout"},
		{Result{Err: ErrStalled}, "stalled"},
		{Result{Err: ErrKilled}, "killed"},
	}
	for _, tt := range tests {
		if got := tt.res.Status(); got != tt.want {
			t.Errorf("Status() for %v = %q, want %q", tt.res.Err, got, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})
	res, err := r.Run(context.Background(), "fixed-id", []string{"ok"}, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.ID != "fixed-id" || !res.Success {
		t.Errorf("Run() = %+v", res)
	}

	if _, err := r.Run(context.Background(), "x", nil, nil); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Run(nil) error = %v", err)
	}
}

func TestScanProgressLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"newlines", "a\nb\n", []string{"a", "b"}},
		{"carriage returns", "frame=1\rframe=2\r", []string{"frame=1", "frame=2"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "", "b", ""}},
		{"trailing", "x\ry", []string{"x", "y"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := bufio.NewScanner(strings.NewReader(tt.input))
			sc.Split(scanProgressLines)
			var got []string
			for sc.Scan() {
				got = append(got, sc.Text())
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("tokens = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecuteCarriageReturnProgress(t *testing.T) {
	// Runs for about 2.4s, writing a \r-terminated progress line every 0.4s.
	r := newTestRunner(t, Options{Supported: true, ProgressTimeout: time.Second})
	h := &eventHandler{}

	job, err := r.Execute(context.Background(), []string{"progress"}, nil, h)
	if err != nil {
		t.Fatal(err)
	}
	res := job.Wait()
	if !res.Success {
		t.Fatalf("status = %s, err = %v; a job printing progress must not stall", res.Status(), res.Err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.lines) != 6 {
		t.Fatalf("progress lines = %q, want 6", h.lines)
	}
	if h.lines[5] != "frame=6 fps=25 time=00:00:06.00" {
		t.Errorf("last line = %q", h.lines[5])
	}
}

func TestExecuteOversizedStderrLine(t *testing.T) {
	r := newTestRunner(t, Options{Supported: true})

	job, err := r.Execute(context.Background(), []string{"longline"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-job.Done():
	case <-time.After(15 * time.Second):
		r.Kill()
		t.Fatal("run blocked on a stderr line larger than the scan buffer")
	}
	if res := job.Wait(); !res.Success {
		t.Errorf("result = %s: %v", res.Status(), res.Err)
	}
}
