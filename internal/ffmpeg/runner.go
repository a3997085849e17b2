package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/metrics"
)

// MinimumTimeout is the smallest total timeout SetTimeout accepts.
const MinimumTimeout = 10 * time.Second

var (
	ErrNotSupported   = errors.New("ffmpeg: device not supported")
	ErrAlreadyRunning = errors.New("ffmpeg: command is already running, only a single command may run at a time")
	ErrEmptyCommand   = errors.New("ffmpeg: command cannot be empty")
	ErrTimeout        = errors.New("ffmpeg: timed out")
	ErrStalled        = errors.New("ffmpeg: no progress output")
	ErrKilled         = errors.New("ffmpeg: killed")
)

// Handler receives the lifecycle events of one run.  Callbacks are invoked
// from the run goroutine, in order: OnStart, OnProgress*, OnSuccess or
// OnFailure, OnFinish.
type Handler interface {
	OnStart()
	OnProgress(line string)
	OnSuccess(output string)
	OnFailure(output string)
	OnFinish()
}

// NopHandler ignores every event.  Embed it to implement only some callbacks.
type NopHandler struct{}

func (NopHandler) OnStart()          {}
func (NopHandler) OnProgress(string) {}
func (NopHandler) OnSuccess(string)  {}
func (NopHandler) OnFailure(string)  {}
func (NopHandler) OnFinish()         {}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, res Result) error
}

// Result describes a finished run.
type Result struct {
	ID        string
	Args      []string
	Success   bool
	Output    string
	ExitCode  int
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Status is a short outcome label used in metrics and history.
func (r Result) Status() string {
	switch {
	case r.Success:
		return "success"
	case errors.Is(r.Err, ErrTimeout):
		return "timeout"
	case errors.Is(r.Err, ErrStalled):
		return "stalled"
	case errors.Is(r.Err, ErrKilled):
		return "killed"
	default:
		return "failure"
	}
}

// Job is a command started by Execute.
type Job struct {
	ID   string
	Args []string

	cancel   context.CancelFunc
	killed   atomic.Bool
	finished atomic.Bool
	done     chan struct{}
	result   Result
}

// Done is closed when the run has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the run finishes and returns its result.
func (j *Job) Wait() Result {
	<-j.done
	return j.result
}

// Options configures a Runner.
type Options struct {
	Layout          Layout
	Supported       bool              // outcome of the CPU gate
	Timeout         time.Duration     // total run time, 0 for none
	ProgressTimeout time.Duration     // max silence on stderr, 0 for none
	Environment     map[string]string // added to every run
	Recorder        Recorder          // optional
}

// Runner runs ffmpeg commands one at a time.
type Runner struct {
	opts Options

	mu      sync.Mutex
	timeout time.Duration
	current *Job
}

// NewRunner creates a Runner.  A non-zero Timeout below MinimumTimeout is
// ignored.
func NewRunner(opts Options) *Runner {
	r := &Runner{opts: opts}
	if opts.Timeout > 0 {
		r.SetTimeout(opts.Timeout)
	}
	return r
}

// SetTimeout sets the total timeout for subsequent runs.  Values below
// MinimumTimeout are ignored.
func (r *Runner) SetTimeout(d time.Duration) {
	if d < MinimumTimeout {
		log.Warnf("Ignoring ffmpeg timeout %s, minimum is %s", d, MinimumTimeout)
		return
	}
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// Supported reports whether the runner will accept commands.
func (r *Runner) Supported() bool {
	return r.opts.Supported
}

// Running reports whether a command is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && !r.current.finished.Load()
}

// Kill stops the running command.  It returns true when nothing was
// running and false when the last command had already finished.
func (r *Runner) Kill() bool {
	r.mu.Lock()
	job := r.current
	r.mu.Unlock()

	if job == nil {
		return true
	}
	if job.finished.Load() || job.killed.Swap(true) {
		return false
	}
	log.Infof("Killing ffmpeg job %s", job.ID)
	job.cancel()
	return true
}

// Execute starts ffmpeg with args.  env is added to the configured
// environment.  The run continues in the background; use the returned
// Job to wait for it.
func (r *Runner) Execute(ctx context.Context, args []string, env map[string]string, h Handler) (*Job, error) {
	return r.ExecuteWithID(ctx, uuid.NewString(), args, env, h)
}

// ExecuteWithID is Execute with a caller-chosen job ID.
func (r *Runner) ExecuteWithID(ctx context.Context, id string, args []string, env map[string]string, h Handler) (*Job, error) {
	if !r.opts.Supported {
		return nil, ErrNotSupported
	}

	r.mu.Lock()
	if r.current != nil && !r.current.finished.Load() {
		r.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	if len(args) == 0 {
		r.mu.Unlock()
		return nil, ErrEmptyCommand
	}

	runCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:     id,
		Args:   append([]string(nil), args...),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.current = job
	timeout := r.timeout
	r.mu.Unlock()

	if h == nil {
		h = NopHandler{}
	}
	go r.run(runCtx, job, timeout, mergeEnv(r.opts.Environment, env), h)
	return job, nil
}

func (r *Runner) run(ctx context.Context, job *Job, timeout time.Duration, env map[string]string, h Handler) {
	defer close(job.done)
	defer job.cancel()

	metrics.FFmpegRunning.Set(1)
	defer metrics.FFmpegRunning.Set(0)

	start := time.Now()
	h.OnStart()

	res := r.exec(ctx, job, timeout, env, h)
	res.ID = job.ID
	res.Args = job.Args
	res.StartedAt = start.UTC()
	res.Duration = time.Since(start)
	job.result = res

	if res.Success {
		log.Infof("ffmpeg job %s finished in %s", job.ID, res.Duration)
		h.OnSuccess(res.Output)
	} else {
		log.Warnf("ffmpeg job %s failed after %s: %v", job.ID, res.Duration, res.Err)
		h.OnFailure(res.Output)
	}
	h.OnFinish()

	metrics.ObserveRun(res.Status(), res.Duration)
	if r.opts.Recorder != nil {
		if err := r.opts.Recorder.RecordRun(context.Background(), res); err != nil {
			log.Errorf("Failed to record ffmpeg job %s: %v", job.ID, err)
		}
	}

	job.finished.Store(true)
}

// scanProgressLines is a bufio.SplitFunc that ends lines at \n or \r.
// ffmpeg rewrites its progress line in place with \r; the empty token
// between \r and \n is skipped by the reader.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// exec runs the process, streams stderr lines to h and classifies the
// outcome.
func (r *Runner) exec(ctx context.Context, job *Job, timeout time.Duration, env map[string]string, h Handler) Result {
	var cancelTimeout context.CancelFunc = func() {}
	if timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
	}
	defer cancelTimeout()

	procCtx, stop := context.WithCancel(ctx)
	defer stop()

	log.Infof("exec %s %v", r.opts.Layout.FFmpegPath(), job.Args)
	cmd := exec.CommandContext(procCtx, r.opts.Layout.FFmpegPath(), job.Args...)
	cmd.Env = Environment(r.opts.Layout, env)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("ffmpeg: stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("ffmpeg: start: %w", err)}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		sc.Split(scanProgressLines)
		for sc.Scan() {
			if line := sc.Text(); line != "" {
				lines <- line
			}
		}
		if err := sc.Err(); err != nil {
			log.Warnf("ffmpeg job %s: stderr scan stopped: %v", job.ID, err)
		}
		// Keep the pipe drained so ffmpeg never blocks on a full stderr.
		_, _ = io.Copy(io.Discard, stderr)
	}()

	var stallC <-chan time.Time
	var stall *time.Timer
	if r.opts.ProgressTimeout > 0 {
		stall = time.NewTimer(r.opts.ProgressTimeout)
		defer stall.Stop()
		stallC = stall.C
	}

	var output strings.Builder
	stalled := false
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			output.WriteString(line)
			output.WriteByte('\n')
			h.OnProgress(line)
			if stall != nil && !stalled {
				if !stall.Stop() {
					select {
					case <-stall.C:
					default:
					}
				}
				stall.Reset(r.opts.ProgressTimeout)
			}
		case <-stallC:
			stalled = true
			stallC = nil
			stop()
		}
	}

	waitErr := cmd.Wait()
	output.Write(stdout.Bytes())

	res := Result{Output: output.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case stalled:
		res.Err = fmt.Errorf("%w for %s", ErrStalled, r.opts.ProgressTimeout)
	case job.killed.Load():
		res.Err = ErrKilled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case ctx.Err() != nil:
		res.Err = ctx.Err()
	case waitErr != nil:
		res.Err = fmt.Errorf("ffmpeg: %w", waitErr)
	default:
		res.Success = true
	}
	return res
}

// Version runs "ffmpeg -version" and returns the version token, e.g.
// "4.4.1" from "ffmpeg version 4.4.1 Copyright ...".  It returns "" when
// the output has no version token.
func (r *Runner) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, r.opts.Layout.FFmpegPath(), "-version")
	cmd.Env = Environment(r.opts.Layout, r.opts.Environment)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	fields := strings.Split(strings.TrimSpace(string(out)), " ")
	if len(fields) < 3 {
		return "", nil
	}
	return fields[2], nil
}

// Run executes args under id and waits for the result.
func (r *Runner) Run(ctx context.Context, id string, args []string, env map[string]string) (Result, error) {
	job, err := r.ExecuteWithID(ctx, id, args, env, nil)
	if err != nil {
		return Result{}, err
	}
	return job.Wait(), nil
}
