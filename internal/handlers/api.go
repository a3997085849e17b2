package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/auth"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/ffmpeg"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/history"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/metrics"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/registry"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/workers"
)

// maxJobBody bounds the size of a job submission.
const maxJobBody = 64 << 10

// JobRunner runs ffmpeg commands.  *ffmpeg.Runner implements it.
type JobRunner interface {
	Supported() bool
	Running() bool
	Kill() bool
	Run(ctx context.Context, id string, args []string, env map[string]string) (ffmpeg.Result, error)
}

// API serves the gate's HTTP endpoints.  History and Registry may be nil
// when those features are disabled.
type API struct {
	Report    func() *cpucheck.Report
	Runner    JobRunner
	Queue     *workers.Pool
	History   *history.Store
	Registry  *registry.Registry
	JWTSecret string
}

// JobRequest is the body of POST /api/jobs.
type JobRequest struct {
	Args []string          `json:"args"`
	Env  map[string]string `json:"env,omitempty"`
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", Counted("/health", HealthHandler()))
	mux.HandleFunc("GET /api/cpu", Counted("/api/cpu", a.CPUHandler))
	mux.HandleFunc("GET /api/hosts", Counted("/api/hosts", a.HostsHandler))
	mux.HandleFunc("GET /api/hosts/{host}", Counted("/api/hosts/{host}", a.HostHandler))
	mux.HandleFunc("GET /api/jobs", Counted("/api/jobs", a.ListJobsHandler))
	mux.HandleFunc("POST /api/jobs", Counted("/api/jobs", a.SubmitJobHandler))
	mux.HandleFunc("DELETE /api/jobs/current", Counted("/api/jobs/current", a.KillJobHandler))
}

// CPUHandler runs a fresh check, publishes it and returns the report.
func (a *API) CPUHandler(w http.ResponseWriter, r *http.Request) {
	rep := a.Report()
	metrics.RecordCheck(rep.Family, rep.ABI, rep.Supported)
	if a.Registry != nil {
		if err := a.Registry.Publish(r.Context(), rep); err != nil {
			log.Warnf("Failed to publish CPU report: %v", err)
		}
	}
	WriteJSONResponse(w, http.StatusOK, rep)
}

// HostsHandler lists hosts with a published report.
func (a *API) HostsHandler(w http.ResponseWriter, r *http.Request) {
	hosts := []string{}
	if a.Registry != nil {
		var err error
		if hosts, err = a.Registry.Hosts(r.Context()); err != nil {
			WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{"hosts": hosts})
}

// HostHandler returns the published report of one host.
func (a *API) HostHandler(w http.ResponseWriter, r *http.Request) {
	host := r.PathValue("host")
	if a.Registry == nil {
		WriteJSONError(w, http.StatusNotFound, "no report for host "+host)
		return
	}
	rep, err := a.Registry.Lookup(r.Context(), host)
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rep == nil {
		WriteJSONError(w, http.StatusNotFound, "no report for host "+host)
		return
	}
	WriteJSONResponse(w, http.StatusOK, rep)
}

// ListJobsHandler returns recent runs and aggregate statistics.
func (a *API) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		WriteJSONError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := a.History.Recent(r.Context(), limit)
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := a.History.Stats(r.Context())
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"running": a.Runner.Running(),
		"queued":  a.Queue.Queued(),
		"runs":    runs,
		"stats":   stats,
	})
}

// SubmitJobHandler queues an ffmpeg command.  It requires a valid JWT.
func (a *API) SubmitJobHandler(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r) {
		return
	}
	if !a.Runner.Supported() {
		WriteJSONError(w, http.StatusConflict, ffmpeg.ErrNotSupported.Error())
		return
	}

	var req JobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJobBody)).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid job body: "+err.Error())
		return
	}
	if len(req.Args) == 0 {
		WriteJSONError(w, http.StatusBadRequest, ffmpeg.ErrEmptyCommand.Error())
		return
	}
	env, err := jobEnvironment(req.Env)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Env = env

	id := uuid.NewString()
	task := workers.Task{ID: id, Execute: func(ctx context.Context) error {
		res, err := a.Runner.Run(ctx, id, req.Args, req.Env)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("job %s: %w", id, res.Err)
		}
		return nil
	}}
	if !a.Queue.Submit(task) {
		WriteJSONError(w, http.StatusServiceUnavailable, "job queue is full")
		return
	}

	log.Infof("Job %s queued: %v", id, req.Args)
	WriteJSONResponse(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
}

// jobEnvironment upper-cases the variable names of a job request.  Loader
// variables (LD_*) are refused: the library path is fixed by the runner.
func jobEnvironment(in map[string]string) (map[string]string, error) {
	env := make(map[string]string, len(in))
	for k, v := range in {
		name := strings.ToUpper(strings.TrimSpace(k))
		switch {
		case name == "" || strings.ContainsAny(name, "=\x00"):
			return nil, fmt.Errorf("invalid environment variable name %q", k)
		case strings.HasPrefix(name, "LD_"):
			return nil, fmt.Errorf("environment variable %s is not allowed", name)
		}
		env[name] = v
	}
	return env, nil
}

// KillJobHandler stops the running command.  It requires a valid JWT.
func (a *API) KillJobHandler(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r) {
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]bool{"killed": a.Runner.Kill()})
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) bool {
	if _, err := auth.ValidateJWTFromRequest(r, a.JWTSecret); err != nil {
		if errors.Is(err, auth.ErrNoSecret) {
			WriteJSONError(w, http.StatusForbidden, "job submission is disabled")
			return false
		}
		log.Warnf("Rejected job request from %s: %v", r.RemoteAddr, err)
		WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	return true
}
