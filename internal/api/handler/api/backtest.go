package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/crossbt/internal/api/job"
	"github.com/newthinker/crossbt/internal/api/response"
	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/core"
)

const (
	jobType = "backtest"

	defaultTimeout    = 5 * time.Minute
	defaultMaxSymbols = 50
)

// Runner runs a multi-symbol backtest.
type Runner interface {
	RunMany(ctx context.Context, symbols []string, params backtest.Params) (*backtest.Batch, error)
}

// JobTracker observes job lifecycle, e.g. for metrics.
type JobTracker interface {
	JobStarted(jobType string)
	JobFinished(jobType string)
}

// BacktestRequest is the request body for starting a backtest. Params
// fields left out keep the server defaults.
type BacktestRequest struct {
	Symbols []string        `json:"symbols"`
	Params  backtest.Params `json:"params"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore   *job.Store
	runner     Runner
	defaults   backtest.Params
	tracker    JobTracker
	logger     *zap.Logger
	timeout    time.Duration
	maxSymbols int
}

// Option configures a BacktestHandler.
type Option func(*BacktestHandler)

// WithTracker reports job starts and finishes.
func WithTracker(t JobTracker) Option {
	return func(h *BacktestHandler) { h.tracker = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *BacktestHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTimeout bounds each job's run time.
func WithTimeout(d time.Duration) Option {
	return func(h *BacktestHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithMaxSymbols caps how many symbols one request may carry.
func WithMaxSymbols(n int) Option {
	return func(h *BacktestHandler) {
		if n > 0 {
			h.maxSymbols = n
		}
	}
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(jobStore *job.Store, runner Runner, defaults backtest.Params, opts ...Option) *BacktestHandler {
	h := &BacktestHandler{
		jobStore:   jobStore,
		runner:     runner,
		defaults:   defaults,
		logger:     zap.NewNop(),
		timeout:    defaultTimeout,
		maxSymbols: defaultMaxSymbols,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create starts a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := BacktestRequest{Params: h.defaults}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	symbols := normalizeSymbols(req.Symbols)
	if len(symbols) == 0 {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigMissing, errors.New("symbols is required")))
		return
	}
	if len(symbols) > h.maxSymbols {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, fmt.Errorf("at most %d symbols per request, got %d", h.maxSymbols, len(symbols))))
		return
	}
	if err := req.Params.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	j := h.jobStore.Create(jobType)

	// Run backtest in background
	go h.runBacktest(j.ID, symbols, req.Params)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, symbols []string, params backtest.Params) {
	if h.tracker != nil {
		h.tracker.JobStarted(jobType)
		defer h.tracker.JobFinished(jobType)
	}

	h.update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	batch, err := h.runner.RunMany(ctx, symbols, params)

	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
		if !errors.As(err, new(*core.Error)) {
			err = core.WrapError(core.ErrBacktestFailed, err)
		}
		detail := response.Detail(err)
		h.update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = &job.Error{Code: detail.Code, Message: detail.Message, Cause: detail.Cause}
		})
		return
	}

	h.logger.Info("backtest job complete",
		zap.String("job_id", jobID),
		zap.Int("symbols", len(symbols)),
		zap.Int("failures", len(batch.Failures)),
	)
	h.update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = batch
	})
}

// update applies fn to a job. The job may have been evicted from a full
// store while running; its outcome is then lost and only logged.
func (h *BacktestHandler) update(jobID string, fn func(*job.Job)) {
	if err := h.jobStore.Update(jobID, fn); err != nil {
		h.logger.Warn("dropping backtest job update",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

// GetStatus returns the status of a backtest job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobStore.Get(r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"status":   j.Status,
		"progress": j.Progress,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = j.Error
	}

	response.JSON(w, http.StatusOK, resp)
}

// List returns a summary of live backtest jobs, newest first.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobStore.List()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		if j.Type != jobType {
			continue
		}
		out = append(out, map[string]any{
			"job_id":     j.ID,
			"status":     j.Status,
			"created_at": j.CreatedAt,
		})
	}
	response.JSON(w, http.StatusOK, out)
}

// normalizeSymbols trims, upper-cases and de-duplicates, keeping order.
func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
