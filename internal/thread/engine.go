// ABOUTME: Run lifecycle engine: start, poll, dispatch tool calls, settle
// ABOUTME: Restarts remotely cancelled runs up to a ceiling and hands off delegations

package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/remote"
	"github.com/2389/parley/internal/tools"
)

// Engine errors.
var (
	ErrRunFailed     = errors.New("run failed")
	ErrRetryExceeded = errors.New("retry count exceeded")
	ErrDelegation    = errors.New("delegation failed")
	ErrNoReply       = errors.New("run completed without a reply")
)

// Defaults applied when EngineConfig leaves a field zero.
const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 10
	handledTTL          = 30 * time.Minute
	handledSize         = 10_000
)

// Result is the outcome of one turn.
type Result struct {
	ThreadID    string
	RunID       string
	State       remote.RunStatus
	ResponderID string // assistant that produced Text
	Text        string
	Delegated   bool
}

// Delegator runs a contentless turn for another assistant on an existing thread.
type Delegator interface {
	Delegate(ctx context.Context, targetID, threadID string) (Result, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	Tools        *tools.Registry
	Overlay      tools.Overlay
	Delegator    Delegator
	PollInterval time.Duration
	// MaxAttempts caps how many runs one turn may start when runs keep
	// getting cancelled remotely.
	MaxAttempts int
	Sleeper     Sleeper
	Handled     *dedupe.Cache
}

// Engine drives runs for a single assistant's turns.
type Engine struct {
	threads      remote.Threads
	tools        *tools.Registry
	overlay      tools.Overlay
	delegator    Delegator
	pollInterval time.Duration
	maxAttempts  int
	sleeper      Sleeper
	handled      *dedupe.Cache
	logger       *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(threads remote.Threads, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		threads:      threads,
		tools:        cfg.Tools,
		overlay:      cfg.Overlay,
		delegator:    cfg.Delegator,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		sleeper:      cfg.Sleeper,
		handled:      cfg.Handled,
		logger:       logger.With("component", "engine"),
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = DefaultMaxAttempts
	}
	if e.sleeper == nil {
		e.sleeper = ContextSleeper{}
	}
	if e.handled == nil {
		e.handled = dedupe.New(handledTTL, handledSize)
	}
	return e
}

// Run executes one turn of assistantID on threadID. Any user message must
// already be posted.
func (e *Engine) Run(ctx context.Context, threadID, assistantID string) (Result, error) {
	logger := e.logger.With("thread_id", threadID, "agent_id", assistantID)

	for attempt := 1; ; attempt++ {
		if attempt > e.maxAttempts {
			return Result{ThreadID: threadID}, fmt.Errorf("%w: %d runs cancelled", ErrRetryExceeded, e.maxAttempts)
		}

		run, err := e.threads.StartRun(ctx, threadID, assistantID)
		if err != nil {
			return Result{ThreadID: threadID}, fmt.Errorf("starting run: %w", err)
		}
		logger.Debug("run started", "run_id", run.ID, "attempt", attempt)

		res, restart, err := e.drive(ctx, threadID, run, logger)
		if err != nil || !restart {
			return res, err
		}
		logger.Warn("run cancelled, restarting", "run_id", run.ID, "attempt", attempt)
	}
}

// drive polls one run to a settled state. restart is true when the run was
// cancelled and a fresh run should be started.
func (e *Engine) drive(ctx context.Context, threadID string, run *remote.Run, logger *slog.Logger) (res Result, restart bool, err error) {
	res = Result{ThreadID: threadID, RunID: run.ID, ResponderID: run.AssistantID}

	for {
		res.State = run.Status
		switch {
		case run.Status.Pending():
			if run, err = e.poll(ctx, threadID, run.ID); err != nil {
				return res, false, err
			}

		case run.Status == remote.RunRequiresAction:
			next, delegated, err := e.dispatch(ctx, threadID, run, logger)
			if err != nil {
				return res, false, err
			}
			if delegated != nil {
				return *delegated, false, nil
			}
			run = next

		case run.Status == remote.RunCompleted:
			msg, err := latestReply(ctx, e.threads, threadID, run.ID)
			if err != nil {
				return res, false, fmt.Errorf("run %s: %w", run.ID, err)
			}
			res.Text = msg.Text
			logger.Debug("run completed", "run_id", run.ID)
			return res, false, nil

		case run.Status == remote.RunCancelled:
			return res, true, nil

		case run.Status == remote.RunFailed:
			reason := run.LastError
			if reason == "" {
				reason = "no error message"
			}
			logger.Warn("run failed", "run_id", run.ID, "error", reason)
			return res, false, fmt.Errorf("%w: %s", ErrRunFailed, reason)

		case run.Status.Terminal():
			return res, false, fmt.Errorf("%w: run %s ended %s", ErrRunFailed, run.ID, run.Status)

		default:
			return res, false, fmt.Errorf("%w: run %s in unexpected status %q", ErrRunFailed, run.ID, run.Status)
		}
	}
}

func (e *Engine) poll(ctx context.Context, threadID, runID string) (*remote.Run, error) {
	if err := e.sleeper.Sleep(ctx, e.pollInterval); err != nil {
		return nil, err
	}
	run, err := e.threads.GetRun(ctx, threadID, runID)
	if err != nil {
		return nil, fmt.Errorf("polling run %s: %w", runID, err)
	}
	return run, nil
}

// dispatch answers a requires_action batch. It returns the run to keep
// polling, or a non-nil Result when the turn was delegated.
func (e *Engine) dispatch(ctx context.Context, threadID string, run *remote.Run, logger *slog.Logger) (*remote.Run, *Result, error) {
	actions, err := Classify(run.ToolCalls)
	if err != nil {
		return nil, nil, err
	}

	outputs := make([]remote.ToolOutput, 0, len(actions))
	keys := make([]string, 0, len(actions))
	for _, action := range actions {
		switch a := action.(type) {
		case Delegation:
			res, err := e.delegate(ctx, threadID, run, a, logger)
			if err != nil {
				return nil, nil, err
			}
			return nil, &res, nil

		case ToolInvocation:
			key := run.ID + ":" + a.CallID
			if e.handled.Seen(key) {
				logger.Debug("tool call already answered", "run_id", run.ID, "call_id", a.CallID)
				continue
			}
			out, err := e.tools.Invoke(ctx, a.Name, a.Arguments, e.overlay)
			if err != nil {
				logger.Warn("tool call failed", "run_id", run.ID, "tool", a.Name, "error", err)
				return nil, nil, fmt.Errorf("run %s: %w", run.ID, err)
			}
			logger.Debug("tool call answered", "run_id", run.ID, "tool", a.Name)
			outputs = append(outputs, remote.ToolOutput{CallID: a.CallID, Output: out})
			keys = append(keys, key)
		}
	}

	if len(outputs) == 0 {
		next, err := e.poll(ctx, threadID, run.ID)
		return next, nil, err
	}

	next, err := e.threads.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
	if err != nil {
		return nil, nil, fmt.Errorf("submitting tool outputs: %w", err)
	}
	e.handled.Record(keys...)
	return next, nil, nil
}

func (e *Engine) delegate(ctx context.Context, threadID string, run *remote.Run, d Delegation, logger *slog.Logger) (Result, error) {
	if e.delegator == nil {
		return Result{}, fmt.Errorf("%w: no delegation target resolver", ErrDelegation)
	}
	logger.Info("delegating turn", "run_id", run.ID, "target", d.Target)

	if err := e.cancel(ctx, threadID, run.ID); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDelegation, err)
	}

	res, err := e.delegator.Delegate(ctx, d.Target, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrDelegation, d.Target, err)
	}
	if res.RunID == "" || res.State != remote.RunCompleted {
		return Result{}, fmt.Errorf("%w: %s did not complete a run", ErrDelegation, d.Target)
	}
	if res.ThreadID == "" {
		res.ThreadID = threadID
	}
	res.Delegated = true
	return res, nil
}

// cancel requests cancellation and waits until the run leaves the pending states.
func (e *Engine) cancel(ctx context.Context, threadID, runID string) error {
	run, err := e.threads.CancelRun(ctx, threadID, runID)
	if err != nil {
		return fmt.Errorf("cancelling run %s: %w", runID, err)
	}
	for run.Status.Pending() {
		if run, err = e.poll(ctx, threadID, runID); err != nil {
			return err
		}
	}
	return nil
}
