// Package loopctl implements the Loop Controller: step/wall-time
// budgets, cancellation, and the monotonic turn_id/step_id counters. One
// small struct using atomic counters, safe to read concurrently from the
// loop goroutine and a metrics-polling goroutine.
package loopctl

import (
	"sync/atomic"
	"time"
)

// CancelChecker reports whether the run has been asked to cancel. A
// checker that panics is treated as fail-open (not cancelled).
type CancelChecker func() bool

// Config is the static budget configuration for one run.
type Config struct {
	MaxSteps       int
	MaxWallTimeSec int // 0 means unbounded
	CancelChecker  CancelChecker
}

// Sanitize fills in safe defaults. A non-positive MaxSteps is treated as
// "no steps allowed" (max_steps=0 rejects the first tool step), not
// "unbounded".
func (c Config) Sanitize() Config {
	if c.CancelChecker == nil {
		c.CancelChecker = func() bool { return false }
	}
	return c
}

// Controller tracks the live budget state for one run. All operations are
// pure on this struct's state; it performs no I/O of its own.
type Controller struct {
	cfg       Config
	startedAt time.Time

	stepsConsumed atomic.Int64
	turnCounter   atomic.Int64
	denialsByKey  atomic.Int64 // reserved for future cross-package use
}

// NewController builds a Controller with the sanitized config, starting
// its wall-time clock now.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg.Sanitize(), startedAt: time.Now()}
}

// BudgetViolation names which budget a check tripped, if any.
type BudgetViolation string

const (
	ViolationNone      BudgetViolation = ""
	ViolationSteps     BudgetViolation = "max_steps"
	ViolationWallTime  BudgetViolation = "max_wall_time_sec"
	ViolationCancelled BudgetViolation = "cancelled"
)

// CheckBudget reports the first violated budget, if any, without mutating
// state — the loop calls this at the top of every turn.
func (c *Controller) CheckBudget() BudgetViolation {
	if c.isCancelled() {
		return ViolationCancelled
	}
	if c.cfg.MaxWallTimeSec > 0 && time.Since(c.startedAt) > time.Duration(c.cfg.MaxWallTimeSec)*time.Second {
		return ViolationWallTime
	}
	if int(c.stepsConsumed.Load()) >= c.cfg.MaxSteps {
		return ViolationSteps
	}
	return ViolationNone
}

func (c *Controller) isCancelled() (cancelled bool) {
	defer func() {
		if r := recover(); r != nil {
			cancelled = false // fail-open: a panicking checker never cancels the run
		}
	}()
	return c.cfg.CancelChecker()
}

// TryConsumeToolStep is the single seam for enforcing the step budget: it
// atomically checks-and-increments so a rejection never pushes the
// counter past the configured limit. Returns false when the
// budget is already exhausted.
func (c *Controller) TryConsumeToolStep() bool {
	for {
		cur := c.stepsConsumed.Load()
		if int(cur) >= c.cfg.MaxSteps {
			return false
		}
		if c.stepsConsumed.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// StepsConsumed reports the current step count, for metrics/tests.
func (c *Controller) StepsConsumed() int { return int(c.stepsConsumed.Load()) }

// NextTurn returns the next monotonic turn number, starting at 1.
func (c *Controller) NextTurn() int { return int(c.turnCounter.Add(1)) }

// IncreaseStepBudget raises max_steps by extra (used by the
// increase_budget_continue context-recovery strategy). Not
// goroutine-safe against concurrent CheckBudget/TryConsumeToolStep calls
// from other goroutines; callers only do this from the single loop
// goroutine between turns.
func (c *Controller) IncreaseStepBudget(extra int) {
	c.cfg.MaxSteps += extra
}

// ExtendWallTime extends the wall-time budget by extraSec seconds.
func (c *Controller) ExtendWallTime(extraSec int) {
	c.cfg.MaxWallTimeSec += extraSec
}

// MaxSteps reports the current step budget (post any increases).
func (c *Controller) MaxSteps() int { return c.cfg.MaxSteps }

// Elapsed reports wall-clock time since the controller started.
func (c *Controller) Elapsed() time.Duration { return time.Since(c.startedAt) }
