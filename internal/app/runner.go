// Package app runs the poll cycle: fetch, parse, detect change, classify,
// lay out, paint, commit.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"epdcard/internal/card"
	"epdcard/internal/document"
	appLog "epdcard/internal/log"
	"epdcard/internal/source"
)

// ContentSource returns the raw card document.
type ContentSource interface {
	Fetch(ctx context.Context) (source.Response, error)
}

// Renderer paints a plan; see display.Renderer.
type Renderer interface {
	Paint(ctx context.Context, plan card.RenderPlan) error
}

// Outcome is how a cycle ended.
type Outcome string

const (
	// OutcomeSkipped: transport, status or parse failure. Nothing changes.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeUnchanged: token already shown.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeRendered: painted, token committed, cursor advanced.
	OutcomeRendered Outcome = "rendered"
	// OutcomeUnrecognized: nothing painted, token committed.
	OutcomeUnrecognized Outcome = "unrecognized"
	// OutcomeNoContent: empty schedule, token committed, cursor kept.
	OutcomeNoContent Outcome = "no_content"
	// OutcomeFailed: paint failed, token not committed; retried next tick.
	OutcomeFailed Outcome = "failed"
)

// Result describes one finished cycle.
type Result struct {
	ID       string           `json:"id"`
	Outcome  Outcome          `json:"outcome"`
	Token    string           `json:"token,omitempty"`
	Format   string           `json:"format,omitempty"`
	Plan     *card.RenderPlan `json:"plan,omitempty"`
	Error    string           `json:"error,omitempty"`
	Started  time.Time        `json:"started"`
	Finished time.Time        `json:"finished"`
	err      error
}

// Err returns the error that ended the cycle, if any.
func (r Result) Err() error { return r.err }

// Snapshot is a consistent view of the runner for status reporting.
type Snapshot struct {
	LastToken   string           `json:"last_token"`
	CursorIndex int              `json:"cursor_index"`
	Cycles      int              `json:"cycles"`
	Last        *Result          `json:"last,omitempty"`
	LastPlan    *card.RenderPlan `json:"last_plan,omitempty"`
}

// Options wires a Runner.
type Options struct {
	Source   ContentSource
	Layout   *card.LayoutEngine
	Metrics  card.TextMetrics
	Renderer Renderer

	// PaintTimeout bounds a single paint. Zero means no limit.
	PaintTimeout time.Duration
}

// Runner owns the cross-cycle state and executes cycles one at a time.
type Runner struct {
	opts Options

	// cycleMu serializes cycles.
	cycleMu sync.Mutex

	mu       sync.RWMutex
	state    card.State
	cycles   int
	last     *Result
	lastPlan *card.RenderPlan
}

// NewRunner validates opts and returns a runner with fresh state.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("app: source is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("app: renderer is required")
	}
	if opts.Metrics == nil {
		return nil, errors.New("app: text metrics are required")
	}
	if opts.Layout == nil {
		opts.Layout = card.NewLayoutEngine("", "")
	}
	return &Runner{opts: opts}, nil
}

// Cycle runs one poll cycle to completion. Every failure is terminal for the
// cycle only and is reported in the Result.
func (r *Runner) Cycle(ctx context.Context) Result {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	res := Result{ID: uuid.NewString(), Started: time.Now()}
	r.run(ctx, &res)
	res.Finished = time.Now()
	if res.err != nil {
		res.Error = res.err.Error()
	}

	r.mu.Lock()
	r.cycles++
	r.last = &res
	if res.Outcome == OutcomeRendered {
		r.lastPlan = res.Plan
	}
	r.mu.Unlock()

	r.logResult(res)
	return res
}

func (r *Runner) run(ctx context.Context, res *Result) {
	resp, err := r.opts.Source.Fetch(ctx)
	if err != nil {
		res.Outcome, res.err = OutcomeSkipped, err
		return
	}
	if !resp.OK() {
		res.Outcome, res.err = OutcomeSkipped, resp.Err()
		return
	}

	doc, err := document.Parse(resp.Body)
	if err != nil {
		res.Outcome, res.err = OutcomeSkipped, err
		return
	}
	res.Token = doc.RefreshToken

	r.mu.RLock()
	changed := r.state.Detector.ShouldUpdate(doc)
	r.mu.RUnlock()
	if !changed {
		res.Outcome = OutcomeUnchanged
		return
	}

	ev := card.Classify(doc)
	res.Format = ev.Format().String()

	advance := -1
	switch v := ev.(type) {
	case card.ScheduleList:
		r.mu.RLock()
		entry, next, err := r.state.Cursor.Select(v.Entries)
		r.mu.RUnlock()
		if err != nil {
			r.commit(doc.RefreshToken, -1)
			res.Outcome, res.err = OutcomeNoContent, err
			return
		}
		ev, advance = card.Schedule{Entry: entry}, next
	case card.Unrecognized:
		r.commit(doc.RefreshToken, -1)
		res.Outcome, res.err = OutcomeUnrecognized, fmt.Errorf("app: %s", v.Reason)
		return
	}

	plan := r.opts.Layout.Layout(ev, r.opts.Metrics)
	res.Plan = &plan

	paintCtx := ctx
	if r.opts.PaintTimeout > 0 {
		var cancel context.CancelFunc
		paintCtx, cancel = context.WithTimeout(ctx, r.opts.PaintTimeout)
		defer cancel()
	}
	if err := r.opts.Renderer.Paint(paintCtx, plan); err != nil {
		res.Outcome, res.err = OutcomeFailed, err
		return
	}

	r.commit(doc.RefreshToken, advance)
	res.Outcome = OutcomeRendered
}

// commit records token as shown and, when next >= 0, moves the cursor.
func (r *Runner) commit(token string, next int) {
	r.mu.Lock()
	r.state.Detector.Commit(token)
	if next >= 0 {
		r.state.Cursor.Advance(next)
	}
	r.mu.Unlock()
}

func (r *Runner) logResult(res Result) {
	kv := []any{
		"cycle", res.ID,
		"outcome", res.Outcome,
		"elapsed", res.Finished.Sub(res.Started).Round(time.Millisecond),
	}
	if res.Token != "" {
		kv = append(kv, "token", res.Token)
	}
	if res.Format != "" {
		kv = append(kv, "format", res.Format)
	}

	switch res.Outcome {
	case OutcomeUnchanged:
		appLog.Debug("no refresh needed", kv...)
	case OutcomeRendered:
		appLog.Info("card rendered", kv...)
	case OutcomeNoContent, OutcomeUnrecognized:
		appLog.Warn("card not drawn", append(kv, "reason", res.Error)...)
	default:
		appLog.Error("cycle failed", res.err, kv...)
	}
}

// Snapshot returns the current state for status reporting.
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		LastToken:   r.state.Detector.LastToken(),
		CursorIndex: r.state.Cursor.Index(),
		Cycles:      r.cycles,
		LastPlan:    r.lastPlan,
	}
	if r.last != nil {
		last := *r.last
		s.Last = &last
	}
	return s
}

// Run executes one cycle immediately and then one per tick of schedule (a
// cron spec such as "@every 10s") until ctx is canceled. Ticks that fire
// while a cycle is still running are skipped.
func (r *Runner) Run(ctx context.Context, schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("app: invalid poll schedule %q: %w", schedule, err)
	}

	logger := appLog.CronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, func() { r.Cycle(ctx) }); err != nil {
		return fmt.Errorf("app: schedule poll: %w", err)
	}

	r.Cycle(ctx)

	c.Start()
	appLog.Info("poll loop started", "schedule", schedule)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("poll loop stopped")
	return nil
}
