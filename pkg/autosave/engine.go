package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay is the quiet period after the last edit before a draft is
// saved automatically.
const DefaultDelay = 2 * time.Second

// ErrClosed is returned by ForceSave on a closed engine, and to any caller
// still waiting on a save that was dropped by Close.
var ErrClosed = errors.New("autosave: engine closed")

// ErrReset is returned to a ForceSave caller whose draft was dropped by
// ResetBaseline before it could be saved.
var ErrReset = errors.New("autosave: draft replaced by a new baseline")

// Status is the observable save state of a draft.
type Status int

const (
	StatusSaved Status = iota
	StatusUnsaved
	StatusSaving
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSaved:
		return "Saved"
	case StatusUnsaved:
		return "Unsaved changes"
	case StatusSaving:
		return "Saving…"
	case StatusError:
		return "Save failed"
	}
	return "Unknown"
}

// A SaveFunc persists a draft.  It is never called concurrently with itself
// by the same Engine.
type SaveFunc[T any] func(ctx context.Context, value T) error

// A Stopper is a pending timer.  *time.Timer is a Stopper.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Stopper

func timeAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

type options struct {
	delay     time.Duration
	enabled   bool
	onStatus  func(Status)
	logger    *slog.Logger
	afterFunc AfterFunc
}

// An Option configures an Engine.
type Option func(*options)

// WithDelay sets the debounce quiet period.  Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithEnabled turns automatic saving on or off.  A disabled engine only
// tracks the latest draft; ForceSave still persists.
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// WithStatusFunc registers fn to be called with every status transition, in
// order.  fn runs without the engine lock held and may call back into it.
func WithStatusFunc(fn func(Status)) Option {
	return func(o *options) { o.onStatus = fn }
}

// WithLogger sets the logger used to report failed saves.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAfterFunc replaces the timer implementation.
func WithAfterFunc(fn AfterFunc) Option {
	return func(o *options) { o.afterFunc = fn }
}

// an attempt is a value waiting to be saved and the ForceSave callers that
// want to hear how it went.
type attempt[T any] struct {
	value   T
	epoch   uint64
	waiters []chan error
}

func (a *attempt[T]) resolve(err error) {
	for _, w := range a.waiters {
		w <- err
	}
	a.waiters = nil
}

// An Engine tracks a draft against the last saved baseline and persists it
// after a quiet period.  At most one save is in flight at a time; drafts that
// arrive meanwhile collapse into a single pending save which runs as soon as
// the in-flight one settles.
type Engine[T any] struct {
	opts options
	save SaveFunc[T]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	baseline T
	latest   T
	status   Status
	timer    Stopper
	timerGen uint64
	// epoch changes on ResetBaseline; saves started before a reset do not
	// move the new baseline.
	epoch   uint64
	saving  bool
	pending *attempt[T]
	closed  bool

	// status transitions waiting to be delivered
	outbox  []Status
	flushMu sync.Mutex
}

// NewEngine returns an engine whose baseline is initial.
func NewEngine[T any](initial T, save SaveFunc[T], opts ...Option) *Engine[T] {
	o := options{
		delay:     DefaultDelay,
		enabled:   true,
		logger:    slog.Default(),
		afterFunc: timeAfterFunc,
	}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine[T]{
		opts:     o,
		save:     save,
		ctx:      ctx,
		cancel:   cancel,
		baseline: initial,
		latest:   initial,
		status:   StatusSaved,
	}
}

// NotifyChanged records v as the current draft.  If it differs from the
// baseline, the debounce timer is restarted; if it matches, any pending
// timer is cancelled and the status returns to saved.
func (e *Engine[T]) NotifyChanged(v T) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.latest = v
	if !e.opts.enabled {
		return
	}

	if e.saving {
		e.queue(v, nil)
		if e.status != StatusSaving {
			e.setStatus(StatusUnsaved)
		}
		return
	}

	if Equal(v, e.baseline) {
		e.stopTimer()
		e.setStatus(StatusSaved)
		return
	}

	e.setStatus(StatusUnsaved)
	e.startTimer()
}

// ForceSave persists v now, skipping the debounce.  If a save is already in
// flight, v replaces any pending draft and ForceSave waits for it to be
// saved.  A draft equal to the baseline is not written unless the last save
// failed.  If ctx is done before the save settles, ctx.Err() is returned; the
// save itself carries on.
func (e *Engine[T]) ForceSave(ctx context.Context, v T) error {
	ch := make(chan error, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.latest = v
	e.stopTimer()

	switch {
	case e.saving:
		e.queue(v, ch)
	case Equal(v, e.baseline) && e.status != StatusError:
		e.setStatus(StatusSaved)
		e.mu.Unlock()
		e.flush()
		return nil
	default:
		e.start(&attempt[T]{value: v, epoch: e.epoch, waiters: []chan error{ch}})
	}
	e.mu.Unlock()
	e.flush()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetBaseline makes v the saved state without calling the save function,
// eg. after loading a document from the server.  A ForceSave still waiting
// on a dropped draft gets ErrReset.
func (e *Engine[T]) ResetBaseline(v T) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.epoch++
	e.baseline = v
	e.latest = v
	e.stopTimer()
	if e.pending != nil {
		// the pending draft was an edit of the old baseline
		e.pending.resolve(ErrReset)
		e.pending = nil
	}
	e.setStatus(StatusSaved)
}

// Status returns the current save status.
func (e *Engine[T]) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// HasChanges reports whether the latest draft differs from the baseline.
func (e *Engine[T]) HasChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !Equal(e.latest, e.baseline)
}

// Baseline returns the last saved value.
func (e *Engine[T]) Baseline() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline
}

// Close stops the timer, drops any pending draft and cancels the context
// passed to the save function.  Calls after Close are ignored, save for
// ForceSave which returns ErrClosed.
func (e *Engine[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.stopTimer()
	if e.pending != nil {
		e.pending.resolve(ErrClosed)
		e.pending = nil
	}
	e.cancel()
}

// queue sets the single pending draft.  Called with mu held.
func (e *Engine[T]) queue(v T, waiter chan error) {
	e.stopTimer()
	if e.pending == nil {
		e.pending = &attempt[T]{epoch: e.epoch}
	}
	e.pending.value = v
	if waiter != nil {
		e.pending.waiters = append(e.pending.waiters, waiter)
	}
}

// start begins saving a. Called with mu held and no save in flight.
func (e *Engine[T]) start(a *attempt[T]) {
	e.saving = true
	e.setStatus(StatusSaving)
	go e.run(a)
}

func (e *Engine[T]) run(a *attempt[T]) {
	err := e.save(e.ctx, a.value)

	e.mu.Lock()
	e.saving = false
	if err == nil && a.epoch == e.epoch {
		e.baseline = a.value
	}
	if err != nil {
		e.opts.logger.Warn("autosave failed", "err", err)
	}
	a.resolve(err)

	failed := err != nil && a.epoch == e.epoch
	next := e.pending
	e.pending = nil
	switch {
	case e.closed:
		if next != nil {
			next.resolve(ErrClosed)
		}
	case next != nil && !Equal(next.value, e.baseline):
		e.start(next)
	case next != nil && failed && len(next.waiters) > 0:
		// an explicit save of the baseline after a failure is written
		e.start(next)
	default:
		if next != nil {
			next.resolve(nil)
		}
		e.settle(failed)
	}
	e.mu.Unlock()
	e.flush()
}

// settle picks the resting status once nothing is in flight.  Called with
// mu held.
func (e *Engine[T]) settle(failed bool) {
	switch {
	case failed:
		e.setStatus(StatusError)
	case Equal(e.latest, e.baseline):
		e.setStatus(StatusSaved)
	default:
		e.setStatus(StatusUnsaved)
		if e.opts.enabled {
			e.startTimer()
		}
	}
}

func (e *Engine[T]) startTimer() {
	e.stopTimer()
	e.timerGen++
	gen := e.timerGen
	e.timer = e.opts.afterFunc(e.opts.delay, func() { e.fire(gen) })
}

func (e *Engine[T]) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// invalidate any callback that already started running
	e.timerGen++
}

func (e *Engine[T]) fire(gen uint64) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.timerGen || e.closed {
		return
	}
	e.timer = nil

	switch {
	case e.saving:
		e.queue(e.latest, nil)
	case Equal(e.latest, e.baseline):
		e.setStatus(StatusSaved)
	default:
		e.start(&attempt[T]{value: e.latest, epoch: e.epoch})
	}
}

// setStatus records a transition for delivery.  Called with mu held.
func (e *Engine[T]) setStatus(s Status) {
	if e.status == s {
		return
	}
	e.status = s
	if e.opts.onStatus != nil {
		e.outbox = append(e.outbox, s)
	}
}

// flush delivers queued status transitions in order.  Only one goroutine
// delivers at a time; a transition queued by a callback is picked up by the
// loop already delivering.
func (e *Engine[T]) flush() {
	for {
		if !e.flushMu.TryLock() {
			return
		}
		e.mu.Lock()
		batch := e.outbox
		e.outbox = nil
		e.mu.Unlock()

		for _, s := range batch {
			e.opts.onStatus(s)
		}
		e.flushMu.Unlock()

		e.mu.Lock()
		more := len(e.outbox) > 0
		e.mu.Unlock()
		if !more {
			return
		}
	}
}
