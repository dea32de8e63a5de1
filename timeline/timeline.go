package timeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/loop"
)

// Timeline errors.
var (
	// ErrNotInitialized is returned when Play or a skip is called
	// before Initialize succeeded.
	ErrNotInitialized = errors.New("timeline: not initialized")
)

// State identifies the lifecycle state of a Timeline.
type State uint8

const (
	// StateUninitialized is the state before Initialize succeeds.
	StateUninitialized State = iota

	// StateInitialized means the config is validated and Play may run.
	StateInitialized

	// StatePlaying means the play head is advancing.
	StatePlaying

	// StatePaused means the play head is suspended with elapsed time
	// preserved.
	StatePaused

	// StateCompleted means progress reached 1.0 and completion fired.
	StateCompleted

	// StateDisposed is terminal.
	StateDisposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// PhaseChangeFunc observes a phase starting, with the timeline progress
// at that moment.
type PhaseChangeFunc func(phase galaxy.Phase, progress float64)

// Option configures a Timeline.
type Option func(*Timeline)

// WithPhaseChange sets the phase-change callback.
func WithPhaseChange(fn PhaseChangeFunc) Option {
	return func(t *Timeline) { t.onPhaseChange = fn }
}

// WithComplete sets the completion callback. It fires at most once per
// play cycle, before the Play channel closes.
func WithComplete(fn func()) Option {
	return func(t *Timeline) { t.onComplete = fn }
}

// WithErrorSink sets the sink that receives configuration errors in
// addition to the synchronous return.
func WithErrorSink(sink galaxy.ErrorSink) Option {
	return func(t *Timeline) { t.sink = sink }
}

// Timeline drives an ordered sequence of named phases on the render
// loop. Construct with New, configure with Initialize, then Play.
//
// All methods are safe for use from inside the timeline's own callbacks.
type Timeline struct {
	lp *loop.Loop

	onPhaseChange PhaseChangeFunc
	onComplete    func()
	sink          galaxy.ErrorSink

	mu      sync.Mutex
	state   State
	cfg     Config
	offs    []time.Duration
	elapsed time.Duration
	next    int // index of the next step to announce
	done    chan struct{}

	// gen invalidates scheduled frame callbacks. Every callback
	// snapshots it at scheduling time and goes inert once it moves.
	gen         uint64
	cancelFrame func()
}

// New creates a timeline scheduled on lp.
func New(lp *loop.Loop, opts ...Option) *Timeline {
	t := &Timeline{lp: lp}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize validates cfg and arms the timeline. A configuration error
// is returned synchronously and also forwarded to the error sink.
// Initialize may be called again before Play to reconfigure.
func (t *Timeline) Initialize(cfg Config) error {
	t.mu.Lock()
	switch t.state {
	case StateDisposed:
		t.mu.Unlock()
		return galaxy.ErrDisposed
	case StatePlaying, StatePaused:
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("timeline: cannot initialize while %s", state)
	}

	if err := cfg.validate(); err != nil {
		t.mu.Unlock()
		t.sink.Report(err)
		return err
	}

	t.cfg = cfg
	t.offs = cfg.offsets()
	t.state = StateInitialized
	t.elapsed = 0
	t.next = 0
	t.mu.Unlock()
	return nil
}

// Play starts (or continues observing) the play cycle. The returned
// channel closes when progress reaches 1.0, after the completion
// callback ran. Calling Play while already playing returns the same
// channel.
func (t *Timeline) Play() (<-chan struct{}, error) {
	t.mu.Lock()
	switch t.state {
	case StateDisposed:
		t.mu.Unlock()
		return nil, galaxy.ErrDisposed
	case StateUninitialized:
		t.mu.Unlock()
		return nil, ErrNotInitialized
	case StatePlaying, StatePaused, StateCompleted:
		done := t.done
		t.mu.Unlock()
		return done, nil
	}

	t.state = StatePlaying
	t.elapsed = 0
	t.next = 0
	t.done = make(chan struct{})
	done := t.done
	gen := t.gen
	t.cancelFrame = t.lp.OnFrame(func(f loop.Frame) {
		t.advance(gen, f.Delta)
	})
	t.mu.Unlock()
	return done, nil
}

// advance moves the play head by delta and emits any due callbacks.
// Inert when gen is stale or the timeline is not playing.
func (t *Timeline) advance(gen uint64, delta time.Duration) {
	t.mu.Lock()
	if t.gen != gen || t.state != StatePlaying {
		t.mu.Unlock()
		return
	}

	t.elapsed += delta
	events, completed := t.collectDueLocked()
	t.mu.Unlock()

	t.emit(gen, events)
	if completed {
		t.finish(gen)
	}
}

// collectDueLocked gathers the phase announcements due at the current
// elapsed time, in configured order. Reports whether the timeline just
// reached its end. Callers hold t.mu.
func (t *Timeline) collectDueLocked() (events []func(), completed bool) {
	for t.next < len(t.offs) && t.elapsed >= t.offs[t.next] {
		step := t.cfg.Steps[t.next]
		progress := t.progressLocked()
		t.next++
		if t.onPhaseChange != nil {
			fn, p := t.onPhaseChange, progress
			events = append(events, func() { fn(step.Phase, p) })
		}
	}
	return events, t.elapsed >= t.cfg.Total
}

// emit runs queued callbacks outside the lock, rechecking the generation
// before each one so a Stop or Dispose from inside a callback suppresses
// the rest of the batch.
func (t *Timeline) emit(gen uint64, events []func()) {
	for _, ev := range events {
		t.mu.Lock()
		stale := t.gen != gen
		t.mu.Unlock()
		if stale {
			return
		}
		ev()
	}
}

// finish completes the play cycle: marks Completed, fires the completion
// callback, and closes the Play channel.
func (t *Timeline) finish(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state == StateCompleted || t.state == StateDisposed {
		t.mu.Unlock()
		return
	}
	t.state = StateCompleted
	t.elapsed = t.cfg.Total
	done := t.done
	cancel := t.cancelFrame
	t.cancelFrame = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t.onComplete != nil {
		t.onComplete()
	}
	close(done)
}

// Pause suspends the play head without resetting elapsed time. No-op
// unless playing.
func (t *Timeline) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateDisposed {
		return galaxy.ErrDisposed
	}
	if t.state == StatePlaying {
		t.state = StatePaused
	}
	return nil
}

// Resume continues a paused timeline. No-op unless paused.
func (t *Timeline) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateDisposed {
		return galaxy.ErrDisposed
	}
	if t.state == StatePaused {
		t.state = StatePlaying
	}
	return nil
}

// Stop resets the play head to the start and cancels all pending phase
// callbacks. The completion callback does not fire and the channel from
// the abandoned Play never closes. The timeline returns to Initialized
// and may be played again.
func (t *Timeline) Stop() error {
	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return galaxy.ErrDisposed
	}
	if t.state == StateUninitialized {
		t.mu.Unlock()
		return nil
	}
	t.gen++
	t.state = StateInitialized
	t.elapsed = 0
	t.next = 0
	t.done = nil
	cancel := t.cancelFrame
	t.cancelFrame = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// SkipToPhase jumps the play head to the start offset of phase and
// announces it immediately, without waiting for natural scheduling.
func (t *Timeline) SkipToPhase(phase galaxy.Phase) error {
	t.mu.Lock()
	switch t.state {
	case StateDisposed:
		t.mu.Unlock()
		return galaxy.ErrDisposed
	case StateUninitialized:
		t.mu.Unlock()
		return ErrNotInitialized
	case StateCompleted:
		t.mu.Unlock()
		return fmt.Errorf("timeline: cannot skip after completion")
	}

	idx := -1
	for i, s := range t.cfg.Steps {
		if s.Phase == phase {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return fmt.Errorf("timeline: phase %s is not configured", phase)
	}

	t.elapsed = t.offs[idx]
	t.next = idx + 1
	progress := t.progressLocked()
	fn := t.onPhaseChange
	t.mu.Unlock()

	if fn != nil {
		fn(phase, progress)
	}
	return nil
}

// SkipToEnd sets progress to 1.0 and completes immediately, bypassing
// any remaining scheduled time. Phase callbacks not yet fired are
// skipped.
func (t *Timeline) SkipToEnd() error {
	t.mu.Lock()
	switch t.state {
	case StateDisposed:
		t.mu.Unlock()
		return galaxy.ErrDisposed
	case StateUninitialized:
		t.mu.Unlock()
		return ErrNotInitialized
	case StateCompleted:
		t.mu.Unlock()
		return nil
	case StateInitialized:
		// Completing without a play cycle still needs a channel for
		// observers that call Play afterwards.
		t.done = make(chan struct{})
	}
	t.elapsed = t.cfg.Total
	t.next = len(t.cfg.Steps)
	gen := t.gen
	t.mu.Unlock()

	t.finish(gen)
	return nil
}

// Progress returns the normalized play-head position in [0, 1]. It is
// non-decreasing while playing.
func (t *Timeline) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressLocked()
}

func (t *Timeline) progressLocked() float64 {
	if t.cfg.Total <= 0 {
		return 0
	}
	p := float64(t.elapsed) / float64(t.cfg.Total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// CurrentPhase returns the most recently announced phase. Before any
// announcement it returns the first configured phase.
func (t *Timeline) CurrentPhase() galaxy.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.cfg.Steps) == 0 {
		return galaxy.PhaseInitializing
	}
	if t.next == 0 {
		return t.cfg.Steps[0].Phase
	}
	return t.cfg.Steps[t.next-1].Phase
}

// State returns the current lifecycle state.
func (t *Timeline) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Dispose tears the timeline down. It is idempotent and terminal: every
// other method fails with galaxy.ErrDisposed afterwards, and no
// scheduled callback fires again.
func (t *Timeline) Dispose() {
	t.mu.Lock()
	if t.state == StateDisposed {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.state = StateDisposed
	cancel := t.cancelFrame
	t.cancelFrame = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
