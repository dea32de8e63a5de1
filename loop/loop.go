package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTargetFPS is the frame rate Run steps at unless configured
// otherwise. It matches the display refresh rate the visualization
// budgets for.
const DefaultTargetFPS = 60

// Frame carries the timing of one render-loop step.
type Frame struct {
	// Now is the timestamp the frame was stepped with.
	Now time.Time

	// Delta is the time since the previous frame. Zero on the first
	// frame.
	Delta time.Duration

	// Index is the 1-based frame counter. The counter only moves
	// forward; it never resets for the lifetime of the loop.
	Index uint64
}

// Func is a per-frame callback.
type Func func(Frame)

// Option configures a Loop.
type Option func(*Loop)

// WithTargetFPS sets the frame rate Run steps at. Values below 1 are
// ignored.
func WithTargetFPS(fps int) Option {
	return func(l *Loop) {
		if fps >= 1 {
			l.targetFPS = fps
		}
	}
}

// subscriber pairs a callback with its liveness flag. The flag is checked
// immediately before each invocation so a cancel that lands mid-frame
// still suppresses the call.
type subscriber struct {
	fn        Func
	cancelled atomic.Bool
}

// Loop is the render loop. The zero value is not usable; construct with
// New.
//
// Step must be called from a single goroutine at a time. Run owns
// stepping while it is active; hosts that drive frames themselves must
// not call Step concurrently with Run.
type Loop struct {
	mu   sync.Mutex
	subs []*subscriber

	frameIndex uint64
	lastNow    time.Time

	targetFPS int
	running   atomic.Bool
}

// New creates a render loop.
func New(opts ...Option) *Loop {
	l := &Loop{targetFPS: DefaultTargetFPS}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TargetFPS returns the configured frame rate.
func (l *Loop) TargetFPS() int { return l.targetFPS }

// FrameInterval returns the frame budget implied by the target FPS.
func (l *Loop) FrameInterval() time.Duration {
	return time.Second / time.Duration(l.targetFPS)
}

// FrameIndex returns the index of the most recently stepped frame, or 0
// if no frame has run yet.
func (l *Loop) FrameIndex() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameIndex
}

// Now returns the timestamp of the most recently stepped frame. The zero
// time means no frame has run yet.
func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastNow
}

// OnFrame registers fn to run on every subsequent frame and returns a
// cancel function. Cancel is idempotent and safe to call from inside any
// frame callback; once it returns, fn will not run again.
//
// A callback registered during a frame first runs on the next frame.
func (l *Loop) OnFrame(fn Func) (cancel func()) {
	sub := &subscriber{fn: fn}

	l.mu.Lock()
	l.subs = append(l.subs, sub)
	l.mu.Unlock()

	return func() { sub.cancelled.Store(true) }
}

// Step advances the loop by one frame, invoking live callbacks in
// registration order with the frame's timing.
func (l *Loop) Step(now time.Time) {
	l.mu.Lock()
	var delta time.Duration
	if !l.lastNow.IsZero() && now.After(l.lastNow) {
		delta = now.Sub(l.lastNow)
	}
	l.frameIndex++
	l.lastNow = now
	frame := Frame{Now: now, Delta: delta, Index: l.frameIndex}

	// Snapshot and prune in one pass. The snapshot fixes the callback
	// set for this frame; late registrations wait for the next one.
	live := l.subs[:0]
	snapshot := make([]*subscriber, 0, len(l.subs))
	for _, sub := range l.subs {
		if sub.cancelled.Load() {
			continue
		}
		live = append(live, sub)
		snapshot = append(snapshot, sub)
	}
	l.subs = live
	l.mu.Unlock()

	for _, sub := range snapshot {
		if sub.cancelled.Load() {
			continue
		}
		sub.fn(frame)
	}
}

// Run steps the loop at the target frame rate until ctx is cancelled.
// Only one Run may be active per loop; additional calls return
// immediately.
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	defer l.running.Store(false)

	ticker := time.NewTicker(l.FrameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Step(now)
		}
	}
}
