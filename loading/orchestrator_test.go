package loading

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/loop"
	"github.com/Logrui/next-galaxy-sub000/particle"
	"github.com/Logrui/next-galaxy-sub000/perf"
	"github.com/Logrui/next-galaxy-sub000/timeline"
)

// stepFor advances the loop by d in 16ms frames.
func stepFor(lp *loop.Loop, d time.Duration) {
	const frame = 16 * time.Millisecond
	start := lp.Now()
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	for elapsed := frame; elapsed <= d; elapsed += frame {
		lp.Step(start.Add(elapsed))
	}
}

// shortConfig is the tightest valid timeline, so tests step less.
func shortConfig() timeline.Config {
	return timeline.Config{
		Steps: []timeline.Step{
			{Phase: galaxy.PhaseLoadingAssets, Duration: 800 * time.Millisecond},
			{Phase: galaxy.PhaseAnimating, Duration: 1600 * time.Millisecond},
			{Phase: galaxy.PhaseTransitioning, Duration: 600 * time.Millisecond},
		},
		Total: 3000 * time.Millisecond,
	}
}

type fakeLoader struct {
	essential chan error
	preload   chan error

	mu           sync.Mutex
	progressFns  []func(Progress)
	unsubscribed int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{essential: make(chan error, 1)}
}

func (l *fakeLoader) LoadEssential() <-chan error   { return l.essential }
func (l *fakeLoader) PreloadOptional() <-chan error { return l.preload }

func (l *fakeLoader) OnProgress(fn func(Progress)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progressFns = append(l.progressFns, fn)
	return func() {
		l.mu.Lock()
		l.unsubscribed++
		l.mu.Unlock()
	}
}

func (l *fakeLoader) emit(p Progress) {
	l.mu.Lock()
	fns := append([]func(Progress)(nil), l.progressFns...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

type fakeRenderer struct {
	mu        sync.Mutex
	fns       []func(particle.State)
	cancelled int
}

func (r *fakeRenderer) OnComplete(fn func(particle.State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns = append(r.fns, fn)
	return func() {
		r.mu.Lock()
		r.cancelled++
		r.mu.Unlock()
	}
}

func (r *fakeRenderer) complete(st particle.State) {
	r.mu.Lock()
	fns := append([]func(particle.State)(nil), r.fns...)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink")
		return nil
	}
}

func TestAssetFailureRollsBackAndAllowsRetry(t *testing.T) {
	lp := loop.New()
	loader := newFakeLoader()
	sunk := make(chan error, 8)
	o := New(lp,
		WithAssetLoader(loader),
		WithErrorSink(func(err error) { sunk <- err }),
		WithParticleCount(64),
	)
	defer o.Dispose()

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	if o.Begin() {
		t.Fatal("second Begin() = true while a sequence is in flight")
	}

	loader.essential <- errors.New("network down")

	err := waitErr(t, sunk)
	var loadErr *galaxy.AssetLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("sink received %v, want *galaxy.AssetLoadError", err)
	}
	if !galaxy.Recoverable(err) {
		t.Error("Recoverable(AssetLoadError) = false, want true")
	}

	loader.mu.Lock()
	unsub := loader.unsubscribed
	loader.mu.Unlock()
	if unsub == 0 {
		t.Error("progress subscription not cancelled after failure")
	}

	// The latch rolled back before the error surfaced, so a second
	// begin restarts the sequence from step one.
	if !o.Begin() {
		t.Error("Begin() after failure = false, want retry allowed")
	}
}

func TestNaturalCompletionHandsOffOnce(t *testing.T) {
	lp := loop.New()
	var phases []galaxy.Phase
	var handoffs []Handoff
	o := New(lp,
		WithTimelineConfig(shortConfig()),
		WithParticleCount(128),
		WithPhaseChange(func(p galaxy.Phase, _ float64) { phases = append(phases, p) }),
	)
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })
	defer o.Dispose()

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	stepFor(lp, 3500*time.Millisecond)

	wantPhases := []galaxy.Phase{
		galaxy.PhaseLoadingAssets,
		galaxy.PhaseAnimating,
		galaxy.PhaseTransitioning,
	}
	if len(phases) != len(wantPhases) {
		t.Fatalf("phase changes = %v, want %v", phases, wantPhases)
	}
	for i, p := range wantPhases {
		if phases[i] != p {
			t.Errorf("phase %d = %v, want %v", i, phases[i], p)
		}
	}

	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(handoffs))
	}
	h := handoffs[0]
	if !h.Stub {
		t.Error("Stub = false without a renderer result, want true")
	}
	if h.Session == uuid.Nil {
		t.Error("Session = uuid.Nil")
	}
	if h.State.Count != 128 {
		t.Errorf("State.Count = %d, want 128", h.State.Count)
	}
	if err := h.State.Validate(); err != nil {
		t.Errorf("stub handoff state invalid: %v", err)
	}
}

func TestConcurrentTriggersHandOffOnce(t *testing.T) {
	lp := loop.New()
	renderer := &fakeRenderer{}
	var handoffs []Handoff
	o := New(lp,
		WithTimelineConfig(shortConfig()),
		WithParticleCount(32),
		WithExplosionRenderer(renderer),
	)
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })
	defer o.Dispose()

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	stepFor(lp, time.Second)

	// Renderer completion, explicit skip, and natural timeline
	// completion all race; exactly one wins.
	renderer.complete(particle.NewStubState(32, galaxy.PhaseAnimating))
	o.Skip()
	stepFor(lp, 3*time.Second)

	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(handoffs))
	}
	if handoffs[0].Stub {
		t.Error("Stub = true, want false: the live result arrived first")
	}
}

func TestSkipHandsOffStub(t *testing.T) {
	lp := loop.New()
	var handoffs []Handoff
	o := New(lp, WithTimelineConfig(shortConfig()), WithParticleCount(16))
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })
	defer o.Dispose()

	// Skip before Begin is a no-op.
	o.Skip()
	if len(handoffs) != 0 {
		t.Fatal("Skip before Begin produced a handoff")
	}

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	stepFor(lp, 500*time.Millisecond)
	o.Skip()

	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(handoffs))
	}
	h := handoffs[0]
	if !h.Stub {
		t.Error("Stub = false, want true")
	}
	if err := h.State.Validate(); err != nil {
		t.Errorf("stub state invalid: %v", err)
	}
	if h.State.Count != 16 {
		t.Errorf("State.Count = %d, want 16", h.State.Count)
	}
}

func TestMalformedLiveResultDegradesToStub(t *testing.T) {
	lp := loop.New()
	renderer := &fakeRenderer{}
	var sunk []error
	var handoffs []Handoff
	o := New(lp,
		WithTimelineConfig(shortConfig()),
		WithParticleCount(16),
		WithExplosionRenderer(renderer),
		WithErrorSink(func(err error) { sunk = append(sunk, err) }),
	)
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })
	defer o.Dispose()

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	renderer.complete(particle.State{
		Count:     16,
		Positions: make([]float32, 5),
	})

	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(handoffs))
	}
	if !handoffs[0].Stub {
		t.Error("Stub = false for a malformed live result, want true")
	}
	if err := handoffs[0].State.Validate(); err != nil {
		t.Errorf("substituted state invalid: %v", err)
	}

	var animErr *galaxy.AnimationError
	found := false
	for _, err := range sunk {
		if errors.As(err, &animErr) {
			found = true
		}
	}
	if !found {
		t.Error("sink never received an *galaxy.AnimationError")
	}
}

func TestFailAnimationStillCompletes(t *testing.T) {
	lp := loop.New()
	var sunk []error
	var handoffs []Handoff
	o := New(lp,
		WithTimelineConfig(shortConfig()),
		WithParticleCount(16),
		WithErrorSink(func(err error) { sunk = append(sunk, err) }),
	)
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })
	defer o.Dispose()

	// No-op before Begin.
	o.FailAnimation("explosion", errors.New("shader blew up"))
	if len(handoffs) != 0 {
		t.Fatal("FailAnimation before Begin produced a handoff")
	}

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	o.FailAnimation("explosion", errors.New("shader blew up"))

	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(handoffs))
	}
	if !handoffs[0].Stub {
		t.Error("Stub = false, want true")
	}

	var animErr *galaxy.AnimationError
	if len(sunk) == 0 || !errors.As(sunk[0], &animErr) {
		t.Errorf("sink received %v, want *galaxy.AnimationError", sunk)
	}
	if !galaxy.Recoverable(sunk[0]) {
		t.Error("Recoverable(AnimationError) = false, want true")
	}
}

func TestCompleteWithFallback(t *testing.T) {
	lp := loop.New()
	var handoffs []Handoff
	o := New(lp, WithParticleCount(16))
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })
	defer o.Dispose()

	o.CompleteWithFallback()
	o.CompleteWithFallback()

	if len(handoffs) != 1 {
		t.Fatalf("handoffs = %d, want 1", len(handoffs))
	}
	if !handoffs[0].Stub {
		t.Error("Stub = false, want true")
	}
	if err := handoffs[0].State.Validate(); err != nil {
		t.Errorf("fallback state invalid: %v", err)
	}
	if o.Begin() {
		t.Error("Begin() = true after fallback completion, want false")
	}
}

func TestProgressMapping(t *testing.T) {
	lp := loop.New()
	loader := newFakeLoader()
	var got []float64
	o := New(lp,
		WithAssetLoader(loader),
		WithProgress(func(v float64) { got = append(got, v) }),
	)
	defer o.Dispose()

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	loader.emit(Progress{Loaded: 1, Total: 2, Percentage: 50})
	loader.emit(Progress{Loaded: 2, Total: 2, Percentage: 100})
	loader.emit(Progress{Percentage: 150})

	want := []float64{0.5, 1, 1}
	if len(got) != len(want) {
		t.Fatalf("progress values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("progress %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDisposeSuppressesHandoff(t *testing.T) {
	lp := loop.New()
	var handoffs []Handoff
	o := New(lp, WithTimelineConfig(shortConfig()))
	o.OnHandoff(func(h Handoff) { handoffs = append(handoffs, h) })

	if !o.Begin() {
		t.Fatal("Begin() = false")
	}
	stepFor(lp, time.Second)
	o.Dispose()
	o.Dispose()
	stepFor(lp, 3*time.Second)

	if len(handoffs) != 0 {
		t.Errorf("handoffs = %d after Dispose, want 0", len(handoffs))
	}
	o.Skip()
	o.CompleteWithFallback()
	if len(handoffs) != 0 {
		t.Errorf("handoffs = %d after disposed skip/fallback, want 0", len(handoffs))
	}
}

func TestStartLifecycle(t *testing.T) {
	lp := loop.New()
	pc := perf.New(lp)
	defer pc.Dispose()
	o := New(lp, WithPerfController(pc))

	if err := o.Start(nil); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := o.Start(nil); err != nil {
		t.Fatalf("second Start() = %v", err)
	}

	// The injected controller is sampling once started.
	stepFor(lp, 2*time.Second)
	if _, ok := pc.LatestSample(); !ok {
		t.Error("perf controller produced no sample after Start")
	}

	o.Dispose()
	if err := o.Start(nil); err != galaxy.ErrDisposed {
		t.Errorf("Start() after Dispose = %v, want %v", err, galaxy.ErrDisposed)
	}
}
