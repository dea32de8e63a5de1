package loading

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/loop"
	"github.com/Logrui/next-galaxy-sub000/particle"
	"github.com/Logrui/next-galaxy-sub000/perf"
	"github.com/Logrui/next-galaxy-sub000/rendercontext"
	"github.com/Logrui/next-galaxy-sub000/timeline"
)

// Handoff is the one-time transfer of a particle state from the
// loading sequence to the main visualization.
type Handoff struct {
	// Session identifies the loading session that produced the state.
	Session uuid.UUID

	State particle.State

	// Stub is true when the state is a synthesized placeholder rather
	// than the renderer's live result.
	Stub bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAssetLoader sets the external asset loader. Without one the
// sequence starts the timeline immediately on Begin.
func WithAssetLoader(l AssetLoader) Option {
	return func(o *Orchestrator) { o.loader = l }
}

// WithExplosionRenderer sets the external particle-explosion renderer
// whose completion supplies the live handoff state.
func WithExplosionRenderer(r ExplosionRenderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithTimelineConfig overrides the phase timeline configuration.
func WithTimelineConfig(cfg timeline.Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithParticleCount sets the particle population stub states are sized
// for.
func WithParticleCount(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.count = n
		}
	}
}

// WithErrorSink routes recoverable and fatal errors to sink.
func WithErrorSink(sink galaxy.ErrorSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithRenderContext injects the shared render context. The
// orchestrator starts it at Start and reads GPU resources from it; it
// never constructs or disposes it.
func WithRenderContext(ctx *rendercontext.Context) Option {
	return func(o *Orchestrator) { o.rctx = ctx }
}

// WithPerfController injects the performance controller started
// alongside the sequence.
func WithPerfController(pc *perf.Controller) Option {
	return func(o *Orchestrator) { o.perfCtrl = pc }
}

// WithPhaseChange forwards timeline phase changes, for UI, audio and
// accessibility layers.
func WithPhaseChange(fn timeline.PhaseChangeFunc) Option {
	return func(o *Orchestrator) { o.onPhase = fn }
}

// WithProgress forwards normalized asset progress in [0, 1].
func WithProgress(fn func(float64)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// Orchestrator runs the loading sequence. Construct with New, set the
// completion hook with OnHandoff, call Start once the host container
// exists, then Begin on the user's signal.
//
// Completion fires at most once per session: natural timeline
// completion, Skip, and the renderer's own completion callback may all
// race, and exactly one of them performs the handoff.
type Orchestrator struct {
	lp       *loop.Loop
	loader   AssetLoader
	renderer ExplosionRenderer
	cfg      timeline.Config
	count    int
	sink     galaxy.ErrorSink
	rctx     *rendercontext.Context
	perfCtrl *perf.Controller

	onPhase    timeline.PhaseChangeFunc
	onProgress func(float64)

	beginTriggered  atomic.Bool
	completionGuard atomic.Bool

	mu             sync.Mutex
	session        uuid.UUID
	tl             *timeline.Timeline
	cancelProgress func()
	cancelRenderer func()
	handoffFn      func(Handoff)
	liveState      *particle.State
	started        bool
	disposed       bool
}

// New creates an orchestrator driving its timeline from lp.
func New(lp *loop.Loop, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		lp:    lp,
		cfg:   timeline.DefaultConfig(),
		count: particle.DefaultCount,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnHandoff sets the completion hook. It fires at most once per
// session.
func (o *Orchestrator) OnHandoff(fn func(Handoff)) {
	o.mu.Lock()
	o.handoffFn = fn
	o.mu.Unlock()
}

// Start brings up the injected collaborators: the render context is
// initialized into container and the performance controller begins
// sampling. Idempotent. A GPU failure is fatal; it is reported to the
// sink and returned, and the caller may still offer
// CompleteWithFallback to the user.
func (o *Orchestrator) Start(container rendercontext.Container) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return galaxy.ErrDisposed
	}
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	o.mu.Unlock()

	if o.rctx != nil {
		if err := o.rctx.Initialize(container); err != nil {
			o.mu.Lock()
			o.started = false
			o.mu.Unlock()
			o.sink.Report(err)
			return err
		}
	}
	if o.perfCtrl != nil {
		if err := o.perfCtrl.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Begin starts the loading sequence. It reports whether this call won
// the begin latch; a second call while a sequence is in flight is a
// no-op. A failed sequence clears the latch so Begin works again.
func (o *Orchestrator) Begin() bool {
	if !o.beginTriggered.CompareAndSwap(false, true) {
		return false
	}

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		o.beginTriggered.Store(false)
		return false
	}
	o.session = uuid.New()
	session := o.session
	o.liveState = nil
	stale := o.cancelRenderer
	o.cancelRenderer = nil
	o.mu.Unlock()

	// A retried session drops the previous attempt's subscription.
	if stale != nil {
		stale()
	}

	o.mu.Lock()
	if o.loader != nil {
		o.cancelProgress = o.loader.OnProgress(func(p Progress) {
			o.reportProgress(session, p)
		})
	}
	if o.renderer != nil {
		o.cancelRenderer = o.renderer.OnComplete(func(st particle.State) {
			o.completeLive(session, st)
		})
	}
	o.mu.Unlock()

	galaxy.Logger().Info("loading sequence begun", "session", session)

	if o.loader == nil {
		o.startTimeline(session)
		return true
	}

	go o.awaitEssential(session, o.loader.LoadEssential())
	return true
}

// awaitEssential waits for the required-asset load and either rolls
// the sequence back or moves on to the timeline.
func (o *Orchestrator) awaitEssential(session uuid.UUID, done <-chan error) {
	err := <-done

	o.mu.Lock()
	stale := o.disposed || o.session != session
	cancel := o.cancelProgress
	o.cancelProgress = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stale {
		return
	}

	if err != nil {
		o.beginTriggered.Store(false)
		loadErr := &galaxy.AssetLoadError{Asset: "essential", Err: err}
		o.sink.Report(loadErr)
		galaxy.Logger().Warn("essential asset load failed",
			"session", session, "err", err)
		return
	}

	if pre := o.loader.PreloadOptional(); pre != nil {
		go func() {
			if err := <-pre; err != nil {
				galaxy.Logger().Warn("optional asset preload failed", "err", err)
			}
		}()
	}

	o.startTimeline(session)
}

// startTimeline constructs and plays the phase timeline for session.
func (o *Orchestrator) startTimeline(session uuid.UUID) {
	o.mu.Lock()
	if o.disposed || o.session != session {
		o.mu.Unlock()
		return
	}
	tl := timeline.New(o.lp,
		timeline.WithPhaseChange(func(phase galaxy.Phase, progress float64) {
			o.phaseChanged(session, phase, progress)
		}),
		timeline.WithComplete(func() {
			o.complete(session)
		}),
		timeline.WithErrorSink(o.sink),
	)
	o.tl = tl
	o.mu.Unlock()

	if err := tl.Initialize(o.cfg); err != nil {
		// The timeline already reported the config error to the sink.
		o.beginTriggered.Store(false)
		galaxy.Logger().Warn("timeline rejected configuration", "err", err)
		return
	}
	if _, err := tl.Play(); err != nil {
		o.beginTriggered.Store(false)
		o.sink.Report(err)
		return
	}
}

func (o *Orchestrator) phaseChanged(session uuid.UUID, phase galaxy.Phase, progress float64) {
	o.mu.Lock()
	stale := o.disposed || o.session != session
	fn := o.onPhase
	o.mu.Unlock()
	if stale || fn == nil {
		return
	}
	fn(phase, progress)
}

func (o *Orchestrator) reportProgress(session uuid.UUID, p Progress) {
	o.mu.Lock()
	stale := o.disposed || o.session != session
	fn := o.onProgress
	o.mu.Unlock()
	if stale || fn == nil {
		return
	}
	v := p.Percentage / 100
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	fn(v)
}

// completeLive records the renderer's live result and completes the
// sequence with it.
func (o *Orchestrator) completeLive(session uuid.UUID, st particle.State) {
	o.mu.Lock()
	if o.disposed || o.session != session {
		o.mu.Unlock()
		return
	}
	o.liveState = &st
	o.mu.Unlock()
	o.complete(session)
}

// complete performs the handoff. The completion guard admits exactly
// one caller per session.
func (o *Orchestrator) complete(session uuid.UUID) {
	o.mu.Lock()
	stale := o.disposed || o.session != session
	o.mu.Unlock()
	if stale {
		// Stale triggers from a retired session must not consume the
		// guard.
		return
	}

	if !o.completionGuard.CompareAndSwap(false, true) {
		return
	}

	o.mu.Lock()
	var st particle.State
	stub := o.liveState == nil
	if stub {
		st = particle.NewStubState(o.count, galaxy.PhaseComplete)
	} else {
		st = *o.liveState
	}
	fn := o.handoffFn
	cancel := o.cancelRenderer
	o.cancelRenderer = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if err := st.Validate(); err != nil {
		// A malformed live result degrades to a stub rather than
		// leaving downstream code waiting.
		o.sink.Report(&galaxy.AnimationError{Stage: "handoff", Err: err})
		st = particle.NewStubState(o.count, galaxy.PhaseComplete)
		stub = true
	}

	if st.Resources == nil && o.rctx != nil && o.rctx.Ready() {
		if res, err := o.rctx.BuildParticleResources(st.Count); err == nil {
			st.Resources = res
		} else {
			galaxy.Logger().Warn("render resource build failed", "err", err)
		}
	}

	galaxy.Logger().Info("handoff",
		"session", session, "stub", stub, "particles", st.Count)
	if fn != nil {
		fn(Handoff{Session: session, State: st, Stub: stub})
	}
}

// Skip completes the sequence immediately: pending timeline phases are
// skipped and, absent a live renderer result, the handoff carries a
// stub. No-op before Begin.
func (o *Orchestrator) Skip() {
	if !o.beginTriggered.Load() {
		return
	}
	o.mu.Lock()
	tl, session, disposed := o.tl, o.session, o.disposed
	o.mu.Unlock()
	if disposed {
		return
	}
	if tl != nil {
		// SkipToEnd fires the timeline's complete callback, which
		// runs the guarded completion.
		if err := tl.SkipToEnd(); err != nil {
			galaxy.Logger().Warn("skip past timeline failed", "err", err)
		}
	}
	o.complete(session)
}

// FailAnimation reports a renderer-side failure. The failure is
// recoverable: a shape-valid stub is handed off so downstream code
// is never left waiting. No-op before Begin.
func (o *Orchestrator) FailAnimation(stage string, err error) {
	if !o.beginTriggered.Load() {
		return
	}
	o.mu.Lock()
	session, disposed := o.session, o.disposed
	o.mu.Unlock()
	if disposed {
		return
	}
	o.sink.Report(&galaxy.AnimationError{Stage: stage, Err: err})
	o.complete(session)
}

// CompleteWithFallback is the manual path offered after a fatal GPU
// failure: it performs a stub handoff without running the sequence.
func (o *Orchestrator) CompleteWithFallback() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	if o.session == uuid.Nil {
		o.session = uuid.New()
	}
	session := o.session
	o.mu.Unlock()

	o.beginTriggered.Store(true)
	o.complete(session)
}

// Session returns the current session ID, or uuid.Nil before the first
// Begin.
func (o *Orchestrator) Session() uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Dispose tears the sequence down. Injected collaborators are owned by
// the host and stay up. Idempotent; safe re-entrantly from callbacks.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	tl := o.tl
	o.tl = nil
	cp := o.cancelProgress
	o.cancelProgress = nil
	cr := o.cancelRenderer
	o.cancelRenderer = nil
	o.handoffFn = nil
	o.liveState = nil
	o.mu.Unlock()

	if cp != nil {
		cp()
	}
	if cr != nil {
		cr()
	}
	if tl != nil {
		tl.Dispose()
	}
}
