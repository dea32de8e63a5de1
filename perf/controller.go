package perf

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/loop"
)

// Measurement defaults.
const (
	// DefaultInterval is the sampling interval.
	DefaultInterval = time.Second

	// averageWindow is the trailing window the rolling average covers.
	averageWindow = 5 * time.Second

	// DefaultMemoryThresholdMB is the heap size above which the policy
	// recommends additional particle reduction.
	DefaultMemoryThresholdMB = 512

	// DefaultBasePixelRatio is the pixel ratio recommended while
	// rendering keeps up.
	DefaultBasePixelRatio = 2.0

	// dropRatioLimit is the frame-drop share above which the policy
	// recommends additional reduction.
	dropRatioLimit = 0.10
)

// Quality is a discrete performance tier controlling particle budget
// and render fidelity.
type Quality uint8

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

// String returns the wire name of the tier.
func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	}
	return fmt.Sprintf("Quality(%d)", uint8(q))
}

// Sample is one measurement interval's worth of frame statistics.
type Sample struct {
	// FPS is the instantaneous rate over the interval just ended.
	FPS float64

	// AverageFPS is the rolling average over the trailing 5s window.
	AverageFPS float64

	// MemoryUsageMB is a best-effort heap snapshot.
	MemoryUsageMB float64

	// ParticleCount is the configured particle population, carried for
	// subscribers correlating load with timing.
	ParticleCount int

	// RenderTimeMs is the mean frame time over the interval.
	RenderTimeMs float64

	// FrameDrops counts frames missing against the target-FPS budget.
	FrameDrops int

	Timestamp time.Time
}

// Optimization is an advisory quality recommendation. It is never a
// mutation: subscribers choose whether and how to apply it.
type Optimization struct {
	// ParticleReductionPercent suggests dropping this share of the
	// particle population, in [0, 100].
	ParticleReductionPercent int

	Quality      Quality
	Antialiasing bool
	PixelRatio   float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithInterval overrides the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTargetFPS overrides the frame-rate target the policy measures
// against. Defaults to the loop's target.
func WithTargetFPS(fps int) Option {
	return func(c *Controller) {
		if fps >= 1 {
			c.targetFPS = fps
		}
	}
}

// WithMemoryThresholdMB overrides the heap threshold.
func WithMemoryThresholdMB(mb float64) Option {
	return func(c *Controller) {
		if mb > 0 {
			c.memThresholdMB = mb
		}
	}
}

// WithParticleCount sets the particle population reported in samples.
func WithParticleCount(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.particleCount = n
		}
	}
}

// WithBasePixelRatio sets the pixel ratio recommended at full quality.
func WithBasePixelRatio(r float64) Option {
	return func(c *Controller) {
		if r > 0 {
			c.basePixelRatio = r
		}
	}
}

// readHeapMB is swapped out by tests that need a deterministic memory
// reading.
var readHeapMB = func() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / (1 << 20)
}

type sampleSub struct {
	fn        func(Sample)
	cancelled bool
}

type optSub struct {
	fn        func(Optimization)
	cancelled bool
}

type fpsPoint struct {
	at  time.Time
	fps float64
}

// Controller samples frame statistics from the render loop and emits
// advisory optimizations. Construct with New; Start, Stop and Dispose
// are idempotent.
type Controller struct {
	lp *loop.Loop

	interval       time.Duration
	targetFPS      int
	memThresholdMB float64
	particleCount  int
	basePixelRatio float64

	mu          sync.Mutex
	started     bool
	disposed    bool
	cancelFrame func()

	intervalStart time.Time
	frames        int
	history       []fpsPoint
	latest        Sample
	haveSample    bool

	sampleSubs []*sampleSub
	optSubs    []*optSub
}

// New creates a controller observing lp.
func New(lp *loop.Loop, opts ...Option) *Controller {
	c := &Controller{
		lp:             lp,
		interval:       DefaultInterval,
		targetFPS:      lp.TargetFPS(),
		memThresholdMB: DefaultMemoryThresholdMB,
		particleCount:  0,
		basePixelRatio: DefaultBasePixelRatio,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins sampling. Idempotent; returns galaxy.ErrDisposed after
// Dispose.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return galaxy.ErrDisposed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.intervalStart = time.Time{}
	c.frames = 0
	c.cancelFrame = c.lp.OnFrame(c.onFrame)
	c.mu.Unlock()
	return nil
}

// Stop halts sampling, keeping the last sample readable. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancelFrame
	c.cancelFrame = nil
	c.frames = 0
	c.intervalStart = time.Time{}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Dispose stops sampling and drops all subscribers. Idempotent.
func (c *Controller) Dispose() {
	c.Stop()
	c.mu.Lock()
	c.disposed = true
	c.sampleSubs = nil
	c.optSubs = nil
	c.history = nil
	c.mu.Unlock()
}

// OnSample subscribes to measurement samples. Returns a cancel func.
func (c *Controller) OnSample(fn func(Sample)) (cancel func()) {
	sub := &sampleSub{fn: fn}
	c.mu.Lock()
	c.sampleSubs = append(c.sampleSubs, sub)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		sub.cancelled = true
		c.mu.Unlock()
	}
}

// OnOptimization subscribes to advisory optimizations. Returns a cancel
// func.
func (c *Controller) OnOptimization(fn func(Optimization)) (cancel func()) {
	sub := &optSub{fn: fn}
	c.mu.Lock()
	c.optSubs = append(c.optSubs, sub)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		sub.cancelled = true
		c.mu.Unlock()
	}
}

// LatestSample returns the most recent sample, if any interval has
// completed.
func (c *Controller) LatestSample() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.haveSample
}

// onFrame accumulates frames and closes out a measurement interval once
// enough frame time has passed.
func (c *Controller) onFrame(f loop.Frame) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	if c.intervalStart.IsZero() {
		c.intervalStart = f.Now
		c.mu.Unlock()
		return
	}

	c.frames++
	elapsed := f.Now.Sub(c.intervalStart)
	if elapsed < c.interval {
		c.mu.Unlock()
		return
	}

	sample := c.closeIntervalLocked(f.Now, elapsed)
	opt, emitOpt := c.evaluateLocked(sample)
	sampleFns := liveSampleFns(c.sampleSubs)
	optFns := liveOptFns(c.optSubs)
	c.mu.Unlock()

	galaxy.Logger().Debug("performance sample",
		"fps", sample.FPS,
		"avg_fps", sample.AverageFPS,
		"memory", humanize.IBytes(uint64(sample.MemoryUsageMB*(1<<20))),
		"frame_drops", sample.FrameDrops,
	)

	for _, fn := range sampleFns {
		fn(sample)
	}
	if emitOpt {
		galaxy.Logger().Info("quality recommendation",
			"quality", opt.Quality.String(),
			"particle_reduction", opt.ParticleReductionPercent,
		)
		for _, fn := range optFns {
			fn(opt)
		}
	}
}

// closeIntervalLocked turns the accumulated interval into a Sample and
// resets the accumulators. Callers hold c.mu.
func (c *Controller) closeIntervalLocked(now time.Time, elapsed time.Duration) Sample {
	fps := float64(c.frames) / elapsed.Seconds()

	c.history = append(c.history, fpsPoint{at: now, fps: fps})
	cutoff := now.Add(-averageWindow)
	for len(c.history) > 0 && c.history[0].at.Before(cutoff) {
		c.history = c.history[1:]
	}
	var sum float64
	for _, p := range c.history {
		sum += p.fps
	}
	avg := sum / float64(len(c.history))

	expected := int(elapsed.Seconds() * float64(c.targetFPS))
	drops := expected - c.frames
	if drops < 0 {
		drops = 0
	}

	sample := Sample{
		FPS:           fps,
		AverageFPS:    avg,
		MemoryUsageMB: readHeapMB(),
		ParticleCount: c.particleCount,
		RenderTimeMs:  elapsed.Seconds() * 1000 / float64(c.frames),
		FrameDrops:    drops,
		Timestamp:     now,
	}

	c.latest = sample
	c.haveSample = true
	c.frames = 0
	c.intervalStart = now
	return sample
}

// evaluateLocked applies the adaptive policy against the rolling
// average. Callers hold c.mu.
func (c *Controller) evaluateLocked(s Sample) (Optimization, bool) {
	target := float64(c.targetFPS)
	opt := Optimization{
		Quality:      QualityHigh,
		Antialiasing: true,
		PixelRatio:   c.basePixelRatio,
	}
	emit := false

	switch {
	case s.AverageFPS < 0.6*target:
		opt.Quality = QualityLow
		opt.ParticleReductionPercent = 50
		opt.Antialiasing = false
		opt.PixelRatio = 1
		emit = true
	case s.AverageFPS < 0.8*target:
		opt.Quality = QualityMedium
		opt.ParticleReductionPercent = 25
		if opt.PixelRatio > 1.5 {
			opt.PixelRatio = 1.5
		}
		emit = true
	}

	// Memory pressure and sustained frame drops add to whatever the
	// fps rule set, never subtract.
	if s.MemoryUsageMB > c.memThresholdMB {
		opt.ParticleReductionPercent += 15
		emit = true
	}
	expectedFrames := float64(c.targetFPS) * c.interval.Seconds()
	if expectedFrames > 0 && float64(s.FrameDrops)/expectedFrames > dropRatioLimit {
		opt.ParticleReductionPercent += 10
		emit = true
	}

	if opt.ParticleReductionPercent > 100 {
		opt.ParticleReductionPercent = 100
	}
	return opt, emit
}

func liveSampleFns(subs []*sampleSub) []func(Sample) {
	fns := make([]func(Sample), 0, len(subs))
	for _, s := range subs {
		if !s.cancelled {
			fns = append(fns, s.fn)
		}
	}
	return fns
}

func liveOptFns(subs []*optSub) []func(Optimization) {
	fns := make([]func(Optimization), 0, len(subs))
	for _, s := range subs {
		if !s.cancelled {
			fns = append(fns, s.fn)
		}
	}
	return fns
}
