package particle

import (
	"sync"
	"time"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/loop"
)

// Absorption pacing defaults, in visualization time.
const (
	// DefaultAbsorbDuration is how long received positions ease toward
	// the visualization's own targets.
	DefaultAbsorbDuration = 2000 * time.Millisecond

	// DefaultColorFadeDuration is how long the loading colors fade out.
	DefaultColorFadeDuration = 1500 * time.Millisecond

	// DefaultColorFadeDelay postpones the color fade so positions start
	// moving before colors change.
	DefaultColorFadeDelay = 400 * time.Millisecond
)

// GeometryWriter uploads live particle buffers to the renderer's
// geometry, typically GPU vertex buffers. Implementations must copy or
// consume the slice synchronously; the receiver reuses it next frame.
type GeometryWriter interface {
	WritePositions(data []float32) error
	WriteColors(data []float32) error
}

// GeometryProvider produces a position buffer of the correct shape for a
// visual phase. The procedural generation behind it is a collaborator
// concern; the receiver only requires len(result) == count*3.
type GeometryProvider interface {
	Positions(phase galaxy.Phase, count int) []float32
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithGeometryWriter directs every absorbed frame to w.
func WithGeometryWriter(w GeometryWriter) ReceiverOption {
	return func(r *Receiver) { r.writer = w }
}

// WithGeometryProvider sets the source of the receiver's target
// positions.
func WithGeometryProvider(p GeometryProvider) ReceiverOption {
	return func(r *Receiver) { r.provider = p }
}

// WithAbsorbDuration overrides the position absorption duration.
func WithAbsorbDuration(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if d > 0 {
			r.absorbDuration = d
		}
	}
}

// WithColorFade overrides the color fade duration and start delay.
func WithColorFade(duration, delay time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if duration > 0 {
			r.fadeDuration = duration
		}
		if delay >= 0 {
			r.fadeDelay = delay
		}
	}
}

// WithTint sets the visualization's base particle color.
func WithTint(red, green, blue float32) ReceiverOption {
	return func(r *Receiver) { r.tint = [3]float32{red, green, blue} }
}

// Receiver is the main visualization's side of the handoff. It owns its
// particle buffers for the whole session and absorbs exactly one loading
// state into them, eased over render-loop frames.
type Receiver struct {
	lp       *loop.Loop
	writer   GeometryWriter
	provider GeometryProvider

	absorbDuration time.Duration
	fadeDuration   time.Duration
	fadeDelay      time.Duration

	mu         sync.Mutex
	count      int
	positions  []float32
	colors     []float32
	velocities []float32
	targets    []float32
	loadColors []float32
	tint       [3]float32
	blend      float64
	camera     *CameraState
	disposed   bool

	// gen invalidates in-flight absorption callbacks when a new loading
	// state arrives or the receiver is disposed.
	gen        uint64
	cancelPos  func()
	cancelFade func()
}

// NewReceiver creates a receiver for count particles, scheduled on lp.
// A count below 1 falls back to DefaultCount.
func NewReceiver(lp *loop.Loop, count int, opts ...ReceiverOption) *Receiver {
	if count <= 0 {
		count = DefaultCount
	}
	r := &Receiver{
		lp:             lp,
		absorbDuration: DefaultAbsorbDuration,
		fadeDuration:   DefaultColorFadeDuration,
		fadeDelay:      DefaultColorFadeDelay,
		count:          count,
		positions:      make([]float32, count*3),
		colors:         make([]float32, count*3),
		velocities:     make([]float32, count*3),
		targets:        make([]float32, count*3),
		loadColors:     make([]float32, count*3),
		tint:           [3]float32{0.55, 0.65, 1.0},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.provider != nil {
		if p := r.provider.Positions(galaxy.PhaseComplete, count); len(p) == count*3 {
			copy(r.targets, p)
		} else {
			galaxy.Logger().Warn("geometry provider returned wrong shape",
				"got", len(p), "want", count*3)
		}
	}
	return r
}

// Count returns the receiver's configured particle count.
func (r *Receiver) Count() int { return r.count }

// InitializeFromLoadingState absorbs one handoff state. Mismatched
// particle counts degrade gracefully: the receiver keeps its own count,
// reads source values up to the overlapping length, and logs a warning.
//
// Position absorption and the color fade run on subsequent render-loop
// frames; the call itself never blocks.
func (r *Receiver) InitializeFromLoadingState(st State) error {
	if err := st.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return galaxy.ErrDisposed
	}

	if st.Count != r.count {
		galaxy.Logger().Warn("particle count mismatch at handoff",
			"received", st.Count, "configured", r.count)
	}

	n := r.count * 3
	overlap := min(n, st.Count*3)

	from := make([]float32, n)
	copy(from[:overlap], st.Positions[:overlap])
	copy(r.positions, from)

	for i := range r.loadColors {
		r.loadColors[i] = 0
	}
	copy(r.loadColors[:overlap], st.Colors[:overlap])
	copy(r.colors, r.loadColors)

	for i := range r.velocities {
		r.velocities[i] = 0
	}
	copy(r.velocities[:overlap], st.Velocities[:overlap])

	r.camera = st.Camera
	r.blend = 1

	r.gen++
	gen := r.gen
	to := make([]float32, n)
	copy(to, r.targets)
	oldPos, oldFade := r.cancelPos, r.cancelFade
	r.mu.Unlock()

	// Retire any absorption still running from a previous state.
	if oldPos != nil {
		oldPos()
	}
	if oldFade != nil {
		oldFade()
	}

	r.startAbsorption(gen, from, to)
	r.startColorFade(gen)

	galaxy.Logger().Info("loading state absorbed",
		"count", st.Count, "phase", st.Phase.String())
	return nil
}

// startAbsorption eases positions from the received snapshot to the
// receiver's targets. Writes stop once progress reaches 1.
func (r *Receiver) startAbsorption(gen uint64, from, to []float32) {
	var elapsed time.Duration
	var cancel func()
	cancel = r.lp.OnFrame(func(f loop.Frame) {
		r.mu.Lock()
		if r.gen != gen || r.disposed {
			r.mu.Unlock()
			cancel()
			return
		}

		elapsed += f.Delta
		progress := float64(elapsed) / float64(r.absorbDuration)
		if progress > 1 {
			progress = 1
		}
		eased := EaseOutCubic(progress)
		for i := range r.positions {
			r.positions[i] = Lerp(from[i], to[i], float32(eased))
		}
		writer := r.writer
		buf := r.positions
		r.mu.Unlock()

		if writer != nil {
			if err := writer.WritePositions(buf); err != nil {
				galaxy.Logger().Warn("position upload failed", "err", err)
			}
		}
		if progress >= 1 {
			cancel()
		}
	})

	r.mu.Lock()
	r.cancelPos = cancel
	r.mu.Unlock()
}

// startColorFade fades the blend weight from 1 (loading colors) to 0
// (visualization colors) on its own duration and start delay.
func (r *Receiver) startColorFade(gen uint64) {
	var elapsed time.Duration
	var cancel func()
	cancel = r.lp.OnFrame(func(f loop.Frame) {
		r.mu.Lock()
		if r.gen != gen || r.disposed {
			r.mu.Unlock()
			cancel()
			return
		}

		elapsed += f.Delta
		if elapsed < r.fadeDelay {
			r.mu.Unlock()
			return
		}
		progress := float64(elapsed-r.fadeDelay) / float64(r.fadeDuration)
		if progress > 1 {
			progress = 1
		}
		r.blend = 1 - progress
		weight := float32(r.blend)
		for i := range r.colors {
			r.colors[i] = Lerp(r.tint[i%3], r.loadColors[i], weight)
		}
		writer := r.writer
		buf := r.colors
		r.mu.Unlock()

		if writer != nil {
			if err := writer.WriteColors(buf); err != nil {
				galaxy.Logger().Warn("color upload failed", "err", err)
			}
		}
		if progress >= 1 {
			cancel()
		}
	})

	r.mu.Lock()
	r.cancelFade = cancel
	r.mu.Unlock()
}

// ExportState snapshots the receiver's side of the contract: current
// positions, colors synthesized from the tint, zero velocities.
func (r *Receiver) ExportState() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{
		Count:      r.count,
		Positions:  make([]float32, len(r.positions)),
		Colors:     make([]float32, len(r.colors)),
		Velocities: make([]float32, len(r.velocities)),
		Phase:      galaxy.PhaseComplete,
		Camera:     r.camera,
	}
	copy(st.Positions, r.positions)
	for i := range st.Colors {
		st.Colors[i] = r.tint[i%3]
	}
	return st
}

// Positions returns a copy of the live position buffer.
func (r *Receiver) Positions() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float32, len(r.positions))
	copy(out, r.positions)
	return out
}

// Colors returns a copy of the live color buffer.
func (r *Receiver) Colors() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float32, len(r.colors))
	copy(out, r.colors)
	return out
}

// BlendWeight returns the current color blend weight: 1 means loading
// colors, 0 means the visualization's own colors.
func (r *Receiver) BlendWeight() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blend
}

// Camera returns the camera state received at handoff, if any.
func (r *Receiver) Camera() *CameraState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.camera
}

// Dispose stops any in-flight absorption. Idempotent.
func (r *Receiver) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.gen++
	cancelPos, cancelFade := r.cancelPos, r.cancelFade
	r.cancelPos, r.cancelFade = nil, nil
	r.mu.Unlock()

	if cancelPos != nil {
		cancelPos()
	}
	if cancelFade != nil {
		cancelFade()
	}
}
