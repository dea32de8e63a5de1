package loading

import "github.com/Logrui/next-galaxy-sub000/particle"

// Progress is one step of an asset loader's progress stream.
// Percentage is non-decreasing within one load pass.
type Progress struct {
	Loaded     int
	Total      int
	Percentage float64 // 0..100

	// CurrentAsset names the asset in flight, when known.
	CurrentAsset string

	// Err carries a per-asset failure message without aborting the
	// stream.
	Err string
}

// AssetLoader is the external loader the orchestrator drives. Load
// results are delivered as one-shot channels: one error value (nil on
// success), then close.
type AssetLoader interface {
	// LoadEssential loads the assets the sequence cannot start
	// without.
	LoadEssential() <-chan error

	// PreloadOptional warms optional assets. Failure is non-fatal and
	// never surfaces past a log line.
	PreloadOptional() <-chan error

	// OnProgress subscribes to the progress stream. The returned
	// cancel unsubscribes.
	OnProgress(fn func(Progress)) (cancel func())
}

// ExplosionRenderer is the external particle-explosion renderer. It
// produces the live particle state on its own completion callback; the
// orchestrator only consumes the result.
type ExplosionRenderer interface {
	OnComplete(fn func(particle.State)) (cancel func())
}
