package galaxy

import "fmt"

// Phase identifies one stage of the loading sequence.
//
// The set is closed and totally ordered: a timeline visits phases strictly
// in declaration order, and no phase is visited twice except through an
// explicit skip. Consumers should switch exhaustively over all values so
// that adding or removing a phase is a compile-visible change.
type Phase uint8

const (
	// PhaseInitializing covers context and resource setup before any
	// asset work begins.
	PhaseInitializing Phase = iota

	// PhaseLoadingAssets covers the essential asset load pass.
	PhaseLoadingAssets

	// PhaseAnimating covers the particle explosion animation.
	PhaseAnimating

	// PhaseTransitioning covers the eased handoff into the main
	// visualization.
	PhaseTransitioning

	// PhaseComplete marks the end of the loading sequence.
	PhaseComplete
)

// phaseNames maps phases to their canonical wire names. The names match
// the identifiers used by the hosting shell's UI and accessibility layers.
var phaseNames = [...]string{
	PhaseInitializing:  "INITIALIZING",
	PhaseLoadingAssets: "LOADING_ASSETS",
	PhaseAnimating:     "ANIMATING",
	PhaseTransitioning: "TRANSITIONING",
	PhaseComplete:      "COMPLETE",
}

// String returns the canonical name of the phase.
func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is a member of the closed phase set.
func (p Phase) Valid() bool {
	return p <= PhaseComplete
}

// Next returns the phase following p in the total order. The second
// result is false when p is the last phase (or invalid).
func (p Phase) Next() (Phase, bool) {
	if !p.Valid() || p == PhaseComplete {
		return p, false
	}
	return p + 1, true
}

// ParsePhase converts a canonical phase name back to its Phase value.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("galaxy: unknown phase %q", name)
}
