// Package particle defines the particle-state contract transferred at
// handoff and the receiving side that absorbs it into the main
// visualization.
//
// A [State] is created once by the loading orchestrator (live, from the
// explosion renderer, or a shape-valid stub) and is immutable from then
// on: the [Receiver] copies what it needs into its own buffers and eases
// toward its own target positions over subsequent render-loop frames.
package particle
