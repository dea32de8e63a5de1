// Package loading sequences the loading screen: asset loading, the
// phase timeline, and the one-time particle-state handoff to the main
// visualization.
//
// The orchestrator consumes an external asset loader and an external
// particle-explosion renderer; it computes no physics of its own. Its
// contract is to hand off exactly one particle state per session, live
// if the renderer delivered one in time and a shape-valid stub
// otherwise, no matter how completion, skip, and renderer callbacks
// race.
package loading
