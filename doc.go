// Package galaxy provides the loading core for the next-galaxy particle
// visualization: a phase-driven loading timeline, the particle-state
// handoff between the loading stage and the main visualization, a shared
// GPU render context, and an adaptive performance controller.
//
// # Overview
//
// The package tree separates the state-machine core from presentation
// collaborators. The core never draws anything itself: it sequences
// phases, transfers one immutable particle state at handoff, owns the
// single GPU device and drawing surface for the process, and emits
// advisory quality recommendations. Geometry generation, shading, camera
// work, UI and audio are external collaborators reached only through the
// boundary interfaces in the loading and particle packages.
//
// # Architecture
//
// The module is organized into:
//   - galaxy (root): shared vocabulary (Phase, error taxonomy, logging)
//   - loop: the cooperative render loop all scheduling runs on
//   - timeline: the phase timeline state machine
//   - loading: the loading orchestrator and its boundary interfaces
//   - particle: the handoff contract and the receiving side's absorption
//   - rendercontext: the process-wide shared GPU context and surface
//   - perf: frame sampling and adaptive quality recommendations
//
// # Concurrency model
//
// All scheduling is cooperative and driven by one render loop
// ([loop.Loop]). Components register per-frame callbacks and express
// waiting as channels resolved from callbacks, never as blocking calls.
// Teardown uses generation counters checked at the top of every deferred
// callback, so callbacks from a torn-down instance are inert.
package galaxy
