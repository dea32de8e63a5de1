// Package timeline implements the phase timeline state machine that
// paces the loading sequence.
//
// A Timeline is constructed once per loading session, initialized with a
// validated [Config], played exactly once, and disposed. Scheduling runs
// on the render loop: phase callbacks fire strictly in configured order
// at their start offsets, and completion resolves a channel rather than
// blocking.
//
// State machine:
//
//	Uninitialized → Initialized → Playing ⇄ Paused → Completed
//
// Stop returns to Initialized without firing completion. Dispose is
// terminal from any state.
package timeline
