// Package perf samples frame timing and memory on a fixed interval and
// emits advisory quality recommendations.
//
// The controller is built on the render loop's frame counter, not a
// separate timer: it observes every frame, and once a measurement
// interval of frame time has accumulated it publishes a [Sample] and,
// when the adaptive policy calls for it, an [Optimization].
//
// The controller is purely advisory. It never mutates the renderer or
// the particle buffers; subscribers decide what to apply.
package perf
