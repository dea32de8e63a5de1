// Package loop provides the cooperative render loop that drives every
// time-dependent component in the loading core.
//
// There is exactly one logical thread of control: the loop. Components
// register per-frame callbacks with [Loop.OnFrame] and never block; a
// host can drive frames itself with [Loop.Step] (and tests do, with
// synthetic timestamps), or let [Loop.Run] step at a target frame rate.
//
// Callbacks run in registration order. Unsubscribing is safe from inside
// a callback, including the callback being unsubscribed: a cancelled
// callback is guaranteed never to run again.
package loop
