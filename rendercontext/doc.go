// Package rendercontext owns the process's one GPU device and drawing
// surface.
//
// The surface is created lazily on the first Initialize call and then
// moved, never duplicated, between host containers: a later Initialize
// with a different container detaches the surface from its previous
// host, attaches it to the new one and resizes it to the new bounds.
// Collaborators that need the device receive it through Provider rather
// than creating their own.
//
// The context also allocates the particle vertex buffers and compiles
// the particle material, so everything GPU-owned for the loading
// sequence comes from one place and is released in one place.
package rendercontext
