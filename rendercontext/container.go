package rendercontext

// Container is a host-side slot the drawing surface can live in. The
// hosting application implements it over whatever windowing or
// compositing layer it uses; the context only moves the surface in and
// out and forwards compositing controls.
type Container interface {
	// Bounds returns the container's current size in pixels.
	Bounds() (width, height int)

	// Attach places the surface into the container. Detach removes it.
	// The context guarantees a surface is attached to at most one
	// container at a time.
	Attach(s *Surface)
	Detach(s *Surface)

	// SetLayer orders the surface against the host's other layers.
	SetLayer(z int)

	// SetPointerEvents toggles whether the surface intercepts input.
	SetPointerEvents(enabled bool)
}
