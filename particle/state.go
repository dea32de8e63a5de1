package particle

import (
	"fmt"

	"golang.org/x/image/math/f32"

	galaxy "github.com/Logrui/next-galaxy-sub000"
)

// DefaultCount is the particle population of one session. The count is
// fixed for the session's lifetime; producer and receiver are both
// configured with it.
const DefaultCount = 32768

// RenderMethod selects how the visualization draws the particle buffers.
type RenderMethod uint8

const (
	// RenderMethodStandard draws one vertex per particle.
	RenderMethodStandard RenderMethod = iota

	// RenderMethodInstanced draws instanced geometry, one instance per
	// particle.
	RenderMethodInstanced
)

// String returns the wire name of the method.
func (m RenderMethod) String() string {
	switch m {
	case RenderMethodStandard:
		return "standard"
	case RenderMethodInstanced:
		return "instanced"
	}
	return fmt.Sprintf("RenderMethod(%d)", uint8(m))
}

// CameraState captures the camera at handoff so the main visualization
// can continue the shot without a cut.
type CameraState struct {
	Position f32.Vec3
	Target   f32.Vec3
	FOV      float32
	Zoom     float32
}

// RenderResources carries opaque references to GPU resources that
// survive the handoff, so the visualization can reuse them instead of
// reallocating.
type RenderResources struct {
	// Geometry and Material are backend-owned references; the contract
	// does not interpret them.
	Geometry any
	Material any

	Method           RenderMethod
	MemoryUsageBytes int
}

// State is the particle-state contract transferred at handoff.
//
// Invariant: Positions, Colors and Velocities each hold exactly Count*3
// float32 values (xyz / rgb / xyz per particle). A State is immutable
// once handed off; receivers copy, they do not alias.
type State struct {
	Count int

	Positions  []float32
	Colors     []float32
	Velocities []float32

	// Phase records the loading phase active when the state was built.
	Phase galaxy.Phase

	// Camera and Resources are optional.
	Camera    *CameraState
	Resources *RenderResources
}

// ShapeError reports a buffer whose length violates the Count*3
// invariant.
type ShapeError struct {
	Buffer string
	Len    int
	Want   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("particle: %s has %d elements, want %d", e.Buffer, e.Len, e.Want)
}

// Validate checks the buffer-length invariant.
func (s *State) Validate() error {
	if s.Count <= 0 {
		return &ShapeError{Buffer: "count", Len: s.Count, Want: 1}
	}
	want := s.Count * 3
	for _, b := range []struct {
		name string
		data []float32
	}{
		{"positions", s.Positions},
		{"colors", s.Colors},
		{"velocities", s.Velocities},
	} {
		if len(b.data) != want {
			return &ShapeError{Buffer: b.name, Len: len(b.data), Want: want}
		}
	}
	return nil
}

// NewStubState returns a shape-valid all-zero state for count particles.
// Stub states stand in for the live explosion result on the skip, abort
// and animation-failure paths, so downstream code always receives a
// state that satisfies the contract.
func NewStubState(count int, phase galaxy.Phase) State {
	if count <= 0 {
		count = DefaultCount
	}
	return State{
		Count:      count,
		Positions:  make([]float32, count*3),
		Colors:     make([]float32, count*3),
		Velocities: make([]float32, count*3),
		Phase:      phase,
	}
}
