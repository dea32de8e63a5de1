package rendercontext

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/gogpu/gogpu/gpu/types"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/particle"
)

// floatsPerParticle is the xyz / rgb stride of every particle buffer.
const floatsPerParticle = 3

// ParticleGeometry is the trio of vertex buffers backing one particle
// population: positions, colors and velocities, each count*3 float32.
// It implements particle.GeometryWriter so the receiver can upload
// absorbed frames directly.
type ParticleGeometry struct {
	ctx   *Context
	count int

	mu         sync.Mutex
	released   bool
	positions  types.Buffer
	colors     types.Buffer
	velocities types.Buffer
}

// CreateParticleGeometry allocates vertex buffers for count particles.
// The geometry is tracked by the context and released on its Dispose;
// callers that finish earlier call Release themselves.
func (c *Context) CreateParticleGeometry(count int) (*ParticleGeometry, error) {
	if count <= 0 {
		return nil, &galaxy.ConfigError{Field: "count", Reason: "must be positive"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, galaxy.ErrDisposed
	}
	if !c.ready {
		return nil, ErrNotReady
	}

	size := uint64(count) * floatsPerParticle * 4
	g := &ParticleGeometry{ctx: c, count: count}

	var err error
	if g.positions, err = c.createBufferLocked("galaxy-positions", size); err != nil {
		return nil, err
	}
	if g.colors, err = c.createBufferLocked("galaxy-colors", size); err != nil {
		c.backend.ReleaseBuffer(g.positions)
		return nil, err
	}
	if g.velocities, err = c.createBufferLocked("galaxy-velocities", size); err != nil {
		c.backend.ReleaseBuffer(g.positions)
		c.backend.ReleaseBuffer(g.colors)
		return nil, err
	}

	c.geometries = append(c.geometries, g)
	return g, nil
}

// createBufferLocked allocates one vertex buffer. Callers hold c.mu.
func (c *Context) createBufferLocked(label string, size uint64) (types.Buffer, error) {
	return c.backend.CreateBuffer(c.device, &types.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: types.BufferUsageVertex | types.BufferUsageCopyDst,
	})
}

// Count returns the particle population the buffers are sized for.
func (g *ParticleGeometry) Count() int { return g.count }

// MemoryUsageBytes returns the total GPU memory held by the three
// buffers.
func (g *ParticleGeometry) MemoryUsageBytes() int {
	return g.count * floatsPerParticle * 4 * 3
}

// WritePositions uploads a full position buffer.
func (g *ParticleGeometry) WritePositions(data []float32) error {
	g.mu.Lock()
	buf, released := g.positions, g.released
	g.mu.Unlock()
	return g.upload("positions", buf, released, data)
}

// WriteColors uploads a full color buffer.
func (g *ParticleGeometry) WriteColors(data []float32) error {
	g.mu.Lock()
	buf, released := g.colors, g.released
	g.mu.Unlock()
	return g.upload("colors", buf, released, data)
}

// WriteVelocities uploads a full velocity buffer.
func (g *ParticleGeometry) WriteVelocities(data []float32) error {
	g.mu.Lock()
	buf, released := g.velocities, g.released
	g.mu.Unlock()
	return g.upload("velocities", buf, released, data)
}

func (g *ParticleGeometry) upload(name string, buf types.Buffer, released bool, data []float32) error {
	if released {
		return galaxy.ErrDisposed
	}
	if want := g.count * floatsPerParticle; len(data) != want {
		return &particle.ShapeError{Buffer: name, Len: len(data), Want: want}
	}

	c := g.ctx
	c.mu.Lock()
	backend, queue, disposed := c.backend, c.queue, c.disposed
	c.mu.Unlock()
	if disposed || backend == nil {
		return galaxy.ErrDisposed
	}

	backend.WriteBuffer(queue, buf, 0, float32LEBytes(data))
	return nil
}

// Release frees the three buffers. Idempotent; the context's Dispose
// calls it for any geometry still alive.
func (g *ParticleGeometry) Release() {
	g.ctx.mu.Lock()
	backend := g.ctx.backend
	g.ctx.mu.Unlock()
	g.releaseWith(backend)
}

func (g *ParticleGeometry) releaseWith(backend backendOps) {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return
	}
	g.released = true
	pos, col, vel := g.positions, g.colors, g.velocities
	g.mu.Unlock()

	if backend == nil {
		return
	}
	backend.ReleaseBuffer(pos)
	backend.ReleaseBuffer(col)
	backend.ReleaseBuffer(vel)
}

// float32LEBytes lays a float32 slice out as the little-endian bytes
// WriteBuffer expects.
func float32LEBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
