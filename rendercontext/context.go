package rendercontext

import (
	"fmt"
	"sync"

	"github.com/gogpu/gogpu/gpu/types"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	galaxy "github.com/Logrui/next-galaxy-sub000"
)

// ErrNotReady is returned by operations that need the GPU before the
// first successful Initialize.
var ErrNotReady = fmt.Errorf("rendercontext: not initialized")

// Surface is the one drawing surface the context owns: a GPU texture
// plus the logical box it is displayed in.
type Surface struct {
	texture types.Texture
	width   int
	height  int
}

// Size returns the surface's pixel dimensions.
func (s *Surface) Size() (width, height int) { return s.width, s.height }

// Option configures a Context.
type Option func(*Context)

// WithSurfaceFormat overrides the surface texture format. Defaults to
// BGRA8Unorm, the common swapchain format.
func WithSurfaceFormat(f gputypes.TextureFormat) Option {
	return func(c *Context) { c.format = f }
}

// WithErrorSink routes GPU failures to sink in addition to the
// returned error.
func WithErrorSink(sink galaxy.ErrorSink) Option {
	return func(c *Context) { c.sink = sink }
}

// WithHALDevice provides a host HAL device used to turn compiled
// shaders into live modules. Without one, materials carry SPIR-V words
// only.
func WithHALDevice(d hal.Device) Option {
	return func(c *Context) { c.halDev = d }
}

type subscriber struct {
	fn        func(*Context)
	cancelled bool
}

// Context owns the shared GPU device and drawing surface. Construct
// with New; the GPU is touched only on the first Initialize.
//
// Context is safe for concurrent use. Concurrent Initialize calls
// agree on one allocation: the second caller observes and reuses what
// the first created.
type Context struct {
	format gputypes.TextureFormat
	sink   galaxy.ErrorSink
	halDev hal.Device

	mu         sync.Mutex
	backend    backendOps
	instance   types.Instance
	adapter    types.Adapter
	device     types.Device
	queue      types.Queue
	surface    *Surface
	container  Container
	subs       []*subscriber
	geometries []*ParticleGeometry
	ready      bool
	disposed   bool
}

// New creates an uninitialized context.
func New(opts ...Option) *Context {
	c := &Context{format: gputypes.TextureFormatBGRA8Unorm}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize creates the GPU device and surface on first call, then
// attaches the surface to container. Subsequent calls reparent the
// existing surface into the new container and resize it to the new
// bounds; the device and surface are never recreated.
//
// GPU failures are fatal: they are wrapped in galaxy.GPUInitError,
// reported to the configured sink and returned.
func (c *Context) Initialize(container Container) error {
	if container == nil {
		return &galaxy.ConfigError{Field: "container", Reason: "must not be nil"}
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return galaxy.ErrDisposed
	}

	first := !c.ready
	if first {
		if err := c.initGPULocked(); err != nil {
			c.mu.Unlock()
			return c.fatal(err)
		}
	}

	width, height := container.Bounds()
	if c.surface == nil {
		texture, err := c.createTextureLocked(width, height)
		if err != nil {
			c.mu.Unlock()
			return c.fatal(err)
		}
		c.surface = &Surface{texture: texture, width: width, height: height}
	} else if width != c.surface.width || height != c.surface.height {
		if err := c.resizeLocked(width, height); err != nil {
			c.mu.Unlock()
			return c.fatal(err)
		}
	}

	prev := c.container
	c.container = container
	surf := c.surface
	c.ready = true

	var pending []func(*Context)
	if first {
		pending = liveSubFns(c.subs)
		c.subs = nil
	}
	c.mu.Unlock()

	if prev != nil && prev != container {
		prev.Detach(surf)
	}
	if prev != container {
		container.Attach(surf)
	}

	for _, fn := range pending {
		fn(c)
	}

	galaxy.Logger().Info("render context ready",
		"width", width,
		"height", height,
		"reparented", prev != nil && prev != container,
	)
	return nil
}

// fatal wraps a GPU failure and reports it to the sink.
func (c *Context) fatal(err error) error {
	gpuErr := &galaxy.GPUInitError{Err: err}
	c.sink.Report(gpuErr)
	return gpuErr
}

// initGPULocked runs the backend bootstrap sequence. Callers hold c.mu.
func (c *Context) initGPULocked() error {
	backend, err := acquireBackend()
	if err != nil {
		return err
	}
	galaxy.Logger().Debug("using gpu backend", "name", backend.Name())

	instance, err := backend.CreateInstance()
	if err != nil {
		return fmt.Errorf("instance creation failed: %w", err)
	}

	adapter, err := backend.RequestAdapter(instance, &types.AdapterOptions{
		PowerPreference: types.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("adapter request failed: %w", err)
	}

	device, err := backend.RequestDevice(adapter, &types.DeviceOptions{
		Label: "galaxy-device",
	})
	if err != nil {
		return fmt.Errorf("device creation failed: %w", err)
	}

	c.backend = backend
	c.instance = instance
	c.adapter = adapter
	c.device = device
	c.queue = backend.GetQueue(device)
	return nil
}

// createTextureLocked allocates a surface texture. Callers hold c.mu.
func (c *Context) createTextureLocked(width, height int) (types.Texture, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid surface dimensions: %dx%d", width, height)
	}
	return c.backend.CreateTexture(c.device, &types.TextureDescriptor{
		Label: "galaxy-surface",
		Size: types.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     types.TextureDimension2D,
		Format:        surfaceTextureFormat(c.format),
		Usage:         types.TextureUsageCopySrc | types.TextureUsageCopyDst | types.TextureUsageStorageBinding,
	})
}

// Resize reallocates the backing texture at the new pixel size and
// updates the logical box. The device is untouched.
func (c *Context) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return &galaxy.ConfigError{Field: "size", Reason: fmt.Sprintf("invalid dimensions: %dx%d", width, height)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return galaxy.ErrDisposed
	}
	if c.surface == nil {
		return ErrNotReady
	}
	if width == c.surface.width && height == c.surface.height {
		return nil
	}
	return c.resizeLocked(width, height)
}

// resizeLocked swaps the surface texture for one at the new size.
// Callers hold c.mu.
func (c *Context) resizeLocked(width, height int) error {
	texture, err := c.createTextureLocked(width, height)
	if err != nil {
		return err
	}
	c.backend.ReleaseTexture(c.surface.texture)
	c.surface.texture = texture
	c.surface.width = width
	c.surface.height = height
	return nil
}

// SetLayer forwards compositing order to the current container.
func (c *Context) SetLayer(z int) {
	c.mu.Lock()
	container := c.container
	c.mu.Unlock()
	if container != nil {
		container.SetLayer(z)
	}
}

// SetPointerEvents forwards input interception to the current
// container.
func (c *Context) SetPointerEvents(enabled bool) {
	c.mu.Lock()
	container := c.container
	c.mu.Unlock()
	if container != nil {
		container.SetPointerEvents(enabled)
	}
}

// Subscribe runs fn once the context is ready. If it already is, fn
// runs before Subscribe returns. The returned cancel removes a queued
// fn and has no effect once fn has run.
func (c *Context) Subscribe(fn func(*Context)) (cancel func()) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return func() {}
	}
	if c.ready {
		c.mu.Unlock()
		fn(c)
		return func() {}
	}
	sub := &subscriber{fn: fn}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		sub.cancelled = true
		c.mu.Unlock()
	}
}

// Surface returns the owned surface, or nil before Initialize.
func (c *Context) Surface() *Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

// Ready reports whether the GPU device and surface exist.
func (c *Context) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Provider exposes the shared device to collaborators that accept a
// gpucontext.DeviceProvider instead of creating their own device.
func (c *Context) Provider() (gpucontext.DeviceProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, galaxy.ErrDisposed
	}
	if !c.ready {
		return nil, ErrNotReady
	}
	return &provider{
		device:  &deviceHandle{device: c.device},
		queue:   c.queue,
		adapter: c.adapter,
		format:  c.format,
	}, nil
}

// Dispose releases all GPU resources, detaches the surface and drops
// queued subscribers. Idempotent.
func (c *Context) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	container := c.container
	surface := c.surface
	geoms := c.geometries
	backend := c.backend
	c.container = nil
	c.surface = nil
	c.geometries = nil
	c.subs = nil
	c.ready = false
	c.device = 0
	c.adapter = 0
	c.instance = 0
	c.queue = 0
	c.backend = nil
	c.mu.Unlock()

	if backend != nil {
		for _, g := range geoms {
			g.releaseWith(backend)
		}
		if surface != nil {
			backend.ReleaseTexture(surface.texture)
		}
	}
	if container != nil && surface != nil {
		container.Detach(surface)
	}

	galaxy.Logger().Debug("render context disposed")
}

// surfaceTextureFormat maps the option vocabulary onto the backend's
// descriptor format.
func surfaceTextureFormat(f gputypes.TextureFormat) types.TextureFormat {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return types.TextureFormatRGBA8Unorm
	default:
		return types.TextureFormatBGRA8Unorm
	}
}

func liveSubFns(subs []*subscriber) []func(*Context) {
	fns := make([]func(*Context), 0, len(subs))
	for _, s := range subs {
		if !s.cancelled {
			fns = append(fns, s.fn)
		}
	}
	return fns
}
