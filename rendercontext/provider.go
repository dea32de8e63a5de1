package rendercontext

import (
	"github.com/gogpu/gogpu/gpu/types"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// deviceHandle adapts a gogpu device handle to gpucontext.Device.
// Polling and destruction belong to the backend, so both are no-ops;
// the context's Dispose is the real release path.
type deviceHandle struct {
	device types.Device
}

func (h *deviceHandle) Poll(wait bool) {}
func (h *deviceHandle) Destroy()       {}

// Handle returns the underlying gogpu device.
func (h *deviceHandle) Handle() types.Device { return h.device }

// provider implements gpucontext.DeviceProvider over the context's
// shared resources.
type provider struct {
	device  gpucontext.Device
	queue   gpucontext.Queue
	adapter gpucontext.Adapter
	format  gputypes.TextureFormat
}

func (p *provider) Device() gpucontext.Device             { return p.device }
func (p *provider) Queue() gpucontext.Queue               { return p.queue }
func (p *provider) Adapter() gpucontext.Adapter           { return p.adapter }
func (p *provider) SurfaceFormat() gputypes.TextureFormat { return p.format }
