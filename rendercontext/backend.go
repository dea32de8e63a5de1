package rendercontext

import (
	"errors"

	"github.com/gogpu/gogpu/gpu"
	"github.com/gogpu/gogpu/gpu/types"
)

// backendOps is the slice of gpu.Backend the context drives. Narrowing
// the dependency to these methods lets tests run against a fake instead
// of a live GPU.
type backendOps interface {
	Name() string
	CreateInstance() (types.Instance, error)
	RequestAdapter(instance types.Instance, opts *types.AdapterOptions) (types.Adapter, error)
	RequestDevice(adapter types.Adapter, opts *types.DeviceOptions) (types.Device, error)
	GetQueue(device types.Device) types.Queue
	CreateBuffer(device types.Device, desc *types.BufferDescriptor) (types.Buffer, error)
	WriteBuffer(queue types.Queue, buffer types.Buffer, offset uint64, data []byte)
	ReleaseBuffer(buffer types.Buffer)
	CreateTexture(device types.Device, desc *types.TextureDescriptor) (types.Texture, error)
	ReleaseTexture(texture types.Texture)
}

var errNoBackend = errors.New("rendercontext: no gpu backend registered")

// acquireBackend resolves the active gogpu backend, registering the
// default one on first use. Swapped out by tests.
var acquireBackend = func() (backendOps, error) {
	b := gpu.GetBackend()
	if b == nil {
		if err := gpu.InitDefaultBackend(); err != nil {
			return nil, err
		}
		b = gpu.GetBackend()
	}
	if b == nil {
		return nil, errNoBackend
	}
	return b, nil
}
