package rendercontext

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/particle"
)

func readyContext(t *testing.T) (*Context, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	stubBackend(t, fb, nil)
	ctx := New()
	if err := ctx.Initialize(&fakeContainer{w: 100, h: 100}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}
	return ctx, fb
}

func TestCreateParticleGeometry(t *testing.T) {
	ctx, fb := readyContext(t)

	g, err := ctx.CreateParticleGeometry(1024)
	if err != nil {
		t.Fatalf("CreateParticleGeometry() = %v", err)
	}
	if g.Count() != 1024 {
		t.Errorf("Count() = %d, want 1024", g.Count())
	}
	if len(fb.buffers) != 3 {
		t.Errorf("buffers created = %d, want 3", len(fb.buffers))
	}
	if want := 1024 * 3 * 4 * 3; g.MemoryUsageBytes() != want {
		t.Errorf("MemoryUsageBytes() = %d, want %d", g.MemoryUsageBytes(), want)
	}
}

func TestCreateParticleGeometryErrors(t *testing.T) {
	ctx, _ := readyContext(t)

	if _, err := ctx.CreateParticleGeometry(0); err == nil {
		t.Error("CreateParticleGeometry(0) = nil, want config error")
	}

	cold := New()
	if _, err := cold.CreateParticleGeometry(16); err != ErrNotReady {
		t.Errorf("CreateParticleGeometry before Initialize = %v, want %v", err, ErrNotReady)
	}
}

func TestGeometryAllocationRollback(t *testing.T) {
	fb := &fakeBackend{}
	stubBackend(t, fb, nil)
	ctx := New()
	if err := ctx.Initialize(&fakeContainer{w: 100, h: 100}); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}

	fb.failBuffer = true
	if _, err := ctx.CreateParticleGeometry(16); err == nil {
		t.Fatal("CreateParticleGeometry() = nil, want error")
	}
	if len(fb.releasedBufs) != len(fb.buffers) {
		t.Errorf("released %d of %d buffers after failed allocation",
			len(fb.releasedBufs), len(fb.buffers))
	}
}

func TestGeometryWrite(t *testing.T) {
	ctx, fb := readyContext(t)

	g, err := ctx.CreateParticleGeometry(2)
	if err != nil {
		t.Fatalf("CreateParticleGeometry() = %v", err)
	}

	data := []float32{1, 2, 3, 4, 5, 6}
	if err := g.WritePositions(data); err != nil {
		t.Fatalf("WritePositions() = %v", err)
	}
	if err := g.WriteColors(data); err != nil {
		t.Fatalf("WriteColors() = %v", err)
	}
	if err := g.WriteVelocities(data); err != nil {
		t.Fatalf("WriteVelocities() = %v", err)
	}
	if len(fb.writes) != 3 {
		t.Fatalf("writes recorded = %d, want 3", len(fb.writes))
	}

	got := fb.writes[0].data
	if len(got) != len(data)*4 {
		t.Fatalf("uploaded %d bytes, want %d", len(got), len(data)*4)
	}
	for i, v := range data {
		word := binary.LittleEndian.Uint32(got[i*4:])
		if math.Float32frombits(word) != v {
			t.Fatalf("word %d = %v, want %v", i, math.Float32frombits(word), v)
		}
	}
}

func TestGeometryWriteWrongShape(t *testing.T) {
	ctx, _ := readyContext(t)

	g, err := ctx.CreateParticleGeometry(4)
	if err != nil {
		t.Fatalf("CreateParticleGeometry() = %v", err)
	}

	err = g.WritePositions(make([]float32, 7))
	var shapeErr *particle.ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("WritePositions(wrong shape) = %v, want *particle.ShapeError", err)
	}
	if shapeErr.Want != 12 {
		t.Errorf("ShapeError.Want = %d, want 12", shapeErr.Want)
	}
}

func TestGeometryRelease(t *testing.T) {
	ctx, fb := readyContext(t)

	g, err := ctx.CreateParticleGeometry(8)
	if err != nil {
		t.Fatalf("CreateParticleGeometry() = %v", err)
	}
	g.Release()
	g.Release()

	if len(fb.releasedBufs) != 3 {
		t.Errorf("released buffers = %d, want 3", len(fb.releasedBufs))
	}
	if err := g.WritePositions(make([]float32, 24)); err != galaxy.ErrDisposed {
		t.Errorf("WritePositions after Release = %v, want %v", err, galaxy.ErrDisposed)
	}
}

func TestBuildParticleResources(t *testing.T) {
	ctx, _ := readyContext(t)

	prev := compileWGSL
	compileWGSL = func(string) ([]byte, error) {
		// One SPIR-V word, 0x07230203 magic, little-endian.
		return []byte{0x03, 0x02, 0x23, 0x07}, nil
	}
	t.Cleanup(func() { compileWGSL = prev })

	res, err := ctx.BuildParticleResources(64)
	if err != nil {
		t.Fatalf("BuildParticleResources() = %v", err)
	}
	if res.Method != particle.RenderMethodInstanced {
		t.Errorf("Method = %v, want %v", res.Method, particle.RenderMethodInstanced)
	}
	code, ok := res.Material.([]uint32)
	if !ok {
		t.Fatalf("Material is %T, want []uint32", res.Material)
	}
	if len(code) != 1 || code[0] != 0x07230203 {
		t.Errorf("Material words = %#x, want [0x07230203]", code)
	}
	if _, ok := res.Geometry.(*ParticleGeometry); !ok {
		t.Errorf("Geometry is %T, want *ParticleGeometry", res.Geometry)
	}
	if want := 64 * 3 * 4 * 3; res.MemoryUsageBytes != want {
		t.Errorf("MemoryUsageBytes = %d, want %d", res.MemoryUsageBytes, want)
	}
}

func TestBuildParticleResourcesShaderFallback(t *testing.T) {
	ctx, _ := readyContext(t)

	prev := compileWGSL
	compileWGSL = func(string) ([]byte, error) {
		return nil, errors.New("parse error")
	}
	t.Cleanup(func() { compileWGSL = prev })

	res, err := ctx.BuildParticleResources(64)
	if err != nil {
		t.Fatalf("BuildParticleResources() = %v", err)
	}
	if res.Method != particle.RenderMethodStandard {
		t.Errorf("Method = %v, want %v after shader failure", res.Method, particle.RenderMethodStandard)
	}
	if res.Material != nil {
		t.Errorf("Material = %v, want nil after shader failure", res.Material)
	}
	if res.Geometry == nil {
		t.Error("Geometry = nil, geometry must survive shader fallback")
	}
}
