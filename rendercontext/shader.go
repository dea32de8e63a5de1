package rendercontext

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	galaxy "github.com/Logrui/next-galaxy-sub000"
	"github.com/Logrui/next-galaxy-sub000/particle"
)

// particleShaderWGSL draws one instance per particle, coloring it from
// the color buffer. The velocity attribute is carried for motion-blur
// style effects in the fragment stage.
const particleShaderWGSL = `
struct Camera {
    view_proj: mat4x4<f32>,
};

@group(0) @binding(0) var<uniform> camera: Camera;

struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) color: vec3<f32>,
    @location(2) velocity: vec3<f32>,
};

struct VertexOutput {
    @builtin(position) clip_position: vec4<f32>,
    @location(0) color: vec3<f32>,
};

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip_position = camera.view_proj * vec4<f32>(in.position, 1.0);
    out.color = in.color;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.color, 1.0);
}
`

// compileWGSL is swapped out by tests exercising the compilation
// fallback.
var compileWGSL = naga.Compile

// compileParticleShader compiles the particle material to SPIR-V words.
func compileParticleShader() ([]uint32, error) {
	spirvBytes, err := compileWGSL(particleShaderWGSL)
	if err != nil {
		return nil, fmt.Errorf("shader compilation failed: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// BuildParticleResources allocates geometry for count particles and
// compiles the particle material, returning the bundle the handoff
// contract carries.
//
// Shader trouble degrades instead of failing: a compilation error
// drops the render method from instanced to standard, and a module
// creation error leaves the material as raw SPIR-V words. Geometry
// allocation failure is a real error.
func (c *Context) BuildParticleResources(count int) (*particle.RenderResources, error) {
	geometry, err := c.CreateParticleGeometry(count)
	if err != nil {
		return nil, err
	}

	res := &particle.RenderResources{
		Geometry:         geometry,
		Method:           particle.RenderMethodInstanced,
		MemoryUsageBytes: geometry.MemoryUsageBytes(),
	}

	code, err := compileParticleShader()
	if err != nil {
		galaxy.Logger().Warn("falling back to standard rendering", "err", err)
		res.Method = particle.RenderMethodStandard
		return res, nil
	}

	if c.halDev == nil {
		res.Material = code
		return res, nil
	}

	module, err := c.halDev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: "galaxy-particle-material",
		Source: hal.ShaderSource{
			SPIRV: code,
		},
	})
	if err != nil {
		galaxy.Logger().Warn("shader module creation failed, carrying spirv words", "err", err)
		res.Material = code
		return res, nil
	}
	res.Material = module
	return res, nil
}
