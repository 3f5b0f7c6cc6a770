package viewer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/throng/internal/bridge/glsubmit"
	"github.com/Faultbox/throng/internal/gpubuf"
	"github.com/Faultbox/throng/internal/logger"
	"github.com/Faultbox/throng/pkg/math"
)

const recordsUnit = 0

const vertexShader = `
#version 410 core

uniform mat4 uViewProj;
uniform samplerBuffer uRecords;
uniform int uFirst;
uniform int uStride;   // texels per record
uniform int uMeta;     // texel offsets inside a record
uniform int uBones;

flat out uint vTier;

void main() {
	int rec = (uFirst + gl_InstanceID) * uStride;
	uvec4 meta = floatBitsToUint(texelFetch(uRecords, rec + uMeta));
	int bones = int(meta.z & 0xffffu);
	vTier = (meta.z >> 16) & 0xffu;
	if (gl_VertexID >= bones) {
		gl_Position = vec4(2.0, 2.0, 2.0, 1.0);
		return;
	}

	int b = rec + uBones + gl_VertexID * 3;
	vec4 joint = vec4(texelFetch(uRecords, b).w, texelFetch(uRecords, b + 1).w, texelFetch(uRecords, b + 2).w, 1.0);
	vec3 world = vec3(
		dot(texelFetch(uRecords, rec), joint),
		dot(texelFetch(uRecords, rec + 1), joint),
		dot(texelFetch(uRecords, rec + 2), joint));

	gl_Position = uViewProj * vec4(world, 1.0);
	gl_PointSize = clamp(40.0 / gl_Position.w, 1.0, 6.0);
}
`

const fragmentShader = `
#version 410 core

flat in uint vTier;
out vec4 FragColor;

const vec3 tierColors[4] = vec3[4](
	vec3(0.95, 0.35, 0.30),
	vec3(0.95, 0.75, 0.30),
	vec3(0.40, 0.85, 0.45),
	vec3(0.35, 0.55, 0.95));

void main() {
	FragColor = vec4(tierColors[min(vTier, 3u)], 1.0);
}
`

// Renderer draws bone points for each packed batch.
type Renderer struct {
	program uint32
	vao     uint32
	host    *glsubmit.Host
	layout  gpubuf.Layout
	log     *zap.Logger

	uViewProj, uFirst int32
}

// NewRenderer initializes OpenGL and compiles the crowd program. The layout
// must come from a builder with manual vertex fetch, so records are whole
// texels.
func NewRenderer(layout gpubuf.Layout, log *zap.Logger) (*Renderer, error) {
	log = logger.OrNop(log)
	if layout.Stride%16 != 0 || layout.Meta%16 != 0 || layout.Bones%16 != 0 {
		return nil, fmt.Errorf("layout %+v is not texel aligned", layout)
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))))

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.PROGRAM_POINT_SIZE)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0)

	program, err := glsubmit.CompileProgram(vertexShader, fragmentShader)
	if err != nil {
		return nil, fmt.Errorf("failed to create shader program: %w", err)
	}
	r := &Renderer{program: program, layout: layout, log: log}

	// Core profile refuses draws without a bound VAO, even with no attributes.
	gl.GenVertexArrays(1, &r.vao)

	gl.UseProgram(program)
	gl.Uniform1i(glsubmit.Uniform(program, "uRecords"), recordsUnit)
	gl.Uniform1i(glsubmit.Uniform(program, "uStride"), int32(layout.Stride/16))
	gl.Uniform1i(glsubmit.Uniform(program, "uMeta"), int32(layout.Meta/16))
	gl.Uniform1i(glsubmit.Uniform(program, "uBones"), int32(layout.Bones/16))
	r.uViewProj = glsubmit.Uniform(program, "uViewProj")
	r.uFirst = glsubmit.Uniform(program, "uFirst")

	r.host, err = glsubmit.New(recordsUnit, r.drawBatch, log.Named("glsubmit"))
	if err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Host returns the bridge host that uploads and draws frames.
func (r *Renderer) Host() *glsubmit.Host { return r.host }

// Begin clears the target and sets the camera for the batches drawn by the
// next submit.
func (r *Renderer) Begin(width, height int, viewProj math.Mat4) {
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	gl.UseProgram(r.program)
	gl.BindVertexArray(r.vao)
	gl.UniformMatrix4fv(r.uViewProj, 1, false, viewProj.Ptr())
}

func (r *Renderer) drawBatch(b gpubuf.Batch, first int) {
	gl.Uniform1i(r.uFirst, int32(first))
	gl.DrawArraysInstanced(gl.POINTS, 0, int32(r.layout.MaxBones), int32(b.Count))
}

// Close releases GL resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	if r.host != nil {
		r.host.Close()
	}
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
	}
	if r.program != 0 {
		gl.DeleteProgram(r.program)
	}
}
