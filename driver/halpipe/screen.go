// Package halpipe is the hardware driver. Draw state and draws are encoded
// into cmdbuf batches of packets; a flush streams the batch into a command
// ring on a wgpu HAL device and submits it to the device queue.
//
// halpipe needs an open device, handed over with pipe.WithHAL:
//
//	s, err := pipe.CreateScreen(nil, pipe.WithHAL(pipe.HALDevice{
//		Adapter: adapter,
//		Device:  dev.Device,
//		Queue:   dev.Queue,
//	}))
//
// Without one the factory fails and automatic selection falls through to
// the next driver.
package halpipe

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/internal/logging"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

// Name is the registered driver name.
const Name = "halpipe"

// Priority ranks halpipe above the software driver.
const Priority = 100

const (
	maxTextureUnits  = 1
	maxVertexBuffers = 4
	maxVertexElems   = 8

	// ringBatches is how many full batches the command ring holds.
	ringBatches = 4

	// maxStateWords and maxStateRelocs bound the state packets at the head
	// of a batch: framebuffer with two surfaces, every vertex buffer, every
	// vertex element, a bound texture and the rasterizer.
	maxStateWords  = 2 + 4*2 + 4*maxVertexBuffers + 1 + maxVertexElems + 6 + 4
	maxStateRelocs = 2 + maxVertexBuffers + 1

	// inlineWords is the DrawInline packet without its indices.
	inlineWords = 3
	// minElts is the smallest element batch vbrender accepts.
	minElts = 6
)

// ErrNoDevice is returned by the factory without a HAL device.
var ErrNoDevice = errors.New("halpipe: no HAL device")

func init() {
	pipe.Register(Name, Priority, func(a alloc.Allocator, o *pipe.Options) (pipe.Screen, error) {
		if o.HAL == nil {
			return nil, ErrNoDevice
		}
		return New(a, *o.HAL, o.Config)
	})
}

const (
	colorBinds = texture.BindSampler | texture.BindRenderTarget | texture.BindDisplayTarget | texture.BindTransfer
	depthBinds = texture.BindDepthStencil | texture.BindTransfer
)

// allowed lists every format the packet stream can describe, with the
// bindings it may take.
var allowed = map[format.Format]texture.Bind{
	format.FormatRGBA8Unorm:     colorBinds,
	format.FormatBGRA8Unorm:     colorBinds,
	format.FormatRGBA8Srgb:      colorBinds,
	format.FormatBGRA8Srgb:      colorBinds,
	format.FormatRGBA8Snorm:     texture.BindSampler | texture.BindTransfer,
	format.FormatR8Unorm:        texture.BindSampler | texture.BindRenderTarget | texture.BindTransfer,
	format.FormatRG8Unorm:       texture.BindSampler | texture.BindRenderTarget | texture.BindTransfer,
	format.FormatRGB10A2Unorm:   texture.BindSampler | texture.BindRenderTarget | texture.BindTransfer,
	format.FormatZ16Unorm:       depthBinds,
	format.FormatZ24UnormS8Uint: depthBinds,
}

// Screen is a HAL device.
type Screen struct {
	*pipe.ScreenBase

	dev    pipe.HALDevice
	cfg    config.Config
	caps   pipe.CapTable
	shader hal.ShaderModule

	// maxElts is cfg.MaxElts clamped so a DrawInline packet and the state
	// before it fit in one batch.
	maxElts int
}

var _ pipe.Screen = (*Screen)(nil)

// New creates a screen on dev. A nil allocator allocates from the device.
// Failing to build the draw shader is logged and leaves the screen usable
// for command encoding.
func New(a alloc.Allocator, dev pipe.HALDevice, cfg config.Config) (*Screen, error) {
	if dev.Device == nil || dev.Queue == nil {
		return nil, ErrNoDevice
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if a == nil {
		a = alloc.NewHAL(dev.Device)
	}
	if dev.Limits == (gputypes.Limits{}) {
		dev.Limits = gputypes.DefaultLimits()
	}
	maxElts, err := batchElts(cfg)
	if err != nil {
		return nil, err
	}

	s := &Screen{dev: dev, cfg: cfg, maxElts: maxElts, caps: capTable(dev.Limits, cfg, maxElts)}
	s.ScreenBase = pipe.NewScreenBase(a, cfg, s.supports)

	shader, err := createShader(dev.Device)
	if err != nil {
		logging.Logger().Warn("halpipe: draw shader unavailable", "err", err)
	}
	s.shader = shader

	logging.Logger().Debug("halpipe: screen created", "batch_bytes", cfg.BatchBytes, "shader", shader != nil)
	return s, nil
}

// batchElts returns the element batch size that fits a batch after the
// largest state prefix.
func batchElts(cfg config.Config) (int, error) {
	room := cfg.BatchBytes/4 - maxStateWords - inlineWords
	if room < minElts {
		return 0, fmt.Errorf("%w: batch_bytes %d leaves room for %d inline elements, need %d",
			config.ErrInvalid, cfg.BatchBytes, max(room, 0), minElts)
	}
	if cfg.MaxRelocs < maxStateRelocs+1 {
		return 0, fmt.Errorf("%w: max_relocs %d below the %d a draw may need",
			config.ErrInvalid, cfg.MaxRelocs, maxStateRelocs+1)
	}
	if room < cfg.MaxElts {
		logging.Logger().Debug("halpipe: element batch clamped to batch size", "max_elts", cfg.MaxElts, "clamped", room)
		return room, nil
	}
	return cfg.MaxElts, nil
}

func levels(dim uint32) int {
	return min(bits.Len32(dim), texture.MaxLevels)
}

func capTable(lim gputypes.Limits, cfg config.Config, maxElts int) pipe.CapTable {
	return pipe.CapTable{
		Ints: map[pipe.Cap]int{
			pipe.CapMaxTexture2DLevels:   levels(lim.MaxTextureDimension2D),
			pipe.CapMaxTexture3DLevels:   levels(lim.MaxTextureDimension3D),
			pipe.CapMaxTextureCubeLevels: levels(lim.MaxTextureDimension2D),
			pipe.CapMaxRenderTargets:     min(int(lim.MaxColorAttachments), 1),
			pipe.CapMaxTextureUnits:      min(int(lim.MaxSampledTexturesPerShaderStage), maxTextureUnits),
			pipe.CapMaxVertexBuffers:     min(int(lim.MaxVertexBuffers), maxVertexBuffers),
			pipe.CapMaxVertexElements:    min(int(lim.MaxVertexAttributes), maxVertexElems),
			pipe.CapNPOTTextures:         1,
			pipe.CapTextureMirrorRepeat:  1,
			pipe.CapQuadPrimitives:       1,
			pipe.CapFlatShading:          1,
			pipe.CapMaxBatchVerts:        cfg.MaxVerts,
			pipe.CapMaxBatchElts:         maxElts,
		},
		Floats: map[pipe.CapF]float32{
			pipe.CapFMaxLineWidth:  1,
			pipe.CapFMaxPointWidth: 1,
		},
	}
}

// supports checks the allowlist, then the adapter's capabilities for the
// format.
func (s *Screen) supports(f format.Format, _ texture.Target, bind texture.Bind) bool {
	ok, known := allowed[f]
	if !known || bind&^ok != 0 {
		return false
	}
	if s.dev.Adapter == nil {
		return true
	}
	flags := s.dev.Adapter.TextureFormatCapabilities(f.GPU()).Flags
	if bind&texture.BindSampler != 0 && flags&hal.TextureFormatCapabilitySampled == 0 {
		return false
	}
	attach := texture.BindRenderTarget | texture.BindDisplayTarget | texture.BindDepthStencil
	if bind&attach != 0 && flags&hal.TextureFormatCapabilityRenderAttachment == 0 {
		return false
	}
	return true
}

// Name returns "halpipe".
func (s *Screen) Name() string { return Name }

// Vendor returns the vendor string.
func (s *Screen) Vendor() string { return "gogpu" }

// Param returns an integer capability.
func (s *Screen) Param(c pipe.Cap) int { return s.caps.Param(c) }

// ParamF returns a float capability.
func (s *Screen) ParamF(c pipe.CapF) float32 { return s.caps.ParamF(c) }

// ShaderReady reports whether the draw shader module was created.
func (s *Screen) ShaderReady() bool { return s.shader != nil }

// prims are the primitives with a WebGPU topology. Fans, loops, quads and
// polygons are decomposed into lists.
var prims = vbrender.Prims(vbrender.HWPoints, vbrender.HWLines, vbrender.HWLineStrip,
	vbrender.HWTriangles, vbrender.HWTriangleStrip)

// CreateContext creates a draw context with its own batch and command ring.
func (s *Screen) CreateContext() (pipe.Context, error) {
	if err := s.Alive(); err != nil {
		return nil, err
	}
	return newContext(s, vbrender.Caps{
		Native:   prims,
		MaxVerts: s.cfg.MaxVerts,
		MaxElts:  s.maxElts,
	})
}

// Destroy releases the draw shader. The HAL device stays open; it belongs
// to the caller.
func (s *Screen) Destroy() error {
	if !s.MarkDestroyed() {
		return nil
	}
	if s.shader != nil {
		s.dev.Device.DestroyShaderModule(s.shader)
		s.shader = nil
	}
	logging.Logger().Debug("halpipe: screen destroyed")
	return nil
}
