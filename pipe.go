// Package pipe is the driver seam of a Gallium-style rendering core.
//
// A [Screen] is one device: it answers capability and format queries and
// owns textures. A [Context] holds draw state and submits draws. Drivers
// register a factory with [Register]; [CreateScreen] picks one.
//
// Two drivers ship with the module:
//
//   - driver/softpipe rasterizes on the CPU into texture storage.
//   - driver/halpipe encodes command batches for a wgpu HAL device.
//
// Basic usage:
//
//	screen, err := pipe.CreateScreen(alloc.NewHeap(0))
//	if err != nil {
//		return err
//	}
//	defer screen.Destroy()
//
//	ctx, err := screen.CreateContext()
//	...
//	ctx.DrawArrays(vbrender.ModeTriangles, 0, 3)
//	f, err := ctx.Flush(0)
package pipe

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/sampler"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

// Errors shared by drivers.
var (
	// ErrUnsupportedFormat is returned when a driver cannot create or
	// render to a format.
	ErrUnsupportedFormat = errors.New("pipe: unsupported format")

	// ErrNoFramebuffer is returned by draws and clears without a bound
	// color or depth surface.
	ErrNoFramebuffer = errors.New("pipe: no framebuffer bound")

	// ErrInvalidVertexState is returned for vertex elements the driver
	// cannot fetch or a draw outside a vertex buffer.
	ErrInvalidVertexState = errors.New("pipe: invalid vertex state")

	// ErrInvalidIndexSize is returned by DrawElements for index sizes other
	// than 1, 2 or 4.
	ErrInvalidIndexSize = errors.New("pipe: index size must be 1, 2 or 4")

	// ErrDestroyed is returned by objects used after Destroy.
	ErrDestroyed = errors.New("pipe: destroyed")

	// ErrUnsupportedTarget is returned by FlushFrontbuffer for targets it
	// cannot present to.
	ErrUnsupportedTarget = errors.New("pipe: unsupported present target")
)

// Screen is a device.
type Screen interface {
	Name() string
	Vendor() string

	// Param and ParamF return 0 for unknown or unsupported capabilities.
	Param(c Cap) int
	ParamF(c CapF) float32

	IsFormatSupported(f format.Format, target texture.Target, bind texture.Bind) bool

	TextureCreate(tmpl texture.Template) (*texture.Texture, error)
	TextureFromBuffer(tmpl texture.Template, stride int, buf alloc.Buffer) (*texture.Texture, error)

	TexSurface(tex *texture.Texture, face, level, slice int, usage texture.Usage) (texture.Surface, error)
	SurfaceRelease(sf texture.Surface) error

	TexTransfer(tex *texture.Texture, face, level, slice int, usage texture.Usage, x, y, w, h int) (texture.Transfer, error)
	TransferMap(tr texture.Transfer) ([]byte, error)
	TransferUnmap(tr texture.Transfer) error
	TransferRelease(tr texture.Transfer) error

	// FlushFrontbuffer presents a surface to a window-system target: a
	// gpucontext.TextureDrawer or a draw.Image.
	FlushFrontbuffer(sf texture.Surface, target any) error

	// FenceFinish waits up to timeout for f; see fence.Fence.Wait.
	FenceFinish(f fence.Fence, timeout time.Duration) (bool, error)

	CreateContext() (Context, error)
	Destroy() error
}

// Context holds draw state and submits draws. A Context is not safe for
// concurrent use; a device is driven from one goroutine at a time.
type Context interface {
	SetVertexBuffer(slot int, vb VertexBuffer) error
	SetVertexElements(elems []VertexElement) error
	SetFramebuffer(fb Framebuffer) error
	SetSampler(unit int, st sampler.State) error
	SetTexture(unit int, tex *texture.Texture) error
	SetRasterizer(rs Rasterizer) error

	DrawArrays(mode vbrender.Mode, start, count int) error
	DrawElements(indices alloc.Buffer, indexSize int, mode vbrender.Mode, start, count int) error
	Clear(mask ClearMask, color [4]float32, depth float64, stencil uint32) error

	// Flush submits outstanding work and returns a fence for it.
	Flush(flags FlushFlags) (fence.Fence, error)
	Destroy() error
}

// VertexBuffer binds a buffer to a vertex slot.
type VertexBuffer struct {
	Buffer alloc.Buffer
	Stride int
	Offset uint64
}

// Semantic names what a vertex element feeds.
type Semantic uint8

const (
	SemanticPosition Semantic = iota
	SemanticColor
	SemanticTexCoord
)

// String returns the semantic name.
func (s Semantic) String() string {
	switch s {
	case SemanticPosition:
		return "Position"
	case SemanticColor:
		return "Color"
	case SemanticTexCoord:
		return "TexCoord"
	default:
		return "Semantic(?)"
	}
}

// VertexElement describes one attribute in a vertex buffer slot.
type VertexElement struct {
	Semantic Semantic
	Format   gputypes.VertexFormat
	Slot     int
	Offset   int
}

// Framebuffer binds render targets. Width and Height default to the color
// surface size.
type Framebuffer struct {
	Color        *texture.Surface
	DepthStencil *texture.Surface
	Width        int
	Height       int
}

// CullMode selects faces to discard.
type CullMode uint8

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// Rasterizer is the rasterizer state.
type Rasterizer struct {
	FlatShade bool
	FrontCCW  bool
	Cull      CullMode

	// LineStipple enables the 16-bit StipplePattern, each bit repeated
	// StippleFactor times.
	LineStipple    bool
	StipplePattern uint16
	StippleFactor  int

	PointSize float32
}

// DefaultRasterizer returns Gouraud shading, no culling, no stipple and
// one-pixel points.
func DefaultRasterizer() Rasterizer {
	return Rasterizer{FrontCCW: true, StipplePattern: 0xffff, StippleFactor: 1, PointSize: 1}
}

// ClearMask selects buffers to clear.
type ClearMask uint8

const (
	ClearColor ClearMask = 1 << iota
	ClearDepth
	ClearStencil

	ClearDepthStencil = ClearDepth | ClearStencil
)

// FlushFlags modify Flush.
type FlushFlags uint8

const (
	// FlushWait waits for the returned fence before Flush returns.
	FlushWait FlushFlags = 1 << iota
	// FlushFrame marks the end of a frame.
	FlushFrame
)
