// Package softpipe is the software driver: draws are rasterized on the CPU
// straight into texture storage, so every flush is already complete.
//
// Importing the package registers it with pipe at low priority:
//
//	import _ "github.com/gogpu/pipe/driver/softpipe"
package softpipe

import (
	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/internal/logging"
	"github.com/gogpu/pipe/internal/parallel"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

// Name is the registered driver name.
const Name = "softpipe"

// Priority ranks softpipe below any hardware driver.
const Priority = 10

const (
	maxTextureUnits  = 1
	maxVertexBuffers = 4
	maxVertexElems   = 8
)

func init() {
	pipe.Register(Name, Priority, func(a alloc.Allocator, o *pipe.Options) (pipe.Screen, error) {
		return New(a, o.Config)
	})
}

// blocked lists the bindings each format cannot serve. Every format not
// listed is supported.
var blocked = map[format.Format]texture.Bind{
	format.FormatR32Float:    ^texture.Bind(0),
	format.FormatRGBA16Unorm: ^texture.Bind(0),
	format.FormatDXT1RGBA:    ^texture.Bind(0),
	format.FormatDXT5RGBA:    ^texture.Bind(0),
	format.FormatYUYV:        ^texture.Bind(0),
	format.FormatRGBA8Uint:   texture.BindRenderTarget | texture.BindDisplayTarget,
}

// IsFormatSupported reports whether f can be used with bind. Depth formats
// bind only as depth/stencil and color formats never do.
func IsFormatSupported(f format.Format, target texture.Target, bind texture.Bind) bool {
	if !f.Valid() {
		return false
	}
	if blocked[f]&bind != 0 {
		return false
	}
	if f.IsDepthStencil() {
		return bind&(texture.BindRenderTarget|texture.BindDisplayTarget) == 0
	}
	return bind&texture.BindDepthStencil == 0
}

// Screen is the software device.
type Screen struct {
	*pipe.ScreenBase

	cfg  config.Config
	caps pipe.CapTable

	// pool splits clears into row bands.
	pool *parallel.Pool
}

var _ pipe.Screen = (*Screen)(nil)

// New creates a software screen on a. A nil allocator selects a heap sized
// by the memory budget.
func New(a alloc.Allocator, cfg config.Config) (*Screen, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if a == nil {
		a = alloc.NewHeap(uint64(cfg.MemoryBudgetMB) << 20)
	}
	s := &Screen{
		ScreenBase: pipe.NewScreenBase(a, cfg, IsFormatSupported),
		cfg:        cfg,
		pool:       parallel.NewPool(cfg.Threads),
		caps: pipe.CapTable{
			Ints: map[pipe.Cap]int{
				pipe.CapMaxTexture2DLevels:   texture.MaxLevels - 3,
				pipe.CapMaxTexture3DLevels:   9,
				pipe.CapMaxTextureCubeLevels: texture.MaxLevels - 3,
				pipe.CapMaxRenderTargets:     1,
				pipe.CapMaxTextureUnits:      maxTextureUnits,
				pipe.CapMaxVertexBuffers:     maxVertexBuffers,
				pipe.CapMaxVertexElements:    maxVertexElems,
				pipe.CapNPOTTextures:         1,
				pipe.CapTextureMirrorRepeat:  1,
				pipe.CapTextureMirrorClamp:   1,
				pipe.CapTextureBorderColor:   1,
				pipe.CapLineStipple:          1,
				pipe.CapQuadPrimitives:       1,
				pipe.CapFlatShading:          1,
				pipe.CapMaxBatchVerts:        cfg.MaxVerts,
				pipe.CapMaxBatchElts:         cfg.MaxElts,
			},
			Floats: map[pipe.CapF]float32{
				pipe.CapFMaxLineWidth:  1,
				pipe.CapFMaxPointWidth: 64,
			},
		},
	}
	logging.Logger().Debug("softpipe: screen created",
		"max_verts", cfg.MaxVerts, "max_elts", cfg.MaxElts, "threads", s.pool.Workers())
	return s, nil
}

// Name returns "softpipe".
func (s *Screen) Name() string { return Name }

// Vendor returns the vendor string.
func (s *Screen) Vendor() string { return "gogpu" }

// Param returns an integer capability.
func (s *Screen) Param(c pipe.Cap) int { return s.caps.Param(c) }

// ParamF returns a float capability.
func (s *Screen) ParamF(c pipe.CapF) float32 { return s.caps.ParamF(c) }

// prims are the primitives the rasterizer draws itself; quads, quad strips
// and polygons arrive decomposed.
var prims = vbrender.Prims(vbrender.HWPoints, vbrender.HWLines, vbrender.HWLineStrip,
	vbrender.HWTriangles, vbrender.HWTriangleStrip, vbrender.HWTriangleFan)

// CreateContext creates a draw context.
func (s *Screen) CreateContext() (pipe.Context, error) {
	if err := s.Alive(); err != nil {
		return nil, err
	}
	return newContext(s, vbrender.Caps{
		Native:      prims,
		StripParity: true,
		MaxVerts:    s.cfg.MaxVerts,
		MaxElts:     s.cfg.MaxElts,
	})
}

// Destroy marks the screen destroyed and stops its workers. Textures stay
// valid until released.
func (s *Screen) Destroy() error {
	if s.MarkDestroyed() {
		s.pool.Close()
		logging.Logger().Debug("softpipe: screen destroyed")
	}
	return nil
}
