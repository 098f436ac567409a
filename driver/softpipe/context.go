package softpipe

import (
	"errors"
	"fmt"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/internal/logging"
	"github.com/gogpu/pipe/sampler"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

// Context is a software draw context. Draws complete before they return.
type Context struct {
	screen   *Screen
	rast     rasterizer
	renderer *vbrender.Renderer
	fetch    fetcher
	maps     mappings

	vbs      [maxVertexBuffers]pipe.VertexBuffer
	elems    []pipe.VertexElement
	fb       pipe.Framebuffer
	samplers [maxTextureUnits]sampler.State
	textures [maxTextureUnits]*texture.Texture
	rs       pipe.Rasterizer

	draws     uint64
	destroyed bool
}

var _ pipe.Context = (*Context)(nil)

func newContext(s *Screen, caps vbrender.Caps) (*Context, error) {
	c := &Context{screen: s, rs: pipe.DefaultRasterizer()}
	c.rast.caps = caps
	c.rast.fetch = &c.fetch
	r, err := vbrender.New(&c.rast)
	if err != nil {
		return nil, err
	}
	c.renderer = r
	for i := range c.samplers {
		c.samplers[i] = sampler.State{WrapS: sampler.WrapRepeat, WrapT: sampler.WrapRepeat, NormalizedCoords: true}
	}
	return c, nil
}

func (c *Context) alive() error {
	if c.destroyed {
		return pipe.ErrDestroyed
	}
	return c.screen.Alive()
}

// SetVertexBuffer binds vb to slot.
func (c *Context) SetVertexBuffer(slot int, vb pipe.VertexBuffer) error {
	if slot < 0 || slot >= maxVertexBuffers {
		return fmt.Errorf("%w: vertex buffer slot %d", pipe.ErrInvalidVertexState, slot)
	}
	if vb.Buffer != nil && vb.Stride <= 0 {
		return fmt.Errorf("%w: stride %d", pipe.ErrInvalidVertexState, vb.Stride)
	}
	c.vbs[slot] = vb
	return nil
}

// SetVertexElements sets the vertex layout. Float32 vectors and Unorm8x4
// are supported.
func (c *Context) SetVertexElements(elems []pipe.VertexElement) error {
	if len(elems) > maxVertexElems {
		return fmt.Errorf("%w: %d elements", pipe.ErrInvalidVertexState, len(elems))
	}
	for _, e := range elems {
		if e.Slot < 0 || e.Slot >= maxVertexBuffers || e.Offset < 0 || !supportedVertexFormat(e.Format) {
			return fmt.Errorf("%w: %s %s in slot %d", pipe.ErrInvalidVertexState, e.Semantic, e.Format, e.Slot)
		}
	}
	c.elems = append(c.elems[:0], elems...)
	return nil
}

// SetFramebuffer binds render targets.
func (c *Context) SetFramebuffer(fb pipe.Framebuffer) error {
	if fb.Color != nil {
		if fb.Width == 0 {
			fb.Width = fb.Color.Width
		}
		if fb.Height == 0 {
			fb.Height = fb.Color.Height
		}
	}
	c.fb = fb
	return nil
}

// SetSampler sets the sampler state of a texture unit.
func (c *Context) SetSampler(unit int, st sampler.State) error {
	if unit < 0 || unit >= maxTextureUnits {
		return fmt.Errorf("softpipe: texture unit %d", unit)
	}
	c.samplers[unit] = st
	return nil
}

// SetTexture binds tex to a unit; nil unbinds it.
func (c *Context) SetTexture(unit int, tex *texture.Texture) error {
	if unit < 0 || unit >= maxTextureUnits {
		return fmt.Errorf("softpipe: texture unit %d", unit)
	}
	c.textures[unit] = tex
	return nil
}

// SetRasterizer sets the rasterizer state.
func (c *Context) SetRasterizer(rs pipe.Rasterizer) error {
	c.rs = rs
	c.renderer.SetFlatShade(rs.FlatShade)
	return nil
}

// DrawArrays draws count vertices from start.
func (c *Context) DrawArrays(mode vbrender.Mode, start, count int) error {
	return c.draw(func() error {
		return c.renderer.Render(vbrender.Prim{Mode: mode, Start: start, Count: count, Flags: vbrender.FlagsWhole})
	})
}

// DrawElements draws count indices from index start of indices.
func (c *Context) DrawElements(indices alloc.Buffer, indexSize int, mode vbrender.Mode, start, count int) error {
	if indices == nil {
		return fmt.Errorf("%w: no index buffer", pipe.ErrInvalidVertexState)
	}
	return c.draw(func() error {
		data, err := c.maps.get(indices)
		if err != nil {
			return err
		}
		elts, err := pipe.DecodeIndices(data, indexSize, start, count)
		if err != nil {
			return err
		}
		return c.renderer.RenderElts(elts, vbrender.Prim{Mode: mode, Count: count, Flags: vbrender.FlagsWhole})
	})
}

// draw maps the framebuffer, texture and vertex buffers around fn.
func (c *Context) draw(fn func() error) (err error) {
	if err := c.alive(); err != nil {
		return err
	}
	if c.fb.Color == nil {
		return pipe.ErrNoFramebuffer
	}

	dst, err := c.screen.MapSurface(*c.fb.Color, true)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, dst.Unmap()) }()
	codec, err := format.NewCodec(dst.Format)
	if err != nil {
		return fmt.Errorf("%w: render to %s: %w", pipe.ErrUnsupportedFormat, dst.Format, err)
	}
	dst.Width, dst.Height = min(dst.Width, c.fb.Width), min(dst.Height, c.fb.Height)

	tex, srcs, err := c.bindTexture()
	if err != nil {
		return err
	}
	for _, src := range srcs {
		defer func() { err = errors.Join(err, src.Unmap()) }()
	}

	defer func() { err = errors.Join(err, c.maps.release()) }()
	if err := c.fetch.bind(&c.maps, c.vbs[:], c.elems); err != nil {
		return err
	}

	c.rast.dst = dst
	c.rast.codec = codec
	c.rast.bpp = dst.Format.BlockSize()
	c.rast.tex = tex
	c.rast.rs = c.rs
	defer func() { c.rast.dst, c.rast.tex = nil, nil }()

	c.draws++
	return fn()
}

// bindTexture maps the levels of the texture on unit 0 that its sampler
// state can reach and builds the sampler. Both results are empty without
// a bound texture.
func (c *Context) bindTexture() (*sampler.Sampler, []*pipe.MappedSurface, error) {
	t := c.textures[0]
	if t == nil {
		return nil, nil, nil
	}
	st := c.samplers[0]
	last := t.LastLevel()
	if st.MaxLevel > 0 {
		last = min(st.MaxLevel, last)
	}
	if st.MipFilter == sampler.MipNone {
		last = min(st.BaseLevel, last)
	}

	var (
		maps   []*pipe.MappedSurface
		images []sampler.Image
	)
	unmap := func() error {
		var errs []error
		for _, m := range maps {
			errs = append(errs, m.Unmap())
		}
		return errors.Join(errs...)
	}
	for l := 0; l <= last; l++ {
		src, err := c.screen.MapSurface(texture.Surface{
			Texture: t.ID(),
			Level:   l,
			Width:   t.LevelWidth(l),
			Height:  t.LevelHeight(l),
		}, false)
		if err != nil {
			return nil, nil, errors.Join(err, unmap())
		}
		maps = append(maps, src)
		images = append(images, sampler.Image{
			Format: src.Format,
			Width:  src.Width,
			Height: src.Height,
			Stride: src.Stride,
			Data:   src.Pix,
		})
	}
	smp, err := sampler.New(st, images...)
	if err != nil {
		return nil, nil, errors.Join(err, unmap())
	}
	return smp, maps, nil
}

// Clear fills the bound surfaces selected by mask.
func (c *Context) Clear(mask pipe.ClearMask, color [4]float32, depth float64, stencil uint32) error {
	if err := c.alive(); err != nil {
		return err
	}
	if mask&pipe.ClearColor != 0 {
		if c.fb.Color == nil {
			return pipe.ErrNoFramebuffer
		}
		if err := c.fill(*c.fb.Color, func(cd *format.Codec, _ uint32) uint32 { return cd.Pack(color) }); err != nil {
			return err
		}
	}
	if mask&pipe.ClearDepthStencil != 0 {
		if c.fb.DepthStencil == nil {
			return pipe.ErrNoFramebuffer
		}
		err := c.fill(*c.fb.DepthStencil, func(cd *format.Codec, p uint32) uint32 {
			v := cd.Unpack(p)
			if mask&pipe.ClearDepth != 0 {
				v[0] = float32(depth)
			}
			if mask&pipe.ClearStencil != 0 {
				v[1] = float32(stencil & 0xff)
			}
			return cd.Pack(v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// clearBandRows is the smallest band of rows a clear hands to one worker.
const clearBandRows = 64

// fill rewrites every pixel of sf through fn, in row bands across the
// screen's workers.
func (c *Context) fill(sf texture.Surface, fn func(cd *format.Codec, p uint32) uint32) error {
	m, err := c.screen.MapSurface(sf, true)
	if err != nil {
		return err
	}
	codec, err := format.NewCodec(m.Format)
	if err != nil {
		_ = m.Unmap()
		return fmt.Errorf("%w: clear %s: %w", pipe.ErrUnsupportedFormat, m.Format, err)
	}
	bpp := m.Format.BlockSize()
	c.screen.pool.Rows(m.Height, clearBandRows, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := m.Row(y)
			for x := 0; x < len(row); x += bpp {
				codec.Store(row[x:], fn(codec, codec.Load(row[x:])))
			}
		}
	})
	return m.Unmap()
}

// Flush returns a signaled fence; software draws finish inside the draw
// call.
func (c *Context) Flush(flags pipe.FlushFlags) (fence.Fence, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	if flags&pipe.FlushFrame != 0 {
		logging.Logger().Debug("softpipe: frame", "draws", c.draws, "batches", c.renderer.Batches())
	}
	return fence.Done(), nil
}

// Destroy releases the context.
func (c *Context) Destroy() error {
	c.destroyed = true
	c.textures = [maxTextureUnits]*texture.Texture{}
	c.vbs = [maxVertexBuffers]pipe.VertexBuffer{}
	return nil
}
