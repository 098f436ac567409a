package halpipe

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/cmdbuf"
	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/internal/logging"
	"github.com/gogpu/pipe/sampler"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

// Context encodes draw state and draws into a command batch. State is
// written lazily: the first draw after a state change or a flush re-emits
// every state packet, so each submitted batch stands alone.
type Context struct {
	screen   *Screen
	batch    *cmdbuf.Batch
	renderer *vbrender.Renderer
	ring     *ring
	caps     vbrender.Caps

	vbs      [maxVertexBuffers]pipe.VertexBuffer
	elems    []pipe.VertexElement
	fb       pipe.Framebuffer
	samplers [maxTextureUnits]sampler.State
	textures [maxTextureUnits]*texture.Texture
	rs       pipe.Rasterizer

	// dirty is set when the batch no longer carries the current state.
	dirty bool
	// pending is an encoding error from a callback that cannot return one.
	pending error
	last    segment

	destroyed bool
}

var _ pipe.Context = (*Context)(nil)

// submitter streams flushed batches through the command ring.
type submitter struct{ c *Context }

func newContext(s *Screen, caps vbrender.Caps) (*Context, error) {
	c := &Context{screen: s, caps: caps, rs: pipe.DefaultRasterizer(), dirty: true}
	for i := range c.samplers {
		c.samplers[i] = sampler.State{WrapS: sampler.WrapRepeat, WrapT: sampler.WrapRepeat, NormalizedCoords: true}
	}

	b, err := cmdbuf.New(cmdbuf.Config{CapacityBytes: s.cfg.BatchBytes, MaxRelocs: s.cfg.MaxRelocs}, submitter{c})
	if err != nil {
		return nil, err
	}
	c.batch = b

	r, err := vbrender.New(backend{c})
	if err != nil {
		return nil, err
	}
	c.renderer = r

	rg, err := newRing(s.dev.Device, s.dev.Queue, uint64(s.cfg.BatchBytes)*ringBatches)
	if err != nil {
		return nil, err
	}
	c.ring = rg
	return c, nil
}

func (c *Context) alive() error {
	if c.destroyed {
		return pipe.ErrDestroyed
	}
	return c.screen.Alive()
}

// Submit writes the words to the ring and submits them to the queue. The
// next draw re-emits state into the fresh batch.
func (s submitter) Submit(words []uint32, _ []cmdbuf.Reloc) (fence.Fence, error) {
	c := s.c
	c.dirty = true

	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	off, err := c.ring.write(data)
	if err != nil {
		return nil, err
	}
	idx, err := c.screen.dev.Queue.Submit(nil)
	if err != nil {
		return nil, fmt.Errorf("halpipe: queue submit: %w", err)
	}
	f := fence.NewTimeline(idx, c.screen.dev.Queue.PollCompleted)
	c.last = segment{start: off, end: off + uint64(len(data)), fence: f}
	c.ring.track(off, c.last.end, f)
	return f, nil
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
	c.dirty = true
	return nil
}

// SetVertexElements sets the vertex layout. Any WebGPU vertex format is
// accepted; offsets must fit 16 bits.
func (c *Context) SetVertexElements(elems []pipe.VertexElement) error {
	if len(elems) > maxVertexElems {
		return fmt.Errorf("%w: %d elements", pipe.ErrInvalidVertexState, len(elems))
	}
	for _, e := range elems {
		if e.Slot < 0 || e.Slot >= maxVertexBuffers || e.Offset < 0 || e.Offset > 0xffff ||
			e.Format.Size() == 0 || e.Format > 0xff {
			return fmt.Errorf("%w: %s %s in slot %d", pipe.ErrInvalidVertexState, e.Semantic, e.Format, e.Slot)
		}
	}
	c.elems = append(c.elems[:0], elems...)
	c.dirty = true
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
	c.dirty = true
	return nil
}

func addressMode(w sampler.WrapMode) (gputypes.AddressMode, bool) {
	switch w {
	case sampler.WrapRepeat:
		return gputypes.AddressModeRepeat, true
	case sampler.WrapMirrorRepeat:
		return gputypes.AddressModeMirrorRepeat, true
	case sampler.WrapClampToEdge:
		return gputypes.AddressModeClampToEdge, true
	}
	return 0, false
}

func filterMode(f sampler.Filter) gputypes.FilterMode {
	if f == sampler.FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

// SetSampler sets the sampler state of a texture unit. Only repeat,
// mirrored repeat and clamp-to-edge wrapping with normalized coordinates
// map to the device.
func (c *Context) SetSampler(unit int, st sampler.State) error {
	if unit < 0 || unit >= maxTextureUnits {
		return fmt.Errorf("halpipe: texture unit %d", unit)
	}
	for _, w := range [2]sampler.WrapMode{st.WrapS, st.WrapT} {
		if _, ok := addressMode(w); !ok || !st.NormalizedCoords {
			return &sampler.UnsupportedError{Wrap: w, Normalized: st.NormalizedCoords}
		}
	}
	c.samplers[unit] = st
	c.dirty = true
	return nil
}

// SetTexture binds tex to a unit; nil unbinds it.
func (c *Context) SetTexture(unit int, tex *texture.Texture) error {
	if unit < 0 || unit >= maxTextureUnits {
		return fmt.Errorf("halpipe: texture unit %d", unit)
	}
	c.textures[unit] = tex
	c.dirty = true
	return nil
}

// SetRasterizer sets the rasterizer state.
func (c *Context) SetRasterizer(rs pipe.Rasterizer) error {
	c.rs = rs
	c.renderer.SetFlatShade(rs.FlatShade)
	c.dirty = true
	return nil
}

// check validates the bound state before a draw.
func (c *Context) check() error {
	if err := c.alive(); err != nil {
		return err
	}
	if c.fb.Color == nil {
		return pipe.ErrNoFramebuffer
	}
	for _, e := range c.elems {
		if c.vbs[e.Slot].Buffer == nil {
			return fmt.Errorf("%w: no buffer in slot %d", pipe.ErrInvalidVertexState, e.Slot)
		}
	}
	return nil
}

// draw runs fn and returns its error or the first deferred encoding error.
func (c *Context) draw(fn func() error) error {
	if err := c.check(); err != nil {
		return err
	}
	err := fn()
	if err == nil {
		err = c.pending
	}
	c.pending = nil
	return err
}

// DrawArrays encodes count vertices from start.
func (c *Context) DrawArrays(mode vbrender.Mode, start, count int) error {
	return c.draw(func() error {
		return c.renderer.Render(vbrender.Prim{Mode: mode, Start: start, Count: count, Flags: vbrender.FlagsWhole})
	})
}

// indexedModes are the modes the device draws from an index buffer
// directly.
var indexedModes = map[vbrender.Mode]vbrender.HWPrim{
	vbrender.ModePoints:        vbrender.HWPoints,
	vbrender.ModeLines:         vbrender.HWLines,
	vbrender.ModeLineStrip:     vbrender.HWLineStrip,
	vbrender.ModeTriangles:     vbrender.HWTriangles,
	vbrender.ModeTriangleStrip: vbrender.HWTriangleStrip,
}

// DrawElements encodes count indices from index start of indices. 16 and
// 32-bit indices of natively drawn modes are read by the device; other
// draws are decoded on the CPU and decomposed.
func (c *Context) DrawElements(indices alloc.Buffer, indexSize int, mode vbrender.Mode, start, count int) error {
	if indices == nil {
		return fmt.Errorf("%w: no index buffer", pipe.ErrInvalidVertexState)
	}
	if indexSize != 1 && indexSize != 2 && indexSize != 4 {
		return pipe.ErrInvalidIndexSize
	}
	if start < 0 || count < 0 || uint64(start+count)*uint64(indexSize) > indices.Size() {
		return fmt.Errorf("%w: indices [%d, %d) outside %d-byte buffer", pipe.ErrInvalidVertexState, start, start+count, indices.Size())
	}
	return c.draw(func() error {
		if hw, ok := indexedModes[mode]; ok && indexSize != 1 {
			return c.drawIndexed(hw, indices, indexSize, start, count)
		}
		data, err := indices.Map(alloc.AccessRead)
		if err != nil {
			return err
		}
		elts, err := pipe.DecodeIndices(data, indexSize, start, count)
		if uerr := indices.Unmap(); err == nil {
			err = uerr
		}
		if err != nil {
			return err
		}
		return c.renderer.RenderElts(elts, vbrender.Prim{Mode: mode, Count: count, Flags: vbrender.FlagsWhole})
	})
}

func (c *Context) drawIndexed(hw vbrender.HWPrim, indices alloc.Buffer, indexSize, start, count int) error {
	if count == 0 {
		return nil
	}
	top, _ := hw.Topology()
	e, err := c.begin(5, 1)
	if err != nil {
		return err
	}
	e.Word(header(OpDrawIndexed, 4))
	e.Word(uint32(top))
	e.Reloc(indices, alloc.AccessRead, uint32(start*indexSize))
	e.Word(uint32(count))
	e.Word(uint32(indexSize))
	return e.Close()
}

// Clear encodes a clear of the bound surfaces selected by mask.
func (c *Context) Clear(mask pipe.ClearMask, color [4]float32, depth float64, stencil uint32) error {
	if err := c.alive(); err != nil {
		return err
	}
	if mask&pipe.ClearColor != 0 && c.fb.Color == nil {
		return pipe.ErrNoFramebuffer
	}
	if mask&pipe.ClearDepthStencil != 0 && c.fb.DepthStencil == nil {
		return pipe.ErrNoFramebuffer
	}
	e, err := c.begin(8, 0)
	if err != nil {
		return err
	}
	e.Word(header(OpClear, 7))
	e.Word(uint32(mask))
	for _, v := range color {
		e.Float(v)
	}
	e.Float(float32(depth))
	e.Word(stencil & 0xff)
	return e.Close()
}

// Flush submits the batch. With FlushWait it also waits for the device.
func (c *Context) Flush(flags pipe.FlushFlags) (fence.Fence, error) {
	if err := c.alive(); err != nil {
		return nil, err
	}
	f, err := c.batch.Flush()
	if err != nil {
		return nil, err
	}
	if flags&pipe.FlushWait != 0 {
		if _, err := f.Wait(fence.Infinite); err != nil {
			return nil, err
		}
	}
	if flags&pipe.FlushFrame != 0 {
		logging.Logger().Debug("halpipe: frame",
			"flushes", c.batch.Flushes(), "batches", c.renderer.Batches(), "ring_busy", c.ring.busy())
	}
	return f, nil
}

// Destroy drops unsubmitted work and releases the command ring.
func (c *Context) Destroy() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	err := c.batch.Reset()
	c.ring.destroy()
	c.textures = [maxTextureUnits]*texture.Texture{}
	c.vbs = [maxVertexBuffers]pipe.VertexBuffer{}
	return err
}
