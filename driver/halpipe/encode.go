package halpipe

import (
	"fmt"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/cmdbuf"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

// begin reserves n words and relocs relocations for one packet, preceded
// by the state packets when the batch does not carry them yet. A reserve
// that flushed a full batch leaves the state missing from the new one, so
// the reservation is dropped and taken again with the state included.
func (c *Context) begin(n, relocs int) (*cmdbuf.Emitter, error) {
	for range 2 {
		sw, sr := 0, 0
		if c.dirty {
			var err error
			if sw, sr, err = c.stateSize(); err != nil {
				return nil, err
			}
		}
		e, err := c.batch.ReserveOrFlush(sw+n, sr+relocs)
		if err != nil {
			return nil, err
		}
		if sw == 0 && c.dirty {
			if err := e.Close(); err != nil {
				return nil, err
			}
			continue
		}
		if sw > 0 {
			c.emitState(e)
			c.dirty = false
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: state and packet exceed an empty batch", cmdbuf.ErrNoSpace)
}

// surfaceTexture resolves a surface to its texture.
func (c *Context) surfaceTexture(sf *texture.Surface) (*texture.Texture, error) {
	t, ok := c.screen.Store().Lookup(sf.Texture)
	if !ok {
		return nil, fmt.Errorf("%w: %d", texture.ErrUnknownTexture, sf.Texture)
	}
	return t, nil
}

// stateSize returns the words and relocations of the state packets.
func (c *Context) stateSize() (words, relocs int, err error) {
	words, relocs = 2, 0
	for _, sf := range [2]*texture.Surface{c.fb.Color, c.fb.DepthStencil} {
		if sf == nil {
			continue
		}
		if _, err := c.surfaceTexture(sf); err != nil {
			return 0, 0, err
		}
		words += 4
		relocs++
	}
	for _, vb := range c.vbs {
		if vb.Buffer != nil {
			words += 4
			relocs++
		}
	}
	words += 1 + len(c.elems)
	if c.textures[0] != nil {
		words += 6
		relocs++
	} else {
		words++
	}
	words += 4
	return words, relocs, nil
}

// emitState writes the state packets in the order the device applies
// them: framebuffer, vertex buffers, vertex elements, texture, rasterizer.
func (c *Context) emitState(e *cmdbuf.Emitter) {
	var flags uint32
	n := 1
	if c.fb.Color != nil {
		flags |= fbColor
		n += 4
	}
	if c.fb.DepthStencil != nil {
		flags |= fbDepthStencil
		n += 4
	}
	e.Word(header(OpFramebuffer, n))
	e.Word(flags)
	for _, sf := range [2]*texture.Surface{c.fb.Color, c.fb.DepthStencil} {
		if sf == nil {
			continue
		}
		t, _ := c.surfaceTexture(sf)
		e.Reloc(t.Buffer(), alloc.AccessReadWrite, uint32(sf.Offset))
		e.Word(uint32(sf.Stride))
		e.Word(packSize(c.fb.Width, c.fb.Height))
		e.Word(uint32(t.Format().GPU()))
	}

	for slot, vb := range c.vbs {
		if vb.Buffer == nil {
			continue
		}
		e.Word(header(OpVertexBuffer, 3))
		e.Word(uint32(slot))
		e.Reloc(vb.Buffer, alloc.AccessRead, uint32(vb.Offset))
		e.Word(uint32(vb.Stride))
	}

	e.Word(header(OpVertexElements, len(c.elems)))
	for _, el := range c.elems {
		e.Word(packElement(int(el.Semantic), el.Slot, uint32(el.Format), el.Offset))
	}

	if t := c.textures[0]; t != nil {
		st := c.samplers[0]
		wrapS, _ := addressMode(st.WrapS)
		wrapT, _ := addressMode(st.WrapT)
		e.Word(header(OpTexture, 5))
		e.Reloc(t.Buffer(), alloc.AccessRead, uint32(t.LevelOffset(0)))
		e.Word(uint32(t.Stride(0)))
		e.Word(packSize(t.LevelWidth(0), t.LevelHeight(0)))
		e.Word(uint32(t.Format().GPU()))
		last := t.LastLevel()
		if st.MaxLevel > 0 {
			last = min(st.MaxLevel, last)
		}
		base := min(max(st.BaseLevel, 0), last)
		e.Word(packSampler(wrapS, wrapT, st, base, last))
	} else {
		e.Word(header(OpTexture, 0))
	}

	rf := uint32(c.rs.Cull) << rsCullShift
	if c.rs.FlatShade {
		rf |= rsFlat
	}
	if c.rs.FrontCCW {
		rf |= rsFrontCCW
	}
	if c.rs.LineStipple {
		rf |= rsLineStipple
	}
	e.Word(header(OpRasterizer, 3))
	e.Word(rf)
	e.Word(uint32(c.rs.StipplePattern) | uint32(max(c.rs.StippleFactor, 1))<<16)
	e.Float(max(c.rs.PointSize, 1))
}

// backend feeds vbrender batches into the context's command batch.
type backend struct{ c *Context }

func (b backend) Caps() vbrender.Caps { return b.c.caps }

// Emit encodes a contiguous batch as Draw and an element batch as
// DrawInline with the indices in the packet.
func (b backend) Emit(bt vbrender.Batch) error {
	top, ok := bt.Prim.Topology()
	if !ok {
		return fmt.Errorf("halpipe: %s has no device topology", bt.Prim)
	}
	if bt.Elts == nil {
		e, err := b.c.begin(4, 0)
		if err != nil {
			return err
		}
		e.Words(header(OpDraw, 3), uint32(top), uint32(bt.Start), uint32(bt.Count))
		return e.Close()
	}
	e, err := b.c.begin(3+len(bt.Elts), 0)
	if err != nil {
		return err
	}
	e.Words(header(OpDrawInline, 2+len(bt.Elts)), uint32(top), uint32(len(bt.Elts)))
	e.Words(bt.Elts...)
	return e.Close()
}

// ResetLineStipple encodes a stipple restart when stippling is on. An
// encoding failure surfaces from the draw in progress.
func (b backend) ResetLineStipple() {
	c := b.c
	if !c.rs.LineStipple || c.pending != nil {
		return
	}
	e, err := c.begin(1, 0)
	if err != nil {
		c.pending = err
		return
	}
	e.Word(header(OpResetStipple, 0))
	c.pending = e.Close()
}
