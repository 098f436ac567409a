package vbrender

import (
	"errors"
	"fmt"
)

// ErrInvalidPrim is returned for an unknown mode or a range outside the
// vertex or element array.
var ErrInvalidPrim = errors.New("vbrender: invalid primitive")

// source addresses the vertices of one call: consecutive indices from base
// on the verts path, elts[base:] on the elts path.
type source struct {
	elts []uint32
	base int
}

func (s source) at(i int) uint32 {
	if s.elts != nil {
		return s.elts[s.base+i]
	}
	return uint32(s.base + i)
}

// Renderer turns primitive runs into backend batches.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	be      Backend
	caps    Caps
	flat    bool
	scratch []uint32
	batches uint64

	// First vertex of a line loop opened by an earlier call.
	loopFirst uint32
	loopOpen  bool
}

// New creates a renderer for be.
func New(be Backend) (*Renderer, error) {
	caps := be.Caps()
	if err := caps.validate(); err != nil {
		return nil, err
	}
	return &Renderer{
		be:      be,
		caps:    caps,
		scratch: make([]uint32, 0, caps.MaxElts),
	}, nil
}

// Caps returns the backend caps the renderer was created with.
func (r *Renderer) Caps() Caps { return r.caps }

// SetFlatShade selects flat shading. Decompositions then keep the logical
// primitive's provoking vertex last in every emitted triangle.
func (r *Renderer) SetFlatShade(on bool) { r.flat = on }

// FlatShade reports whether flat shading is selected.
func (r *Renderer) FlatShade() bool { return r.flat }

// Batches returns the number of batches emitted so far.
func (r *Renderer) Batches() uint64 { return r.batches }

// Render draws p from the vertex array.
func (r *Renderer) Render(p Prim) error {
	if !p.Mode.Valid() || p.Start < 0 || p.Count < 0 {
		return fmt.Errorf("%w: %s start %d count %d", ErrInvalidPrim, p.Mode, p.Start, p.Count)
	}
	return r.draw(source{base: p.Start}, p)
}

// RenderElts draws p through elts; Start and Count select a range of elts.
func (r *Renderer) RenderElts(elts []uint32, p Prim) error {
	if !p.Mode.Valid() || p.Start < 0 || p.Count < 0 || p.Start+p.Count > len(elts) {
		return fmt.Errorf("%w: %s elements [%d,+%d) of %d", ErrInvalidPrim, p.Mode, p.Start, p.Count, len(elts))
	}
	if p.Count == 0 {
		return nil
	}
	return r.draw(source{elts: elts, base: p.Start}, p)
}

// Points draws count points from start.
func (r *Renderer) Points(start, count int, flags Flags) error {
	return r.Render(Prim{ModePoints, start, count, flags})
}

// Lines draws independent lines.
func (r *Renderer) Lines(start, count int, flags Flags) error {
	return r.Render(Prim{ModeLines, start, count, flags})
}

// LineStrip draws a connected line strip.
func (r *Renderer) LineStrip(start, count int, flags Flags) error {
	return r.Render(Prim{ModeLineStrip, start, count, flags})
}

// LineLoop draws a line strip closed back to its first vertex on FlagEnd.
func (r *Renderer) LineLoop(start, count int, flags Flags) error {
	return r.Render(Prim{ModeLineLoop, start, count, flags})
}

// Triangles draws independent triangles.
func (r *Renderer) Triangles(start, count int, flags Flags) error {
	return r.Render(Prim{ModeTriangles, start, count, flags})
}

// TriStrip draws a triangle strip.
func (r *Renderer) TriStrip(start, count int, flags Flags) error {
	return r.Render(Prim{ModeTriangleStrip, start, count, flags})
}

// TriFan draws a triangle fan.
func (r *Renderer) TriFan(start, count int, flags Flags) error {
	return r.Render(Prim{ModeTriangleFan, start, count, flags})
}

// Quads draws independent quads.
func (r *Renderer) Quads(start, count int, flags Flags) error {
	return r.Render(Prim{ModeQuads, start, count, flags})
}

// QuadStrip draws a quad strip.
func (r *Renderer) QuadStrip(start, count int, flags Flags) error {
	return r.Render(Prim{ModeQuadStrip, start, count, flags})
}

// Polygon draws a convex polygon.
func (r *Renderer) Polygon(start, count int, flags Flags) error {
	return r.Render(Prim{ModePolygon, start, count, flags})
}

func (r *Renderer) draw(s source, p Prim) error {
	switch p.Mode {
	case ModePoints:
		return r.list(s, HWPoints, p.Count, 1)
	case ModeLines:
		return r.list(s, HWLines, p.Count, 2)
	case ModeTriangles:
		return r.list(s, HWTriangles, p.Count, 3)
	case ModeLineStrip:
		return r.lineStrip(s, p.Count, p.Flags, false)
	case ModeLineLoop:
		return r.lineStrip(s, p.Count, p.Flags, true)
	case ModeTriangleStrip:
		return r.triStrip(s, p.Count, p.Flags)
	case ModeTriangleFan:
		return r.fan(s, p.Count, HWTriangleFan)
	case ModeQuads:
		return r.quads(s, p.Count)
	case ModeQuadStrip:
		return r.quadStrip(s, p.Count)
	case ModePolygon:
		return r.polygon(s, p.Count)
	}
	return nil
}

func (r *Renderer) limit(s source) int {
	if s.elts != nil {
		return r.caps.MaxElts
	}
	return r.caps.MaxVerts
}

func (r *Renderer) emit(b Batch) error {
	r.batches++
	if err := r.be.Emit(b); err != nil {
		return fmt.Errorf("vbrender: emit %s: %w", b.Prim, err)
	}
	return nil
}

// emitRange draws n consecutive vertices of s starting at i.
func (r *Renderer) emitRange(s source, p HWPrim, i, n int, parity bool) error {
	b := Batch{Prim: p, Parity: parity}
	if s.elts != nil {
		lo, hi := s.base+i, s.base+i+n
		b.Elts = s.elts[lo:hi:hi]
	} else {
		b.Start, b.Count = s.base+i, n
	}
	return r.emit(b)
}

func (r *Renderer) emitElts(p HWPrim, elts []uint32) error {
	return r.emit(Batch{Prim: p, Elts: elts})
}

// list draws points, lines or triangles: count is rounded down to a whole
// number of primitives and every batch holds whole primitives.
func (r *Renderer) list(s source, p HWPrim, count, arity int) error {
	count -= count % arity
	if count < arity {
		return nil
	}
	lim := r.limit(s)
	lim -= lim % arity
	for j := 0; j < count; j += lim {
		if err := r.emitRange(s, p, j, min(lim, count-j), false); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) lineStrip(s source, count int, flags Flags, loop bool) error {
	if count < 2 {
		return nil
	}
	if flags&FlagBegin != 0 {
		r.be.ResetLineStipple()
	}
	var (
		closing = loop && flags&FlagEnd != 0
		first   = s.at(0)
	)
	if loop {
		switch {
		case flags&FlagBegin != 0:
			r.loopFirst, r.loopOpen = first, !closing
		case r.loopOpen:
			first = r.loopFirst
			r.loopOpen = !closing
		}
	}

	if !r.caps.Native.Has(HWLineStrip) {
		w := r.writer(HWLines, 2)
		for i := 0; i+1 < count; i++ {
			w.add(s.at(i), s.at(i+1))
		}
		if closing {
			w.add(s.at(count-1), first)
		}
		return w.finish()
	}

	lim := r.limit(s)
	// The closing segment rides in the last batch, which goes through the
	// elts path with one extra slot.
	final := min(lim, r.caps.MaxElts) - 1
	for j := 0; ; {
		rest := count - j
		if closing && rest <= final {
			elts := r.scratch[:0]
			for i := j; i < count; i++ {
				elts = append(elts, s.at(i))
			}
			elts = append(elts, first)
			r.scratch = elts[:0]
			return r.emitElts(HWLineStrip, elts)
		}
		n := min(lim, rest)
		if err := r.emitRange(s, HWLineStrip, j, n, false); err != nil {
			return err
		}
		if n == rest && !closing {
			return nil
		}
		j += n - 1
	}
}

func (r *Renderer) triStrip(s source, count int, flags Flags) error {
	if count < 3 {
		return nil
	}
	parity := flags&FlagParity != 0

	if !r.caps.Native.Has(HWTriangleStrip) {
		w := r.writer(HWTriangles, 3)
		for i := 0; i+2 < count; i++ {
			if parity {
				w.add(s.at(i+1), s.at(i), s.at(i+2))
			} else {
				w.add(s.at(i), s.at(i+1), s.at(i+2))
			}
			parity = !parity
		}
		return w.finish()
	}

	lim := r.limit(s)
	if !r.caps.StripParity {
		if parity {
			// Draw the odd triangle on its own, then continue as an even
			// strip one vertex later.
			if err := r.emitElts(HWTriangles, r.tri(s.at(1), s.at(0), s.at(2))); err != nil {
				return err
			}
			s.base++
			count--
			parity = false
			if count < 3 {
				return nil
			}
		}
		// Even batch sizes keep every batch starting on an even triangle.
		lim &^= 1
	}
	for j := 0; ; {
		n := min(lim, count-j)
		if err := r.emitRange(s, HWTriangleStrip, j, n, parity); err != nil {
			return err
		}
		if j+n >= count {
			return nil
		}
		if (n-2)%2 == 1 {
			parity = !parity
		}
		j += n - 2
	}
}

// fan draws a fan or a native polygon. Every batch after the first goes
// through the elts path so it can start with the apex.
func (r *Renderer) fan(s source, count int, p HWPrim) error {
	if count < 3 {
		return nil
	}
	if !r.caps.Native.Has(p) {
		w := r.writer(HWTriangles, 3)
		for i := 1; i+1 < count; i++ {
			w.add(s.at(0), s.at(i), s.at(i+1))
		}
		return w.finish()
	}

	n := min(r.limit(s), count)
	if err := r.emitRange(s, p, 0, n, false); err != nil {
		return err
	}
	for j := n - 1; j+1 < count; {
		m := min(r.caps.MaxElts-1, count-j)
		elts := append(r.scratch[:0], s.at(0))
		for i := j; i < j+m; i++ {
			elts = append(elts, s.at(i))
		}
		r.scratch = elts[:0]
		if err := r.emitElts(p, elts); err != nil {
			return err
		}
		j += m - 1
	}
	return nil
}

func (r *Renderer) polygon(s source, count int) error {
	if count < 3 {
		return nil
	}
	if r.caps.Native.Has(HWPolygon) {
		return r.fan(s, count, HWPolygon)
	}
	if r.flat {
		// The polygon's provoking vertex is its first; rotate it last.
		w := r.writer(HWTriangles, 3)
		for i := 1; i+1 < count; i++ {
			w.add(s.at(i), s.at(i+1), s.at(0))
		}
		return w.finish()
	}
	return r.fan(s, count, HWTriangleFan)
}

func (r *Renderer) quads(s source, count int) error {
	count &^= 3
	if count < 4 {
		return nil
	}
	if r.caps.Native.Has(HWQuads) {
		return r.list(s, HWQuads, count, 4)
	}
	w := r.writer(HWTriangles, 6)
	for i := 0; i+3 < count; i += 4 {
		a, b, c, d := s.at(i), s.at(i+1), s.at(i+2), s.at(i+3)
		w.add(a, b, d, b, c, d)
	}
	return w.finish()
}

func (r *Renderer) quadStrip(s source, count int) error {
	count &^= 1
	if count < 4 {
		return nil
	}
	if !r.caps.Native.Has(HWQuadStrip) {
		w := r.writer(HWTriangles, 6)
		for i := 0; i+3 < count; i += 2 {
			a, b, c, d := s.at(i), s.at(i+1), s.at(i+2), s.at(i+3)
			w.add(a, b, d)
			w.add(c, a, d)
		}
		return w.finish()
	}
	lim := r.limit(s) &^ 1
	for j := 0; ; {
		n := min(lim, count-j)
		if err := r.emitRange(s, HWQuadStrip, j, n, false); err != nil {
			return err
		}
		if j+n >= count {
			return nil
		}
		j += n - 2
	}
}

func (r *Renderer) tri(a, b, c uint32) []uint32 {
	elts := append(r.scratch[:0], a, b, c)
	r.scratch = elts[:0]
	return elts
}

// eltWriter collects decomposed primitives into element batches, flushing
// before a group would overflow MaxElts.
type eltWriter struct {
	r    *Renderer
	prim HWPrim
	max  int
	buf  []uint32
	err  error
}

func (r *Renderer) writer(p HWPrim, group int) *eltWriter {
	return &eltWriter{
		r:    r,
		prim: p,
		max:  r.caps.MaxElts - r.caps.MaxElts%group,
		buf:  r.scratch[:0],
	}
}

func (w *eltWriter) add(vs ...uint32) {
	if w.err != nil {
		return
	}
	if len(w.buf)+len(vs) > w.max {
		w.flush()
	}
	w.buf = append(w.buf, vs...)
}

func (w *eltWriter) flush() {
	if w.err == nil && len(w.buf) > 0 {
		w.err = w.r.emitElts(w.prim, w.buf)
		w.buf = w.buf[:0]
	}
}

func (w *eltWriter) finish() error {
	w.flush()
	w.r.scratch = w.buf[:0]
	return w.err
}
