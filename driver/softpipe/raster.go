package softpipe

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/internal/wide"
	"github.com/gogpu/pipe/sampler"
	"github.com/gogpu/pipe/vbrender"
)

// laneCenters are the pixel-center offsets of one lane vector.
var laneCenters = wide.F32x8{0.5, 1.5, 2.5, 3.5, 4.5, 5.5, 6.5, 7.5}

// rasterizer is the vbrender backend of a context. It draws expanded
// primitives into the mapped color surface; the fields below caps are set
// per draw.
type rasterizer struct {
	caps vbrender.Caps

	fetch *fetcher
	dst   *pipe.MappedSurface
	codec *format.Codec
	bpp   int
	tex   *sampler.Sampler
	rs    pipe.Rasterizer

	// stipple counts pixels since the last stipple reset.
	stipple int
}

func (r *rasterizer) Caps() vbrender.Caps { return r.caps }

func (r *rasterizer) ResetLineStipple() { r.stipple = 0 }

// Emit draws one batch. Independent lines restart the stipple pattern at
// every segment; strips continue it.
func (r *rasterizer) Emit(b vbrender.Batch) error {
	var vs [3]vertex
	for _, p := range vbrender.Expand(b) {
		for i := 0; i < p.N; i++ {
			v, err := r.fetch.fetch(p.Verts[i])
			if err != nil {
				return err
			}
			vs[i] = v
		}
		var flat *[4]float32
		if r.rs.FlatShade {
			pv, err := r.fetch.fetch(p.Provoking)
			if err != nil {
				return err
			}
			flat = &pv.color
		}
		switch p.N {
		case 1:
			r.point(&vs[0])
		case 2:
			if b.Prim == vbrender.HWLines {
				r.stipple = 0
			}
			r.line(&vs[0], &vs[1], flat)
		case 3:
			r.triangle(&vs[0], &vs[1], &vs[2], flat)
		}
	}
	return nil
}

func (r *rasterizer) plot(x, y int, c [4]float32) {
	if x < 0 || y < 0 || x >= r.dst.Width || y >= r.dst.Height {
		return
	}
	r.codec.Store(r.dst.Pix[y*r.dst.Stride+x*r.bpp:], r.codec.Pack(c))
}

// shade modulates an interpolated color by the bound texture.
func (r *rasterizer) shade(c [4]float32, u, v float32) [4]float32 {
	if r.tex == nil {
		return c
	}
	t := r.tex.Sample(u, v)
	for i := range c {
		c[i] *= t[i]
	}
	return c
}

// edgeFunction is the doubled signed area of (a, b, c). It is positive
// when c lies to the left of a->b on a y-down surface.
func edgeFunction(ax, ay, bx, by, cx, cy float32) float32 {
	return (cx-ax)*(by-ay) - (cy-ay)*(bx-ax)
}

// edge is a triangle edge from (x, y) along (dx, dy).
type edge struct {
	x, y    float32
	dx, dy  float32
	topLeft bool
}

func newEdge(a, b *vertex) edge {
	dx, dy := b.pos[0]-a.pos[0], b.pos[1]-a.pos[1]
	return edge{
		x: a.pos[0], y: a.pos[1], dx: dx, dy: dy,
		topLeft: dy > 0 || (dy == 0 && dx < 0),
	}
}

// eval returns the edge function at a row of lane pixel centers.
func (e *edge) eval(px wide.F32x8, py float32) wide.F32x8 {
	return px.Sub(wide.SplatF32(e.x)).MulScalar(e.dy).Sub(wide.SplatF32((py - e.y) * e.dx))
}

func (e *edge) inside(w float32) bool {
	return w > 0 || (w == 0 && e.topLeft)
}

func (r *rasterizer) culled(ccw bool) bool {
	front := ccw == r.rs.FrontCCW
	switch r.rs.Cull {
	case pipe.CullBack:
		return !front
	case pipe.CullFront:
		return front
	}
	return false
}

func interp(l0, l1, l2 wide.F32x8, a0, a1, a2 float32) wide.F32x8 {
	return l0.MulScalar(a0).Add(l1.MulScalar(a1)).Add(l2.MulScalar(a2))
}

// triangle fills the pixels whose centers lie inside v0 v1 v2, counting
// centers on an edge only for top and left edges. Counter-clockwise means
// as seen on the surface.
func (r *rasterizer) triangle(v0, v1, v2 *vertex, flat *[4]float32) {
	area := edgeFunction(v0.pos[0], v0.pos[1], v1.pos[0], v1.pos[1], v2.pos[0], v2.pos[1])
	if area == 0 || r.culled(area > 0) {
		return
	}
	if area < 0 {
		v1, v2 = v2, v1
		area = -area
	}

	minX := max(int(math32.Floor(min(v0.pos[0], v1.pos[0], v2.pos[0]))), 0)
	maxX := min(int(math32.Ceil(max(v0.pos[0], v1.pos[0], v2.pos[0]))), r.dst.Width)
	minY := max(int(math32.Floor(min(v0.pos[1], v1.pos[1], v2.pos[1]))), 0)
	maxY := min(int(math32.Ceil(max(v0.pos[1], v1.pos[1], v2.pos[1]))), r.dst.Height)

	e0, e1, e2 := newEdge(v1, v2), newEdge(v2, v0), newEdge(v0, v1)
	inv := 1 / area
	lod := r.lod(&e0, &e1, &e2, v0, v1, v2, inv)

	for y := minY; y < maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x < maxX; x += wide.Lanes {
			px := laneCenters.Add(wide.SplatF32(float32(x)))
			w0, w1, w2 := e0.eval(px, py), e1.eval(px, py), e2.eval(px, py)

			var mask [wide.Lanes]bool
			hit := false
			for i := range mask {
				mask[i] = x+i < maxX && e0.inside(w0[i]) && e1.inside(w1[i]) && e2.inside(w2[i])
				hit = hit || mask[i]
			}
			if !hit {
				continue
			}

			l0, l1, l2 := w0.MulScalar(inv), w1.MulScalar(inv), w2.MulScalar(inv)
			var color [4]wide.F32x8
			for ch := range color {
				if flat != nil {
					color[ch] = wide.SplatF32(flat[ch])
				} else {
					color[ch] = interp(l0, l1, l2, v0.color[ch], v1.color[ch], v2.color[ch])
				}
			}
			if r.tex != nil {
				u := interp(l0, l1, l2, v0.tex[0], v1.tex[0], v2.tex[0])
				v := interp(l0, l1, l2, v0.tex[1], v1.tex[1], v2.tex[1])
				texel := r.tex.SampleLanes(u, v, lod)
				for ch := range color {
					color[ch] = color[ch].Mul(texel[ch])
				}
			}
			for i, in := range mask {
				if in {
					r.plot(x+i, y, [4]float32{color[0][i], color[1][i], color[2][i], color[3][i]})
				}
			}
		}
	}
}

// lod is the level of detail of a triangle. Texture coordinates are
// affine in screen space, so their derivatives are constant: the
// barycentric weight of vertex i changes by e_i.dy along x and by -e_i.dx
// along y.
func (r *rasterizer) lod(e0, e1, e2 *edge, v0, v1, v2 *vertex, inv float32) float32 {
	if r.tex == nil {
		return 0
	}
	d := func(a0, a1, a2 float32, c int) float32 {
		return (a0*v0.tex[c] + a1*v1.tex[c] + a2*v2.tex[c]) * inv
	}
	dudx, dvdx := d(e0.dy, e1.dy, e2.dy, 0), d(e0.dy, e1.dy, e2.dy, 1)
	dudy, dvdy := -d(e0.dx, e1.dx, e2.dx, 0), -d(e0.dx, e1.dx, e2.dx, 1)
	return r.tex.LOD(dudx, dvdx, dudy, dvdy)
}

// stippled reports whether the next line pixel is masked out, and advances
// the pattern.
func (r *rasterizer) stippled() bool {
	if !r.rs.LineStipple {
		return false
	}
	factor := max(r.rs.StippleFactor, 1)
	bit := (r.stipple / factor) & 15
	r.stipple++
	return r.rs.StipplePattern&(1<<bit) == 0
}

// line draws a one-pixel Bresenham line from a up to, not including, b.
func (r *rasterizer) line(a, b *vertex, flat *[4]float32) {
	x0, y0 := int(math32.Floor(a.pos[0])), int(math32.Floor(a.pos[1]))
	x1, y1 := int(math32.Floor(b.pos[0])), int(math32.Floor(b.pos[1]))

	dx, sx := x1-x0, 1
	if dx < 0 {
		dx, sx = -dx, -1
	}
	dy, sy := y0-y1, 1
	if dy > 0 {
		dy, sy = -dy, -1
	}
	steps := max(dx, -dy)
	err := dx + dy

	for i := 0; i < steps; i++ {
		if !r.stippled() {
			t := float32(i) / float32(steps)
			var c [4]float32
			if flat != nil {
				c = *flat
			} else {
				for ch := range c {
					c[ch] = a.color[ch] + (b.color[ch]-a.color[ch])*t
				}
			}
			u := a.tex[0] + (b.tex[0]-a.tex[0])*t
			v := a.tex[1] + (b.tex[1]-a.tex[1])*t
			r.plot(x0, y0, r.shade(c, u, v))
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// point fills a PointSize square centered on v.
func (r *rasterizer) point(v *vertex) {
	size := max(r.rs.PointSize, 1)
	n := int(size + 0.5)
	x0 := int(math32.Floor(v.pos[0] - size/2 + 0.5))
	y0 := int(math32.Floor(v.pos[1] - size/2 + 0.5))
	c := r.shade(v.color, v.tex[0], v.tex[1])
	for y := y0; y < y0+n; y++ {
		for x := x0; x < x0+n; x++ {
			r.plot(x, y, c)
		}
	}
}
