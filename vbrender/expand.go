package vbrender

// Primitive is one point, line or triangle of an expanded batch.
type Primitive struct {
	// Verts holds N vertex indices.
	Verts [3]uint32
	N     int

	// Provoking is the vertex whose attributes a flat-shaded primitive
	// takes.
	Provoking uint32
}

func point(a uint32) Primitive { return Primitive{Verts: [3]uint32{a}, N: 1, Provoking: a} }

func line(a, b uint32) Primitive { return Primitive{Verts: [3]uint32{a, b}, N: 2, Provoking: b} }

func triangle(a, b, c, provoking uint32) Primitive {
	return Primitive{Verts: [3]uint32{a, b, c}, N: 3, Provoking: provoking}
}

// Expand decomposes a batch into points, lines and triangles in drawing
// order, with GL winding and provoking vertices. Quads split along the
// b-d diagonal into (a,b,d) and (b,c,d); quad strip quads into (a,b,d) and
// (c,a,d).
func Expand(b Batch) []Primitive {
	n := b.Len()
	v := b.Vertex
	var out []Primitive

	switch b.Prim {
	case HWPoints:
		for i := 0; i < n; i++ {
			out = append(out, point(v(i)))
		}
	case HWLines:
		for i := 0; i+1 < n; i += 2 {
			out = append(out, line(v(i), v(i+1)))
		}
	case HWLineStrip:
		for i := 0; i+1 < n; i++ {
			out = append(out, line(v(i), v(i+1)))
		}
	case HWTriangles:
		for i := 0; i+2 < n; i += 3 {
			out = append(out, triangle(v(i), v(i+1), v(i+2), v(i+2)))
		}
	case HWTriangleStrip:
		odd := b.Parity
		for i := 0; i+2 < n; i++ {
			if odd {
				out = append(out, triangle(v(i+1), v(i), v(i+2), v(i+2)))
			} else {
				out = append(out, triangle(v(i), v(i+1), v(i+2), v(i+2)))
			}
			odd = !odd
		}
	case HWTriangleFan:
		for i := 1; i+1 < n; i++ {
			out = append(out, triangle(v(0), v(i), v(i+1), v(i+1)))
		}
	case HWPolygon:
		for i := 1; i+1 < n; i++ {
			out = append(out, triangle(v(0), v(i), v(i+1), v(0)))
		}
	case HWQuads:
		for i := 0; i+3 < n; i += 4 {
			a, bb, c, d := v(i), v(i+1), v(i+2), v(i+3)
			out = append(out, triangle(a, bb, d, d), triangle(bb, c, d, d))
		}
	case HWQuadStrip:
		for i := 0; i+3 < n; i += 2 {
			a, bb, c, d := v(i), v(i+1), v(i+2), v(i+3)
			out = append(out, triangle(a, bb, d, d), triangle(c, a, d, d))
		}
	}
	return out
}
