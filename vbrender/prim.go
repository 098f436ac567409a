// Package vbrender splits logical primitive runs into batches a backend can
// draw, keeping topology, winding and the flat-shading provoking vertex
// intact across batch boundaries.
//
// Vertices are rendered either straight from the vertex array (the verts
// path, batches carry a contiguous range) or through an index list (the
// elts path, batches carry element lists). Primitives the backend cannot
// draw natively are decomposed into points, lines or triangles.
//
// The provoking vertex follows the GL convention: the last vertex of each
// point, line, triangle, strip, fan or quad primitive, and the first vertex
// of a polygon.
package vbrender

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ErrInvalidCaps is returned by New when a backend cannot host the
// decompositions.
var ErrInvalidCaps = errors.New("vbrender: invalid backend caps")

// Mode is a logical draw mode.
type Mode uint8

const (
	ModePoints Mode = iota
	ModeLines
	ModeLineLoop
	ModeLineStrip
	ModeTriangles
	ModeTriangleStrip
	ModeTriangleFan
	ModeQuads
	ModeQuadStrip
	ModePolygon

	modeCount
)

var modeNames = [modeCount]string{
	"Points", "Lines", "LineLoop", "LineStrip", "Triangles",
	"TriangleStrip", "TriangleFan", "Quads", "QuadStrip", "Polygon",
}

// String returns the mode name.
func (m Mode) String() string {
	if m < modeCount {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m < modeCount }

// Flags describe how one call relates to the logical primitive it belongs
// to. A primitive assembled from several calls sets Begin on the first and
// End on the last.
type Flags uint8

const (
	// FlagBegin marks the true start of the logical primitive. Line
	// stipple is reset only here.
	FlagBegin Flags = 1 << iota
	// FlagEnd marks the last call; a line loop closes here.
	FlagEnd
	// FlagParity marks a triangle strip continued at an odd triangle.
	FlagParity

	// FlagsWhole is Begin|End, a primitive drawn in one call.
	FlagsWhole = FlagBegin | FlagEnd
)

// HWPrim is a primitive a backend draws.
type HWPrim uint8

const (
	HWPoints HWPrim = iota
	HWLines
	HWLineStrip
	HWTriangles
	HWTriangleStrip
	HWTriangleFan
	HWQuads
	HWQuadStrip
	HWPolygon

	hwPrimCount
)

var hwPrimNames = [hwPrimCount]string{
	"Points", "Lines", "LineStrip", "Triangles", "TriangleStrip",
	"TriangleFan", "Quads", "QuadStrip", "Polygon",
}

// String returns the primitive name.
func (p HWPrim) String() string {
	if p < hwPrimCount {
		return hwPrimNames[p]
	}
	return fmt.Sprintf("HWPrim(%d)", uint8(p))
}

// Topology maps p to a WebGPU topology. Fans, quads and polygons have none.
func (p HWPrim) Topology() (gputypes.PrimitiveTopology, bool) {
	switch p {
	case HWPoints:
		return gputypes.PrimitiveTopologyPointList, true
	case HWLines:
		return gputypes.PrimitiveTopologyLineList, true
	case HWLineStrip:
		return gputypes.PrimitiveTopologyLineStrip, true
	case HWTriangles:
		return gputypes.PrimitiveTopologyTriangleList, true
	case HWTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip, true
	}
	return 0, false
}

// PrimSet is a set of hardware primitives.
type PrimSet uint16

// Prims builds a set.
func Prims(ps ...HWPrim) PrimSet {
	var s PrimSet
	for _, p := range ps {
		s |= 1 << p
	}
	return s
}

// AllPrims contains every hardware primitive.
const AllPrims PrimSet = 1<<hwPrimCount - 1

// Has reports whether p is in the set.
func (s PrimSet) Has(p HWPrim) bool { return s&(1<<p) != 0 }

// Caps describe what a backend draws natively.
type Caps struct {
	// Native lists the primitives the backend draws itself. Points, lines
	// and triangles are required.
	Native PrimSet

	// StripParity reports whether a triangle strip batch may start on an
	// odd triangle (Batch.Parity).
	StripParity bool

	// MaxVerts bounds Batch.Count for contiguous batches.
	MaxVerts int

	// MaxElts bounds len(Batch.Elts).
	MaxElts int
}

func (c Caps) validate() error {
	required := Prims(HWPoints, HWLines, HWTriangles)
	switch {
	case c.Native&required != required:
		return fmt.Errorf("%w: points, lines and triangles must be native", ErrInvalidCaps)
	case c.MaxVerts < 4:
		return fmt.Errorf("%w: MaxVerts %d below 4", ErrInvalidCaps, c.MaxVerts)
	case c.MaxElts < 6:
		return fmt.Errorf("%w: MaxElts %d below 6", ErrInvalidCaps, c.MaxElts)
	}
	return nil
}

// Batch is one unit of work for a backend: a contiguous vertex range when
// Elts is nil, otherwise an element list of absolute vertex indices.
type Batch struct {
	Prim   HWPrim
	Start  int
	Count  int
	Elts   []uint32
	Parity bool
}

// Len returns the number of vertices referenced by the batch.
func (b Batch) Len() int {
	if b.Elts != nil {
		return len(b.Elts)
	}
	return b.Count
}

// Vertex returns the i-th vertex index of the batch.
func (b Batch) Vertex(i int) uint32 {
	if b.Elts != nil {
		return b.Elts[i]
	}
	return uint32(b.Start + i)
}

// Backend draws batches.
type Backend interface {
	Caps() Caps

	// Emit draws one batch. Batch.Elts is only valid during the call.
	Emit(b Batch) error

	// ResetLineStipple restarts the line stipple pattern.
	ResetLineStipple()
}

// Prim is one call of a logical primitive.
type Prim struct {
	Mode  Mode
	Start int
	Count int
	Flags Flags
}
