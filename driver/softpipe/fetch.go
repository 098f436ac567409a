package softpipe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
)

// vertex is one fetched vertex. Positions are window coordinates with y
// pointing down.
type vertex struct {
	pos   [4]float32
	color [4]float32
	tex   [2]float32
}

var defaultVertex = vertex{
	pos:   [4]float32{0, 0, 0, 1},
	color: [4]float32{1, 1, 1, 1},
}

// attrib is one vertex element resolved against its mapped buffer.
type attrib struct {
	sem    pipe.Semantic
	format gputypes.VertexFormat
	size   int
	data   []byte
	stride int
	offset int
}

// fetcher decodes vertices from mapped vertex buffers.
type fetcher struct {
	attribs []attrib
}

func (f *fetcher) fetch(i uint32) (vertex, error) {
	v := defaultVertex
	for _, a := range f.attribs {
		off := int(i)*a.stride + a.offset
		if off < 0 || off+a.size > len(a.data) {
			return vertex{}, fmt.Errorf("%w: vertex %d %s outside its buffer", pipe.ErrInvalidVertexState, i, a.sem)
		}
		vals, n := decodeAttrib(a.format, a.data[off:])
		switch a.sem {
		case pipe.SemanticPosition:
			copy(v.pos[:n], vals[:n])
		case pipe.SemanticColor:
			copy(v.color[:n], vals[:n])
		case pipe.SemanticTexCoord:
			copy(v.tex[:], vals[:min(n, 2)])
		}
	}
	return v, nil
}

func supportedVertexFormat(f gputypes.VertexFormat) bool {
	switch f {
	case gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2,
		gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4,
		gputypes.VertexFormatUnorm8x4:
		return true
	}
	return false
}

func decodeAttrib(f gputypes.VertexFormat, b []byte) ([4]float32, int) {
	var out [4]float32
	switch f {
	case gputypes.VertexFormatUnorm8x4:
		for i := range 4 {
			out[i] = float32(b[i]) / 255
		}
		return out, 4
	default:
		n := int(f.Size() / 4)
		for i := range n {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
		return out, n
	}
}

// mappings maps each distinct buffer of a draw once.
type mappings struct {
	bufs []alloc.Buffer
	data [][]byte
}

func (m *mappings) get(b alloc.Buffer) ([]byte, error) {
	for i, have := range m.bufs {
		if have == b {
			return m.data[i], nil
		}
	}
	data, err := b.Map(alloc.AccessRead)
	if err != nil {
		return nil, err
	}
	m.bufs = append(m.bufs, b)
	m.data = append(m.data, data)
	return data, nil
}

func (m *mappings) release() error {
	var errs []error
	for _, b := range m.bufs {
		errs = append(errs, b.Unmap())
	}
	m.bufs, m.data = m.bufs[:0], m.data[:0]
	return errors.Join(errs...)
}

// bind resolves elems against the bound vertex buffers.
func (f *fetcher) bind(m *mappings, vbs []pipe.VertexBuffer, elems []pipe.VertexElement) error {
	f.attribs = f.attribs[:0]
	for _, e := range elems {
		vb := vbs[e.Slot]
		if vb.Buffer == nil {
			return fmt.Errorf("%w: no buffer in slot %d", pipe.ErrInvalidVertexState, e.Slot)
		}
		data, err := m.get(vb.Buffer)
		if err != nil {
			return err
		}
		if vb.Offset > uint64(len(data)) {
			return fmt.Errorf("%w: offset %d past buffer of %d bytes", pipe.ErrInvalidVertexState, vb.Offset, len(data))
		}
		f.attribs = append(f.attribs, attrib{
			sem:    e.Semantic,
			format: e.Format,
			size:   int(e.Format.Size()),
			data:   data[vb.Offset:],
			stride: vb.Stride,
			offset: e.Offset,
		})
	}
	return nil
}
