package texture

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/format"
)

// ID names a texture inside its Store.
type ID uint32

// Texture is a multi-level, multi-face image backed by one buffer.
//
// Levels are packed back to back; level l starts at LevelOffset(l) and holds
// Layers(l) images of NBlocksY(height) rows of Stride(l) bytes each.
//
// The reference count starts at 1 for the creator. Every Surface and
// Transfer holds one more. The texture leaves its store when the count
// reaches zero.
type Texture struct {
	id    ID
	store *Store
	tmpl  Template

	levelOffset [MaxLevels]uint64
	stride      [MaxLevels]int
	size        uint64

	buf      alloc.Buffer
	external bool

	refs      atomic.Int32
	timestamp atomic.Uint64

	// Guarded by store.mu.
	mappedReaders int
	mappedWriters int
	bufMapped     []byte
	bufAccess     alloc.Access
	// mapping is set while a Map waits for the buffer without the lock.
	mapping bool
}

// ID returns the texture's handle in its store.
func (t *Texture) ID() ID { return t.id }

// Template returns the creation template.
func (t *Texture) Template() Template { return t.tmpl }

// Format returns the pixel format.
func (t *Texture) Format() format.Format { return t.tmpl.Format }

// Target returns the dimensionality.
func (t *Texture) Target() Target { return t.tmpl.Target }

// LastLevel returns the index of the smallest level.
func (t *Texture) LastLevel() int { return t.tmpl.LastLevel }

// LevelWidth returns the width of level l in pixels.
func (t *Texture) LevelWidth(l int) int { return minify(t.tmpl.Width, l) }

// LevelHeight returns the height of level l in pixels.
func (t *Texture) LevelHeight(l int) int { return minify(t.tmpl.Height, l) }

// LevelDepth returns the depth of level l.
func (t *Texture) LevelDepth(l int) int { return minify(t.tmpl.Depth, l) }

// Layers returns the number of 2D images in level l: 6 for cube maps,
// the level depth otherwise.
func (t *Texture) Layers(l int) int {
	if t.tmpl.Target == TargetCube {
		return 6
	}
	return t.LevelDepth(l)
}

// LevelOffset returns the byte offset of level l in the buffer.
func (t *Texture) LevelOffset(l int) uint64 { return t.levelOffset[l] }

// Stride returns the row pitch of level l in bytes.
func (t *Texture) Stride(l int) int { return t.stride[l] }

// ImageStride returns the byte distance between faces or slices of level l.
func (t *Texture) ImageStride(l int) int {
	return t.tmpl.Format.NBlocksY(t.LevelHeight(l)) * t.stride[l]
}

// Size returns the total bytes the texture occupies.
func (t *Texture) Size() uint64 { return t.size }

// Buffer returns the backing buffer.
func (t *Texture) Buffer() alloc.Buffer { return t.buf }

// External reports whether the storage was supplied by the caller.
func (t *Texture) External() bool { return t.external }

// Timestamp returns the modification counter. It increases every time the
// contents may have been written.
func (t *Texture) Timestamp() uint64 { return t.timestamp.Load() }

// RefCount returns the current reference count.
func (t *Texture) RefCount() int { return int(t.refs.Load()) }

// Reference takes another reference.
func (t *Texture) Reference() { t.refs.Add(1) }

// Release drops a reference, destroying the texture on the last one.
func (t *Texture) Release() {
	switch n := t.refs.Add(-1); {
	case n == 0:
		t.store.destroy(t)
	case n < 0:
		panic(fmt.Sprintf("texture: %d released too many times", t.id))
	}
}

func (t *Texture) bumpTimestamp() {
	t.timestamp.Add(1)
	t.store.timestamp.Add(1)
}

// String returns a string representation of the texture.
func (t *Texture) String() string {
	return fmt.Sprintf("Texture[%d %s %s %dx%dx%d levels=%d]",
		t.id, t.tmpl.Target, t.tmpl.Format, t.tmpl.Width, t.tmpl.Height, t.tmpl.Depth, t.tmpl.LastLevel+1)
}

// layout computes the packed level layout and returns the total size.
func (t *Texture) layout() uint64 {
	f := t.tmpl.Format
	var total uint64
	for l := 0; l <= t.tmpl.LastLevel; l++ {
		t.stride[l] = f.Stride(t.LevelWidth(l))
		t.levelOffset[l] = total
		total += uint64(f.NBlocksY(t.LevelHeight(l))) * uint64(t.Layers(l)) * uint64(t.stride[l])
	}
	return total
}
