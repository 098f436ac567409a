package texture

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/internal/logging"
)

// bufferAlignment is the alignment requested for texture storage.
const bufferAlignment = 64

// Store is the texture arena of one device.
//
// Texture timestamps and transfer bookkeeping are updated under the
// store's lock, so a Store may be shared by a screen and its contexts.
type Store struct {
	alloc        alloc.Allocator
	checkOverlap bool
	onDestroy    func(ID)

	mu        sync.Mutex
	mapDone   *sync.Cond
	textures  map[ID]*Texture
	transfers map[TransferID]*transferState
	nextID    uint32
	nextXfer  uint32

	timestamp atomic.Uint64
}

// Option configures a Store.
type Option func(*Store)

// WithOverlapCheck enables or disables runtime rejection of write
// transfers that overlap other mapped transfers. It is enabled by default.
func WithOverlapCheck(enabled bool) Option {
	return func(s *Store) { s.checkOverlap = enabled }
}

// WithDestroyHook registers fn to run after a texture leaves the store.
// It runs without the store lock held.
func WithDestroyHook(fn func(ID)) Option {
	return func(s *Store) { s.onDestroy = fn }
}

// NewStore creates a store allocating from a.
func NewStore(a alloc.Allocator, opts ...Option) *Store {
	s := &Store{
		alloc:        a,
		checkOverlap: true,
		textures:     make(map[ID]*Texture),
		transfers:    make(map[TransferID]*transferState),
	}
	s.mapDone = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timestamp returns the device-wide modification counter.
func (s *Store) Timestamp() uint64 { return s.timestamp.Load() }

// Len returns the number of live textures.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.textures)
}

// Lookup returns the live texture with the given ID.
func (s *Store) Lookup(id ID) (*Texture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.textures[id]
	return t, ok
}

func (s *Store) lookup(id ID) (*Texture, error) {
	t, ok := s.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	return t, nil
}

func bufferUsage(b Bind) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if b&(BindRenderTarget|BindDepthStencil|BindDisplayTarget) != 0 {
		u |= gputypes.BufferUsageStorage
	}
	return u
}

// Create allocates a texture with the packed level layout. On failure
// nothing is added to the store.
func (s *Store) Create(tmpl Template) (*Texture, error) {
	if err := tmpl.validate(); err != nil {
		return nil, err
	}
	t := &Texture{store: s, tmpl: tmpl}
	t.size = t.layout()

	buf, err := s.alloc.Allocate(bufferAlignment, bufferUsage(tmpl.Bind), t.size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAllocationFailed, t, err)
	}
	t.buf = buf
	s.insert(t)
	logging.Logger().Debug("texture: created", "texture", t.String(), "bytes", t.size)
	return t, nil
}

// WrapExternal creates a single-level, single-layer 2D texture over a
// caller-owned buffer. The stride is used verbatim and the buffer is not
// destroyed with the texture.
func (s *Store) WrapExternal(tmpl Template, stride int, buf alloc.Buffer) (*Texture, error) {
	if err := tmpl.validate(); err != nil {
		return nil, err
	}
	if tmpl.Target != Target2D && tmpl.Target != TargetRect {
		return nil, invalid("external storage needs a 2D target, got %s", tmpl.Target)
	}
	if tmpl.LastLevel != 0 {
		return nil, invalid("external storage has exactly one level")
	}
	if stride < tmpl.Format.Stride(tmpl.Width) {
		return nil, invalid("stride %d below row size %d", stride, tmpl.Format.Stride(tmpl.Width))
	}
	need := uint64(tmpl.Format.NBlocksY(tmpl.Height)) * uint64(stride)
	if buf == nil || buf.Size() < need {
		return nil, invalid("external buffer smaller than %d bytes", need)
	}

	t := &Texture{store: s, tmpl: tmpl, buf: buf, external: true, size: need}
	t.stride[0] = stride
	s.insert(t)
	return t, nil
}

func (s *Store) insert(t *Texture) {
	t.refs.Store(1)
	s.mu.Lock()
	s.nextID++
	t.id = ID(s.nextID)
	s.textures[t.id] = t
	s.mu.Unlock()
}

func (s *Store) destroy(t *Texture) {
	s.mu.Lock()
	delete(s.textures, t.id)
	s.mu.Unlock()

	if !t.external {
		t.buf.Destroy()
	}
	if s.onDestroy != nil {
		s.onDestroy(t.id)
	}
	logging.Logger().Debug("texture: destroyed", "id", t.id)
}

// Surface is a 2D view of one level and face or slice of a texture.
type Surface struct {
	Texture ID
	Face    int
	Level   int
	Slice   int
	Width   int
	Height  int
	// Offset is the byte offset of the view in the texture buffer.
	Offset uint64
	Stride int
	Usage  Usage
}

// viewOffset validates a level/face/slice triple and returns the byte
// offset of that 2D image.
func viewOffset(t *Texture, face, level, slice int) (uint64, error) {
	if level < 0 || level > t.tmpl.LastLevel {
		return 0, fmt.Errorf("%w: level %d of %d", ErrInvalidView, level, t.tmpl.LastLevel)
	}
	layer := 0
	switch t.tmpl.Target {
	case TargetCube:
		if face < 0 || face >= 6 || slice != 0 {
			return 0, fmt.Errorf("%w: cube face %d slice %d", ErrInvalidView, face, slice)
		}
		layer = face
	case Target3D:
		if face != 0 || slice < 0 || slice >= t.LevelDepth(level) {
			return 0, fmt.Errorf("%w: slice %d of depth %d", ErrInvalidView, slice, t.LevelDepth(level))
		}
		layer = slice
	default:
		if face != 0 || slice != 0 {
			return 0, fmt.Errorf("%w: face %d slice %d of a %s texture", ErrInvalidView, face, slice, t.tmpl.Target)
		}
	}
	return t.levelOffset[level] + uint64(layer)*uint64(t.ImageStride(level)), nil
}

// Surface returns a view of one image of tex and takes a texture reference
// that ReleaseSurface drops. GPU-write usage implies CPU read and write,
// since rendering here is CPU work. Any write intent bumps the texture and
// device timestamps.
func (s *Store) Surface(tex *Texture, face, level, slice int, usage Usage) (Surface, error) {
	off, err := viewOffset(tex, face, level, slice)
	if err != nil {
		return Surface{}, err
	}
	if usage&UsageGPUWrite != 0 {
		usage |= UsageCPUReadWrite
	}
	if usage.Writes() {
		tex.bumpTimestamp()
	}
	tex.Reference()
	return Surface{
		Texture: tex.id,
		Face:    face,
		Level:   level,
		Slice:   slice,
		Width:   tex.LevelWidth(level),
		Height:  tex.LevelHeight(level),
		Offset:  off,
		Stride:  tex.stride[level],
		Usage:   usage,
	}, nil
}

// ReleaseSurface drops the reference taken by Surface.
func (s *Store) ReleaseSurface(sf Surface) error {
	s.mu.Lock()
	t, err := s.lookup(sf.Texture)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	t.Release()
	return nil
}
