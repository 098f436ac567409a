package texture

import (
	"errors"
	"testing"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/format"
)

func newStore(t *testing.T, opts ...Option) (*Store, *alloc.Heap) {
	t.Helper()
	h := alloc.NewHeap(1 << 20)
	return NewStore(h, opts...), h
}

func mustCreate(t *testing.T, s *Store, tmpl Template) *Texture {
	t.Helper()
	tex, err := s.Create(tmpl)
	if err != nil {
		t.Fatalf("Create(%+v): %v", tmpl, err)
	}
	return tex
}

func rgba2D(w, h, lastLevel int) Template {
	return Template{Target: Target2D, Format: format.FormatRGBA8Unorm, Width: w, Height: h, Depth: 1, LastLevel: lastLevel}
}

func TestCreateLayout(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    Template
		strides []int
		offsets []uint64
		size    uint64
	}{
		{
			name:    "2D mipmapped",
			tmpl:    rgba2D(8, 4, 3),
			strides: []int{32, 16, 8, 4},
			offsets: []uint64{0, 128, 160, 168},
			size:    172,
		},
		{
			name:    "cube",
			tmpl:    Template{Target: TargetCube, Format: format.FormatRGBA8Unorm, Width: 4, Height: 4, Depth: 1},
			strides: []int{16},
			offsets: []uint64{0},
			size:    6 * 64,
		},
		{
			name:    "3D",
			tmpl:    Template{Target: Target3D, Format: format.FormatR8Unorm, Width: 4, Height: 4, Depth: 4, LastLevel: 1},
			strides: []int{4, 2},
			offsets: []uint64{0, 64},
			size:    72,
		},
		{
			name:    "1D",
			tmpl:    Template{Target: Target1D, Format: format.FormatB5G6R5Unorm, Width: 5, Height: 1, Depth: 1, LastLevel: 2},
			strides: []int{10, 4, 2},
			offsets: []uint64{0, 10, 14},
			size:    16,
		},
		{
			name:    "compressed",
			tmpl:    Template{Target: Target2D, Format: format.FormatDXT1RGBA, Width: 8, Height: 8, Depth: 1, LastLevel: 1},
			strides: []int{16, 8},
			offsets: []uint64{0, 32},
			size:    40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			tex := mustCreate(t, s, tt.tmpl)
			defer tex.Release()

			for l := range tt.strides {
				if got := tex.Stride(l); got != tt.strides[l] {
					t.Errorf("Stride(%d) = %d, want %d", l, got, tt.strides[l])
				}
				if got := tex.LevelOffset(l); got != tt.offsets[l] {
					t.Errorf("LevelOffset(%d) = %d, want %d", l, got, tt.offsets[l])
				}
				levelSize := uint64(tex.ImageStride(l) * tex.Layers(l))
				if tex.LevelOffset(l)+levelSize > tex.Size() {
					t.Errorf("level %d ends at %d beyond size %d", l, tex.LevelOffset(l)+levelSize, tex.Size())
				}
			}
			if tex.Size() != tt.size {
				t.Errorf("Size = %d, want %d", tex.Size(), tt.size)
			}
			if tex.Buffer().Size() < tex.Size() {
				t.Errorf("buffer of %d bytes smaller than texture", tex.Buffer().Size())
			}
		})
	}
}

func TestCreateRejectsBadTemplates(t *testing.T) {
	tests := []struct {
		name string
		tmpl Template
	}{
		{"no format", Template{Target: Target2D, Width: 1, Height: 1, Depth: 1}},
		{"zero width", rgba2D(0, 4, 0)},
		{"1D with height", Template{Target: Target1D, Format: format.FormatR8Unorm, Width: 4, Height: 2, Depth: 1}},
		{"2D with depth", Template{Target: Target2D, Format: format.FormatR8Unorm, Width: 4, Height: 4, Depth: 2}},
		{"non-square cube", Template{Target: TargetCube, Format: format.FormatR8Unorm, Width: 4, Height: 2, Depth: 1}},
		{"too many levels", rgba2D(4, 4, 3)},
		{"mipmapped rect", Template{Target: TargetRect, Format: format.FormatR8Unorm, Width: 4, Height: 4, Depth: 1, LastLevel: 1}},
		{"bad target", Template{Target: Target(9), Format: format.FormatR8Unorm, Width: 1, Height: 1, Depth: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			if _, err := s.Create(tt.tmpl); !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("err = %v, want ErrInvalidTemplate", err)
			}
			if s.Len() != 0 {
				t.Errorf("store holds %d textures after failed create", s.Len())
			}
		})
	}
}

func TestCreateAllocationFailure(t *testing.T) {
	s := NewStore(alloc.NewHeap(1024))
	_, err := s.Create(rgba2D(64, 64, 0))
	if !errors.Is(err, ErrAllocationFailed) || !errors.Is(err, alloc.ErrOutOfMemory) {
		t.Fatalf("err = %v, want ErrAllocationFailed wrapping ErrOutOfMemory", err)
	}
	if s.Len() != 0 {
		t.Errorf("store holds %d textures after failed create", s.Len())
	}
}

func TestWrapExternal(t *testing.T) {
	s, h := newStore(t)
	buf, err := h.Allocate(4, 0, 4*64)
	if err != nil {
		t.Fatal(err)
	}
	defer buf.Destroy()

	tex, err := s.WrapExternal(rgba2D(10, 4, 0), 64, buf)
	if err != nil {
		t.Fatalf("WrapExternal: %v", err)
	}
	if tex.Stride(0) != 64 || !tex.External() || tex.Buffer() != buf {
		t.Errorf("stride %d external %v", tex.Stride(0), tex.External())
	}
	tex.Release()

	if _, err := buf.Map(alloc.AccessRead); err != nil {
		t.Errorf("external buffer destroyed with texture: %v", err)
	}
	_ = buf.Unmap()

	bad := []struct {
		name   string
		tmpl   Template
		stride int
	}{
		{"mipmapped", rgba2D(4, 4, 1), 64},
		{"3D", Template{Target: Target3D, Format: format.FormatRGBA8Unorm, Width: 4, Height: 4, Depth: 2}, 64},
		{"short stride", rgba2D(20, 4, 0), 64},
		{"buffer too small", rgba2D(10, 5, 0), 64},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.WrapExternal(tt.tmpl, tt.stride, buf); !errors.Is(err, ErrInvalidTemplate) {
				t.Errorf("err = %v, want ErrInvalidTemplate", err)
			}
		})
	}
}

func TestSurface(t *testing.T) {
	s, _ := newStore(t)
	tex := mustCreate(t, s, Template{Target: TargetCube, Format: format.FormatRGBA8Unorm, Width: 4, Height: 4, Depth: 1, LastLevel: 1})
	defer tex.Release()

	sf, err := s.Surface(tex, 3, 1, 0, UsageGPURead)
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	// Level 1 starts after 6 faces of 4 rows x 16 bytes; face 3 of 2 rows x 8 bytes.
	if want := uint64(6*64 + 3*16); sf.Offset != want {
		t.Errorf("Offset = %d, want %d", sf.Offset, want)
	}
	if sf.Width != 2 || sf.Height != 2 || sf.Stride != 8 {
		t.Errorf("surface %dx%d stride %d", sf.Width, sf.Height, sf.Stride)
	}
	if tex.RefCount() != 2 {
		t.Errorf("RefCount = %d, want 2", tex.RefCount())
	}
	if tex.Timestamp() != 0 {
		t.Errorf("read surface bumped timestamp")
	}
	if err := s.ReleaseSurface(sf); err != nil {
		t.Fatal(err)
	}
	if tex.RefCount() != 1 {
		t.Errorf("RefCount after release = %d", tex.RefCount())
	}

	for _, bad := range [][3]int{{6, 0, 0}, {0, 2, 0}, {0, 0, 1}, {-1, 0, 0}} {
		if _, err := s.Surface(tex, bad[0], bad[1], bad[2], UsageGPURead); !errors.Is(err, ErrInvalidView) {
			t.Errorf("Surface(face=%d level=%d slice=%d) err = %v", bad[0], bad[1], bad[2], err)
		}
	}
}

func TestSurfaceGPUWriteImpliesCPUAccess(t *testing.T) {
	s, _ := newStore(t)
	tex := mustCreate(t, s, rgba2D(4, 4, 0))
	defer tex.Release()

	deviceBefore := s.Timestamp()
	sf, err := s.Surface(tex, 0, 0, 0, UsageGPUWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.ReleaseSurface(sf) }()

	if sf.Usage&UsageCPUReadWrite != UsageCPUReadWrite {
		t.Errorf("Usage = %b, want CPU read/write folded in", sf.Usage)
	}
	if tex.Timestamp() != 1 || s.Timestamp() != deviceBefore+1 {
		t.Errorf("timestamps = %d/%d, want bumped", tex.Timestamp(), s.Timestamp())
	}
}

func TestSurface3DSlice(t *testing.T) {
	s, _ := newStore(t)
	tex := mustCreate(t, s, Template{Target: Target3D, Format: format.FormatR8Unorm, Width: 4, Height: 4, Depth: 4, LastLevel: 1})
	defer tex.Release()

	sf, err := s.Surface(tex, 0, 1, 1, UsageCPURead)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.ReleaseSurface(sf) }()
	if want := uint64(64 + 1*2*2); sf.Offset != want {
		t.Errorf("Offset = %d, want %d", sf.Offset, want)
	}
	if _, err := s.Surface(tex, 0, 1, 2, UsageCPURead); !errors.Is(err, ErrInvalidView) {
		t.Errorf("slice beyond level depth: err = %v", err)
	}
}

func TestReferenceCounting(t *testing.T) {
	s, h := newStore(t)
	tex := mustCreate(t, s, rgba2D(4, 4, 0))
	id := tex.ID()

	sf, err := s.Surface(tex, 0, 0, 0, UsageCPURead)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := s.Transfer(tex, 0, 0, 0, UsageCPURead, 0, 0, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	tex.Release()
	if _, ok := s.Lookup(id); !ok {
		t.Fatal("texture destroyed while views hold references")
	}
	if err := s.ReleaseSurface(sf); err != nil {
		t.Fatal(err)
	}
	if err := s.ReleaseTransfer(tr); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Lookup(id); ok {
		t.Error("texture still in store after last release")
	}
	if used := h.Stats().UsedBytes; used != 0 {
		t.Errorf("heap still holds %d bytes", used)
	}
	if err := s.ReleaseSurface(sf); !errors.Is(err, ErrUnknownTexture) {
		t.Errorf("release after destroy err = %v", err)
	}
}

func TestDestroyHook(t *testing.T) {
	var destroyed []ID
	s, _ := newStore(t, WithDestroyHook(func(id ID) { destroyed = append(destroyed, id) }))
	a := mustCreate(t, s, rgba2D(2, 2, 0))
	b := mustCreate(t, s, rgba2D(2, 2, 0))

	sf, err := s.Surface(a, 0, 0, 0, UsageCPURead)
	if err != nil {
		t.Fatal(err)
	}
	a.Release()
	if len(destroyed) != 0 {
		t.Fatalf("hook ran for %v while a surface holds texture %d", destroyed, a.ID())
	}
	if err := s.ReleaseSurface(sf); err != nil {
		t.Fatal(err)
	}
	b.Release()
	if len(destroyed) != 2 || destroyed[0] != a.ID() || destroyed[1] != b.ID() {
		t.Errorf("destroyed = %v, want [%d %d]", destroyed, a.ID(), b.ID())
	}
}
