package softpipe

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/sampler"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

type rig struct {
	t      *testing.T
	heap   *alloc.Heap
	screen *Screen
	ctx    pipe.Context
	target *texture.Texture
	w, h   int
}

func newRig(t *testing.T, w, h int) *rig {
	t.Helper()
	heap := alloc.NewHeap(0)
	s, err := New(heap, config.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy() })
	tex, err := s.TextureCreate(texture.Template{
		Target: texture.Target2D,
		Format: format.FormatRGBA8Unorm,
		Width:  w, Height: h, Depth: 1,
		Bind: texture.BindRenderTarget | texture.BindSampler,
	})
	if err != nil {
		t.Fatalf("TextureCreate: %v", err)
	}
	sf, err := s.TexSurface(tex, 0, 0, 0, texture.UsageGPUWrite)
	if err != nil {
		t.Fatalf("TexSurface: %v", err)
	}
	ctx, err := s.CreateContext()
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if err := ctx.SetFramebuffer(pipe.Framebuffer{Color: &sf}); err != nil {
		t.Fatal(err)
	}
	r := &rig{t: t, heap: heap, screen: s, ctx: ctx, target: tex, w: w, h: h}
	r.clear()
	return r
}

func (r *rig) clear() {
	r.t.Helper()
	if err := r.ctx.Clear(pipe.ClearColor, [4]float32{0, 0, 0, 0}, 0, 0); err != nil {
		r.t.Fatalf("Clear: %v", err)
	}
}

// buffer uploads raw bytes into a new heap buffer.
func (r *rig) buffer(data []byte) alloc.Buffer {
	r.t.Helper()
	b, err := r.heap.Allocate(4, gputypes.BufferUsageVertex|gputypes.BufferUsageIndex, uint64(len(data)))
	if err != nil {
		r.t.Fatalf("Allocate: %v", err)
	}
	m, err := b.Map(alloc.AccessWrite)
	if err != nil {
		r.t.Fatalf("Map: %v", err)
	}
	copy(m, data)
	if err := b.Unmap(); err != nil {
		r.t.Fatal(err)
	}
	return b
}

// vertices binds interleaved x, y, r, g, b, a, u, v vertices.
func (r *rig) vertices(vs ...[8]float32) {
	r.t.Helper()
	data := make([]byte, 0, len(vs)*32)
	for _, v := range vs {
		for _, f := range v {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}
	}
	if err := r.ctx.SetVertexBuffer(0, pipe.VertexBuffer{Buffer: r.buffer(data), Stride: 32}); err != nil {
		r.t.Fatal(err)
	}
	err := r.ctx.SetVertexElements([]pipe.VertexElement{
		{Semantic: pipe.SemanticPosition, Format: gputypes.VertexFormatFloat32x2, Offset: 0},
		{Semantic: pipe.SemanticColor, Format: gputypes.VertexFormatFloat32x4, Offset: 8},
		{Semantic: pipe.SemanticTexCoord, Format: gputypes.VertexFormatFloat32x2, Offset: 24},
	})
	if err != nil {
		r.t.Fatal(err)
	}
}

func (r *rig) pixels() [][4]byte {
	r.t.Helper()
	tr, err := r.screen.TexTransfer(r.target, 0, 0, 0, texture.UsageCPURead, 0, 0, r.w, r.h)
	if err != nil {
		r.t.Fatalf("TexTransfer: %v", err)
	}
	defer r.screen.TransferRelease(tr)
	data, err := r.screen.TransferMap(tr)
	if err != nil {
		r.t.Fatalf("TransferMap: %v", err)
	}
	out := make([][4]byte, r.w*r.h)
	for y := range r.h {
		for x := range r.w {
			copy(out[y*r.w+x][:], data[y*tr.Stride+x*4:])
		}
	}
	return out
}

func (r *rig) draw(mode vbrender.Mode, count int) {
	r.t.Helper()
	if err := r.ctx.DrawArrays(mode, 0, count); err != nil {
		r.t.Fatalf("DrawArrays(%s): %v", mode, err)
	}
}

func v(x, y float32, c [4]float32) [8]float32 {
	return [8]float32{x, y, c[0], c[1], c[2], c[3], 0, 0}
}

var (
	red   = [4]float32{1, 0, 0, 1}
	green = [4]float32{0, 1, 0, 1}
	blue  = [4]float32{0, 0, 1, 1}
	white = [4]float32{1, 1, 1, 1}
)

func covered(px [][4]byte) map[int]bool {
	m := make(map[int]bool)
	for i, p := range px {
		if p != [4]byte{} {
			m[i] = true
		}
	}
	return m
}

func TestSharedEdgeCoveredOnce(t *testing.T) {
	r := newRig(t, 4, 4)

	r.vertices(v(0, 0, red), v(4, 0, red), v(4, 4, red))
	r.draw(vbrender.ModeTriangles, 3)
	a := covered(r.pixels())

	r.clear()
	r.vertices(v(0, 0, red), v(4, 4, red), v(0, 4, red))
	r.draw(vbrender.ModeTriangles, 3)
	b := covered(r.pixels())

	for i := range 16 {
		if a[i] == b[i] {
			t.Errorf("pixel %d,%d covered by first=%v second=%v, want exactly one", i%4, i/4, a[i], b[i])
		}
	}
}

func TestQuadFillsTarget(t *testing.T) {
	r := newRig(t, 5, 3)
	r.vertices(v(0, 0, red), v(5, 0, red), v(5, 3, red), v(0, 3, red))
	r.draw(vbrender.ModeQuads, 4)

	for i, p := range r.pixels() {
		if p != [4]byte{255, 0, 0, 255} {
			t.Errorf("pixel %d = %v, want red", i, p)
		}
	}
}

func TestFlatShadingUsesProvokingVertex(t *testing.T) {
	r := newRig(t, 4, 4)
	rs := pipe.DefaultRasterizer()
	rs.FlatShade = true
	if err := r.ctx.SetRasterizer(rs); err != nil {
		t.Fatal(err)
	}
	r.vertices(v(0, 0, red), v(0, 4, green), v(4, 0, blue))
	r.draw(vbrender.ModeTriangles, 3)

	n := 0
	for _, p := range r.pixels() {
		if p == [4]byte{} {
			continue
		}
		n++
		if p != [4]byte{0, 0, 255, 255} {
			t.Errorf("flat pixel %v, want blue", p)
		}
	}
	if n == 0 {
		t.Fatal("triangle covered no pixels")
	}
}

func TestGouraudInterpolates(t *testing.T) {
	r := newRig(t, 4, 4)
	r.vertices(v(0, 0, red), v(0, 4, green), v(4, 0, blue))
	r.draw(vbrender.ModeTriangles, 3)

	seen := make(map[[4]byte]bool)
	for _, p := range r.pixels() {
		if p != [4]byte{} {
			seen[p] = true
		}
	}
	if len(seen) < 3 {
		t.Errorf("got %d distinct colors, want interpolation", len(seen))
	}
}

func TestCulling(t *testing.T) {
	tests := []struct {
		name  string
		cull  pipe.CullMode
		order []int
		drawn bool
	}{
		{"none ccw", pipe.CullNone, []int{0, 1, 2}, true},
		{"none cw", pipe.CullNone, []int{0, 2, 1}, true},
		{"back ccw", pipe.CullBack, []int{0, 1, 2}, true},
		{"back cw", pipe.CullBack, []int{0, 2, 1}, false},
		{"front ccw", pipe.CullFront, []int{0, 1, 2}, false},
		{"front cw", pipe.CullFront, []int{0, 2, 1}, true},
	}
	// Counter-clockwise as seen on the y-down surface.
	corners := [3][8]float32{v(0, 0, white), v(0, 4, white), v(4, 0, white)}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 4, 4)
			rs := pipe.DefaultRasterizer()
			rs.Cull = tt.cull
			if err := r.ctx.SetRasterizer(rs); err != nil {
				t.Fatal(err)
			}
			r.vertices(corners[tt.order[0]], corners[tt.order[1]], corners[tt.order[2]])
			r.draw(vbrender.ModeTriangles, 3)
			if got := len(covered(r.pixels())) > 0; got != tt.drawn {
				t.Errorf("drawn = %v, want %v", got, tt.drawn)
			}
		})
	}
}

func TestLineStipple(t *testing.T) {
	row := func(px [][4]byte) string {
		b := make([]byte, len(px))
		for i, p := range px {
			b[i] = '.'
			if p != [4]byte{} {
				b[i] = '#'
			}
		}
		return string(b)
	}
	tests := []struct {
		name    string
		mode    vbrender.Mode
		verts   [][8]float32
		pattern uint16
		factor  int
		want    string
	}{
		{"solid", vbrender.ModeLines, [][8]float32{v(0, 0.5, white), v(8, 0.5, white)}, 0xffff, 1, "########"},
		{"alternate", vbrender.ModeLines, [][8]float32{v(0, 0.5, white), v(8, 0.5, white)}, 0x5555, 1, "#.#.#.#."},
		{"factor 2", vbrender.ModeLines, [][8]float32{v(0, 0.5, white), v(8, 0.5, white)}, 0x5555, 2, "##..##.."},
		{"strip continues", vbrender.ModeLineStrip,
			[][8]float32{v(0, 0.5, white), v(4, 0.5, white), v(8, 0.5, white)}, 0x000f, 1, "####...."},
		{"lines restart", vbrender.ModeLines,
			[][8]float32{v(0, 0.5, white), v(4, 0.5, white), v(4, 0.5, white), v(8, 0.5, white)}, 0x000f, 1, "########"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 8, 1)
			rs := pipe.DefaultRasterizer()
			rs.LineStipple = true
			rs.StipplePattern = tt.pattern
			rs.StippleFactor = tt.factor
			if err := r.ctx.SetRasterizer(rs); err != nil {
				t.Fatal(err)
			}
			r.vertices(tt.verts...)
			r.draw(tt.mode, len(tt.verts))
			if got := row(r.pixels()); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPointSize(t *testing.T) {
	r := newRig(t, 4, 4)
	rs := pipe.DefaultRasterizer()
	rs.PointSize = 2
	if err := r.ctx.SetRasterizer(rs); err != nil {
		t.Fatal(err)
	}
	r.vertices(v(2, 2, green))
	r.draw(vbrender.ModePoints, 1)

	got := covered(r.pixels())
	want := map[int]bool{1*4 + 1: true, 1*4 + 2: true, 2*4 + 1: true, 2*4 + 2: true}
	if len(got) != len(want) {
		t.Fatalf("covered %v, want %v", got, want)
	}
	for i := range want {
		if !got[i] {
			t.Errorf("pixel %d not covered", i)
		}
	}
}

func TestTexturedQuad(t *testing.T) {
	r := newRig(t, 4, 4)

	tex, err := r.screen.TextureCreate(texture.Template{
		Target: texture.Target2D, Format: format.FormatRGBA8Unorm,
		Width: 2, Height: 2, Depth: 1, Bind: texture.BindSampler,
	})
	if err != nil {
		t.Fatal(err)
	}
	tr, err := r.screen.TexTransfer(tex, 0, 0, 0, texture.UsageCPUWrite, 0, 0, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	data, err := r.screen.TransferMap(tr)
	if err != nil {
		t.Fatal(err)
	}
	copy(data[0:], []byte{255, 0, 0, 255, 0, 255, 0, 255})
	copy(data[tr.Stride:], []byte{0, 0, 255, 255, 255, 255, 255, 255})
	if err := r.screen.TransferRelease(tr); err != nil {
		t.Fatal(err)
	}

	if err := r.ctx.SetTexture(0, tex); err != nil {
		t.Fatal(err)
	}
	if err := r.ctx.SetSampler(0, sampler.State{NormalizedCoords: true}); err != nil {
		t.Fatal(err)
	}
	r.vertices(
		[8]float32{0, 0, 1, 1, 1, 1, 0, 0},
		[8]float32{4, 0, 1, 1, 1, 1, 1, 0},
		[8]float32{4, 4, 1, 1, 1, 1, 1, 1},
		[8]float32{0, 4, 1, 1, 1, 1, 0, 1},
	)
	r.draw(vbrender.ModeQuads, 4)

	px := r.pixels()
	quadrant := map[[2]int][4]byte{
		{0, 0}: {255, 0, 0, 255},
		{1, 0}: {0, 255, 0, 255},
		{0, 1}: {0, 0, 255, 255},
		{1, 1}: {255, 255, 255, 255},
	}
	for y := range 4 {
		for x := range 4 {
			if want := quadrant[[2]int{x / 2, y / 2}]; px[y*4+x] != want {
				t.Errorf("pixel %d,%d = %v, want %v", x, y, px[y*4+x], want)
			}
		}
	}
}

// fillLevel writes one color to every texel of a texture level.
func (r *rig) fillLevel(tex *texture.Texture, level int, c [4]byte) {
	r.t.Helper()
	w, h := tex.LevelWidth(level), tex.LevelHeight(level)
	tr, err := r.screen.TexTransfer(tex, 0, level, 0, texture.UsageCPUWrite, 0, 0, w, h)
	if err != nil {
		r.t.Fatal(err)
	}
	data, err := r.screen.TransferMap(tr)
	if err != nil {
		r.t.Fatal(err)
	}
	for y := range h {
		for x := range w {
			copy(data[y*tr.Stride+x*4:], c[:])
		}
	}
	if err := r.screen.TransferRelease(tr); err != nil {
		r.t.Fatal(err)
	}
}

func TestMinifiedQuadReadsSmallerLevel(t *testing.T) {
	levels := [][4]byte{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}}
	tests := []struct {
		name string
		st   sampler.State
		want [4]byte
	}{
		{"mip none", sampler.State{NormalizedCoords: true}, levels[0]},
		{"mip nearest", sampler.State{MipFilter: sampler.MipNearest, NormalizedCoords: true}, levels[2]},
		{"max level", sampler.State{MipFilter: sampler.MipNearest, MaxLevel: 1, NormalizedCoords: true}, levels[1]},
		{"base level", sampler.State{BaseLevel: 1, NormalizedCoords: true}, levels[1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 4, 4)
			tex, err := r.screen.TextureCreate(texture.Template{
				Target: texture.Target2D, Format: format.FormatRGBA8Unorm,
				Width: 16, Height: 16, Depth: 1, LastLevel: 2, Bind: texture.BindSampler,
			})
			if err != nil {
				t.Fatal(err)
			}
			for l, c := range levels {
				r.fillLevel(tex, l, c)
			}
			if err := r.ctx.SetTexture(0, tex); err != nil {
				t.Fatal(err)
			}
			if err := r.ctx.SetSampler(0, tt.st); err != nil {
				t.Fatal(err)
			}
			// 16 texels across 4 pixels is a level of detail of 2.
			r.vertices(
				[8]float32{0, 0, 1, 1, 1, 1, 0, 0},
				[8]float32{4, 0, 1, 1, 1, 1, 1, 0},
				[8]float32{4, 4, 1, 1, 1, 1, 1, 1},
				[8]float32{0, 4, 1, 1, 1, 1, 0, 1},
			)
			r.draw(vbrender.ModeQuads, 4)

			for i, p := range r.pixels() {
				if p != tt.want {
					t.Fatalf("pixel %d = %v, want %v", i, p, tt.want)
				}
			}
		})
	}
}

func TestDrawElements(t *testing.T) {
	r := newRig(t, 2, 2)
	r.vertices(v(0, 0, red), v(2, 0, red), v(2, 2, red), v(0, 2, red))
	idx := r.buffer([]byte{0, 0, 1, 0, 2, 0, 0, 0, 2, 0, 3, 0})

	if err := r.ctx.DrawElements(idx, 2, vbrender.ModeTriangles, 0, 6); err != nil {
		t.Fatalf("DrawElements: %v", err)
	}
	if n := len(covered(r.pixels())); n != 4 {
		t.Errorf("covered %d pixels, want 4", n)
	}

	if err := r.ctx.DrawElements(idx, 3, vbrender.ModeTriangles, 0, 3); !errors.Is(err, pipe.ErrInvalidIndexSize) {
		t.Errorf("index size 3: got %v, want ErrInvalidIndexSize", err)
	}
	if err := r.ctx.DrawElements(idx, 2, vbrender.ModeTriangles, 4, 3); !errors.Is(err, pipe.ErrInvalidVertexState) {
		t.Errorf("indices past the buffer: got %v, want ErrInvalidVertexState", err)
	}
	far := r.buffer([]byte{0, 0, 1, 0, 9, 0})
	if err := r.ctx.DrawElements(far, 2, vbrender.ModeTriangles, 0, 3); !errors.Is(err, pipe.ErrInvalidVertexState) {
		t.Errorf("vertex past the buffer: got %v, want ErrInvalidVertexState", err)
	}
}

func TestDrawErrors(t *testing.T) {
	s, err := New(alloc.NewHeap(0), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := s.CreateContext()
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.DrawArrays(vbrender.ModeTriangles, 0, 3); !errors.Is(err, pipe.ErrNoFramebuffer) {
		t.Errorf("no framebuffer: got %v", err)
	}
	if err := ctx.SetVertexElements([]pipe.VertexElement{{Format: gputypes.VertexFormatFloat16x2}}); !errors.Is(err, pipe.ErrInvalidVertexState) {
		t.Errorf("float16 element: got %v", err)
	}
	if err := ctx.SetVertexBuffer(maxVertexBuffers, pipe.VertexBuffer{}); !errors.Is(err, pipe.ErrInvalidVertexState) {
		t.Errorf("slot out of range: got %v", err)
	}
	if err := ctx.SetTexture(maxTextureUnits, nil); err == nil {
		t.Error("texture unit out of range accepted")
	}

	if err := ctx.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.Flush(0); !errors.Is(err, pipe.ErrDestroyed) {
		t.Errorf("flush after destroy: got %v", err)
	}
}

func TestClearLargeTarget(t *testing.T) {
	r := newRig(t, 200, 300)
	if err := r.ctx.Clear(pipe.ClearColor, [4]float32{1, 0.5, 0, 1}, 0, 0); err != nil {
		t.Fatal(err)
	}
	for i, p := range r.pixels() {
		if p != [4]byte{255, 128, 0, 255} {
			t.Fatalf("pixel %d = %v", i, p)
		}
	}
}

func TestClearDepthStencil(t *testing.T) {
	r := newRig(t, 2, 2)
	zs, err := r.screen.TextureCreate(texture.Template{
		Target: texture.Target2D, Format: format.FormatZ24UnormS8Uint,
		Width: 2, Height: 2, Depth: 1, Bind: texture.BindDepthStencil,
	})
	if err != nil {
		t.Fatal(err)
	}
	zsf, err := r.screen.TexSurface(zs, 0, 0, 0, texture.UsageGPUWrite)
	if err != nil {
		t.Fatal(err)
	}
	csf, err := r.screen.TexSurface(r.target, 0, 0, 0, texture.UsageGPUWrite)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.ctx.SetFramebuffer(pipe.Framebuffer{Color: &csf, DepthStencil: &zsf}); err != nil {
		t.Fatal(err)
	}

	if err := r.ctx.Clear(pipe.ClearDepthStencil, [4]float32{}, 1, 0x7f); err != nil {
		t.Fatal(err)
	}
	if err := r.ctx.Clear(pipe.ClearStencil, [4]float32{}, 0, 3); err != nil {
		t.Fatal(err)
	}

	tr, err := r.screen.TexTransfer(zs, 0, 0, 0, texture.UsageCPURead, 0, 0, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer r.screen.TransferRelease(tr)
	data, err := r.screen.TransferMap(tr)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := binary.LittleEndian.Uint32(data), uint32(0x03ffffff); got != want {
		t.Errorf("depth/stencil word = %#x, want %#x", got, want)
	}
}

func TestFlushReturnsSignaledFence(t *testing.T) {
	r := newRig(t, 1, 1)
	f, err := r.ctx.Flush(pipe.FlushFrame)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Signaled() {
		t.Error("fence not signaled")
	}
	if ok, err := r.screen.FenceFinish(f, 0); !ok || err != nil {
		t.Errorf("FenceFinish = %v, %v", ok, err)
	}
}

func TestIsFormatSupported(t *testing.T) {
	tests := []struct {
		f    format.Format
		bind texture.Bind
		want bool
	}{
		{format.FormatRGBA8Unorm, texture.BindRenderTarget | texture.BindSampler, true},
		{format.FormatB5G6R5Unorm, texture.BindRenderTarget, true},
		{format.FormatL8Unorm, texture.BindSampler, true},
		{format.FormatRGBA8Uint, texture.BindSampler, true},
		{format.FormatRGBA8Uint, texture.BindRenderTarget, false},
		{format.FormatDXT1RGBA, texture.BindSampler, false},
		{format.FormatR32Float, texture.BindSampler, false},
		{format.FormatZ16Unorm, texture.BindDepthStencil, true},
		{format.FormatZ16Unorm, texture.BindRenderTarget, false},
		{format.FormatRGBA8Unorm, texture.BindDepthStencil, false},
		{format.FormatNone, texture.BindSampler, false},
	}
	for _, tt := range tests {
		if got := IsFormatSupported(tt.f, texture.Target2D, tt.bind); got != tt.want {
			t.Errorf("IsFormatSupported(%s, %#x) = %v, want %v", tt.f, tt.bind, got, tt.want)
		}
	}
}

func TestParams(t *testing.T) {
	s, err := New(alloc.NewHeap(0), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Param(pipe.CapMaxBatchVerts); got != config.Default().MaxVerts {
		t.Errorf("MaxBatchVerts = %d", got)
	}
	if got := s.Param(pipe.CapOcclusionQuery); got != 0 {
		t.Errorf("OcclusionQuery = %d, want 0", got)
	}
	if got := s.Param(pipe.Cap(999)); got != 0 {
		t.Errorf("unknown cap = %d, want 0", got)
	}
	if got := s.ParamF(pipe.CapF(999)); got != 0 {
		t.Errorf("unknown float cap = %v, want 0", got)
	}
	if s.Name() != Name {
		t.Errorf("Name = %q", s.Name())
	}
}

func TestRegistered(t *testing.T) {
	s, err := pipe.CreateScreen(nil, pipe.WithDriver(Name))
	if err != nil {
		t.Fatalf("CreateScreen: %v", err)
	}
	defer s.Destroy()
	if s.Name() != Name {
		t.Errorf("Name = %q, want %q", s.Name(), Name)
	}
	if _, err := s.TextureCreate(texture.Template{
		Target: texture.Target2D, Format: format.FormatDXT1RGBA, Width: 4, Height: 4, Depth: 1,
		Bind: texture.BindSampler,
	}); !errors.Is(err, pipe.ErrUnsupportedFormat) {
		t.Errorf("blocked format: got %v", err)
	}
}
