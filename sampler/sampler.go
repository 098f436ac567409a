// Package sampler fetches and filters texels in structure-of-arrays form:
// one call resolves coordinates for a full lane vector and returns one
// vector per color channel.
package sampler

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/internal/wide"
)

// ErrUnsupported is returned for sampler states that cannot be honored.
var ErrUnsupported = errors.New("sampler: unsupported state")

// ErrInvalidImage is returned when image geometry does not match its data.
var ErrInvalidImage = errors.New("sampler: invalid image")

// UnsupportedError reports an unsupported wrap mode, coordinate mode or
// format. Callers can fall back to another path.
type UnsupportedError struct {
	Wrap       WrapMode
	Normalized bool
	Err        error
}

func (e *UnsupportedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sampler: unsupported: %v", e.Err)
	}
	coords := "unnormalized"
	if e.Normalized {
		coords = "normalized"
	}
	return fmt.Sprintf("sampler: unsupported wrap mode %s with %s coordinates", e.Wrap, coords)
}

// Unwrap returns ErrUnsupported and the underlying cause.
func (e *UnsupportedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnsupported, e.Err}
	}
	return []error{ErrUnsupported}
}

// Filter is the texel filter.
type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
)

// String returns the filter name.
func (f Filter) String() string {
	if f == FilterLinear {
		return "Linear"
	}
	return "Nearest"
}

// FromFilterMode maps a WebGPU filter mode.
func FromFilterMode(m gputypes.FilterMode) Filter {
	if m == gputypes.FilterModeLinear {
		return FilterLinear
	}
	return FilterNearest
}

// MipFilter selects how mipmap levels are chosen when minifying.
type MipFilter uint8

const (
	// MipNone samples the base level only.
	MipNone MipFilter = iota
	// MipNearest samples the level closest to the level of detail.
	MipNearest
	// MipLinear blends the two levels around the level of detail.
	MipLinear

	mipFilterCount
)

// String returns the mip filter name.
func (f MipFilter) String() string {
	switch f {
	case MipNone:
		return "None"
	case MipNearest:
		return "Nearest"
	case MipLinear:
		return "Linear"
	}
	return fmt.Sprintf("MipFilter(%d)", uint8(f))
}

// FromMipmapFilterMode maps a WebGPU mipmap filter mode.
func FromMipmapFilterMode(m gputypes.MipmapFilterMode) MipFilter {
	if m == gputypes.MipmapFilterModeLinear {
		return MipLinear
	}
	return MipNearest
}

// State is the sampler state.
type State struct {
	WrapS, WrapT WrapMode
	MinFilter    Filter
	MagFilter    Filter
	MipFilter    MipFilter
	// BaseLevel and MaxLevel bound the levels passed to New that the mip
	// filter may read. MaxLevel 0 means the last level.
	BaseLevel int
	MaxLevel  int
	// LODBias is added to the level of detail computed by LOD.
	LODBias float32
	// NormalizedCoords selects [0,1] coordinates; otherwise coordinates are
	// in texels and only the clamp wrap modes are allowed.
	NormalizedCoords bool
	BorderColor      [4]float32
}

// Image is one level of a texture as seen by the sampler.
type Image struct {
	Format format.Format
	Width  int
	Height int
	Stride int
	Data   []byte
}

type level struct {
	Image
	potW, potH bool
}

// Sampler samples one mipmap chain with one state.
type Sampler struct {
	state  State
	levels []level
	base   int
	last   int
	codec  *format.Codec
	bpp    int
	konst  [4]bool
	kvalue [4]float32
}

func unnormalizedWrap(m WrapMode) bool {
	return m == WrapClamp || m == WrapClampToEdge || m == WrapClampToBorder
}

// New validates the state against the images and prepares a sampler.
// images[i] is mipmap level i; all levels share the format of level 0.
func New(st State, images ...Image) (*Sampler, error) {
	for _, m := range []WrapMode{st.WrapS, st.WrapT} {
		if m >= wrapModeCount || (!st.NormalizedCoords && !unnormalizedWrap(m)) {
			return nil, &UnsupportedError{Wrap: m, Normalized: st.NormalizedCoords}
		}
	}
	if st.MipFilter >= mipFilterCount {
		return nil, &UnsupportedError{Normalized: st.NormalizedCoords, Err: fmt.Errorf("mip filter %s", st.MipFilter)}
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidImage)
	}
	f := images[0].Format
	codec, err := format.NewCodec(f)
	if err != nil {
		return nil, &UnsupportedError{Normalized: st.NormalizedCoords, Err: err}
	}
	bpp := f.BlockSize()

	s := &Sampler{
		state:  st,
		levels: make([]level, len(images)),
		codec:  codec,
		bpp:    bpp,
	}
	for i, img := range images {
		if img.Format != f {
			return nil, fmt.Errorf("%w: level %d is %s, level 0 is %s", ErrInvalidImage, i, img.Format, f)
		}
		if img.Width < 1 || img.Height < 1 || img.Stride < img.Width*bpp ||
			len(img.Data) < (img.Height-1)*img.Stride+img.Width*bpp {
			return nil, fmt.Errorf("%w: level %d: %dx%d stride %d with %d bytes",
				ErrInvalidImage, i, img.Width, img.Height, img.Stride, len(img.Data))
		}
		s.levels[i] = level{Image: img, potW: isPOT(img.Width), potH: isPOT(img.Height)}
	}
	s.last = len(images) - 1
	if st.MaxLevel > 0 {
		s.last = min(st.MaxLevel, s.last)
	}
	s.base = clampInt(st.BaseLevel, 0, s.last)

	zero := codec.Unpack(0)
	for ch := range 4 {
		s.konst[ch] = codec.ChannelIsConstant(ch)
		s.kvalue[ch] = zero[ch]
	}
	return s, nil
}

// State returns the sampler state.
func (s *Sampler) State() State { return s.state }

// Levels returns the first and last level the sampler reads.
func (s *Sampler) Levels() (base, last int) { return s.base, s.last }

// LOD returns the level of detail for texture coordinate derivatives
// along the screen axes, measured on the base level and biased by
// LODBias. Zero derivatives give negative infinity.
func (s *Sampler) LOD(dudx, dvdx, dudy, dvdy float32) float32 {
	b := &s.levels[s.base]
	rho := max(
		max(math32.Abs(dudx), math32.Abs(dudy))*float32(b.Width),
		max(math32.Abs(dvdx), math32.Abs(dvdy))*float32(b.Height),
	)
	return math32.Log2(rho) + s.state.LODBias
}

// Sample filters at one coordinate on the base level with the
// magnification filter.
func (s *Sampler) Sample(u, v float32) [4]float32 {
	return s.SampleLOD(u, v, 0)
}

// SampleLOD filters at one coordinate; a positive lod minifies.
func (s *Sampler) SampleLOD(u, v, lod float32) [4]float32 {
	out := s.SampleLanes(wide.SplatF32(u), wide.SplatF32(v), lod)
	return [4]float32{out[0][0], out[1][0], out[2][0], out[3][0]}
}

// SampleLanes filters a full vector of coordinates. A lod at or below
// zero magnifies the base level. Above zero the mip filter picks the
// levels, counted from the base level, and the minification filter
// reads them.
func (s *Sampler) SampleLanes(u, v wide.F32x8, lod float32) [4]wide.F32x8 {
	if lod <= 0 || math32.IsNaN(lod) {
		return s.filter(s.base, s.state.MagFilter, u, v)
	}
	lod = min(lod, float32(s.last-s.base))
	switch s.state.MipFilter {
	case MipNearest:
		return s.filter(s.levelAt(int(lod+0.5)), s.state.MinFilter, u, v)
	case MipLinear:
		i := int(lod)
		l0, l1 := s.levelAt(i), s.levelAt(i+1)
		a := s.filter(l0, s.state.MinFilter, u, v)
		if l1 == l0 {
			return a
		}
		b := s.filter(l1, s.state.MinFilter, u, v)
		w := wide.SplatF32(lod - float32(i))
		for ch := range a {
			a[ch] = a[ch].Lerp(b[ch], w)
		}
		return a
	}
	return s.filter(s.base, s.state.MinFilter, u, v)
}

// levelAt returns base+i clamped to the last level.
func (s *Sampler) levelAt(i int) int {
	return min(s.base+max(i, 0), s.last)
}

func (s *Sampler) filter(l int, f Filter, u, v wide.F32x8) [4]wide.F32x8 {
	lv := &s.levels[l]
	if f == FilterLinear {
		return s.linear(lv, u, v)
	}
	return s.nearest(lv, u, v)
}

var half = wide.SplatF32(0.5)

func (s *Sampler) nearestAxis(c wide.F32x8, mode WrapMode, size int, pot bool) wide.I32x8 {
	fsize := float32(size)
	if s.state.NormalizedCoords {
		switch mode {
		case WrapRepeat:
			return c.MulScalar(fsize).FloorInt().Map(repeatLane(size, pot))
		case WrapClampToEdge:
			lo := 1 / (2 * fsize)
			return c.Clamp(lo, 1-lo).MulScalar(fsize).FloorInt()
		}
	}
	var r wide.I32x8
	for i, x := range c {
		if s.state.NormalizedCoords {
			r[i] = int32(nearestNormalized(mode, x, size, pot))
		} else {
			r[i] = int32(nearestUnnormalized(mode, x, size))
		}
	}
	return r
}

func (s *Sampler) linearAxis(c wide.F32x8, mode WrapMode, size int, pot bool) (i0, i1 wide.I32x8, w wide.F32x8) {
	fsize := float32(size)
	if s.state.NormalizedCoords {
		switch mode {
		case WrapRepeat:
			x := c.MulScalar(fsize).Sub(half)
			wrap := repeatLane(size, pot)
			i0 = x.FloorInt().Map(wrap)
			return i0, i0.AddScalar(1).Map(wrap), x.Fract()
		case WrapClamp, WrapClampToEdge:
			x := c.Clamp(0, 1).MulScalar(fsize).Sub(half)
			clamp := clampLane(size)
			f := x.FloorInt()
			return f.Map(clamp), f.AddScalar(1).Map(clamp), x.Fract()
		}
	}
	for i, x := range c {
		var a, b int
		if s.state.NormalizedCoords {
			a, b, w[i] = linearNormalized(mode, x, size, pot)
		} else {
			a, b, w[i] = linearUnnormalized(mode, x, size)
		}
		i0[i], i1[i] = int32(a), int32(b)
	}
	return i0, i1, w
}

func repeatLane(size int, pot bool) func(int32) int32 {
	return func(c int32) int32 { return int32(repeat(int(c), size, pot)) }
}

func clampLane(size int) func(int32) int32 {
	return func(c int32) int32 { return int32(clampInt(int(c), 0, size-1)) }
}

func (s *Sampler) nearest(lv *level, u, v wide.F32x8) [4]wide.F32x8 {
	x := s.nearestAxis(u, s.state.WrapS, lv.Width, lv.potW)
	y := s.nearestAxis(v, s.state.WrapT, lv.Height, lv.potH)
	return s.fetch(lv, x, y)
}

func (s *Sampler) linear(lv *level, u, v wide.F32x8) [4]wide.F32x8 {
	x0, x1, wx := s.linearAxis(u, s.state.WrapS, lv.Width, lv.potW)
	y0, y1, wy := s.linearAxis(v, s.state.WrapT, lv.Height, lv.potH)

	t00 := s.fetch(lv, x0, y0)
	t10 := s.fetch(lv, x1, y0)
	t01 := s.fetch(lv, x0, y1)
	t11 := s.fetch(lv, x1, y1)

	var out [4]wide.F32x8
	for ch := range 4 {
		if s.konst[ch] {
			out[ch] = wide.SplatF32(s.kvalue[ch])
			continue
		}
		top := t00[ch].Lerp(t10[ch], wx)
		bottom := t01[ch].Lerp(t11[ch], wx)
		out[ch] = top.Lerp(bottom, wy)
	}
	return out
}

// fetch decodes the texels at (x, y). Coordinates outside the level read
// the border color.
func (s *Sampler) fetch(lv *level, x, y wide.I32x8) [4]wide.F32x8 {
	var (
		words  wide.U32x8
		border [wide.Lanes]bool
	)
	for i := range x {
		xi, yi := int(x[i]), int(y[i])
		if xi < 0 || xi >= lv.Width || yi < 0 || yi >= lv.Height {
			border[i] = true
			continue
		}
		words[i] = s.codec.Load(lv.Data[yi*lv.Stride+xi*s.bpp:])
	}
	texels := s.codec.UnpackLanes(&words)
	for i, b := range border {
		if !b {
			continue
		}
		for ch := range 4 {
			if !s.konst[ch] {
				texels[ch][i] = s.state.BorderColor[ch]
			}
		}
	}
	return texels
}

// Texel returns the base-level texel at integer coordinates after
// wrapping them with the sampler's wrap modes. It is a debugging aid
// for inspecting bound textures; rendering goes through SampleLanes.
func (s *Sampler) Texel(x, y int) [4]float32 {
	lv := &s.levels[s.base]
	xs := wide.SplatI32(int32(WrapInt(x, lv.Width, s.state.WrapS)))
	ys := wide.SplatI32(int32(WrapInt(y, lv.Height, s.state.WrapT)))
	t := s.fetch(lv, xs, ys)
	return [4]float32{t[0][0], t[1][0], t[2][0], t[3][0]}
}
