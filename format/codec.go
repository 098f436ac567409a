package format

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/pipe/internal/cache"
	"github.com/gogpu/pipe/internal/wide"
)

// ErrUnsupportedFormat is returned when a format is not a simple arithmetic
// layout of at most 32 bits with a 1x1 block.
var ErrUnsupportedFormat = errors.New("format: unsupported format")

type (
	unpackFunc func(p uint32) float32
	laneFunc   func(p *wide.U32x8) wide.F32x8
	packFunc   func(v *[4]float32) uint32
)

// Codec converts between packed words and RGBA floats for one format.
// The conversion routines are generated once per format by composing
// per-channel closures specialized on shift, width, type and swizzle.
//
// Codec is immutable and safe for concurrent use.
type Codec struct {
	desc   *Description
	unpack [4]unpackFunc
	lanes  [4]laneFunc
	pack   []packFunc
	mask   uint32
}

var codecs = cache.New[Format, *Codec](64)

// NewCodec returns the codec for f, generating it on first use.
func NewCodec(f Format) (*Codec, error) {
	return codecs.GetOrCreate(f, func() (*Codec, error) { return generate(f) })
}

func checkArithmetic(d *Description) error {
	if d == nil || d.Format == FormatNone {
		return fmt.Errorf("%w: unknown format", ErrUnsupportedFormat)
	}
	if d.Layout != LayoutPlain || d.BlockWidth != 1 || d.BlockHeight != 1 {
		return fmt.Errorf("%w: %s is not a plain 1x1 layout", ErrUnsupportedFormat, d.Name)
	}
	if d.BlockBits > 32 {
		return fmt.Errorf("%w: %s has %d bits per pixel", ErrUnsupportedFormat, d.Name, d.BlockBits)
	}
	for i := 0; i < d.NrChannels; i++ {
		if d.Channels[i].Type == TypeFloat {
			return fmt.Errorf("%w: %s has float channels", ErrUnsupportedFormat, d.Name)
		}
	}
	return nil
}

func generate(f Format) (*Codec, error) {
	d := Describe(f)
	if err := checkArithmetic(d); err != nil {
		return nil, err
	}

	c := &Codec{desc: d, mask: ^uint32(0)}
	if d.BlockBits < 32 {
		c.mask = uint32(1)<<d.BlockBits - 1
	}
	for i, s := range d.Swizzle {
		c.unpack[i], c.lanes[i] = genUnpack(d, s)
	}
	for i := 0; i < d.NrChannels; i++ {
		if fn := genPack(d, i); fn != nil {
			c.pack = append(c.pack, fn)
		}
	}
	return c, nil
}

func bitMask(size uint8) uint32 {
	if size >= 32 {
		return ^uint32(0)
	}
	return uint32(1)<<size - 1
}

func constant(v float32) (unpackFunc, laneFunc) {
	splat := wide.SplatF32(v)
	return func(uint32) float32 { return v },
		func(*wide.U32x8) wide.F32x8 { return splat }
}

func genUnpack(d *Description, s Swizzle) (unpackFunc, laneFunc) {
	switch s {
	case Swizzle1:
		return constant(1)
	case Swizzle0, SwizzleNone:
		return constant(0)
	}

	ch := d.Channels[s-SwizzleX]
	shift, size := uint(ch.Shift), uint(ch.Size)
	mask := bitMask(ch.Size)

	switch {
	case ch.Type == TypeUnsigned && ch.Normalized:
		scale := 1 / float64(mask)
		return func(p uint32) float32 {
				return float32(float64((p>>shift)&mask) * scale)
			}, func(p *wide.U32x8) wide.F32x8 {
				var r wide.F32x8
				for i, v := range p.Field(shift, size) {
					r[i] = float32(float64(v) * scale)
				}
				return r
			}
	case ch.Type == TypeUnsigned:
		return func(p uint32) float32 {
				return float32((p >> shift) & mask)
			}, func(p *wide.U32x8) wide.F32x8 {
				return p.Field(shift, size).ToF32()
			}
	case ch.Type == TypeSigned:
		left := 32 - shift - size
		signed := func(p uint32) int32 { return int32(p<<left) >> (32 - size) }
		if ch.Normalized {
			smax := float32(int32(1)<<(size-1) - 1)
			norm := func(p uint32) float32 { return max(float32(signed(p))/smax, -1) }
			return norm, func(p *wide.U32x8) wide.F32x8 {
				var r wide.F32x8
				for i, v := range p {
					r[i] = norm(v)
				}
				return r
			}
		}
		return func(p uint32) float32 { return float32(signed(p)) },
			func(p *wide.U32x8) wide.F32x8 {
				var r wide.F32x8
				for i, v := range p {
					r[i] = float32(signed(v))
				}
				return r
			}
	}
	// Void channel selected by the swizzle.
	return constant(0)
}

// genPack builds the packer of source channel i, or nil for padding and
// channels no output channel maps to.
func genPack(d *Description, i int) packFunc {
	ch := d.Channels[i]
	if ch.Type == TypeVoid {
		return nil
	}
	src := -1
	for j, s := range d.Swizzle {
		if s == SwizzleX+Swizzle(i) {
			src = j
			break
		}
	}
	if src < 0 {
		return nil
	}

	shift := uint(ch.Shift)
	mask := bitMask(ch.Size)

	switch ch.Type {
	case TypeUnsigned:
		hi := float64(mask)
		if ch.Normalized {
			return func(v *[4]float32) uint32 {
				x := min(max(float64(v[src]), 0), 1)
				return uint32(math.Floor(x*hi+0.5)) << shift
			}
		}
		return func(v *[4]float32) uint32 {
			x := min(max(float64(v[src]), 0), hi)
			return uint32(math.Floor(x+0.5)) << shift
		}
	case TypeSigned:
		smax := float64(int64(1)<<(ch.Size-1) - 1)
		smin := -smax - 1
		if ch.Normalized {
			return func(v *[4]float32) uint32 {
				x := min(max(float64(v[src]), -1), 1)
				return (uint32(int32(math.Round(x*smax))) & mask) << shift
			}
		}
		return func(v *[4]float32) uint32 {
			x := min(max(float64(v[src]), smin), smax)
			return (uint32(int32(math.Round(x))) & mask) << shift
		}
	}
	return nil
}

// Description returns the format description.
func (c *Codec) Description() *Description { return c.desc }

// Format returns the codec's format.
func (c *Codec) Format() Format { return c.desc.Format }

// Unpack decodes a packed pixel to RGBA.
func (c *Codec) Unpack(p uint32) [4]float32 {
	return [4]float32{c.unpack[0](p), c.unpack[1](p), c.unpack[2](p), c.unpack[3](p)}
}

// UnpackLanes decodes 8 packed pixels into one vector per channel.
func (c *Codec) UnpackLanes(p *wide.U32x8) [4]wide.F32x8 {
	return [4]wide.F32x8{c.lanes[0](p), c.lanes[1](p), c.lanes[2](p), c.lanes[3](p)}
}

// Pack encodes RGBA into a packed pixel truncated to the format's width.
func (c *Codec) Pack(v [4]float32) uint32 {
	var p uint32
	for _, fn := range c.pack {
		p |= fn(&v)
	}
	return p & c.mask
}

// ChannelIsConstant reports whether output channel i always decodes to the
// same value regardless of the texel.
func (c *Codec) ChannelIsConstant(i int) bool {
	s := c.desc.Swizzle[i]
	return s.IsConstant() || s == SwizzleNone
}

// Load reads the packed pixel at the start of b little-endian.
func (c *Codec) Load(b []byte) uint32 {
	switch c.desc.BlockBits {
	case 8:
		return uint32(b[0])
	case 16:
		return uint32(b[0]) | uint32(b[1])<<8
	case 24:
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	default:
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
}

// Store writes p at the start of b little-endian.
func (c *Codec) Store(b []byte, p uint32) {
	n := c.desc.BlockBits / 8
	for i := range n {
		b[i] = byte(p >> (8 * i))
	}
}

// Unpack decodes p in format f.
func Unpack(f Format, p uint32) ([4]float32, error) {
	c, err := NewCodec(f)
	if err != nil {
		return [4]float32{}, err
	}
	return c.Unpack(p), nil
}

// Pack encodes v in format f.
func Pack(f Format, v [4]float32) (uint32, error) {
	c, err := NewCodec(f)
	if err != nil {
		return 0, err
	}
	return c.Pack(v), nil
}
