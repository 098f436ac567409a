// Package format describes pixel formats and generates pack/unpack codecs
// for the simple arithmetic ones.
//
// A [Description] lists up to four source channels packed into a block,
// least significant bits first, and a swizzle that maps each output
// channel (R, G, B, A) to a source channel or a constant. Packed words are
// read from memory little-endian.
package format

// Format identifies a pixel format.
type Format uint8

const (
	// FormatNone is the zero value and describes no storage.
	FormatNone Format = iota

	// FormatRGBA8Unorm stores R, G, B, A in memory order, 8 bits each.
	FormatRGBA8Unorm
	// FormatBGRA8Unorm stores B, G, R, A in memory order, 8 bits each.
	FormatBGRA8Unorm
	// FormatARGB8Unorm stores A, R, G, B in memory order, 8 bits each.
	FormatARGB8Unorm
	// FormatABGR8Unorm stores A, B, G, R in memory order, 8 bits each.
	FormatABGR8Unorm
	// FormatXRGB8Unorm is ARGB8 with the alpha byte ignored (reads as 1).
	FormatXRGB8Unorm
	// FormatRGBX8Unorm is RGBA8 with the alpha byte ignored (reads as 1).
	FormatRGBX8Unorm
	// FormatRGBA8Srgb has the RGBA8 layout with sRGB-encoded color.
	// The codec moves encoded values and applies no transfer function.
	FormatRGBA8Srgb
	// FormatBGRA8Srgb has the BGRA8 layout with sRGB-encoded color.
	FormatBGRA8Srgb
	FormatRGBA8Uint
	FormatRGBA8Snorm

	FormatR8Unorm
	FormatR8Snorm
	FormatR8Uint
	FormatRG8Unorm
	// FormatA8Unorm is alpha only; color reads as 0.
	FormatA8Unorm
	// FormatL8Unorm is luminance replicated to R, G and B.
	FormatL8Unorm
	// FormatI8Unorm is intensity replicated to all four channels.
	FormatI8Unorm
	// FormatL8A8Unorm is luminance plus alpha.
	FormatL8A8Unorm

	// FormatB5G6R5Unorm is 16-bit color with B in the low bits.
	FormatB5G6R5Unorm
	// FormatB5G5R5A1Unorm is 16-bit color with a 1-bit alpha in the top bit.
	FormatB5G5R5A1Unorm
	// FormatB4G4R4A4Unorm is 16-bit color with a 4-bit alpha in the top nibble.
	FormatB4G4R4A4Unorm
	FormatRGB10A2Unorm
	FormatR16Unorm
	FormatRG16Unorm

	// FormatZ16Unorm is a 16-bit depth format.
	FormatZ16Unorm
	// FormatZ24UnormS8Uint packs 24-bit depth in the low bits and 8-bit
	// stencil in the top byte.
	FormatZ24UnormS8Uint

	// The formats below are valid texture formats the codec cannot handle.

	// FormatR32Float is a single 32-bit float channel.
	FormatR32Float
	// FormatRGBA16Unorm is 64 bits per pixel.
	FormatRGBA16Unorm
	// FormatDXT1RGBA is BC1 block compression (4x4 blocks, 64 bits).
	FormatDXT1RGBA
	// FormatDXT5RGBA is BC3 block compression (4x4 blocks, 128 bits).
	FormatDXT5RGBA
	// FormatYUYV is 4:2:2 subsampled video (2x1 blocks, 32 bits).
	FormatYUYV

	// formatCount is the number of formats (for internal use).
	formatCount
)

// Count returns the number of defined formats, FormatNone included.
// Formats are the integers in [0, Count()).
func Count() int { return int(formatCount) }

// Type is the arithmetic type of one channel.
type Type uint8

const (
	// TypeVoid marks padding bits.
	TypeVoid Type = iota
	TypeUnsigned
	TypeSigned
	TypeFloat
)

// Swizzle selects the source of one output channel.
type Swizzle uint8

const (
	SwizzleX Swizzle = iota
	SwizzleY
	SwizzleZ
	SwizzleW
	Swizzle0
	Swizzle1
	// SwizzleNone leaves the channel undefined; it decodes as 0.
	SwizzleNone
)

// IsConstant reports whether the swizzle supplies a literal rather than a
// source channel.
func (s Swizzle) IsConstant() bool { return s == Swizzle0 || s == Swizzle1 }

// Layout is the storage scheme of a format.
type Layout uint8

const (
	LayoutPlain Layout = iota
	LayoutCompressed
	LayoutSubsampled
)

// Colorspace is the interpretation of the channels.
type Colorspace uint8

const (
	ColorspaceRGB Colorspace = iota
	ColorspaceSRGB
	ColorspaceZS
	ColorspaceYUV
)

// Channel describes one source channel of a packed block.
type Channel struct {
	Type       Type
	Normalized bool
	// Size is the width in bits.
	Size uint8
	// Shift is the bit offset from the least significant bit of the block.
	Shift uint8
}

// Description is the immutable description of a format.
type Description struct {
	Format      Format
	Name        string
	Layout      Layout
	BlockWidth  int
	BlockHeight int
	BlockBits   int
	NrChannels  int
	Channels    [4]Channel
	Swizzle     [4]Swizzle
	Colorspace  Colorspace
}

// BlockSize returns the size of one block in bytes.
func (d *Description) BlockSize() int { return d.BlockBits / 8 }

var (
	unorm8  = [4]Channel{u8(0, true), u8(8, true), u8(16, true), u8(24, true)}
	swzRGBA = [4]Swizzle{SwizzleX, SwizzleY, SwizzleZ, SwizzleW}
)

func u8(shift uint8, norm bool) Channel {
	return Channel{Type: TypeUnsigned, Normalized: norm, Size: 8, Shift: shift}
}

func unorm(size, shift uint8) Channel {
	return Channel{Type: TypeUnsigned, Normalized: true, Size: size, Shift: shift}
}

func plain(name string, bits, n int, ch [4]Channel, swz [4]Swizzle) Description {
	return Description{
		Name: name, Layout: LayoutPlain,
		BlockWidth: 1, BlockHeight: 1, BlockBits: bits,
		NrChannels: n, Channels: ch, Swizzle: swz,
	}
}

// descriptions is indexed by Format.
var descriptions = func() [formatCount]Description {
	void8 := Channel{Type: TypeVoid, Size: 8}
	s8 := func(shift uint8) Channel {
		return Channel{Type: TypeSigned, Normalized: true, Size: 8, Shift: shift}
	}
	one := func(c Channel) [4]Channel { return [4]Channel{c} }
	const (
		x, y, z, w = SwizzleX, SwizzleY, SwizzleZ, SwizzleW
		c0, c1     = Swizzle0, Swizzle1
	)

	var t [formatCount]Description
	t[FormatNone] = Description{Name: "none", BlockWidth: 1, BlockHeight: 1}

	t[FormatRGBA8Unorm] = plain("rgba8unorm", 32, 4, unorm8, swzRGBA)
	t[FormatBGRA8Unorm] = plain("bgra8unorm", 32, 4, unorm8, [4]Swizzle{z, y, x, w})
	t[FormatARGB8Unorm] = plain("argb8unorm", 32, 4, unorm8, [4]Swizzle{y, z, w, x})
	t[FormatABGR8Unorm] = plain("abgr8unorm", 32, 4, unorm8, [4]Swizzle{w, z, y, x})
	t[FormatXRGB8Unorm] = plain("xrgb8unorm", 32, 4,
		[4]Channel{void8, u8(8, true), u8(16, true), u8(24, true)}, [4]Swizzle{y, z, w, c1})
	t[FormatRGBX8Unorm] = plain("rgbx8unorm", 32, 4,
		[4]Channel{u8(0, true), u8(8, true), u8(16, true), {Type: TypeVoid, Size: 8, Shift: 24}}, [4]Swizzle{x, y, z, c1})
	t[FormatRGBA8Srgb] = plain("rgba8unorm-srgb", 32, 4, unorm8, swzRGBA)
	t[FormatRGBA8Srgb].Colorspace = ColorspaceSRGB
	t[FormatBGRA8Srgb] = plain("bgra8unorm-srgb", 32, 4, unorm8, [4]Swizzle{z, y, x, w})
	t[FormatBGRA8Srgb].Colorspace = ColorspaceSRGB
	t[FormatRGBA8Uint] = plain("rgba8uint", 32, 4,
		[4]Channel{u8(0, false), u8(8, false), u8(16, false), u8(24, false)}, swzRGBA)
	t[FormatRGBA8Snorm] = plain("rgba8snorm", 32, 4, [4]Channel{s8(0), s8(8), s8(16), s8(24)}, swzRGBA)

	t[FormatR8Unorm] = plain("r8unorm", 8, 1, one(u8(0, true)), [4]Swizzle{x, c0, c0, c1})
	t[FormatR8Snorm] = plain("r8snorm", 8, 1, one(s8(0)), [4]Swizzle{x, c0, c0, c1})
	t[FormatR8Uint] = plain("r8uint", 8, 1, one(u8(0, false)), [4]Swizzle{x, c0, c0, c1})
	t[FormatRG8Unorm] = plain("rg8unorm", 16, 2, [4]Channel{u8(0, true), u8(8, true)}, [4]Swizzle{x, y, c0, c1})
	t[FormatA8Unorm] = plain("a8unorm", 8, 1, one(u8(0, true)), [4]Swizzle{c0, c0, c0, x})
	t[FormatL8Unorm] = plain("l8unorm", 8, 1, one(u8(0, true)), [4]Swizzle{x, x, x, c1})
	t[FormatI8Unorm] = plain("i8unorm", 8, 1, one(u8(0, true)), [4]Swizzle{x, x, x, x})
	t[FormatL8A8Unorm] = plain("l8a8unorm", 16, 2, [4]Channel{u8(0, true), u8(8, true)}, [4]Swizzle{x, x, x, y})

	t[FormatB5G6R5Unorm] = plain("b5g6r5unorm", 16, 3,
		[4]Channel{unorm(5, 0), unorm(6, 5), unorm(5, 11)}, [4]Swizzle{z, y, x, c1})
	t[FormatB5G5R5A1Unorm] = plain("b5g5r5a1unorm", 16, 4,
		[4]Channel{unorm(5, 0), unorm(5, 5), unorm(5, 10), unorm(1, 15)}, [4]Swizzle{z, y, x, w})
	t[FormatB4G4R4A4Unorm] = plain("b4g4r4a4unorm", 16, 4,
		[4]Channel{unorm(4, 0), unorm(4, 4), unorm(4, 8), unorm(4, 12)}, [4]Swizzle{z, y, x, w})
	t[FormatRGB10A2Unorm] = plain("rgb10a2unorm", 32, 4,
		[4]Channel{unorm(10, 0), unorm(10, 10), unorm(10, 20), unorm(2, 30)}, swzRGBA)
	t[FormatR16Unorm] = plain("r16unorm", 16, 1, one(unorm(16, 0)), [4]Swizzle{x, c0, c0, c1})
	t[FormatRG16Unorm] = plain("rg16unorm", 32, 2, [4]Channel{unorm(16, 0), unorm(16, 16)}, [4]Swizzle{x, y, c0, c1})

	t[FormatZ16Unorm] = plain("z16unorm", 16, 1, one(unorm(16, 0)), [4]Swizzle{x, SwizzleNone, SwizzleNone, SwizzleNone})
	t[FormatZ16Unorm].Colorspace = ColorspaceZS
	t[FormatZ24UnormS8Uint] = plain("z24unorm-s8uint", 32, 2,
		[4]Channel{unorm(24, 0), {Type: TypeUnsigned, Size: 8, Shift: 24}}, [4]Swizzle{x, y, SwizzleNone, SwizzleNone})
	t[FormatZ24UnormS8Uint].Colorspace = ColorspaceZS

	t[FormatR32Float] = plain("r32float", 32, 1, one(Channel{Type: TypeFloat, Size: 32}), [4]Swizzle{x, c0, c0, c1})
	t[FormatRGBA16Unorm] = plain("rgba16unorm", 64, 4,
		[4]Channel{unorm(16, 0), unorm(16, 16), unorm(16, 32), unorm(16, 48)}, swzRGBA)
	t[FormatDXT1RGBA] = Description{
		Name: "dxt1-rgba", Layout: LayoutCompressed,
		BlockWidth: 4, BlockHeight: 4, BlockBits: 64, NrChannels: 4, Swizzle: swzRGBA,
	}
	t[FormatDXT5RGBA] = Description{
		Name: "dxt5-rgba", Layout: LayoutCompressed,
		BlockWidth: 4, BlockHeight: 4, BlockBits: 128, NrChannels: 4, Swizzle: swzRGBA,
	}
	t[FormatYUYV] = Description{
		Name: "yuyv", Layout: LayoutSubsampled, Colorspace: ColorspaceYUV,
		BlockWidth: 2, BlockHeight: 1, BlockBits: 32, NrChannels: 3, Swizzle: [4]Swizzle{x, y, z, c1},
	}

	for i := range t {
		t[i].Format = Format(i)
	}
	return t
}()

// Describe returns the description of f, or nil for an unknown format.
func Describe(f Format) *Description {
	if f >= formatCount {
		return nil
	}
	return &descriptions[f]
}

// String returns the format name.
func (f Format) String() string {
	if d := Describe(f); d != nil {
		return d.Name
	}
	return "unknown"
}

// Valid reports whether f names a real format.
func (f Format) Valid() bool { return f > FormatNone && f < formatCount }

// BlockSize returns the bytes per block, or 0 for unknown formats.
func (f Format) BlockSize() int {
	if d := Describe(f); d != nil {
		return d.BlockSize()
	}
	return 0
}

// NBlocksX returns the number of blocks covering width pixels.
func (f Format) NBlocksX(width int) int {
	d := Describe(f)
	if d == nil || d.BlockWidth == 0 {
		return 0
	}
	return (width + d.BlockWidth - 1) / d.BlockWidth
}

// NBlocksY returns the number of block rows covering height pixels.
func (f Format) NBlocksY(height int) int {
	d := Describe(f)
	if d == nil || d.BlockHeight == 0 {
		return 0
	}
	return (height + d.BlockHeight - 1) / d.BlockHeight
}

// Stride returns the tightly packed row pitch in bytes for width pixels.
func (f Format) Stride(width int) int { return f.NBlocksX(width) * f.BlockSize() }

// IsCompressed reports whether f uses block compression.
func (f Format) IsCompressed() bool {
	d := Describe(f)
	return d != nil && d.Layout == LayoutCompressed
}

// IsDepthStencil reports whether f holds depth and/or stencil.
func (f Format) IsDepthStencil() bool {
	d := Describe(f)
	return d != nil && d.Colorspace == ColorspaceZS
}

// IsRGBA8 reports whether f has 4 channels of 8 bits in 32 bits, each
// unsigned, signed or void.
func IsRGBA8(f Format) bool {
	d := Describe(f)
	if d == nil || d.Layout != LayoutPlain || d.NrChannels != 4 || d.BlockBits != 32 {
		return false
	}
	for _, c := range d.Channels {
		if c.Size != 8 {
			return false
		}
		switch c.Type {
		case TypeUnsigned, TypeSigned, TypeVoid:
		default:
			return false
		}
	}
	return true
}
