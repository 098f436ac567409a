package format

import "github.com/gogpu/gputypes"

var toGPU = map[Format]gputypes.TextureFormat{
	FormatRGBA8Unorm:     gputypes.TextureFormatRGBA8Unorm,
	FormatBGRA8Unorm:     gputypes.TextureFormatBGRA8Unorm,
	FormatRGBA8Srgb:      gputypes.TextureFormatRGBA8UnormSrgb,
	FormatBGRA8Srgb:      gputypes.TextureFormatBGRA8UnormSrgb,
	FormatRGBA8Uint:      gputypes.TextureFormatRGBA8Uint,
	FormatRGBA8Snorm:     gputypes.TextureFormatRGBA8Snorm,
	FormatR8Unorm:        gputypes.TextureFormatR8Unorm,
	FormatR8Snorm:        gputypes.TextureFormatR8Snorm,
	FormatR8Uint:         gputypes.TextureFormatR8Uint,
	FormatRG8Unorm:       gputypes.TextureFormatRG8Unorm,
	FormatRGB10A2Unorm:   gputypes.TextureFormatRGB10A2Unorm,
	FormatR16Unorm:       gputypes.TextureFormatR16Unorm,
	FormatRG16Unorm:      gputypes.TextureFormatRG16Unorm,
	FormatZ16Unorm:       gputypes.TextureFormatDepth16Unorm,
	FormatZ24UnormS8Uint: gputypes.TextureFormatDepth24PlusStencil8,
	FormatR32Float:       gputypes.TextureFormatR32Float,
	FormatRGBA16Unorm:    gputypes.TextureFormatRGBA16Unorm,
	FormatDXT1RGBA:       gputypes.TextureFormatBC1RGBAUnorm,
	FormatDXT5RGBA:       gputypes.TextureFormatBC3RGBAUnorm,
}

var fromGPU = func() map[gputypes.TextureFormat]Format {
	m := make(map[gputypes.TextureFormat]Format, len(toGPU))
	for f, g := range toGPU {
		m[g] = f
	}
	return m
}()

// GPU returns the WebGPU texture format with the same memory layout, or
// TextureFormatUndefined when WebGPU has no equivalent (legacy luminance,
// alpha, packed 16-bit and video formats).
func (f Format) GPU() gputypes.TextureFormat {
	return toGPU[f]
}

// FromGPU maps a WebGPU texture format to a Format.
func FromGPU(g gputypes.TextureFormat) (Format, bool) {
	f, ok := fromGPU[g]
	return f, ok
}
