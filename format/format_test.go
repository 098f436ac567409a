package format

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestIsRGBA8(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
	}{
		{FormatRGBA8Unorm, true},
		{FormatBGRA8Unorm, true},
		{FormatXRGB8Unorm, true},
		{FormatRGBA8Snorm, true},
		{FormatRGBA8Uint, true},
		{FormatRGBA8Srgb, true},
		{FormatRGB10A2Unorm, false},
		{FormatRG16Unorm, false},
		{FormatR8Unorm, false},
		{FormatB4G4R4A4Unorm, false},
		{FormatDXT1RGBA, false},
		{FormatNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := IsRGBA8(tt.format); got != tt.want {
				t.Errorf("IsRGBA8(%s) = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestGeometry(t *testing.T) {
	tests := []struct {
		format        Format
		width, height int
		stride, rows  int
	}{
		{FormatRGBA8Unorm, 7, 3, 28, 3},
		{FormatB5G6R5Unorm, 5, 1, 10, 1},
		{FormatR8Unorm, 3, 3, 3, 3},
		{FormatDXT1RGBA, 5, 9, 16, 3},
		{FormatDXT5RGBA, 4, 4, 16, 1},
		{FormatYUYV, 3, 2, 8, 2},
		{FormatRGBA16Unorm, 2, 2, 16, 2},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.Stride(tt.width); got != tt.stride {
				t.Errorf("Stride(%d) = %d, want %d", tt.width, got, tt.stride)
			}
			if got := tt.format.NBlocksY(tt.height); got != tt.rows {
				t.Errorf("NBlocksY(%d) = %d, want %d", tt.height, got, tt.rows)
			}
		})
	}
}

func TestFormatPredicates(t *testing.T) {
	if !FormatDXT1RGBA.IsCompressed() || FormatRGBA8Unorm.IsCompressed() {
		t.Error("IsCompressed mismatch")
	}
	if !FormatZ24UnormS8Uint.IsDepthStencil() || FormatRGBA8Unorm.IsDepthStencil() {
		t.Error("IsDepthStencil mismatch")
	}
	if FormatNone.Valid() || Format(250).Valid() || !FormatYUYV.Valid() {
		t.Error("Valid mismatch")
	}
	if Describe(Format(250)) != nil {
		t.Error("Describe of unknown format should be nil")
	}
}

func TestGPUMapping(t *testing.T) {
	for i := 1; i < Count(); i++ {
		f := Format(i)
		g := f.GPU()
		if g == gputypes.TextureFormatUndefined {
			continue
		}
		back, ok := FromGPU(g)
		if !ok || back != f {
			t.Errorf("FromGPU(%s.GPU()) = %s, %v", f, back, ok)
		}
	}
	if FormatL8Unorm.GPU() != gputypes.TextureFormatUndefined {
		t.Error("luminance has no WebGPU equivalent")
	}
	if _, ok := FromGPU(gputypes.TextureFormatASTC4x4Unorm); ok {
		t.Error("ASTC should not map")
	}
}
