package sampler

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
)

// WrapMode selects how coordinates outside the texture are resolved.
type WrapMode uint8

const (
	WrapRepeat WrapMode = iota
	WrapClamp
	WrapClampToEdge
	WrapClampToBorder
	WrapMirrorRepeat
	WrapMirrorClamp
	WrapMirrorClampToEdge
	WrapMirrorClampToBorder

	wrapModeCount
)

var wrapNames = [wrapModeCount]string{
	"Repeat", "Clamp", "ClampToEdge", "ClampToBorder",
	"MirrorRepeat", "MirrorClamp", "MirrorClampToEdge", "MirrorClampToBorder",
}

// String returns the mode name.
func (m WrapMode) String() string {
	if m < wrapModeCount {
		return wrapNames[m]
	}
	return fmt.Sprintf("WrapMode(%d)", uint8(m))
}

// FromAddressMode maps a WebGPU address mode.
func FromAddressMode(m gputypes.AddressMode) WrapMode {
	switch m {
	case gputypes.AddressModeRepeat:
		return WrapRepeat
	case gputypes.AddressModeMirrorRepeat:
		return WrapMirrorRepeat
	default:
		return WrapClampToEdge
	}
}

func isPOT(n int) bool { return n > 0 && n&(n-1) == 0 }

// repeatMask is the power-of-two repeat path.
func repeatMask(coord, length int) int { return coord & (length - 1) }

// repeatRemainder wraps with a 32-bit unsigned remainder, so negative
// coordinates stay in range. A signed remainder would return negative
// values for them.
func repeatRemainder(coord, length int) int {
	return int(uint32(int32(coord)) % uint32(length))
}

func repeat(coord, length int, pot bool) int {
	if pot {
		return repeatMask(coord, length)
	}
	return repeatRemainder(coord, length)
}

// Repeat wraps an integer texel coordinate into [0, length).
func Repeat(coord, length int) int { return repeat(coord, length, isPOT(length)) }

// WrapInt resolves an integer texel coordinate. Border modes return -1 or
// length for coordinates outside the texture; the caller substitutes the
// border color for those.
func WrapInt(coord, length int, mode WrapMode) int {
	switch mode {
	case WrapRepeat:
		return Repeat(coord, length)
	case WrapClamp, WrapClampToEdge:
		return clampInt(coord, 0, length-1)
	case WrapClampToBorder:
		return clampInt(coord, -1, length)
	case WrapMirrorRepeat:
		m := coord % (2 * length)
		if m < 0 {
			m += 2 * length
		}
		if m >= length {
			m = 2*length - 1 - m
		}
		return m
	case WrapMirrorClamp, WrapMirrorClampToEdge:
		return clampInt(mirror(coord), 0, length-1)
	case WrapMirrorClampToBorder:
		return clampInt(mirror(coord), 0, length)
	}
	return 0
}

func mirror(c int) int {
	if c < 0 {
		return -c - 1
	}
	return c
}

func clampInt(v, lo, hi int) int { return min(max(v, lo), hi) }

func ifloor(v float32) int { return int(math32.Floor(v)) }

func frac(v float32) float32 { return v - math32.Floor(v) }

// nearestNormalized maps a normalized coordinate to one texel index.
func nearestNormalized(mode WrapMode, s float32, size int, pot bool) int {
	fsize := float32(size)
	switch mode {
	case WrapRepeat:
		return repeat(ifloor(s*fsize), size, pot)
	case WrapClamp:
		switch {
		case s <= 0:
			return 0
		case s >= 1:
			return size - 1
		}
		return ifloor(s * fsize)
	case WrapClampToEdge:
		lo := 1 / (2 * fsize)
		return ifloor(min(max(s, lo), 1-lo) * fsize)
	case WrapClampToBorder:
		lo := -1 / (2 * fsize)
		switch {
		case s <= lo:
			return -1
		case s >= 1-lo:
			return size
		}
		return ifloor(s * fsize)
	case WrapMirrorRepeat:
		lo := 1 / (2 * fsize)
		flr := ifloor(s)
		u := s - float32(flr)
		if flr&1 != 0 {
			u = 1 - u
		}
		switch {
		case u < lo:
			return 0
		case u > 1-lo:
			return size - 1
		}
		return ifloor(u * fsize)
	case WrapMirrorClamp:
		u := math32.Abs(s)
		switch {
		case u <= 0:
			return 0
		case u >= 1:
			return size - 1
		}
		return ifloor(u * fsize)
	case WrapMirrorClampToEdge:
		lo := 1 / (2 * fsize)
		u := math32.Abs(s)
		switch {
		case u <= lo:
			return 0
		case u >= 1-lo:
			return size - 1
		}
		return ifloor(u * fsize)
	case WrapMirrorClampToBorder:
		lo := -1 / (2 * fsize)
		u := math32.Abs(s)
		switch {
		case u <= lo:
			return -1
		case u >= 1-lo:
			return size
		}
		return ifloor(u * fsize)
	}
	return 0
}

// linearNormalized maps a normalized coordinate to the two texels that
// straddle it and the weight of the second one.
func linearNormalized(mode WrapMode, s float32, size int, pot bool) (i0, i1 int, w float32) {
	fsize := float32(size)
	var u float32
	switch mode {
	case WrapRepeat:
		u = s*fsize - 0.5
		i0 = repeat(ifloor(u), size, pot)
		return i0, repeat(i0+1, size, pot), frac(u)
	case WrapClamp, WrapClampToEdge:
		u = min(max(s, 0), 1)*fsize - 0.5
		i0 = ifloor(u)
		return clampInt(i0, 0, size-1), clampInt(i0+1, 0, size-1), frac(u)
	case WrapClampToBorder:
		lo := -1 / (2 * fsize)
		u = min(max(s, lo), 1-lo)*fsize - 0.5
	case WrapMirrorRepeat:
		flr := ifloor(s)
		m := s - float32(flr)
		if flr&1 != 0 {
			m = 1 - m
		}
		u = m*fsize - 0.5
		i0 = ifloor(u)
		return clampInt(i0, 0, size-1), clampInt(i0+1, 0, size-1), frac(u)
	case WrapMirrorClamp, WrapMirrorClampToEdge:
		u = min(math32.Abs(s), 1)*fsize - 0.5
		i0 = ifloor(u)
		return clampInt(i0, 0, size-1), clampInt(i0+1, 0, size-1), frac(u)
	case WrapMirrorClampToBorder:
		lo := -1 / (2 * fsize)
		u = min(max(math32.Abs(s), lo), 1-lo)*fsize - 0.5
	}
	i0 = ifloor(u)
	return i0, i0 + 1, frac(u)
}

// nearestUnnormalized handles texel-space coordinates. Only the clamp
// family is defined for them.
func nearestUnnormalized(mode WrapMode, s float32, size int) int {
	fsize := float32(size)
	switch mode {
	case WrapClampToEdge:
		return ifloor(min(max(s, 0.5), fsize-0.5))
	case WrapClampToBorder:
		return ifloor(min(max(s, -0.5), fsize+0.5))
	default:
		return clampInt(ifloor(s), 0, size-1)
	}
}

func linearUnnormalized(mode WrapMode, s float32, size int) (i0, i1 int, w float32) {
	fsize := float32(size)
	var u float32
	switch mode {
	case WrapClampToEdge:
		u = min(max(s, 0.5), fsize-0.5) - 0.5
	case WrapClampToBorder:
		u = min(max(s, -0.5), fsize+0.5) - 0.5
		i0 = ifloor(u)
		return i0, i0 + 1, frac(u)
	default:
		u = min(max(s, 0), fsize) - 0.5
	}
	i0 = ifloor(u)
	return clampInt(i0, 0, size-1), clampInt(i0+1, 0, size-1), frac(u)
}
