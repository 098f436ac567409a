package wide

import "github.com/chewxy/math32"

// F32x8 represents 8 float32 values for SIMD-style operations.
type F32x8 [Lanes]float32

// SplatF32 creates F32x8 with all elements set to n.
func SplatF32(n float32) F32x8 {
	var result F32x8
	for i := range result {
		result[i] = n
	}
	return result
}

// Add performs element-wise addition.
func (v F32x8) Add(other F32x8) F32x8 {
	var result F32x8
	for i := range v {
		result[i] = v[i] + other[i]
	}
	return result
}

// Sub performs element-wise subtraction.
func (v F32x8) Sub(other F32x8) F32x8 {
	var result F32x8
	for i := range v {
		result[i] = v[i] - other[i]
	}
	return result
}

// Mul performs element-wise multiplication.
func (v F32x8) Mul(other F32x8) F32x8 {
	var result F32x8
	for i := range v {
		result[i] = v[i] * other[i]
	}
	return result
}

// MulScalar multiplies every element by s.
func (v F32x8) MulScalar(s float32) F32x8 {
	var result F32x8
	for i := range v {
		result[i] = v[i] * s
	}
	return result
}

// Floor rounds every element toward negative infinity.
func (v F32x8) Floor() F32x8 {
	var result F32x8
	for i := range v {
		result[i] = math32.Floor(v[i])
	}
	return result
}

// Fract returns v - floor(v), always in [0, 1).
func (v F32x8) Fract() F32x8 {
	return v.Sub(v.Floor())
}

// Lerp performs linear interpolation: v + (other - v) * t.
func (v F32x8) Lerp(other F32x8, t F32x8) F32x8 {
	var result F32x8
	for i := range v {
		result[i] = v[i] + (other[i]-v[i])*t[i]
	}
	return result
}

// Clamp clamps each element to [minVal, maxVal].
func (v F32x8) Clamp(minVal, maxVal float32) F32x8 {
	var result F32x8
	for i := range v {
		switch {
		case v[i] < minVal:
			result[i] = minVal
		case v[i] > maxVal:
			result[i] = maxVal
		default:
			result[i] = v[i]
		}
	}
	return result
}

// FloorInt converts floor(v) to integers.
func (v F32x8) FloorInt() I32x8 {
	var result I32x8
	for i := range v {
		result[i] = int32(math32.Floor(v[i]))
	}
	return result
}
