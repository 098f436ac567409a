package wide

// I32x8 represents 8 int32 values, typically texel coordinates.
type I32x8 [Lanes]int32

// SplatI32 creates I32x8 with all elements set to n.
func SplatI32(n int32) I32x8 {
	var result I32x8
	for i := range result {
		result[i] = n
	}
	return result
}

// AddScalar adds n to every element.
func (v I32x8) AddScalar(n int32) I32x8 {
	var result I32x8
	for i := range v {
		result[i] = v[i] + n
	}
	return result
}

// Map applies fn to every element.
func (v I32x8) Map(fn func(int32) int32) I32x8 {
	var result I32x8
	for i := range v {
		result[i] = fn(v[i])
	}
	return result
}

// U32x8 represents 8 uint32 values, typically packed texels.
type U32x8 [Lanes]uint32

// Field extracts the bit field [shift, shift+width) of every element.
func (v U32x8) Field(shift, width uint) U32x8 {
	mask := uint32(1)<<width - 1
	if width >= 32 {
		mask = ^uint32(0)
	}
	var result U32x8
	for i := range v {
		result[i] = (v[i] >> shift) & mask
	}
	return result
}

// ToF32 converts every element to float32.
func (v U32x8) ToF32() F32x8 {
	var result F32x8
	for i := range v {
		result[i] = float32(v[i])
	}
	return result
}
