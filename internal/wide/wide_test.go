package wide

import "testing"

func TestF32x8Arithmetic(t *testing.T) {
	a := F32x8{1, 2, 3, 4, 5, 6, 7, 8}
	b := SplatF32(2)

	tests := []struct {
		name string
		got  F32x8
		want F32x8
	}{
		{"Add", a.Add(b), F32x8{3, 4, 5, 6, 7, 8, 9, 10}},
		{"Sub", a.Sub(b), F32x8{-1, 0, 1, 2, 3, 4, 5, 6}},
		{"Mul", a.Mul(b), F32x8{2, 4, 6, 8, 10, 12, 14, 16}},
		{"MulScalar", a.MulScalar(0.5), F32x8{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4}},
		{"Clamp", a.Clamp(2, 6), F32x8{2, 2, 3, 4, 5, 6, 6, 6}},
		{"Lerp", a.Lerp(SplatF32(0), SplatF32(0.5)), F32x8{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestF32x8FloorFract(t *testing.T) {
	v := F32x8{-1.5, -0.25, 0, 0.25, 1, 1.75, 2.5, -3}

	wantFloor := F32x8{-2, -1, 0, 0, 1, 1, 2, -3}
	if got := v.Floor(); got != wantFloor {
		t.Errorf("Floor() = %v, want %v", got, wantFloor)
	}
	wantFract := F32x8{0.5, 0.75, 0, 0.25, 0, 0.75, 0.5, 0}
	if got := v.Fract(); got != wantFract {
		t.Errorf("Fract() = %v, want %v", got, wantFract)
	}
	wantInt := I32x8{-2, -1, 0, 0, 1, 1, 2, -3}
	if got := v.FloorInt(); got != wantInt {
		t.Errorf("FloorInt() = %v, want %v", got, wantInt)
	}
}

func TestI32x8(t *testing.T) {
	v := SplatI32(3).AddScalar(-5)
	if v != SplatI32(-2) {
		t.Errorf("AddScalar = %v", v)
	}
	abs := v.Map(func(x int32) int32 {
		if x < 0 {
			return -x
		}
		return x
	})
	if abs != SplatI32(2) {
		t.Errorf("Map = %v", abs)
	}
}

func TestU32x8Field(t *testing.T) {
	v := U32x8{0x11223344, 0xffffffff, 0, 0x80000000, 0x0000ff00, 1, 2, 3}

	got := v.Field(8, 8)
	want := U32x8{0x33, 0xff, 0, 0, 0xff, 0, 0, 0}
	if got != want {
		t.Errorf("Field(8, 8) = %#v, want %#v", got, want)
	}
	if all := v.Field(0, 32); all != v {
		t.Errorf("Field(0, 32) = %#v, want %#v", all, v)
	}
	f := v.Field(31, 1).ToF32()
	if f[1] != 1 || f[3] != 1 || f[0] != 0 {
		t.Errorf("ToF32 = %v", f)
	}
}
