// Package wide provides fixed-width lane vectors for the structure-of-arrays
// texel paths.
//
// Every type holds [Lanes] elements in a fixed-size array. Operations are
// plain loops over the array so the compiler can auto-vectorize them; there
// is no unsafe code and no assembly.
//
//   - F32x8: one color channel or one coordinate for 8 texels.
//   - I32x8: integer texel coordinates after floor and wrap.
//   - U32x8: packed texel words before decode.
package wide

// Lanes is the number of elements in every wide type.
const Lanes = 8
