package pipe

import "fmt"

// Cap is an integer capability.
type Cap uint16

const (
	CapMaxTexture2DLevels Cap = iota + 1
	CapMaxTexture3DLevels
	CapMaxTextureCubeLevels
	CapMaxRenderTargets
	CapMaxTextureUnits
	CapMaxVertexBuffers
	CapMaxVertexElements
	CapNPOTTextures
	CapTextureMirrorRepeat
	CapTextureMirrorClamp
	CapTextureBorderColor
	CapAnisotropicFilter
	CapPointSprite
	CapLineStipple
	CapQuadPrimitives
	CapFlatShading
	CapOcclusionQuery
	CapTwoSidedStencil
	CapMaxBatchVerts
	CapMaxBatchElts

	capCount
)

var capNames = [capCount]string{
	"", "MaxTexture2DLevels", "MaxTexture3DLevels", "MaxTextureCubeLevels",
	"MaxRenderTargets", "MaxTextureUnits", "MaxVertexBuffers",
	"MaxVertexElements", "NPOTTextures", "TextureMirrorRepeat",
	"TextureMirrorClamp", "TextureBorderColor", "AnisotropicFilter",
	"PointSprite", "LineStipple", "QuadPrimitives", "FlatShading",
	"OcclusionQuery", "TwoSidedStencil", "MaxBatchVerts", "MaxBatchElts",
}

// String returns the capability name.
func (c Cap) String() string {
	if c > 0 && c < capCount {
		return capNames[c]
	}
	return fmt.Sprintf("Cap(%d)", uint16(c))
}

// Caps lists every integer capability.
func Caps() []Cap {
	out := make([]Cap, 0, capCount-1)
	for c := Cap(1); c < capCount; c++ {
		out = append(out, c)
	}
	return out
}

// CapF is a float capability.
type CapF uint16

const (
	CapFMaxLineWidth CapF = iota + 1
	CapFMaxLineWidthAA
	CapFMaxPointWidth
	CapFMaxPointWidthAA
	CapFMaxTextureAnisotropy
	CapFMaxTextureLODBias

	capFCount
)

var capFNames = [capFCount]string{
	"", "MaxLineWidth", "MaxLineWidthAA", "MaxPointWidth", "MaxPointWidthAA",
	"MaxTextureAnisotropy", "MaxTextureLODBias",
}

// String returns the capability name.
func (c CapF) String() string {
	if c > 0 && c < capFCount {
		return capFNames[c]
	}
	return fmt.Sprintf("CapF(%d)", uint16(c))
}

// CapsF lists every float capability.
func CapsF() []CapF {
	out := make([]CapF, 0, capFCount-1)
	for c := CapF(1); c < capFCount; c++ {
		out = append(out, c)
	}
	return out
}

// CapTable is a static capability table. Missing entries read as 0.
type CapTable struct {
	Ints   map[Cap]int
	Floats map[CapF]float32
}

// Param looks up an integer capability.
func (t CapTable) Param(c Cap) int { return t.Ints[c] }

// ParamF looks up a float capability.
func (t CapTable) ParamF(c CapF) float32 { return t.Floats[c] }
