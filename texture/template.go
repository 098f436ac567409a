// Package texture owns texture storage: level layout, surfaces, transfers
// and modification timestamps.
//
// A [Store] is the arena of one device. Textures live in it keyed by [ID];
// [Surface] and [Transfer] are plain values that name their texture by ID.
package texture

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/pipe/format"
)

// Texture errors.
var (
	// ErrInvalidTemplate is returned for malformed texture templates.
	ErrInvalidTemplate = errors.New("texture: invalid template")

	// ErrAllocationFailed is returned when the allocator cannot back a texture.
	ErrAllocationFailed = errors.New("texture: allocation failed")

	// ErrInvalidView is returned for a level, face or slice outside the texture.
	ErrInvalidView = errors.New("texture: invalid level, face or slice")

	// ErrOutOfBounds is returned for transfer regions outside the level.
	ErrOutOfBounds = errors.New("texture: transfer region out of bounds")

	// ErrUnknownTexture is returned for IDs not in the store.
	ErrUnknownTexture = errors.New("texture: unknown texture")

	// ErrUnknownTransfer is returned for released or foreign transfers.
	ErrUnknownTransfer = errors.New("texture: unknown transfer")

	// ErrAlreadyMapped is returned when mapping a transfer twice.
	ErrAlreadyMapped = errors.New("texture: transfer is already mapped")

	// ErrNotMapped is returned when unmapping a transfer that is not mapped.
	ErrNotMapped = errors.New("texture: transfer is not mapped")

	// ErrTransferConflict is returned when a write-intent transfer would be
	// mapped at the same time as another transfer of the same texture.
	ErrTransferConflict = errors.New("texture: conflicting write transfer")
)

// MaxLevels is the maximum number of mipmap levels.
const MaxLevels = 16

// Target is the texture dimensionality.
type Target uint8

const (
	Target1D Target = iota
	Target2D
	Target3D
	TargetCube
	// TargetRect is a 2D texture addressed with unnormalized coordinates.
	TargetRect
)

// String returns the target name.
func (t Target) String() string {
	switch t {
	case Target1D:
		return "1D"
	case Target2D:
		return "2D"
	case Target3D:
		return "3D"
	case TargetCube:
		return "Cube"
	case TargetRect:
		return "Rect"
	default:
		return fmt.Sprintf("Target(%d)", uint8(t))
	}
}

// Usage is the access intent of a surface or transfer.
type Usage uint8

const (
	UsageCPURead Usage = 1 << iota
	UsageCPUWrite
	UsageGPURead
	UsageGPUWrite

	UsageCPUReadWrite = UsageCPURead | UsageCPUWrite
)

// Writes reports whether u includes any write intent.
func (u Usage) Writes() bool { return u&(UsageCPUWrite|UsageGPUWrite) != 0 }

// Bind lists the ways a texture may be bound.
type Bind uint32

const (
	BindSampler Bind = 1 << iota
	BindRenderTarget
	BindDepthStencil
	BindDisplayTarget
	BindTransfer
)

// Template describes a texture to create.
type Template struct {
	Target Target
	Format format.Format
	Width  int
	Height int
	Depth  int
	// LastLevel is the index of the smallest mipmap level.
	LastLevel int
	Bind      Bind
}

func invalid(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidTemplate}, args...)...)
}

func (t *Template) validate() error {
	if !t.Format.Valid() {
		return invalid("format %s", t.Format)
	}
	if t.Width < 1 || t.Height < 1 || t.Depth < 1 {
		return invalid("size %dx%dx%d", t.Width, t.Height, t.Depth)
	}
	switch t.Target {
	case Target1D:
		if t.Height != 1 || t.Depth != 1 {
			return invalid("1D texture with height %d depth %d", t.Height, t.Depth)
		}
	case Target2D, TargetRect:
		if t.Depth != 1 {
			return invalid("2D texture with depth %d", t.Depth)
		}
	case TargetCube:
		if t.Depth != 1 || t.Width != t.Height {
			return invalid("cube face %dx%dx%d", t.Width, t.Height, t.Depth)
		}
	case Target3D:
	default:
		return invalid("target %s", t.Target)
	}
	if t.Target == TargetRect && t.LastLevel != 0 {
		return invalid("rect textures have no mipmaps")
	}
	if t.LastLevel < 0 || t.LastLevel >= MaxLevels || t.LastLevel > maxLevel(t.Width, t.Height, t.Depth) {
		return invalid("last level %d for %dx%dx%d", t.LastLevel, t.Width, t.Height, t.Depth)
	}
	return nil
}

// maxLevel returns the index of the 1x1x1 level.
func maxLevel(w, h, d int) int {
	return bits.Len(uint(max(w, h, d))) - 1
}

func minify(size, level int) int { return max(size>>level, 1) }
