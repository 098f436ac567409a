package pipe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/texture"
)

// FormatFilter reports whether a driver supports a format for a target and
// set of bindings.
type FormatFilter func(f format.Format, target texture.Target, bind texture.Bind) bool

// ScreenBase implements the texture, transfer, fence and present parts of
// Screen over a texture.Store. Drivers embed it and add capabilities,
// contexts and Destroy.
type ScreenBase struct {
	store     *texture.Store
	supported FormatFilter
	destroyed atomic.Bool

	presentMu sync.Mutex
	presented map[presentKey]gpucontext.Texture
}

// NewScreenBase creates the shared screen state. Write transfers that
// overlap other mapped transfers are rejected when cfg.StrictTransfers is
// set.
func NewScreenBase(a alloc.Allocator, cfg config.Config, supported FormatFilter) *ScreenBase {
	b := &ScreenBase{
		supported: supported,
		presented: make(map[presentKey]gpucontext.Texture),
	}
	b.store = texture.NewStore(a,
		texture.WithOverlapCheck(cfg.StrictTransfers),
		texture.WithDestroyHook(b.forgetPresented))
	return b
}

// Store returns the screen's texture store.
func (b *ScreenBase) Store() *texture.Store { return b.store }

// IsFormatSupported consults the driver's format filter.
func (b *ScreenBase) IsFormatSupported(f format.Format, target texture.Target, bind texture.Bind) bool {
	return b.supported(f, target, bind)
}

// Alive returns ErrDestroyed once MarkDestroyed has been called.
func (b *ScreenBase) Alive() error {
	if b.destroyed.Load() {
		return ErrDestroyed
	}
	return nil
}

// MarkDestroyed flags the screen destroyed. It reports false if it already
// was.
func (b *ScreenBase) MarkDestroyed() bool {
	if !b.destroyed.CompareAndSwap(false, true) {
		return false
	}
	b.presentMu.Lock()
	for k, tex := range b.presented {
		destroyPresented(tex)
		delete(b.presented, k)
	}
	b.presentMu.Unlock()
	return true
}

// TextureCreate creates a texture after checking the format filter.
func (b *ScreenBase) TextureCreate(tmpl texture.Template) (*texture.Texture, error) {
	if err := b.Alive(); err != nil {
		return nil, err
	}
	if !b.supported(tmpl.Format, tmpl.Target, tmpl.Bind) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedFormat, tmpl.Format, tmpl.Target)
	}
	return b.store.Create(tmpl)
}

// TextureFromBuffer wraps caller-owned storage as a texture.
func (b *ScreenBase) TextureFromBuffer(tmpl texture.Template, stride int, buf alloc.Buffer) (*texture.Texture, error) {
	if err := b.Alive(); err != nil {
		return nil, err
	}
	if !b.supported(tmpl.Format, tmpl.Target, tmpl.Bind) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedFormat, tmpl.Format, tmpl.Target)
	}
	return b.store.WrapExternal(tmpl, stride, buf)
}

// TexSurface returns a view of one image of tex.
func (b *ScreenBase) TexSurface(tex *texture.Texture, face, level, slice int, usage texture.Usage) (texture.Surface, error) {
	if err := b.Alive(); err != nil {
		return texture.Surface{}, err
	}
	return b.store.Surface(tex, face, level, slice, usage)
}

// SurfaceRelease drops a surface.
func (b *ScreenBase) SurfaceRelease(sf texture.Surface) error {
	return b.store.ReleaseSurface(sf)
}

// TexTransfer acquires a region of a texture image for CPU access.
func (b *ScreenBase) TexTransfer(tex *texture.Texture, face, level, slice int, usage texture.Usage, x, y, w, h int) (texture.Transfer, error) {
	if err := b.Alive(); err != nil {
		return texture.Transfer{}, err
	}
	return b.store.Transfer(tex, face, level, slice, usage, x, y, w, h)
}

// TransferMap maps a transfer.
func (b *ScreenBase) TransferMap(tr texture.Transfer) ([]byte, error) {
	return b.store.Map(tr)
}

// TransferUnmap unmaps a transfer.
func (b *ScreenBase) TransferUnmap(tr texture.Transfer) error {
	return b.store.Unmap(tr)
}

// TransferRelease releases a transfer.
func (b *ScreenBase) TransferRelease(tr texture.Transfer) error {
	return b.store.ReleaseTransfer(tr)
}

// FenceFinish waits for f. A nil fence is already signaled.
func (b *ScreenBase) FenceFinish(f fence.Fence, timeout time.Duration) (bool, error) {
	if f == nil {
		return true, nil
	}
	return f.Wait(timeout)
}

// MappedSurface is a surface mapped for CPU access.
type MappedSurface struct {
	// Pix holds Height rows of Stride bytes, the last row trimmed to the
	// surface width.
	Pix    []byte
	Stride int
	Width  int
	Height int
	Format format.Format

	store *texture.Store
	tr    texture.Transfer
}

// Row returns the bytes of row y.
func (m *MappedSurface) Row(y int) []byte {
	start := y * m.Stride
	return m.Pix[start : start+m.Width*m.Format.BlockSize()]
}

// Unmap releases the mapping.
func (m *MappedSurface) Unmap() error {
	return m.store.ReleaseTransfer(m.tr)
}

// MapSurface maps all of sf for reading or, with write set, reading and
// writing. The caller must Unmap the result.
func (b *ScreenBase) MapSurface(sf texture.Surface, write bool) (*MappedSurface, error) {
	tex, ok := b.store.Lookup(sf.Texture)
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", texture.ErrUnknownTexture, sf.Texture)
	}
	usage := texture.UsageCPURead
	if write {
		usage = texture.UsageCPUReadWrite
	}
	tr, err := b.store.Transfer(tex, sf.Face, sf.Level, sf.Slice, usage, 0, 0, sf.Width, sf.Height)
	if err != nil {
		return nil, err
	}
	pix, err := b.store.Map(tr)
	if err != nil {
		_ = b.store.ReleaseTransfer(tr)
		return nil, err
	}
	return &MappedSurface{
		Pix:    pix,
		Stride: tr.Stride,
		Width:  sf.Width,
		Height: sf.Height,
		Format: tex.Format(),
		store:  b.store,
		tr:     tr,
	}, nil
}
