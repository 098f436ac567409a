package pipe

import (
	"fmt"
	"image"
	"reflect"

	"github.com/gogpu/gpucontext"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/texture"
)

// NRGBA decodes the mapped surface into straight-alpha 8-bit RGBA.
// sRGB formats keep their encoded values.
func (m *MappedSurface) NRGBA() (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	if m.Format == format.FormatRGBA8Unorm || m.Format == format.FormatRGBA8Srgb {
		for y := range m.Height {
			copy(img.Pix[y*img.Stride:], m.Row(y))
		}
		return img, nil
	}

	c, err := format.NewCodec(m.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: present %s: %w", ErrUnsupportedFormat, m.Format, err)
	}
	bs := m.Format.BlockSize()
	for y := range m.Height {
		row := m.Row(y)
		dst := img.Pix[y*img.Stride:]
		for x := range m.Width {
			v := c.Unpack(c.Load(row[x*bs:]))
			for i, ch := range v {
				dst[x*4+i] = toByte(ch)
			}
		}
	}
	return img, nil
}

func toByte(v float32) byte {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	default:
		return byte(v*255 + 0.5)
	}
}

// FlushFrontbuffer presents sf to target. A gpucontext.TextureDrawer gets
// the image uploaded through its TextureCreator and drawn at the origin;
// uploads are reused per drawer and texture while the size is
// unchanged, and dropped when the texture is destroyed. A draw.Image
// gets the image scaled to its bounds.
func (b *ScreenBase) FlushFrontbuffer(sf texture.Surface, target any) error {
	if err := b.Alive(); err != nil {
		return err
	}
	m, err := b.MapSurface(sf, false)
	if err != nil {
		return err
	}
	img, err := m.NRGBA()
	if uerr := m.Unmap(); err == nil {
		err = uerr
	}
	if err != nil {
		return err
	}

	switch t := target.(type) {
	case gpucontext.TextureDrawer:
		tex, err := b.upload(sf.Texture, t, img)
		if err != nil {
			return err
		}
		return t.DrawTexture(tex, 0, 0)
	case xdraw.Image:
		dst := t.Bounds()
		if dst.Size() == img.Rect.Size() {
			xdraw.Draw(t, dst, img, image.Point{}, xdraw.Src)
		} else {
			xdraw.ApproxBiLinear.Scale(t, dst, img, img.Rect, xdraw.Src, nil)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedTarget, target)
	}
}

// presentKey names one upload: a texture as seen by one drawer.
type presentKey struct {
	drawer gpucontext.TextureDrawer
	id     texture.ID
}

// cacheable reports whether d can key the upload cache. Drawers of
// non-comparable types get a fresh upload every time.
func cacheable(d gpucontext.TextureDrawer) bool {
	return reflect.TypeOf(d).Comparable()
}

func (b *ScreenBase) upload(id texture.ID, d gpucontext.TextureDrawer, img *image.NRGBA) (gpucontext.Texture, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	key := presentKey{drawer: d, id: id}
	cache := cacheable(d)

	b.presentMu.Lock()
	defer b.presentMu.Unlock()

	if cache {
		if tex, ok := b.presented[key]; ok && tex.Width() == w && tex.Height() == h {
			if u, ok := tex.(gpucontext.TextureUpdater); ok {
				err := u.UpdateData(img.Pix)
				if err == nil {
					return tex, nil
				}
				Logger().Warn("pipe: texture update failed, recreating", "texture", id, "err", err)
			}
		}
	}
	creator := d.TextureCreator()
	if creator == nil {
		return nil, fmt.Errorf("%w: drawer has no texture creator", ErrUnsupportedTarget)
	}
	tex, err := creator.NewTextureFromRGBA(w, h, img.Pix)
	if err != nil {
		return nil, fmt.Errorf("pipe: upload frontbuffer: %w", err)
	}
	if cache {
		if old, ok := b.presented[key]; ok {
			destroyPresented(old)
		}
		b.presented[key] = tex
	}
	return tex, nil
}

// forgetPresented drops every upload of a destroyed texture.
func (b *ScreenBase) forgetPresented(id texture.ID) {
	b.presentMu.Lock()
	defer b.presentMu.Unlock()
	for k, tex := range b.presented {
		if k.id == id {
			destroyPresented(tex)
			delete(b.presented, k)
		}
	}
}

// destroyPresented releases an upload when the drawer's texture type
// supports it.
func destroyPresented(tex gpucontext.Texture) {
	if d, ok := tex.(interface{ Destroy() }); ok {
		d.Destroy()
	}
}
