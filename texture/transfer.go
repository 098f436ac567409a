package texture

import (
	"errors"
	"fmt"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/format"
)

// TransferID names a live transfer inside its Store.
type TransferID uint32

// Transfer is a rectangular region of one texture image acquired for CPU
// access. Map returns the bytes of the region starting at pixel (X, Y);
// rows are Stride bytes apart.
type Transfer struct {
	ID      TransferID
	Texture ID
	Face    int
	Level   int
	Slice   int
	X, Y    int
	W, H    int
	Stride  int
	// Offset is the byte offset of the image holding the region.
	Offset uint64
	Usage  Usage
}

type transferState struct {
	tex    *Texture
	xfer   Transfer
	mapped bool
}

// Transfer validates the region against the level size and returns a
// transfer holding a texture reference. Regions outside the level are
// rejected with ErrOutOfBounds; they are never clamped.
func (s *Store) Transfer(tex *Texture, face, level, slice int, usage Usage, x, y, w, h int) (Transfer, error) {
	off, err := viewOffset(tex, face, level, slice)
	if err != nil {
		return Transfer{}, err
	}
	lw, lh := tex.LevelWidth(level), tex.LevelHeight(level)
	if x < 0 || y < 0 || w < 0 || h < 0 || x+w > lw || y+h > lh {
		return Transfer{}, fmt.Errorf("%w: %dx%d+%d+%d in %dx%d level %d",
			ErrOutOfBounds, w, h, x, y, lw, lh, level)
	}

	tex.Reference()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextXfer++
	tr := Transfer{
		ID:      TransferID(s.nextXfer),
		Texture: tex.id,
		Face:    face,
		Level:   level,
		Slice:   slice,
		X:       x,
		Y:       y,
		W:       w,
		H:       h,
		Stride:  tex.stride[level],
		Offset:  off,
		Usage:   usage,
	}
	s.transfers[tr.ID] = &transferState{tex: tex, xfer: tr}
	return tr, nil
}

// Map maps the transfer for CPU access and returns the region's bytes from
// pixel (X, Y) to the end of its last row. It may block until GPU work
// using the texture completes; the store lock is not held while it waits.
// A write transfer on a texture whose buffer is mapped read-only remaps
// the buffer for writing.
func (s *Store) Map(tr Transfer) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.transfers[tr.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransfer, tr.ID)
	}
	t := st.tex
	for t.mapping {
		s.mapDone.Wait()
	}
	if s.transfers[tr.ID] != st {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTransfer, tr.ID)
	}
	if st.mapped {
		return nil, ErrAlreadyMapped
	}
	write := st.xfer.Usage.Writes()
	if s.checkOverlap && (t.mappedWriters > 0 || (write && t.mappedReaders > 0)) {
		return nil, fmt.Errorf("%w: texture %d", ErrTransferConflict, t.id)
	}

	access := alloc.AccessRead
	if write {
		access = alloc.AccessReadWrite
	}
	st.mapped = true
	t.addMapped(write, 1)
	if t.bufMapped != nil && t.bufAccess&access == access {
		return regionBytes(t, &st.xfer), nil
	}

	err := s.mapBuffer(t, access)
	if s.transfers[tr.ID] != st || !st.mapped {
		// Released or unmapped while the buffer was being mapped.
		return nil, errors.Join(err, s.unmapIdle(t), fmt.Errorf("%w: %d released while mapping", ErrUnknownTransfer, tr.ID))
	}
	if err != nil {
		st.mapped = false
		t.addMapped(write, -1)
		return nil, err
	}
	return regionBytes(t, &st.xfer), nil
}

// mapBuffer maps t's buffer with access, replacing a narrower mapping.
// It is called with s.mu held and drops it while the buffer waits for the
// GPU; other maps of t wait until it is done. On failure the buffer is
// left unmapped.
func (s *Store) mapBuffer(t *Texture, access alloc.Access) error {
	t.mapping = true
	remap := t.bufMapped != nil
	t.bufMapped, t.bufAccess = nil, 0
	s.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if remap {
		err = t.buf.Unmap()
	}
	if err == nil {
		data, err = t.buf.Map(access)
	}

	s.mu.Lock()
	t.mapping = false
	s.mapDone.Broadcast()
	if err != nil {
		return fmt.Errorf("texture: map texture %d: %w", t.id, err)
	}
	t.bufMapped, t.bufAccess = data, access
	return nil
}

func (t *Texture) addMapped(write bool, n int) {
	if write {
		t.mappedWriters += n
	} else {
		t.mappedReaders += n
	}
}

func regionBytes(t *Texture, tr *Transfer) []byte {
	f := t.tmpl.Format
	d := format.Describe(f)
	bx, by := tr.X/d.BlockWidth, tr.Y/d.BlockHeight
	start := tr.Offset + uint64(by)*uint64(tr.Stride) + uint64(bx*d.BlockSize())
	end := start
	if tr.W > 0 && tr.H > 0 {
		rows := f.NBlocksY(tr.Y+tr.H) - by
		cols := f.NBlocksX(tr.X+tr.W) - bx
		end = start + uint64(rows-1)*uint64(tr.Stride) + uint64(cols*d.BlockSize())
	}
	return t.bufMapped[start:end:end]
}

// Unmap ends CPU access. A write-intent unmap bumps the texture's
// timestamp.
func (s *Store) Unmap(tr Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.transfers[tr.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTransfer, tr.ID)
	}
	if !st.mapped {
		return ErrNotMapped
	}
	return s.unmapLocked(st)
}

func (s *Store) unmapLocked(st *transferState) error {
	t := st.tex
	st.mapped = false
	write := st.xfer.Usage.Writes()
	t.addMapped(write, -1)
	if write {
		t.bumpTimestamp()
	}
	return s.unmapIdle(t)
}

// unmapIdle unmaps t's buffer once no transfer uses it and no Map is
// waiting on it.
func (s *Store) unmapIdle(t *Texture) error {
	if t.mappedWriters > 0 || t.mappedReaders > 0 || t.mapping || t.bufMapped == nil {
		return nil
	}
	t.bufMapped, t.bufAccess = nil, 0
	return t.buf.Unmap()
}

// ReleaseTransfer unmaps the transfer if needed and drops its texture
// reference.
func (s *Store) ReleaseTransfer(tr Transfer) error {
	s.mu.Lock()
	st, ok := s.transfers[tr.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownTransfer, tr.ID)
	}
	var err error
	if st.mapped {
		err = s.unmapLocked(st)
	}
	delete(s.transfers, tr.ID)
	s.mu.Unlock()

	st.tex.Release()
	return err
}
