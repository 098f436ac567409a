// Package alloc defines the buffer allocator seam between the pipe core and
// the memory it renders into, plus a heap-backed and a HAL-backed
// implementation.
//
// The core never allocates pixel or vertex memory itself: textures, vertex
// buffers and command streams all come from an [Allocator].
package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe/fence"
)

// Allocation errors.
var (
	// ErrOutOfMemory is returned when an allocation exceeds the budget or
	// the device cannot satisfy it.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrInvalidSize is returned for zero-sized allocations.
	ErrInvalidSize = errors.New("alloc: invalid buffer size")

	// ErrInvalidAlignment is returned when alignment is not a power of two.
	ErrInvalidAlignment = errors.New("alloc: alignment must be a power of two")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("alloc: buffer has been destroyed")

	// ErrAlreadyMapped is returned when mapping a mapped buffer.
	ErrAlreadyMapped = errors.New("alloc: buffer is already mapped")

	// ErrNotMapped is returned when unmapping a buffer that is not mapped.
	ErrNotMapped = errors.New("alloc: buffer is not mapped")
)

// Access is the CPU access intent of a mapping or a GPU relocation.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

// String returns a short description like "rw".
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "r"
	case AccessWrite:
		return "w"
	case AccessReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("Access(%d)", uint8(a))
	}
}

// Buffer is a block of memory owned by an Allocator.
type Buffer interface {
	// Size returns the usable size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was allocated with.
	Usage() gputypes.BufferUsage

	// Address returns the device address relocations resolve to.
	Address() uint64

	// Map returns the buffer contents for CPU access. It blocks until the
	// last GPU use recorded with Fence has completed.
	Map(access Access) ([]byte, error)

	// Unmap ends the CPU access started by Map.
	Unmap() error

	// Fence records f as the last GPU use of the buffer.
	Fence(f fence.Fence)

	// Destroy releases the memory. It is idempotent.
	Destroy()
}

// Allocator hands out buffers.
type Allocator interface {
	Allocate(alignment uint64, usage gputypes.BufferUsage, size uint64) (Buffer, error)
}

// MapState is the mapping state of a buffer.
type MapState int

const (
	MapStateUnmapped MapState = iota
	MapStateMapped
)

// String returns the string representation of MapState.
func (s MapState) String() string {
	switch s {
	case MapStateUnmapped:
		return "Unmapped"
	case MapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

func checkRequest(alignment, size uint64) error {
	if size == 0 {
		return ErrInvalidSize
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAlignment, alignment)
	}
	return nil
}

func alignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// addressSpace assigns non-overlapping, aligned device addresses.
type addressSpace struct {
	mu   sync.Mutex
	next uint64
}

func (a *addressSpace) assign(alignment, size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next == 0 {
		// Keep 0 free so a zero address is never valid.
		a.next = 1 << 12
	}
	addr := alignUp(a.next, alignment)
	a.next = addr + size
	return addr
}

// state is the map state machine and fence shared by buffer implementations.
type state struct {
	mu        sync.Mutex
	mapState  MapState
	access    Access
	lastUse   fence.Fence
	destroyed bool
}

// beginMap waits for the last GPU use and moves to Mapped.
func (s *state) beginMap(access Access) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrBufferDestroyed
	}
	if s.mapState == MapStateMapped {
		s.mu.Unlock()
		return ErrAlreadyMapped
	}
	f := s.lastUse
	s.mapState = MapStateMapped
	s.access = access
	s.mu.Unlock()

	if f == nil || f.Signaled() {
		return nil
	}
	if _, err := f.Wait(fence.Infinite); err != nil {
		s.mu.Lock()
		s.mapState = MapStateUnmapped
		s.mu.Unlock()
		return fmt.Errorf("alloc: waiting for buffer idle: %w", err)
	}
	return nil
}

func (s *state) endMap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrBufferDestroyed
	}
	if s.mapState != MapStateMapped {
		return ErrNotMapped
	}
	s.mapState = MapStateUnmapped
	return nil
}

func (s *state) setFence(f fence.Fence) {
	s.mu.Lock()
	s.lastUse = f
	s.mu.Unlock()
}

// markDestroyed reports whether this call performed the transition.
func (s *state) markDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return false
	}
	s.destroyed = true
	s.mapState = MapStateUnmapped
	return true
}

// State returns the current map state.
func (s *state) State() MapState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapState
}

// IsDestroyed reports whether Destroy has been called.
func (s *state) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
