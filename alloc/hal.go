package alloc

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipe/fence"
	"github.com/gogpu/pipe/internal/logging"
)

// HAL allocates CPU-mappable buffers from a wgpu HAL device.
type HAL struct {
	device  hal.Device
	address addressSpace
	count   atomic.Int64
}

// NewHAL creates an allocator over device.
func NewHAL(device hal.Device) *HAL {
	return &HAL{device: device}
}

// Device returns the underlying HAL device.
func (a *HAL) Device() hal.Device { return a.device }

// Live returns the number of buffers not yet destroyed.
func (a *HAL) Live() int { return int(a.count.Load()) }

// Allocate implements Allocator. Map access is added to usage so the core
// can always reach the contents from the CPU.
func (a *HAL) Allocate(alignment uint64, usage gputypes.BufferUsage, size uint64) (Buffer, error) {
	if err := checkRequest(alignment, size); err != nil {
		return nil, err
	}
	padded := alignUp(size, 4)
	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "pipe buffer",
		Size:  padded,
		Usage: usage | gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	a.count.Add(1)

	b := &halBuffer{
		owner: a,
		raw:   raw,
		size:  size,
		usage: usage,
		addr:  a.address.assign(alignment, padded),
	}
	logging.Logger().Debug("alloc: hal buffer", "size", size, "addr", b.addr)
	return b, nil
}

type halBuffer struct {
	state
	owner *HAL
	raw   hal.Buffer
	size  uint64
	usage gputypes.BufferUsage
	addr  uint64
}

// Raw returns the HAL buffer for command encoding.
func (b *halBuffer) Raw() hal.Buffer { return b.raw }

func (b *halBuffer) Size() uint64                { return b.size }
func (b *halBuffer) Usage() gputypes.BufferUsage { return b.usage }
func (b *halBuffer) Address() uint64             { return b.addr }
func (b *halBuffer) Fence(f fence.Fence)         { b.setFence(f) }

func (b *halBuffer) Map(access Access) ([]byte, error) {
	if err := b.beginMap(access); err != nil {
		return nil, err
	}
	m, err := b.owner.device.MapBuffer(b.raw, 0, b.size)
	if err != nil {
		_ = b.endMap()
		return nil, fmt.Errorf("alloc: map hal buffer: %w", err)
	}
	return unsafe.Slice((*byte)(m.Ptr), b.size), nil
}

func (b *halBuffer) Unmap() error {
	if err := b.endMap(); err != nil {
		return err
	}
	return b.owner.device.UnmapBuffer(b.raw)
}

func (b *halBuffer) Destroy() {
	if !b.markDestroyed() {
		return
	}
	b.owner.device.DestroyBuffer(b.raw)
	b.owner.count.Add(-1)
}

// RawBuffer returns the HAL buffer behind b, if b came from a HAL allocator.
func RawBuffer(b Buffer) (hal.Buffer, bool) {
	hb, ok := b.(*halBuffer)
	if !ok {
		return nil, false
	}
	return hb.Raw(), true
}
