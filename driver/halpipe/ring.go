package halpipe

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pipe/fence"
)

// errRingTooSmall is returned when one submission exceeds the whole ring.
var errRingTooSmall = errors.New("halpipe: submission larger than command ring")

// segment is a ring range still read by the device.
type segment struct {
	start, end uint64
	fence      fence.Fence
}

// ring streams command words into one device buffer. A write that reaches
// the end wraps to the start, waiting for any in-flight submission that
// still owns the range.
type ring struct {
	device   hal.Device
	queue    hal.Queue
	buf      hal.Buffer
	size     uint64
	head     uint64
	inflight []segment
}

func newRing(device hal.Device, queue hal.Queue, size uint64) (*ring, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "halpipe command ring",
		Size:  size,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("halpipe: create command ring: %w", err)
	}
	return &ring{device: device, queue: queue, buf: buf, size: size}, nil
}

// write uploads data and returns its ring offset.
func (r *ring) write(data []byte) (uint64, error) {
	n := uint64(len(data))
	if n > r.size {
		return 0, fmt.Errorf("%w: %d > %d bytes", errRingTooSmall, n, r.size)
	}
	if r.head+n > r.size {
		r.head = 0
	}
	start, end := r.head, r.head+n
	if err := r.reclaim(start, end); err != nil {
		return 0, err
	}
	if err := r.queue.WriteBuffer(r.buf, start, data); err != nil {
		return 0, fmt.Errorf("halpipe: write command ring: %w", err)
	}
	r.head = end
	return start, nil
}

// reclaim drops finished segments and waits for those overlapping
// [start, end).
func (r *ring) reclaim(start, end uint64) error {
	live := r.inflight[:0]
	for _, s := range r.inflight {
		if s.start < end && start < s.end {
			if _, err := s.fence.Wait(fence.Infinite); err != nil {
				return fmt.Errorf("halpipe: wait for command ring: %w", err)
			}
			continue
		}
		if !s.fence.Signaled() {
			live = append(live, s)
		}
	}
	clear(r.inflight[len(live):])
	r.inflight = live
	return nil
}

// track records that [start, end) is in use until f signals.
func (r *ring) track(start, end uint64, f fence.Fence) {
	r.inflight = append(r.inflight, segment{start: start, end: end, fence: f})
}

// busy returns the number of segments not yet known to be complete.
func (r *ring) busy() int { return len(r.inflight) }

// destroy waits for in-flight submissions and frees the buffer.
func (r *ring) destroy() {
	for _, s := range r.inflight {
		_, _ = s.fence.Wait(fence.Infinite)
	}
	if r.buf != nil {
		r.device.DestroyBuffer(r.buf)
		r.buf = nil
	}
	r.inflight = nil
}
