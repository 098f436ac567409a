package alloc

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func createNoopDevice(t *testing.T) (hal.Device, func()) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	return openDev.Device, func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
}

func TestHALAllocate(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	a := NewHAL(device)
	b, err := a.Allocate(16, gputypes.BufferUsageVertex, 10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a.Live() != 1 {
		t.Errorf("Live = %d, want 1", a.Live())
	}
	if b.Size() != 10 || b.Address()%16 != 0 {
		t.Errorf("Size = %d, Address = %#x", b.Size(), b.Address())
	}
	if _, ok := RawBuffer(b); !ok {
		t.Error("RawBuffer should expose the HAL buffer")
	}

	data, err := b.Map(AccessWrite)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(data) != 10 {
		t.Fatalf("len(data) = %d, want 10", len(data))
	}
	copy(data, "vertexdata")
	if err := b.Unmap(); err != nil {
		t.Fatal(err)
	}

	data, err = b.Map(AccessRead)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "vertexdata" {
		t.Errorf("data = %q", data)
	}
	_ = b.Unmap()

	b.Destroy()
	b.Destroy()
	if a.Live() != 0 {
		t.Errorf("Live after Destroy = %d", a.Live())
	}
}

func TestHALRejectsZeroSize(t *testing.T) {
	device, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := NewHAL(device).Allocate(4, 0, 0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("err = %v, want ErrInvalidSize", err)
	}
}

func TestRawBufferOfHeapBuffer(t *testing.T) {
	b, err := NewHeap(0).Allocate(4, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := RawBuffer(b); ok {
		t.Error("heap buffers have no HAL buffer")
	}
}
