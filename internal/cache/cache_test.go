package cache

import (
	"errors"
	"testing"
)

func TestGetOrCreateMemoizes(t *testing.T) {
	c := New[int, string](0)
	calls := 0
	create := func() (string, error) {
		calls++
		return "codec", nil
	}

	for range 3 {
		v, err := c.GetOrCreate(1, create)
		if err != nil || v != "codec" {
			t.Fatalf("GetOrCreate = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

func TestGetOrCreateErrorNotStored(t *testing.T) {
	c := New[int, int](0)
	errBoom := errors.New("boom")

	if _, err := c.GetOrCreate(7, func() (int, error) { return 0, errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 after failed create", c.Len())
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](4)
	for i := range 4 {
		_, _ = c.GetOrCreate(i, func() (int, error) { return i, nil })
	}
	// Touch 0 so it survives eviction.
	_, _ = c.GetOrCreate(0, func() (int, error) { return -1, nil })
	_, _ = c.GetOrCreate(4, func() (int, error) { return 4, nil })

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	v, _ := c.GetOrCreate(0, func() (int, error) { return -1, nil })
	if v != 0 {
		t.Errorf("entry 0 was evicted")
	}
}
