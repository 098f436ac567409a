package pipe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/texture"
)

// fakeScreen is a driver with no draw support.
type fakeScreen struct {
	*ScreenBase
	name string
}

func (s *fakeScreen) Name() string                    { return s.name }
func (s *fakeScreen) Vendor() string                  { return "test" }
func (s *fakeScreen) Param(Cap) int                   { return 0 }
func (s *fakeScreen) ParamF(CapF) float32             { return 0 }
func (s *fakeScreen) CreateContext() (Context, error) { return nil, errors.New("no contexts") }
func (s *fakeScreen) Destroy() error                  { s.MarkDestroyed(); return nil }

func allFormats(format.Format, texture.Target, texture.Bind) bool { return true }

var errUnavailable = errors.New("device unavailable")

// register installs a fake driver for the duration of the test.
func register(t *testing.T, name string, priority int, fail bool) {
	t.Helper()
	Register(name, priority, func(a alloc.Allocator, o *Options) (Screen, error) {
		if fail {
			return nil, errUnavailable
		}
		if a == nil {
			a = alloc.NewHeap(0)
		}
		return &fakeScreen{ScreenBase: NewScreenBase(a, o.Config, allFormats), name: name}, nil
	})
	t.Cleanup(func() { Unregister(name) })
}

func TestDriversOrder(t *testing.T) {
	register(t, "test-b", 5, false)
	register(t, "test-a", 5, false)
	register(t, "test-top", 50, false)

	var names []string
	for _, d := range Drivers() {
		if strings.HasPrefix(d.Name, "test-") {
			names = append(names, d.Name)
		}
	}
	if got, want := strings.Join(names, ","), "test-top,test-a,test-b"; got != want {
		t.Errorf("Drivers = %s, want %s", got, want)
	}
}

func TestCreateScreen(t *testing.T) {
	register(t, "test-low", 1, false)
	register(t, "test-mid", 500, false)
	register(t, "test-broken", 1000, true)

	tests := []struct {
		name    string
		opts    []Option
		want    string
		wantErr error
	}{
		{name: "auto picks highest working", want: "test-mid"},
		{name: "named", opts: []Option{WithDriver("test-low")}, want: "test-low"},
		{name: "named in config", opts: []Option{WithConfig(withDriver("test-low"))}, want: "test-low"},
		{name: "option beats config", opts: []Option{WithConfig(withDriver("test-low")), WithDriver("test-mid")}, want: "test-mid"},
		{name: "unknown", opts: []Option{WithDriver("nope")}, wantErr: ErrUnknownDriver},
		{name: "named failing", opts: []Option{WithDriver("test-broken")}, wantErr: errUnavailable},
		{name: "invalid config", opts: []Option{WithConfig(config.Config{})}, wantErr: config.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CreateScreen(nil, tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateScreen: %v", err)
			}
			if s.Name() != tt.want {
				t.Errorf("driver = %s, want %s", s.Name(), tt.want)
			}
		})
	}
}

func withDriver(name string) config.Config {
	c := config.Default()
	c.Driver = name
	return c
}

func TestCreateScreenNoDriver(t *testing.T) {
	// Only failing drivers are registered in this package's tests.
	register(t, "test-broken", 1000, true)
	register(t, "test-broken-too", 1, true)

	_, err := CreateScreen(nil)
	if !errors.Is(err, ErrNoDriver) {
		t.Fatalf("err = %v, want ErrNoDriver", err)
	}
	if !errors.Is(err, errUnavailable) || !strings.Contains(err.Error(), "test-broken-too") {
		t.Errorf("err = %v, want every driver's failure", err)
	}
}

func TestCreateScreenLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	register(t, "test-logged", 1, false)

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if _, err := CreateScreen(nil, WithDriver("test-logged"), WithLogger(l)); err != nil {
		t.Fatal(err)
	}
	if Logger() != l {
		t.Error("WithLogger did not install the logger")
	}
	if !strings.Contains(buf.String(), "driver=test-logged") {
		t.Errorf("log = %q, want screen creation", buf.String())
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) should produce a disabled logger")
	}
}

func TestCapNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range Caps() {
		name := c.String()
		if name == "" || strings.HasPrefix(name, "Cap(") || seen[name] {
			t.Errorf("cap %d has name %q", c, name)
		}
		seen[name] = true
	}
	for _, c := range CapsF() {
		if strings.HasPrefix(c.String(), "CapF(") {
			t.Errorf("float cap %d has no name", c)
		}
	}
	if got := Cap(0).String(); got != "Cap(0)" {
		t.Errorf("Cap(0) = %q", got)
	}
}

func TestCapTable(t *testing.T) {
	ct := CapTable{
		Ints:   map[Cap]int{CapMaxTextureUnits: 2},
		Floats: map[CapF]float32{CapFMaxPointWidth: 8},
	}
	if ct.Param(CapMaxTextureUnits) != 2 || ct.Param(CapOcclusionQuery) != 0 {
		t.Error("Param returned wrong values")
	}
	if ct.ParamF(CapFMaxPointWidth) != 8 || ct.ParamF(CapFMaxLineWidth) != 0 {
		t.Error("ParamF returned wrong values")
	}
	var empty CapTable
	if empty.Param(CapMaxTextureUnits) != 0 {
		t.Error("empty table should report 0")
	}
}

func TestDecodeIndices(t *testing.T) {
	data := []byte{1, 0, 2, 0, 3, 0, 0xff, 0xff}
	tests := []struct {
		name        string
		size, start int
		count       int
		want        []uint32
		wantErr     error
	}{
		{"bytes", 1, 0, 3, []uint32{1, 0, 2}, nil},
		{"shorts", 2, 1, 3, []uint32{2, 3, 0xffff}, nil},
		{"words", 4, 0, 2, []uint32{0x00020001, 0xffff0003}, nil},
		{"empty", 2, 4, 0, []uint32{}, nil},
		{"size 3", 3, 0, 1, nil, ErrInvalidIndexSize},
		{"past end", 2, 2, 3, nil, ErrInvalidVertexState},
		{"negative start", 1, -1, 1, nil, ErrInvalidVertexState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeIndices(data, tt.size, tt.start, tt.count)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}
