package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/config"
	"github.com/gogpu/pipe/driver/softpipe"
)

func TestDescribeSoftpipe(t *testing.T) {
	s, err := pipe.CreateScreen(nil, pipe.WithDriver(softpipe.Name))
	if err != nil {
		t.Fatalf("CreateScreen: %v", err)
	}
	defer s.Destroy()

	var buf bytes.Buffer
	describe(&buf, pipe.DriverInfo{Name: softpipe.Name, Priority: softpipe.Priority}, s)
	out := buf.String()
	for _, want := range []string{"softpipe", "rgba8unorm", "sampler"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.png")
	if err := renderScene(path, 64, config.Default()); err != nil {
		t.Fatalf("renderScene: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("bounds = %v", b)
	}
	// The clear color survives in the top-left corner.
	if r, g, b, _ := img.At(0, 0).RGBA(); r>>8 > 20 || g>>8 > 20 || b>>8 < 30 {
		t.Errorf("corner = %v, want the clear color", img.At(0, 0))
	}
}
