// Command pipeinfo lists the registered pipe drivers with their
// capabilities and format support, and can render a test scene through
// the software driver.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"text/tabwriter"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/pipe"
	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
	_ "github.com/gogpu/pipe/driver/halpipe"
	"github.com/gogpu/pipe/driver/softpipe"
	"github.com/gogpu/pipe/format"
	"github.com/gogpu/pipe/sampler"
	"github.com/gogpu/pipe/texture"
	"github.com/gogpu/pipe/vbrender"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML or TOML config file (default: PIPE_* environment)")
		useNoop = flag.Bool("noop", false, "open a noop HAL device so hardware drivers can be listed")
		output  = flag.String("output", "", "render a test scene with softpipe to this PNG file")
		size    = flag.Int("size", 256, "test scene size in pixels")
	)
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	pipe.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	opts := []pipe.Option{pipe.WithConfig(cfg)}
	if *useNoop {
		dev, closeDev, err := openNoop()
		if err != nil {
			log.Fatalf("noop device: %v", err)
		}
		defer closeDev()
		opts = append(opts, pipe.WithHAL(dev))
	}

	for _, d := range pipe.Drivers() {
		s, err := pipe.CreateScreen(nil, append(opts, pipe.WithDriver(d.Name))...)
		if err != nil {
			fmt.Printf("%s (priority %d): unavailable: %v\n\n", d.Name, d.Priority, err)
			continue
		}
		describe(os.Stdout, d, s)
		_ = s.Destroy()
	}

	if *output != "" {
		if err := renderScene(*output, *size, cfg); err != nil {
			log.Fatalf("render: %v", err)
		}
		log.Printf("Scene saved to %s (%dx%d)\n", *output, *size, *size)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

func openNoop() (pipe.HALDevice, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return pipe.HALDevice{}, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return pipe.HALDevice{}, nil, fmt.Errorf("no adapters")
	}
	limits := gputypes.DefaultLimits()
	od, err := adapters[0].Adapter.Open(0, limits)
	if err != nil {
		instance.Destroy()
		return pipe.HALDevice{}, nil, err
	}
	dev := pipe.HALDevice{Adapter: adapters[0].Adapter, Device: od.Device, Queue: od.Queue, Limits: limits}
	return dev, func() {
		od.Device.Destroy()
		instance.Destroy()
	}, nil
}

var binds = []struct {
	name string
	bind texture.Bind
}{
	{"sampler", texture.BindSampler},
	{"render", texture.BindRenderTarget},
	{"display", texture.BindDisplayTarget},
	{"depth", texture.BindDepthStencil},
}

func describe(w io.Writer, d pipe.DriverInfo, s pipe.Screen) {
	fmt.Fprintf(w, "%s (priority %d, vendor %s)\n", s.Name(), d.Priority, s.Vendor())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range pipe.Caps() {
		fmt.Fprintf(tw, "  %s\t%d\n", c, s.Param(c))
	}
	for _, c := range pipe.CapsF() {
		fmt.Fprintf(tw, "  %s\t%g\n", c, s.ParamF(c))
	}
	_ = tw.Flush()

	fmt.Fprintln(tw, "\n  format\tsampler\trender\tdisplay\tdepth")
	for f := format.Format(1); int(f) < format.Count(); f++ {
		fmt.Fprintf(tw, "  %s", f)
		for _, b := range binds {
			mark := "-"
			if s.IsFormatSupported(f, texture.Target2D, b.bind) {
				mark = "yes"
			}
			fmt.Fprintf(tw, "\t%s", mark)
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
}

// vertexStride is x, y as float32, RGBA8 color, then u, v as float32.
const vertexStride = 20

func vertex(buf []byte, x, y float32, c [4]byte, u, v float32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(y))
	buf = append(buf, c[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(u))
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

func upload(a alloc.Allocator, data []byte) (alloc.Buffer, error) {
	b, err := a.Allocate(4, gputypes.BufferUsageVertex, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	m, err := b.Map(alloc.AccessWrite)
	if err != nil {
		return nil, err
	}
	copy(m, data)
	return b, b.Unmap()
}

func checker(s pipe.Screen) (*texture.Texture, error) {
	tex, err := s.TextureCreate(texture.Template{
		Target: texture.Target2D, Format: format.FormatRGBA8Unorm,
		Width: 2, Height: 2, Depth: 1, Bind: texture.BindSampler,
	})
	if err != nil {
		return nil, err
	}
	tr, err := s.TexTransfer(tex, 0, 0, 0, texture.UsageCPUWrite, 0, 0, 2, 2)
	if err != nil {
		return nil, err
	}
	pix, err := s.TransferMap(tr)
	if err != nil {
		return nil, err
	}
	light, dark := []byte{255, 255, 255, 255}, []byte{96, 96, 96, 255}
	copy(pix[0:], light)
	copy(pix[4:], dark)
	copy(pix[tr.Stride:], dark)
	copy(pix[tr.Stride+4:], light)
	if err := s.TransferUnmap(tr); err != nil {
		return nil, err
	}
	return tex, s.TransferRelease(tr)
}

// renderScene draws a Gouraud triangle, a checkered quad, a stippled line
// loop and a row of points.
func renderScene(path string, n int, cfg config.Config) error {
	heap := alloc.NewHeap(uint64(cfg.MemoryBudgetMB) << 20)
	s, err := pipe.CreateScreen(heap, pipe.WithDriver(softpipe.Name), pipe.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer s.Destroy()

	target, err := s.TextureCreate(texture.Template{
		Target: texture.Target2D, Format: format.FormatRGBA8Unorm,
		Width: n, Height: n, Depth: 1,
		Bind: texture.BindRenderTarget | texture.BindDisplayTarget,
	})
	if err != nil {
		return err
	}
	sf, err := s.TexSurface(target, 0, 0, 0, texture.UsageGPUWrite)
	if err != nil {
		return err
	}
	tex, err := checker(s)
	if err != nil {
		return err
	}

	f := float32(n)
	white := [4]byte{255, 255, 255, 255}
	var vs []byte
	// Triangle, 0..2.
	vs = vertex(vs, f*0.5, f*0.05, [4]byte{255, 0, 0, 255}, 0, 0)
	vs = vertex(vs, f*0.05, f*0.45, [4]byte{0, 255, 0, 255}, 0, 0)
	vs = vertex(vs, f*0.95, f*0.45, [4]byte{0, 0, 255, 255}, 0, 0)
	// Quad, 3..6.
	vs = vertex(vs, f*0.1, f*0.55, white, 0, 0)
	vs = vertex(vs, f*0.1, f*0.9, white, 0, 4)
	vs = vertex(vs, f*0.9, f*0.9, white, 4, 4)
	vs = vertex(vs, f*0.9, f*0.55, white, 4, 0)
	// Points, 7..10.
	for i := range 4 {
		vs = vertex(vs, f*(0.2+0.2*float32(i)), f*0.97, [4]byte{255, 200, 0, 255}, 0, 0)
	}
	vb, err := upload(heap, vs)
	if err != nil {
		return err
	}
	defer vb.Destroy()

	ctx, err := s.CreateContext()
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	steps := []func() error{
		func() error { return ctx.SetFramebuffer(pipe.Framebuffer{Color: &sf}) },
		func() error { return ctx.SetVertexBuffer(0, pipe.VertexBuffer{Buffer: vb, Stride: vertexStride}) },
		func() error {
			return ctx.SetVertexElements([]pipe.VertexElement{
				{Semantic: pipe.SemanticPosition, Format: gputypes.VertexFormatFloat32x2, Offset: 0},
				{Semantic: pipe.SemanticColor, Format: gputypes.VertexFormatUnorm8x4, Offset: 8},
				{Semantic: pipe.SemanticTexCoord, Format: gputypes.VertexFormatFloat32x2, Offset: 12},
			})
		},
		func() error { return ctx.Clear(pipe.ClearColor, [4]float32{0.05, 0.05, 0.15, 1}, 0, 0) },
		func() error { return ctx.DrawArrays(vbrender.ModeTriangles, 0, 3) },
		func() error {
			return ctx.SetSampler(0, sampler.State{WrapS: sampler.WrapRepeat, WrapT: sampler.WrapRepeat, NormalizedCoords: true})
		},
		func() error { return ctx.SetTexture(0, tex) },
		func() error { return ctx.DrawArrays(vbrender.ModeQuads, 3, 4) },
		func() error { return ctx.SetTexture(0, nil) },
		func() error {
			rs := pipe.DefaultRasterizer()
			rs.LineStipple, rs.StipplePattern, rs.StippleFactor = true, 0x0f0f, 2
			rs.PointSize = 5
			return ctx.SetRasterizer(rs)
		},
		func() error { return ctx.DrawArrays(vbrender.ModeLineLoop, 3, 4) },
		func() error { return ctx.DrawArrays(vbrender.ModePoints, 7, 4) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	fence, err := ctx.Flush(pipe.FlushWait | pipe.FlushFrame)
	if err != nil {
		return err
	}
	if _, err := s.FenceFinish(fence, 0); err != nil {
		return err
	}

	img := image.NewRGBA(image.Rect(0, 0, n, n))
	if err := s.FlushFrontbuffer(sf, img); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
