package halpipe

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/passthrough.wgsl
var passthroughWGSL string

// ShaderSource returns the WGSL source of the draw shader.
func ShaderSource() string { return passthroughWGSL }

// compileSPIRV compiles WGSL to SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("halpipe: compile shader: %w", err)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("halpipe: compile shader: %d bytes is not whole words", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return code, nil
}

func createShader(device hal.Device) (hal.ShaderModule, error) {
	code, err := compileSPIRV(passthroughWGSL)
	if err != nil {
		return nil, err
	}
	m, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "halpipe passthrough",
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("halpipe: create shader module: %w", err)
	}
	return m, nil
}
