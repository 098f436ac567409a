package halpipe

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/pipe/sampler"
)

// Op is a packet opcode. Every packet starts with a header word holding the
// opcode in the top byte and the payload length in words below it.
type Op uint8

const (
	OpNop Op = iota
	OpFramebuffer
	OpVertexBuffer
	OpVertexElements
	OpTexture
	OpRasterizer
	OpResetStipple
	OpDraw
	OpDrawInline
	OpDrawIndexed
	OpClear

	opCount
)

var opNames = [opCount]string{
	"Nop", "Framebuffer", "VertexBuffer", "VertexElements", "Texture",
	"Rasterizer", "ResetStipple", "Draw", "DrawInline", "DrawIndexed", "Clear",
}

// String returns the opcode name.
func (op Op) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

const maxPayload = 1<<24 - 1

// header encodes a packet header for n payload words.
func header(op Op, n int) uint32 {
	return uint32(op)<<24 | uint32(n)&maxPayload
}

// Framebuffer packet flags.
const (
	fbColor uint32 = 1 << iota
	fbDepthStencil
)

// Rasterizer packet flags. The cull mode sits above them.
const (
	rsFlat uint32 = 1 << iota
	rsFrontCCW
	rsLineStipple

	rsCullShift = 4
)

// ErrMalformed is returned by Decode for truncated or unknown packets.
var ErrMalformed = errors.New("halpipe: malformed packet stream")

// Packet is one decoded packet.
type Packet struct {
	Op   Op
	Args []uint32
}

// Decode splits a command stream into packets. It is a debugging aid for
// inspecting submitted streams; the driver itself only encodes.
func Decode(words []uint32) ([]Packet, error) {
	var out []Packet
	for i := 0; i < len(words); {
		op, n := Op(words[i]>>24), int(words[i]&maxPayload)
		if op >= opCount {
			return out, fmt.Errorf("%w: %s at word %d", ErrMalformed, op, i)
		}
		if i+1+n > len(words) {
			return out, fmt.Errorf("%w: %s needs %d words at word %d, have %d", ErrMalformed, op, n, i, len(words)-i-1)
		}
		out = append(out, Packet{Op: op, Args: words[i+1 : i+1+n]})
		i += 1 + n
	}
	return out, nil
}

// packSize packs a surface size into one word.
func packSize(w, h int) uint32 { return uint32(w)&0xffff | uint32(h)<<16 }

// packSampler packs sampler state into one word: wrap modes in bits 0-7,
// image filters in bits 8-15, the mip filter in bits 16-19 and the base
// and last level in bits 20-27.
func packSampler(wrapS, wrapT gputypes.AddressMode, st sampler.State, base, last int) uint32 {
	return uint32(wrapS)&0xf | uint32(wrapT)&0xf<<4 |
		uint32(filterMode(st.MinFilter))&0xf<<8 | uint32(filterMode(st.MagFilter))&0xf<<12 |
		uint32(st.MipFilter)&0xf<<16 | uint32(base)&0xf<<20 | uint32(last)&0xf<<24
}

// packElement packs a vertex element into one word.
func packElement(sem, slot int, fmtCode uint32, offset int) uint32 {
	return uint32(sem)<<28 | uint32(slot)&0xf<<24 | fmtCode&0xff<<16 | uint32(offset)&0xffff
}
