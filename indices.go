package pipe

import (
	"encoding/binary"
	"fmt"
)

// DecodeIndices reads count indices of indexSize bytes starting at index
// start of data.
func DecodeIndices(data []byte, indexSize, start, count int) ([]uint32, error) {
	switch indexSize {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndexSize, indexSize)
	}
	if start < 0 || count < 0 || (start+count)*indexSize > len(data) {
		return nil, fmt.Errorf("%w: indices [%d,+%d) of %d", ErrInvalidVertexState, start, count, len(data)/indexSize)
	}
	out := make([]uint32, count)
	b := data[start*indexSize:]
	for i := range out {
		switch indexSize {
		case 1:
			out[i] = uint32(b[i])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(b[i*2:]))
		default:
			out[i] = binary.LittleEndian.Uint32(b[i*4:])
		}
	}
	return out, nil
}
