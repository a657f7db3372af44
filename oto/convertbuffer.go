package oto

import (
	"encoding/binary"
	"math"

	"github.com/vsariola/sequin"
)

// FloatBufferTo32BitLE appends the buffer to out as interleaved 32-bit float
// little-endian samples, clipped to [-1, 1].
func FloatBufferTo32BitLE(buff sequin.AudioBuffer, out []byte) []byte {
	for _, frame := range buff {
		for _, v := range frame {
			v = min(max(v, -1), 1)
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out
}
