// Package pcm converts between the interleaved sample layout audio devices
// deliver and the per-channel layout the ring buffer carries.
package pcm

import (
	"encoding/binary"

	"github.com/soundring/soundring"
)

// Deinterleave splits frames of interleaved little-endian sample bytes from
// src into the per-channel buffers of dst. dst must hold at least channels
// entries with frames*sampleBytes bytes each; src must hold at least
// frames*channels*sampleBytes bytes.
func Deinterleave(dst soundring.BufferSet, src []byte, frames, channels, sampleBytes int) {
	for f := 0; f < frames; f++ {
		frameOff := f * channels * sampleBytes
		for ch := 0; ch < channels; ch++ {
			srcOff := frameOff + ch*sampleBytes
			dstOff := f * sampleBytes
			copy(dst[ch][dstOff:dstOff+sampleBytes], src[srcOff:srcOff+sampleBytes])
		}
	}
}

// Interleave packs frames of per-channel sample bytes from src back into
// interleaved little-endian bytes in dst, the inverse of Deinterleave.
func Interleave(dst []byte, src soundring.BufferSet, frames, channels, sampleBytes int) {
	for f := 0; f < frames; f++ {
		frameOff := f * channels * sampleBytes
		for ch := 0; ch < channels; ch++ {
			srcOff := f * sampleBytes
			dstOff := frameOff + ch*sampleBytes
			copy(dst[dstOff:dstOff+sampleBytes], src[ch][srcOff:srcOff+sampleBytes])
		}
	}
}

// InterleaveInts decodes frames of per-channel little-endian signed samples
// into interleaved int values, the layout the WAV encoder consumes. dst
// must hold at least frames*channels entries. bitDepth must be 16 or 32.
func InterleaveInts(dst []int, src soundring.BufferSet, frames, channels, bitDepth int) {
	switch bitDepth {
	case 16:
		for f := 0; f < frames; f++ {
			for ch := 0; ch < channels; ch++ {
				v := binary.LittleEndian.Uint16(src[ch][f*2:])
				dst[f*channels+ch] = int(int16(v))
			}
		}
	case 32:
		for f := 0; f < frames; f++ {
			for ch := 0; ch < channels; ch++ {
				v := binary.LittleEndian.Uint32(src[ch][f*4:])
				dst[f*channels+ch] = int(int32(v))
			}
		}
	}
}
