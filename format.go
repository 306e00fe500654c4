package soundring

// FormatFlags describes properties of a sample stream.
type FormatFlags uint32

const (
	// FormatFlagIsFloat indicates floating point sample data.
	FormatFlagIsFloat FormatFlags = 1 << iota
	// FormatFlagIsSignedInteger indicates signed integer sample data.
	FormatFlagIsSignedInteger
	// FormatFlagIsPacked indicates sample bits occupy the entire channel.
	FormatFlagIsPacked
	// FormatFlagNonInterleaved indicates one buffer per channel rather than
	// interleaved samples in a single buffer. Required by RingBuffer.
	FormatFlagNonInterleaved
)

// StreamFormat is a fixed-layout description of a linear PCM stream.
//
// RingBuffer consumes only FormatFlags, BytesPerFrame and ChannelsPerFrame.
// The remaining fields are stored and returned verbatim by Format so callers
// keep round-trip fidelity on descriptors obtained elsewhere.
type StreamFormat struct {
	SampleRate       float64
	FormatID         uint32
	FormatFlags      FormatFlags
	BytesPerPacket   uint32
	FramesPerPacket  uint32
	BytesPerFrame    uint32
	ChannelsPerFrame uint32
	BitsPerChannel   uint32
}

// IsNonInterleaved reports whether the format describes one buffer per channel.
func (f StreamFormat) IsNonInterleaved() bool {
	return f.FormatFlags&FormatFlagNonInterleaved != 0
}

// BufferSet is an ordered list of per-channel sample buffers for
// non-interleaved audio. Entry i holds the bytes for channel i.
//
// Caller contract: a set passed to RingBuffer.Write or RingBuffer.Read must
// contain at least ChannelsPerFrame entries, each with at least
// frameCount*BytesPerFrame bytes. A short buffer makes the copy slicing
// panic; entries beyond ChannelsPerFrame are ignored by Write and copied
// into by Read's silence fill.
type BufferSet [][]byte
