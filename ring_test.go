package soundring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFormat returns a non-interleaved linear PCM format for tests.
func testFormat(channels, bytesPerFrame uint32) StreamFormat {
	return StreamFormat{
		SampleRate:       48000,
		FormatFlags:      FormatFlagIsSignedInteger | FormatFlagIsPacked | FormatFlagNonInterleaved,
		BytesPerPacket:   bytesPerFrame,
		FramesPerPacket:  1,
		BytesPerFrame:    bytesPerFrame,
		ChannelsPerFrame: channels,
		BitsPerChannel:   bytesPerFrame * 8,
	}
}

// makeSet allocates a buffer set of the given shape.
func makeSet(channels, byteLen int) BufferSet {
	set := make(BufferSet, channels)
	for ch := range set {
		set[ch] = make([]byte, byteLen)
	}
	return set
}

// patternByte is the expected sample byte at absolute stream byte offset
// off of channel ch.
func patternByte(ch, off int) byte {
	return byte(off + ch*97)
}

// fillPattern fills set with the deterministic pattern starting at the given
// absolute stream byte offset.
func fillPattern(set BufferSet, startByte int) {
	for ch := range set {
		for i := range set[ch] {
			set[ch][i] = patternByte(ch, startByte+i)
		}
	}
}

// checkPattern verifies byteLen pattern bytes in set starting at the given
// absolute stream byte offset.
func checkPattern(t *testing.T, set BufferSet, startByte, byteLen int) {
	t.Helper()
	for ch := range set {
		for i := 0; i < byteLen; i++ {
			if set[ch][i] != patternByte(ch, startByte+i) {
				t.Fatalf("channel %d byte %d: got %#x, want %#x", ch, i, set[ch][i], patternByte(ch, startByte+i))
			}
		}
	}
}

// checkSilence verifies the byte range [from, to) of every channel is zero.
func checkSilence(t *testing.T, set BufferSet, from, to int) {
	t.Helper()
	for ch := range set {
		for i := from; i < to; i++ {
			if set[ch][i] != 0 {
				t.Fatalf("channel %d byte %d: got %#x, want silence", ch, i, set[ch][i])
			}
		}
	}
}

func TestAllocate(t *testing.T) {
	t.Run("RoundsUpToPowerOfTwo", func(t *testing.T) {
		for _, tc := range []struct {
			request uint64
			want    uint64
		}{
			{2, 2},
			{3, 4},
			{4, 4},
			{5, 8},
			{512, 512},
			{513, 1024},
			{1000, 1024},
		} {
			rb := New()
			require.True(t, rb.Allocate(testFormat(1, 2), tc.request), "request %d", tc.request)
			assert.Equal(t, tc.want, rb.Capacity(), "request %d", tc.request)
		}
	})

	t.Run("FreshState", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(2, 4), 64))
		assert.True(t, rb.IsAllocated())
		assert.Equal(t, uint64(64), rb.Capacity())
		assert.Equal(t, rb.Capacity(), rb.FreeSpace())
		assert.Equal(t, uint64(0), rb.AvailableFrames())
		assert.True(t, rb.IsEmpty())
		assert.False(t, rb.IsFull())
	})

	t.Run("RejectsInterleaved", func(t *testing.T) {
		format := testFormat(2, 4)
		format.FormatFlags &^= FormatFlagNonInterleaved
		rb := New()
		assert.False(t, rb.Allocate(format, 64))
		assert.False(t, rb.IsAllocated())
	})

	t.Run("RejectsZeroBytesPerFrame", func(t *testing.T) {
		rb := New()
		assert.False(t, rb.Allocate(testFormat(2, 0), 64))
	})

	t.Run("RejectsZeroChannels", func(t *testing.T) {
		rb := New()
		assert.False(t, rb.Allocate(testFormat(0, 4), 64))
	})

	t.Run("RejectsCapacityOutOfRange", func(t *testing.T) {
		rb := New()
		assert.False(t, rb.Allocate(testFormat(1, 2), 0))
		assert.False(t, rb.Allocate(testFormat(1, 2), 1))
		assert.False(t, rb.Allocate(testFormat(1, 2), MaxCapacity+1))
	})

	t.Run("RejectsInfeasibleAllocation", func(t *testing.T) {
		// Within the capacity range but the channel buffer byte size would
		// overflow a slice length.
		rb := New()
		assert.False(t, rb.Allocate(testFormat(2, 4), 1<<62))
		assert.False(t, rb.IsAllocated())
	})

	t.Run("FailedAllocateLeavesPriorAllocation", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(1, 2), 16))
		src := makeSet(1, 8*2)
		fillPattern(src, 0)
		require.Equal(t, uint64(8), rb.Write(src, 8))

		assert.False(t, rb.Allocate(testFormat(1, 2), 1))
		assert.Equal(t, uint64(16), rb.Capacity())
		assert.Equal(t, uint64(8), rb.AvailableFrames())

		dst := makeSet(1, 8*2)
		require.Equal(t, uint64(8), rb.Read(dst, 8))
		checkPattern(t, dst, 0, 8*2)
	})

	t.Run("ReallocateResetsState", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(1, 2), 16))
		src := makeSet(1, 4*2)
		fillPattern(src, 0)
		rb.Write(src, 4)

		require.True(t, rb.Allocate(testFormat(2, 4), 32))
		assert.Equal(t, uint64(32), rb.Capacity())
		assert.Equal(t, uint64(0), rb.AvailableFrames())
		assert.Equal(t, uint64(32), rb.FreeSpace())
	})
}

func TestNewWithFormat(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		rb, err := NewWithFormat(testFormat(2, 4), 100)
		require.NoError(t, err)
		assert.Equal(t, uint64(128), rb.Capacity())
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		format := testFormat(2, 4)
		format.FormatFlags &^= FormatFlagNonInterleaved
		_, err := NewWithFormat(format, 100)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("CapacityOutOfRange", func(t *testing.T) {
		_, err := NewWithFormat(testFormat(2, 4), 1)
		assert.ErrorIs(t, err, ErrCapacityOutOfRange)
	})

	t.Run("AllocationTooLarge", func(t *testing.T) {
		_, err := NewWithFormat(testFormat(2, 4), 1<<62)
		assert.ErrorIs(t, err, ErrAllocationTooLarge)
	})
}

func TestDeallocate(t *testing.T) {
	rb := New()
	require.True(t, rb.Allocate(testFormat(2, 2), 64))
	src := makeSet(2, 10*2)
	fillPattern(src, 0)
	rb.Write(src, 10)

	rb.Deallocate()
	assert.False(t, rb.IsAllocated())
	assert.Equal(t, uint64(0), rb.Capacity())
	assert.Equal(t, uint64(0), rb.AvailableFrames())
	assert.Equal(t, uint64(0), rb.FreeSpace())
	assert.Equal(t, StreamFormat{}, rb.Format())

	// Idempotent.
	rb.Deallocate()
	assert.False(t, rb.IsAllocated())
}

func TestWrite(t *testing.T) {
	const frameBytes = 2

	t.Run("RoundTrip", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(2, frameBytes), 64))

		for _, n := range []uint64{1, 7, 64} {
			rb.Drain()
			src := makeSet(2, int(n)*frameBytes)
			fillPattern(src, 0)
			require.Equal(t, n, rb.Write(src, n))

			dst := makeSet(2, int(n)*frameBytes)
			require.Equal(t, n, rb.Read(dst, n))
			checkPattern(t, dst, 0, int(n)*frameBytes)
		}
	})

	t.Run("Backpressure", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(1, frameBytes), 16))
		src := makeSet(1, 32*frameBytes)
		fillPattern(src, 0)

		assert.Equal(t, uint64(16), rb.Write(src, 32))
		assert.Equal(t, uint64(16), rb.AvailableFrames())
		assert.True(t, rb.IsFull())
		assert.Equal(t, uint64(0), rb.FreeSpace())

		// Full buffer accepts nothing.
		assert.Equal(t, uint64(0), rb.Write(src, 1))
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(1, frameBytes), 16))
		src := makeSet(1, 4*frameBytes)

		assert.Equal(t, uint64(0), rb.Write(nil, 4))
		assert.Equal(t, uint64(0), rb.Write(src, 0))
		assert.Equal(t, uint64(0), rb.AvailableFrames())

		unallocated := New()
		assert.Equal(t, uint64(0), unallocated.Write(src, 4))
	})
}

func TestRead(t *testing.T) {
	const frameBytes = 2

	t.Run("EmptyZeroFills", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(2, frameBytes), 16))

		dst := makeSet(2, 8*frameBytes)
		fillPattern(dst, 1000) // stale garbage the read must overwrite
		assert.Equal(t, uint64(0), rb.Read(dst, 8))
		checkSilence(t, dst, 0, 8*frameBytes)
	})

	t.Run("PartialZeroFillsRemainder", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(2, frameBytes), 16))
		src := makeSet(2, 5*frameBytes)
		fillPattern(src, 0)
		require.Equal(t, uint64(5), rb.Write(src, 5))

		dst := makeSet(2, 12*frameBytes)
		fillPattern(dst, 1000)
		assert.Equal(t, uint64(5), rb.Read(dst, 12))
		checkPattern(t, dst, 0, 5*frameBytes)
		checkSilence(t, dst, 5*frameBytes, 12*frameBytes)
		assert.Equal(t, uint64(0), rb.AvailableFrames())
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(1, frameBytes), 16))
		dst := makeSet(1, 4*frameBytes)
		fillPattern(dst, 1000)

		assert.Equal(t, uint64(0), rb.Read(nil, 4))
		// Zero frame count is a no-op, not a zero fill.
		assert.Equal(t, uint64(0), rb.Read(dst, 0))
		assert.NotEqual(t, byte(0), dst[0][0])

		unallocated := New()
		assert.Equal(t, uint64(0), unallocated.Read(dst, 4))
	})
}

func TestSkip(t *testing.T) {
	const frameBytes = 2
	rb := New()
	require.True(t, rb.Allocate(testFormat(1, frameBytes), 32))
	src := makeSet(1, 20*frameBytes)
	fillPattern(src, 0)
	require.Equal(t, uint64(20), rb.Write(src, 20))

	assert.Equal(t, uint64(8), rb.Skip(8))
	assert.Equal(t, uint64(12), rb.AvailableFrames())

	// The remaining unread data is untouched.
	dst := makeSet(1, 12*frameBytes)
	require.Equal(t, uint64(12), rb.Read(dst, 12))
	checkPattern(t, dst, 8*frameBytes, 12*frameBytes)

	// Skipping more than available skips only what is there.
	require.Equal(t, uint64(4), rb.Write(src, 4))
	assert.Equal(t, uint64(4), rb.Skip(100))
	assert.Equal(t, uint64(0), rb.AvailableFrames())
	assert.Equal(t, uint64(0), rb.Skip(1))
}

func TestDrain(t *testing.T) {
	rb := New()
	require.True(t, rb.Allocate(testFormat(2, 4), 64))
	src := makeSet(2, 40*4)
	fillPattern(src, 0)
	require.Equal(t, uint64(40), rb.Write(src, 40))

	assert.Equal(t, uint64(40), rb.Drain())
	assert.Equal(t, uint64(0), rb.AvailableFrames())
	assert.True(t, rb.IsEmpty())
	assert.Equal(t, rb.Capacity(), rb.FreeSpace())

	assert.Equal(t, uint64(0), rb.Drain())
}

func TestTakeFrom(t *testing.T) {
	const frameBytes = 2

	t.Run("TransfersAllocationAndCursors", func(t *testing.T) {
		src := New()
		require.True(t, src.Allocate(testFormat(1, frameBytes), 16))
		set := makeSet(1, 10*frameBytes)
		fillPattern(set, 0)
		require.Equal(t, uint64(10), src.Write(set, 10))
		require.Equal(t, uint64(3), src.Skip(3))

		dst := New()
		dst.TakeFrom(src)

		assert.False(t, src.IsAllocated())
		assert.Equal(t, uint64(0), src.Capacity())
		assert.Equal(t, StreamFormat{}, src.Format())

		assert.True(t, dst.IsAllocated())
		assert.Equal(t, uint64(16), dst.Capacity())
		assert.Equal(t, uint64(7), dst.AvailableFrames())

		out := makeSet(1, 7*frameBytes)
		require.Equal(t, uint64(7), dst.Read(out, 7))
		checkPattern(t, out, 3*frameBytes, 7*frameBytes)
	})

	t.Run("ReleasesPriorAllocation", func(t *testing.T) {
		src := New()
		require.True(t, src.Allocate(testFormat(1, frameBytes), 8))
		dst := New()
		require.True(t, dst.Allocate(testFormat(2, 4), 64))

		dst.TakeFrom(src)
		assert.Equal(t, uint64(8), dst.Capacity())
		assert.Equal(t, testFormat(1, frameBytes), dst.Format())
	})

	t.Run("SelfTransferIsNoOp", func(t *testing.T) {
		rb := New()
		require.True(t, rb.Allocate(testFormat(1, frameBytes), 8))
		rb.TakeFrom(rb)
		assert.True(t, rb.IsAllocated())
		assert.Equal(t, uint64(8), rb.Capacity())
	})
}

// TestScenarioSequence walks a mixed write/read sequence across a 512 frame
// buffer, checking counts and silence fill at every step.
func TestScenarioSequence(t *testing.T) {
	const frameBytes = 2
	rb := New()
	require.True(t, rb.Allocate(testFormat(1, frameBytes), 512))
	require.Equal(t, uint64(512), rb.Capacity())

	src := makeSet(1, 300*frameBytes)
	fillPattern(src, 0)
	require.Equal(t, uint64(300), rb.Write(src, 300))
	assert.Equal(t, uint64(212), rb.FreeSpace())

	dst := makeSet(1, 100*frameBytes)
	require.Equal(t, uint64(100), rb.Read(dst, 100))
	checkPattern(t, dst, 0, 100*frameBytes)
	assert.Equal(t, uint64(200), rb.AvailableFrames())

	fillPattern(src, 300*frameBytes)
	require.Equal(t, uint64(250), rb.Write(src, 250))
	assert.Equal(t, uint64(450), rb.AvailableFrames())

	final := makeSet(1, 500*frameBytes)
	require.Equal(t, uint64(450), rb.Read(final, 500))
	checkPattern(t, final, 100*frameBytes, 450*frameBytes)
	checkSilence(t, final, 450*frameBytes, 500*frameBytes)
	assert.Equal(t, uint64(0), rb.AvailableFrames())
}

// TestWraparound drives the physical index past the end of the channel
// buffers so the copy must split into two ranges.
func TestWraparound(t *testing.T) {
	const frameBytes = 2
	rb := New()
	require.True(t, rb.Allocate(testFormat(2, frameBytes), 4))
	require.Equal(t, uint64(4), rb.Capacity())

	src := makeSet(2, 3*frameBytes)
	fillPattern(src, 0)
	require.Equal(t, uint64(3), rb.Write(src, 3))
	dst := makeSet(2, 3*frameBytes)
	require.Equal(t, uint64(3), rb.Read(dst, 3))
	checkPattern(t, dst, 0, 3*frameBytes)

	// Second write starts at physical index 3 of 4 and wraps.
	fillPattern(src, 3*frameBytes)
	require.Equal(t, uint64(3), rb.Write(src, 3))
	require.Equal(t, uint64(3), rb.Read(dst, 3))
	checkPattern(t, dst, 3*frameBytes, 3*frameBytes)
}

func TestNextPowerOfTwo(t *testing.T) {
	for _, tc := range []struct {
		in   uint64
		want uint64
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1023, 1024},
		{1024, 1024},
		{1025, 2048},
		{1 << 62, 1 << 62},
		{(1 << 62) + 1, 1 << 63},
		{1 << 63, 1 << 63},
	} {
		assert.Equal(t, tc.want, nextPowerOfTwo(tc.in), "nextPowerOfTwo(%d)", tc.in)
	}
}

func TestMaxCapacityBound(t *testing.T) {
	assert.Equal(t, uint64(1)<<63, MaxCapacity)
	assert.Equal(t, uint64(math.MaxUint64)/2+1, MaxCapacity)
}
