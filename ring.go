// ring.go: lock-free single-producer single-consumer ring buffer for
// fixed-format non-interleaved audio.
package soundring

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"
)

const (
	// MinCapacity is the minimum supported buffer capacity in audio frames.
	MinCapacity uint64 = 2
	// MaxCapacity is the maximum supported buffer capacity in audio frames,
	// half the range of the frame cursors so the distance between them is
	// never ambiguous.
	MaxCapacity uint64 = 1 << 63
)

// Errors returned by NewWithFormat. Allocate reports the same conditions as
// a plain false.
var (
	ErrUnsupportedFormat  = errors.New("soundring: unsupported audio format")
	ErrCapacityOutOfRange = errors.New("soundring: capacity out of range")
	ErrAllocationTooLarge = errors.New("soundring: allocation size not representable")
)

// cacheLine separates the two cursors so the producer's and consumer's cores
// do not invalidate each other's lines on every advance.
const cacheLine = 64

// RingBuffer is a lock-free SPSC ring buffer holding non-interleaved audio.
//
// Exactly one goroutine may produce (Write) and exactly one may consume
// (Read, Skip, Drain); there is no arbitration for additional participants
// and using more is undefined. No operation blocks, spins or allocates, so
// every call is safe inside a real-time audio callback.
//
// Each channel occupies an equal-length slice of one owned byte region. The
// write and read cursors are free-running frame counters; the physical index
// is cursor & (capacity-1), valid because capacity is a power of two.
// sync/atomic loads and stores on uint64 are lock-free on all supported
// platforms (the runtime guarantees alignment) and sequentially consistent,
// which covers the release/acquire handshake the structure needs: the
// cursor store in Write happens after the sample copies, and the consumer's
// load of that cursor in Read observes them, and symmetrically for the read
// cursor reclaiming space.
//
// Allocate, Deallocate and TakeFrom are setup/teardown operations with no
// internal synchronization; they must be strictly sequenced before or after
// any producer/consumer activity.
//
// RingBuffer must not be copied after first use.
type RingBuffer struct {
	writePos atomic.Uint64
	_        [cacheLine - 8]byte
	readPos  atomic.Uint64
	_        [cacheLine - 8]byte

	data       []byte // all channel buffers, back to back
	offsets    []int  // byte offset of each channel buffer within data
	capacity   uint64 // frames per channel, power of two; 0 when unallocated
	mask       uint64 // capacity - 1
	frameBytes uint64 // bytes per single-channel frame
	format     StreamFormat
}

// New returns an empty, unallocated ring buffer. Allocate must succeed
// before the buffer may be used.
func New() *RingBuffer {
	return &RingBuffer{}
}

// NewWithFormat returns a ring buffer allocated for the given format with
// capacity rounded up to the next power of two not less than
// minFrameCapacity.
func NewWithFormat(format StreamFormat, minFrameCapacity uint64) (*RingBuffer, error) {
	if !format.IsNonInterleaved() || format.BytesPerFrame == 0 || format.ChannelsPerFrame == 0 {
		return nil, fmt.Errorf("%w: need non-interleaved format with nonzero BytesPerFrame and ChannelsPerFrame", ErrUnsupportedFormat)
	}
	if minFrameCapacity < MinCapacity || minFrameCapacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d frames not in [%d, %d]", ErrCapacityOutOfRange, minFrameCapacity, MinCapacity, MaxCapacity)
	}
	rb := &RingBuffer{}
	if !rb.Allocate(format, minFrameCapacity) {
		return nil, fmt.Errorf("%w: %d channels of %d frames at %d bytes per frame",
			ErrAllocationTooLarge, format.ChannelsPerFrame, nextPowerOfTwo(minFrameCapacity), format.BytesPerFrame)
	}
	return rb, nil
}

// Allocate sizes the buffer for audio of the given format, with capacity
// rounded up to the next power of two not less than minFrameCapacity. Any
// prior allocation is released, both cursors reset to zero and the region
// zero-filled. Returns false, leaving the buffer untouched, if the format is
// not non-interleaved, BytesPerFrame or ChannelsPerFrame is zero, the
// requested capacity is outside [MinCapacity, MaxCapacity], or the resulting
// region cannot be represented.
//
// Not safe concurrently with any other method.
func (rb *RingBuffer) Allocate(format StreamFormat, minFrameCapacity uint64) bool {
	if !format.IsNonInterleaved() || format.BytesPerFrame == 0 || format.ChannelsPerFrame == 0 {
		return false
	}
	if minFrameCapacity < MinCapacity || minFrameCapacity > MaxCapacity {
		return false
	}

	frameBytes := uint64(format.BytesPerFrame)
	channels := uint64(format.ChannelsPerFrame)

	// Frame counts above these overflow a single channel buffer length or
	// the combined region length.
	maxChannelFrames := uint64(math.MaxInt) / frameBytes
	maxRegionFrames := (uint64(math.MaxInt) / channels) / frameBytes
	maxFrames := min(maxChannelFrames, maxRegionFrames)

	capacity := nextPowerOfTwo(minFrameCapacity)
	if capacity > maxFrames {
		return false
	}

	rb.Deallocate()

	channelBytes := int(capacity * frameBytes)
	rb.data = make([]byte, int(channels)*channelBytes)
	rb.offsets = make([]int, channels)
	for ch := range rb.offsets {
		rb.offsets[ch] = ch * channelBytes
	}

	rb.capacity = capacity
	rb.mask = capacity - 1
	rb.frameBytes = frameBytes

	rb.writePos.Store(0)
	rb.readPos.Store(0)

	rb.format = format

	return true
}

// Deallocate releases the sample region and returns the buffer to its
// unallocated state. Calling Deallocate on an unallocated buffer is a no-op.
//
// Not safe concurrently with any other method.
func (rb *RingBuffer) Deallocate() {
	if rb.data == nil {
		return
	}
	rb.data = nil
	rb.offsets = nil

	rb.capacity = 0
	rb.mask = 0
	rb.frameBytes = 0

	rb.writePos.Store(0)
	rb.readPos.Store(0)

	rb.format = StreamFormat{}
}

// TakeFrom transfers other's allocation, format and cursor values to rb,
// releasing rb's prior allocation and leaving other unallocated. A no-op
// when rb and other are the same buffer.
//
// Not safe concurrently with any activity on either buffer.
func (rb *RingBuffer) TakeFrom(other *RingBuffer) {
	if rb == other {
		return
	}
	rb.data, other.data = other.data, nil
	rb.offsets, other.offsets = other.offsets, nil

	rb.capacity, other.capacity = other.capacity, 0
	rb.mask, other.mask = other.mask, 0
	rb.frameBytes, other.frameBytes = other.frameBytes, 0

	rb.writePos.Store(other.writePos.Swap(0))
	rb.readPos.Store(other.readPos.Swap(0))

	rb.format, other.format = other.format, StreamFormat{}
}

// IsAllocated reports whether the buffer currently holds a sample region.
func (rb *RingBuffer) IsAllocated() bool {
	return rb.data != nil
}

// Format returns the stream format passed to the last successful Allocate,
// unchanged. Safe to call from both producer and consumer.
func (rb *RingBuffer) Format() StreamFormat {
	return rb.format
}

// Capacity returns the per-channel capacity in audio frames. Safe to call
// from both producer and consumer.
func (rb *RingBuffer) Capacity() uint64 {
	return rb.capacity
}

// FreeSpace returns the number of frames available for writing. The result
// is only accurate when called from the producer.
func (rb *RingBuffer) FreeSpace() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return rb.capacity - (writePos - readPos)
}

// IsFull reports whether the buffer has no space for writing. The result is
// only accurate when called from the producer.
func (rb *RingBuffer) IsFull() bool {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return writePos-readPos == rb.capacity
}

// AvailableFrames returns the number of frames available for reading. The
// result is only accurate when called from the consumer.
func (rb *RingBuffer) AvailableFrames() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return writePos - readPos
}

// IsEmpty reports whether the buffer contains no data. The result is only
// accurate when called from the consumer.
func (rb *RingBuffer) IsEmpty() bool {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return writePos == readPos
}

// Write copies up to frameCount frames from src into the buffer and
// advances the write cursor. Returns the number of frames actually written,
// which is less than frameCount when the buffer lacks space; retry and
// backoff are the caller's concern.
//
// Only safe to call from the producer.
func (rb *RingBuffer) Write(src BufferSet, frameCount uint64) uint64 {
	if src == nil || frameCount == 0 || rb.capacity == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	framesFree := rb.capacity - (writePos - readPos)

	if framesFree == 0 {
		return 0
	}

	framesToWrite := min(framesFree, frameCount)
	writeIndex := writePos & rb.mask
	framesToEnd := rb.capacity - writeIndex

	if framesToWrite <= framesToEnd {
		rb.copyIn(writeIndex*rb.frameBytes, src, 0, framesToWrite*rb.frameBytes)
	} else {
		// The write range wraps past the end of the channel buffers; split
		// into tail and head copies.
		bytesToEnd := framesToEnd * rb.frameBytes
		rb.copyIn(writeIndex*rb.frameBytes, src, 0, bytesToEnd)
		rb.copyIn(0, src, bytesToEnd, (framesToWrite-framesToEnd)*rb.frameBytes)
	}

	// Publishes the copied samples to the consumer.
	rb.writePos.Store(writePos + framesToWrite)
	return framesToWrite
}

// Read copies up to frameCount frames into dst and advances the read
// cursor. dst always comes back fully populated for the requested size: if
// fewer frames are buffered than requested the remainder of each channel is
// zero-filled, and a read from an empty buffer zero-fills dst entirely.
// Returns the number of frames of real audio copied; an underrun is
// rendered as silence, not reported as an error.
//
// Only safe to call from the consumer.
func (rb *RingBuffer) Read(dst BufferSet, frameCount uint64) uint64 {
	if dst == nil || frameCount == 0 || rb.capacity == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	framesAvailable := writePos - readPos

	if framesAvailable == 0 {
		for _, buf := range dst {
			clear(buf)
		}
		return 0
	}

	framesToRead := min(framesAvailable, frameCount)
	readIndex := readPos & rb.mask
	framesToEnd := rb.capacity - readIndex

	if framesToRead <= framesToEnd {
		rb.copyOut(dst, 0, readIndex*rb.frameBytes, framesToRead*rb.frameBytes)
	} else {
		bytesToEnd := framesToEnd * rb.frameBytes
		rb.copyOut(dst, 0, readIndex*rb.frameBytes, bytesToEnd)
		rb.copyOut(dst, bytesToEnd, 0, (framesToRead-framesToEnd)*rb.frameBytes)
	}

	// Publishes the reclaimed space to the producer.
	rb.readPos.Store(readPos + framesToRead)

	// Fill the remainder with silence if fewer than requested frames read.
	if framesToRead != frameCount {
		byteOffset := framesToRead * rb.frameBytes
		byteCount := (frameCount - framesToRead) * rb.frameBytes
		for _, buf := range dst {
			clear(buf[byteOffset : byteOffset+byteCount])
		}
	}

	return framesToRead
}

// Skip discards up to frameCount frames by advancing the read cursor
// without copying. Returns the number of frames actually skipped. Unread
// data beyond the skipped range is untouched.
//
// Only safe to call from the consumer.
func (rb *RingBuffer) Skip(frameCount uint64) uint64 {
	if frameCount == 0 || rb.capacity == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	framesAvailable := writePos - readPos

	if framesAvailable == 0 {
		return 0
	}

	framesToSkip := min(framesAvailable, frameCount)

	rb.readPos.Store(readPos + framesToSkip)
	return framesToSkip
}

// Drain advances the read cursor to the write cursor, emptying the buffer.
// Returns the number of frames discarded.
//
// Only safe to call from the consumer.
func (rb *RingBuffer) Drain() uint64 {
	if rb.capacity == 0 {
		return 0
	}

	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	framesAvailable := writePos - readPos

	if framesAvailable == 0 {
		return 0
	}

	rb.readPos.Store(writePos)
	return framesAvailable
}

// copyIn copies byteCount bytes from each channel of src into the ring's
// channel buffers at dstOffset.
func (rb *RingBuffer) copyIn(dstOffset uint64, src BufferSet, srcOffset, byteCount uint64) {
	for ch, base := range rb.offsets {
		dst := rb.data[base+int(dstOffset) : base+int(dstOffset+byteCount)]
		copy(dst, src[ch][srcOffset:srcOffset+byteCount])
	}
}

// copyOut copies byteCount bytes from the ring's channel buffers at
// srcOffset into each channel of dst.
func (rb *RingBuffer) copyOut(dst BufferSet, dstOffset uint64, srcOffset, byteCount uint64) {
	for ch, base := range rb.offsets {
		src := rb.data[base+int(srcOffset) : base+int(srcOffset+byteCount)]
		copy(dst[ch][dstOffset:dstOffset+byteCount], src)
	}
}

// nextPowerOfTwo returns the smallest power of two not less than x, with
// nextPowerOfTwo(0) == nextPowerOfTwo(1) == 1.
func nextPowerOfTwo(x uint64) uint64 {
	if x < 2 {
		return 1
	}
	return 1 << bits.Len64(x-1)
}
