// Package soundring provides a lock-free single-producer single-consumer
// ring buffer for fixed-format, multi-channel, non-interleaved audio.
//
// One capture callback (the producer) and one playback callback (the
// consumer) exchange audio frames without locks, blocking, or allocation on
// the hot path. Each channel is stored in its own contiguous buffer; all
// channels share the same frame capacity, always a power of two.
//
// # Thread assignment
//
//   - Producer only: Write, FreeSpace, IsFull
//   - Consumer only: Read, Skip, Drain, AvailableFrames, IsEmpty
//   - Either role: Capacity, Format
//   - Neither, sequenced outside the streaming phase: Allocate, Deallocate,
//     TakeFrom
//
// The accessors named for a role read the opposite role's cursor to observe
// its progress and their own cursor as the value they last stored; called
// from the wrong role they return a stale but never torn value.
//
// # Shortfalls are not errors
//
// Write, Read, Skip and Drain never fail and never block. Each returns the
// number of frames actually processed; Write returns short on backpressure
// and Read renders any shortfall as silence, filling the remainder of the
// destination with zeros. A caller that needs a minimum frame count polls
// the accessors or retries on its own schedule.
//
// # Memory ordering
//
// The sole cross-thread synchronization is the pair of free-running frame
// cursors. A cursor store happens after the sample copies of the same call,
// so the opposite role's subsequent cursor load observes those copies. Go's
// sync/atomic operations are sequentially consistent and lock-free for
// uint64 on all supported platforms, which satisfies the required
// release/acquire handshake with no mutex fallback to verify at runtime.
package soundring
