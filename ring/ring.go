// Package ring implements a wait-free single-producer/single-consumer
// ring buffer. It is the sole synchronization surface between a decoder
// worker and an audio render callback: the producer writes, the consumer
// reads, and neither ever blocks or allocates past construction.
package ring

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// cacheLineSize covers Apple Silicon P-core cache lines (128 bytes), a
// harmless over-allocation on platforms with smaller lines.
const cacheLineSize = 128

// counter is an atomic counter padded so it occupies its own cache line,
// preventing false sharing between the producer's write_pos and the
// consumer's read_pos.
type counter struct {
	v   atomic.Uint64
	_   [cacheLineSize - 8]byte
}

// Buffer is a fixed-capacity, power-of-two-sized SPSC ring buffer of T.
// T must be a small, trivially copyable value type (int32 in the audio
// pipeline). Buffer is safe for exactly one writer goroutine and exactly
// one reader goroutine operating concurrently; any other usage pattern is
// undefined.
type Buffer[T any] struct {
	data []T
	mask uint64

	writePos counter
	readPos  counter

	memoryLocked atomic.Bool
}

// New creates a ring buffer of the given capacity, which must be a power
// of two. It panics otherwise, matching the teacher's assert-on-construct
// convention for programmer errors.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}

	return &Buffer[T]{
		data: make([]T, capacity),
		mask: uint64(capacity - 1),
	}
}

// WithMinCapacity creates a ring buffer whose capacity is the smallest
// power of two that is at least minCapacity.
func WithMinCapacity[T any](minCapacity int) *Buffer[T] {
	capacity := 1
	for capacity < minCapacity {
		capacity <<= 1
	}

	return New[T](capacity)
}

// Capacity returns the fixed capacity of the buffer.
func (b *Buffer[T]) Capacity() int {
	return len(b.data)
}

// Write copies as many elements from data as fit into the remaining free
// space and returns the count actually written. Called only by the
// producer. Wait-free: it never loops on contention, and uses at most two
// copies (handling the wrap) rather than looping element by element.
func (b *Buffer[T]) Write(data []T) int {
	write := b.writePos.v.Load()
	read := b.readPos.v.Load()

	used := write - read
	free := uint64(len(b.data)) - used

	toWrite := uint64(len(data))
	if toWrite > free {
		toWrite = free
	}

	if toWrite == 0 {
		return 0
	}

	writeIdx := write & b.mask
	firstPart := min(uint64(len(b.data))-writeIdx, toWrite)

	copy(b.data[writeIdx:writeIdx+firstPart], data[:firstPart])

	secondPart := toWrite - firstPart
	if secondPart > 0 {
		copy(b.data[:secondPart], data[firstPart:toWrite])
	}

	b.writePos.v.Store(write + toWrite)

	return int(toWrite)
}

// Read copies as many elements as are available into output and returns
// the count actually read. Called only by the consumer. Wait-free: never
// loops on contention, never blocks when the buffer is empty — it simply
// returns 0, and the caller (the render callback) treats that as an
// underrun to zero-fill.
func (b *Buffer[T]) Read(output []T) int {
	read := b.readPos.v.Load()
	write := b.writePos.v.Load()

	available := write - read

	toRead := uint64(len(output))
	if toRead > available {
		toRead = available
	}

	if toRead == 0 {
		return 0
	}

	readIdx := read & b.mask
	firstPart := min(uint64(len(b.data))-readIdx, toRead)

	copy(output[:firstPart], b.data[readIdx:readIdx+firstPart])

	secondPart := toRead - firstPart
	if secondPart > 0 {
		copy(output[firstPart:toRead], b.data[:secondPart])
	}

	b.readPos.v.Store(read + toRead)

	return int(toRead)
}

// Available reports how many elements can currently be read. Advisory
// only: the cross-thread answer may be stale by the time the caller acts
// on it.
func (b *Buffer[T]) Available() int {
	write := b.writePos.v.Load()
	read := b.readPos.v.Load()

	return int(write - read)
}

// FreeSpace reports how many elements can currently be written.
func (b *Buffer[T]) FreeSpace() int {
	write := b.writePos.v.Load()
	read := b.readPos.v.Load()

	return len(b.data) - int(write-read)
}

// FillRatio reports the fraction of capacity currently occupied, in [0,1].
func (b *Buffer[T]) FillRatio() float64 {
	return float64(b.Available()) / float64(len(b.data))
}

// Clear resets the buffer to empty. Only safe when both the producer and
// consumer are known to be quiescent (e.g. between tracks).
func (b *Buffer[T]) Clear() {
	write := b.writePos.v.Load()
	b.readPos.v.Store(write)
}

// LockMemory requests that the OS pin the buffer's backing storage into
// physical memory, so the producer/consumer can never page-fault while
// touching it. Failure is non-fatal: the buffer continues to work, just
// without the page-fault guarantee, and the caller is expected to log a
// warning (ring itself never logs from a path that might run on the
// render thread).
func (b *Buffer[T]) LockMemory() bool {
	if b.memoryLocked.Load() {
		return true
	}

	if len(b.data) == 0 {
		return false
	}

	if err := unix.Mlock(bytesOf(b.data)); err != nil {
		return false
	}

	b.memoryLocked.Store(true)

	return true
}

// UnlockMemory releases a memory lock taken by LockMemory. A no-op if the
// memory was never locked.
func (b *Buffer[T]) UnlockMemory() {
	if !b.memoryLocked.Load() {
		return
	}

	_ = unix.Munlock(bytesOf(b.data))
	b.memoryLocked.Store(false)
}

// IsMemoryLocked reports whether LockMemory last succeeded.
func (b *Buffer[T]) IsMemoryLocked() bool {
	return b.memoryLocked.Load()
}
