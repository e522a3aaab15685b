package ring

import (
	"math/rand"
	"sync"
	"testing"
	"unsafe"
)

func TestBasicWriteRead(t *testing.T) {
	t.Parallel()

	rb := New[int32](16)

	data := []int32{1, 2, 3, 4}
	if n := rb.Write(data); n != 4 {
		t.Fatalf("Write = %d, want 4", n)
	}

	if rb.Available() != 4 {
		t.Fatalf("Available = %d, want 4", rb.Available())
	}

	out := make([]int32, 4)
	if n := rb.Read(out); n != 4 {
		t.Fatalf("Read = %d, want 4", n)
	}

	for i, v := range data {
		if out[i] != v {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], v)
		}
	}
}

func TestWrapAround(t *testing.T) {
	t.Parallel()

	rb := New[int32](4)

	rb.Write([]int32{1, 2, 3, 4})

	out := make([]int32, 2)
	rb.Read(out)

	if out[0] != 1 || out[1] != 2 {
		t.Fatalf("got %v, want [1 2]", out)
	}

	if n := rb.Write([]int32{5, 6}); n != 2 {
		t.Fatalf("Write = %d, want 2", n)
	}

	all := make([]int32, 4)
	if n := rb.Read(all); n != 4 {
		t.Fatalf("Read = %d, want 4", n)
	}

	want := []int32{3, 4, 5, 6}
	for i := range want {
		if all[i] != want[i] {
			t.Fatalf("got %v, want %v", all, want)
		}
	}
}

func TestFullWriteReturnsZero(t *testing.T) {
	t.Parallel()

	rb := New[int32](4)
	rb.Write([]int32{1, 2, 3, 4})

	if rb.FreeSpace() != 0 {
		t.Fatalf("FreeSpace = %d, want 0", rb.FreeSpace())
	}

	if n := rb.Write([]int32{5, 6}); n != 0 {
		t.Fatalf("Write on full buffer = %d, want 0", n)
	}
}

func TestEmptyReadReturnsZero(t *testing.T) {
	t.Parallel()

	rb := New[int32](4)

	out := make([]int32, 4)
	if n := rb.Read(out); n != 0 {
		t.Fatalf("Read on empty buffer = %d, want 0", n)
	}
}

// TestCacheLineAlignment covers spec property 2: counter wrappers must
// be 128 bytes in size.
func TestCacheLineAlignment(t *testing.T) {
	t.Parallel()

	var c counter

	if unsafe.Sizeof(c) != 128 {
		t.Fatalf("sizeof(counter) = %d, want 128", unsafe.Sizeof(c))
	}
}

// TestNoFalseSharing covers spec property 2: write_pos and read_pos must
// be at least one cache line (128 bytes) apart.
func TestNoFalseSharing(t *testing.T) {
	t.Parallel()

	rb := New[int32](16)

	writeAddr := uintptr(unsafe.Pointer(&rb.writePos))
	readAddr := uintptr(unsafe.Pointer(&rb.readPos))

	var distance uintptr
	if writeAddr > readAddr {
		distance = writeAddr - readAddr
	} else {
		distance = readAddr - writeAddr
	}

	if distance < 128 {
		t.Fatalf("write_pos/read_pos distance = %d, want >= 128", distance)
	}
}

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-power-of-two capacity")
		}
	}()

	New[int32](3)
}

// TestSPSCStreamEquality covers spec property 1: for any sequence of
// interleaved write/read calls from two goroutines, the concatenated
// stream out equals the stream in, truncated to whatever fit.
func TestSPSCStreamEquality(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{4, 16, 64, 4096} {
		capacity := capacity
		t.Run(capacityName(capacity), func(t *testing.T) {
			t.Parallel()

			rb := New[int32](capacity)

			const total = 20000

			input := make([]int32, total)
			for i := range input {
				input[i] = int32(i)
			}

			output := make([]int32, 0, total)

			var wg sync.WaitGroup

			wg.Add(2)

			go func() {
				defer wg.Done()

				rnd := rand.New(rand.NewSource(int64(capacity)))
				pos := 0

				for pos < total {
					chunk := 1 + rnd.Intn(37)
					if pos+chunk > total {
						chunk = total - pos
					}

					written := 0
					for written < chunk {
						n := rb.Write(input[pos+written : pos+chunk])
						written += n

						if n == 0 {
							continue
						}
					}

					pos += chunk
				}
			}()

			go func() {
				defer wg.Done()

				rnd := rand.New(rand.NewSource(int64(capacity) + 1))
				buf := make([]int32, 64)

				for len(output) < total {
					chunk := 1 + rnd.Intn(len(buf))
					n := rb.Read(buf[:chunk])
					output = append(output, buf[:n]...)
				}
			}()

			wg.Wait()

			if len(output) != total {
				t.Fatalf("got %d samples, want %d", len(output), total)
			}

			for i := range input {
				if output[i] != input[i] {
					t.Fatalf("sample %d: got %d, want %d", i, output[i], input[i])
				}
			}
		})
	}
}

func capacityName(c int) string {
	switch c {
	case 4:
		return "cap4"
	case 16:
		return "cap16"
	case 64:
		return "cap64"
	case 4096:
		return "cap4096"
	default:
		return "capN"
	}
}

func TestLockMemoryBestEffort(t *testing.T) {
	t.Parallel()

	rb := New[int32](1024)

	// Either outcome is acceptable: lock_memory is best-effort and must
	// never panic or corrupt state.
	_ = rb.LockMemory()
	rb.UnlockMemory()

	if rb.IsMemoryLocked() {
		t.Fatal("IsMemoryLocked should be false after UnlockMemory")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	rb := New[int32](16)
	rb.Write([]int32{1, 2, 3, 4})
	rb.Clear()

	if rb.Available() != 0 {
		t.Fatalf("Available after Clear = %d, want 0", rb.Available())
	}

	if rb.FreeSpace() != 16 {
		t.Fatalf("FreeSpace after Clear = %d, want 16", rb.FreeSpace())
	}
}
