package stats

import (
	"sync"
	"testing"
	"unsafe"
)

func TestCountersOnSeparateCacheLines(t *testing.T) {
	t.Parallel()

	p := New()

	a := uintptr(unsafe.Pointer(&p.samplesPlayed))
	b := uintptr(unsafe.Pointer(&p.underruns))

	var distance uintptr
	if a > b {
		distance = a - b
	} else {
		distance = b - a
	}

	if distance < 128 {
		t.Fatalf("counter distance = %d, want >= 128", distance)
	}
}

func TestAddAndRead(t *testing.T) {
	t.Parallel()

	p := New()

	p.AddSamplesPlayed(100)
	p.AddSamplesPlayed(50)
	p.RecordUnderrun()
	p.RecordUnderrun()

	if p.SamplesPlayed() != 150 {
		t.Fatalf("SamplesPlayed = %d, want 150", p.SamplesPlayed())
	}

	if p.Underruns() != 2 {
		t.Fatalf("Underruns = %d, want 2", p.Underruns())
	}
}

func TestResetClearsCounters(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddSamplesPlayed(10)
	p.RecordUnderrun()
	p.Reset()

	if p.SamplesPlayed() != 0 || p.Underruns() != 0 {
		t.Fatal("Reset did not clear counters")
	}
}

func TestConcurrentWritesSingleWriter(t *testing.T) {
	t.Parallel()

	p := New()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for range 10000 {
			p.AddSamplesPlayed(1)
		}
	}()

	wg.Wait()

	if p.SamplesPlayed() != 10000 {
		t.Fatalf("SamplesPlayed = %d, want 10000", p.SamplesPlayed())
	}
}
