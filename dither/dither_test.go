package dither

import "testing"

func TestNextU32Deterministic(t *testing.T) {
	t.Parallel()

	a := New(12345)
	b := New(12345)

	for range 100 {
		if a.NextU32() != b.NextU32() {
			t.Fatal("same seed must produce the same sequence")
		}
	}
}

func TestZeroSeedReplaced(t *testing.T) {
	t.Parallel()

	s := New(0)
	if s.seed == 0 {
		t.Fatal("zero seed must be replaced with a non-zero constant")
	}
}

func TestNextTPDFRange(t *testing.T) {
	t.Parallel()

	s := New(1)

	for range 10000 {
		v := s.NextTPDF()
		if v < -1.0 || v >= 1.0 {
			t.Fatalf("TPDF sample out of range: %f", v)
		}
	}
}

func TestFillBatchNoAllocation(t *testing.T) {
	// Not parallel: testing.AllocsPerRun panics in a parallel test.
	s := New(7)
	buf := make([]float32, 64)

	allocs := testing.AllocsPerRun(100, func() {
		s.FillBatch(buf)
	})

	if allocs != 0 {
		t.Fatalf("FillBatch allocated %v times per run, want 0", allocs)
	}
}

func TestInt24TPDFCenteredAroundZero(t *testing.T) {
	t.Parallel()

	s := New(99)

	var sum int64

	const n = 100000

	for range n {
		sum += int64(s.Int24TPDF())
	}

	avg := sum / n
	if avg > 1<<15 || avg < -(1<<15) {
		t.Fatalf("Int24TPDF average %d too far from zero", avg)
	}
}
