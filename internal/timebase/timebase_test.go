package timebase

import "testing"

// TestRoundTrip covers spec property 10: ticks_to_ns(ns_to_ticks(n)) must
// be within one tick-in-ns of n.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	numer, denom := Ratio()

	var tickInNs uint64 = 1
	if denom != 0 {
		tickInNs = numer/denom + 1
	}

	for _, ns := range []uint64{0, 1, 1000, 1_000_000, 999_999_999, 20_833_333} {
		ticks := NsToTicks(ns)
		back := TicksToNs(ticks)

		diff := back - ns
		if back < ns {
			diff = ns - back
		}

		if diff > tickInNs {
			t.Fatalf("ns=%d: round trip diff %d exceeds tolerance %d (back=%d)", ns, diff, tickInNs, back)
		}
	}
}

func TestNowTicksMonotonic(t *testing.T) {
	t.Parallel()

	a := NowTicks()
	b := NowTicks()

	if b < a {
		t.Fatalf("NowTicks went backwards: %d then %d", a, b)
	}
}
