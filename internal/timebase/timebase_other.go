//go:build !darwin

package timebase

import "time"

// platformRatio on non-Darwin platforms reports a 1:1 ratio: Go's
// monotonic clock (read through time.Since on a process-start time) is
// already nanosecond-resolution, so ticks and nanoseconds coincide. This
// keeps every pacing computation in the decoder worker and output layer
// parameterized by ns_per_sample rather than hard-coded to a single
// platform's clock, per the portability note in the design.
func platformRatio() (uint64, uint64) {
	return 1, 1
}

// monoStart anchors platformNowTicks: time.Since uses the monotonic
// reading time.Now records, so ticks count nanoseconds since process start
// and never jump with wall-clock adjustments.
var monoStart = time.Now()

func platformNowTicks() uint64 {
	return uint64(time.Since(monoStart))
}
