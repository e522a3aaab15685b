// Package timebase converts between the platform's monotonic tick
// counter and nanoseconds, caching the numerator/denominator ratio on
// first use. That cached ratio (plus, on non-Darwin builds, the start
// time the tick counter counts from) is the only process-wide state this
// module introduces.
package timebase

import "sync"

var (
	once        sync.Once
	numer       uint64
	denom       uint64
)

func ensureInit() {
	once.Do(func() {
		numer, denom = platformRatio()
	})
}

// NowTicks returns the current platform monotonic tick count.
func NowTicks() uint64 {
	return platformNowTicks()
}

// TicksToNs converts a duration in platform ticks to nanoseconds. The
// multiplication is ordered (ticks*numer first, then /denom) so that for
// any period under 1 second and any ratio up to 125/3 (the widest
// numer/denom CoreAudio reports), the intermediate product does not
// overflow 64 bits.
func TicksToNs(ticks uint64) uint64 {
	ensureInit()

	if denom == 0 {
		return ticks
	}

	return ticks * numer / denom
}

// NsToTicks is the inverse of TicksToNs.
func NsToTicks(ns uint64) uint64 {
	ensureInit()

	if numer == 0 {
		return ns
	}

	return ns * denom / numer
}

// Ratio returns the cached numerator/denominator pair, mostly useful for
// diagnostics and tests.
func Ratio() (uint64, uint64) {
	ensureInit()

	return numer, denom
}
