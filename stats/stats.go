// Package stats holds the two realtime counters the render callback
// maintains: samples played and underrun count. Each sits alone on a
// cache line so the callback's fetch-adds never contend with a reader on
// the control thread.
package stats

import "sync/atomic"

const cacheLineSize = 128

type paddedCounter struct {
	v atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// Playback holds the two counters. Mutated only by the audio callback;
// read by control-plane/UI glue. All operations use relaxed-equivalent
// atomics (Go's atomic package doesn't expose ordering modes narrower
// than sequential consistency, which is a strictly stronger, still
// correct, substitute here since stats are advisory-only consumers).
type Playback struct {
	samplesPlayed paddedCounter
	underruns     paddedCounter
}

// New creates a zeroed stats block.
func New() *Playback {
	return &Playback{}
}

// AddSamplesPlayed increments the samples-played counter by n. Called
// from the render callback only.
func (p *Playback) AddSamplesPlayed(n uint64) {
	p.samplesPlayed.v.Add(n)
}

// RecordUnderrun increments the underrun counter by one. Called from the
// render callback only, once per callback invocation that came up short.
func (p *Playback) RecordUnderrun() {
	p.underruns.v.Add(1)
}

// SamplesPlayed returns the current samples-played count.
func (p *Playback) SamplesPlayed() uint64 {
	return p.samplesPlayed.v.Load()
}

// Underruns returns the current underrun count.
func (p *Playback) Underruns() uint64 {
	return p.underruns.v.Load()
}

// Reset zeroes both counters. Only safe when the callback is known
// quiescent (between tracks).
func (p *Playback) Reset() {
	p.samplesPlayed.v.Store(0)
	p.underruns.v.Store(0)
}

// Snapshot is an immutable point-in-time read of both counters plus
// derived values supplied by the caller (buffer fill ratio, position).
type Snapshot struct {
	SamplesPlayed uint64
	Underruns     uint64
	FillRatio     float64
	PositionSecs  float64
}
