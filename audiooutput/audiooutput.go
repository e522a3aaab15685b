// Package audiooutput defines the OS-output contract the engine drives
// and the dispatch between the two concrete backends: coreaudio (darwin,
// direct AUHAL access, bit-perfect) and otoout (any OS, mixer-routed,
// never bit-perfect). Only this package and its two subpackages know
// about device handles; the engine only ever sees the Service interface.
package audiooutput

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha"
	"github.com/mycophonic/hypha/ring"
	"github.com/mycophonic/hypha/stats"
)

// NopLogger is the default logger both backends fall back to when no
// WithLogger option is supplied: library use without explicit
// configuration stays silent, matching the teacher CLI's quiet-by-default
// posture.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// DeviceInfo describes one physical or virtual output device.
type DeviceInfo struct {
	ID                   uint32
	Name                 string
	SupportedSampleRates []float64
	CurrentSampleRate    float64
	IsBluetooth          bool
}

// Config mirrors spec.md's OutputConfig, with the exact documented
// defaults restored by DefaultConfig.
type Config struct {
	SampleRate     uint32
	BufferFrames   uint32
	ExclusiveMode  bool
	IntegerMode    bool
	UseHAL         bool
	DeviceID       *uint32
}

// DefaultConfig returns spec.md's stated defaults: 48000/512/true/true/true/nil.
func DefaultConfig() Config {
	return Config{
		SampleRate:    48000,
		BufferFrames:  512,
		ExclusiveMode: true,
		IntegerMode:   true,
		UseHAL:        true,
	}
}

// FormatMode records which wire format the render callback ended up
// emitting. Only Int32 and Int24 are bit-perfect; Float32 always implies
// some lossy rescale happened upstream in the OS mixer or in our own
// dither step.
type FormatMode int

const (
	Float32 FormatMode = iota
	Int32
	Int24
)

func (m FormatMode) String() string {
	switch m {
	case Int32:
		return "int32"
	case Int24:
		return "int24"
	default:
		return "float32"
	}
}

var (
	ErrNoDefaultDevice       = errors.New("audiooutput: no default output device")
	ErrSampleRateNotSupported = errors.New("audiooutput: sample rate not supported")
	ErrInvalidState          = errors.New("audiooutput: invalid state for this operation")
	ErrNoAudioComponent      = errors.New("audiooutput: no audio component found")
	ErrNotImplemented        = errors.New("audiooutput: not implemented on this platform")
)

// Service is the interface both backends (coreaudio, otoout) satisfy.
// The Engine never sees anything more specific than this: dynamic
// dispatch is confined to this one seam, per the "dispatch only at the
// edges" design note.
type Service interface {
	// Start begins pulling samples from ringBuf through the render path
	// negotiated for format, recording progress into playStats.
	Start(format hypha.AudioFormat, ringBuf *ring.Buffer[int32], playStats *stats.Playback) error
	Pause() error
	Resume() error
	// Stop tears the backend down. Idempotent.
	Stop() error
	IsRunning() bool
	IsPaused() bool
	// ActualFormat is the format actually negotiated with the device,
	// which may differ in SampleRate from what Start was called with if
	// the device required a different rate.
	ActualFormat() hypha.AudioFormat
	// IsBitPerfect reports whether the currently active path avoids any
	// lossy conversion for a source at srcRate.
	IsBitPerfect(srcRate uint32) bool
}

// SelectOptimalSampleRate implements spec.md §4.6 step 2's three-tier
// policy: exact match, then integer-division within the same 44.1k/48k
// family (e.g. 96000 -> 48000), then nearest-preferring->=requested.
// Shared between backends (otoout has nothing to negotiate against but
// a real input device could still offer multiple rates).
func SelectOptimalSampleRate(requested float64, supported []float64) float64 {
	if len(supported) == 0 {
		return requested
	}

	for _, rate := range supported {
		if abs(rate-requested) < 1.0 {
			return rate
		}
	}

	families := [][]float64{
		{44100, 88200, 176400},
		{48000, 96000, 192000},
	}

	var family []float64
	switch {
	case fracNear(requested/44100.0):
		family = families[0]
	case fracNear(requested/48000.0):
		family = families[1]
	}

	if family != nil {
		for i := len(family) - 1; i >= 0; i-- {
			rate := family[i]
			if rate > requested+1.0 {
				continue
			}

			for _, sr := range supported {
				if abs(sr-rate) < 1.0 {
					return sr
				}
			}
		}
	}

	best := supported[0]
	bestDiff := abs(best - requested)

	for _, rate := range supported {
		diff := abs(rate - requested)
		if diff < bestDiff && (rate >= requested || best < requested) {
			best = rate
			bestDiff = diff
		}
	}

	return best
}

func fracNear(x float64) bool {
	frac := x - float64(int64(x))
	if frac < 0 {
		frac = -frac
	}

	return frac < 0.01
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}

// ErrorFor wraps a platform status code the way both backends report
// hard failures to the engine.
func ErrorFor(op string, status int32) error {
	return fmt.Errorf("audiooutput: %s failed with status %d", op, status)
}
