// Package hypha is a bit-perfect, low-latency local audio player core:
// a decode -> transcode -> ring buffer -> render callback pipeline with
// no mixer, no floating-point intermediate, and no sample-rate conversion
// when they can be avoided.
package hypha

import (
	"errors"
	"fmt"
)

// BitDepth is the bit depth of a source PCM sample.
type BitDepth uint

// Standard PCM bit depths. 20-bit sources arrive padded into 24-bit
// containers, like the 3-byte packed s24 streams FLAC and WAV both use.
const (
	Depth8  BitDepth = 8
	Depth16 BitDepth = 16
	Depth20 BitDepth = 20
	Depth24 BitDepth = 24
	Depth32 BitDepth = 32
)

// BytesPerSample returns the number of bytes needed to store one sample
// of this depth in its packed wire representation.
func (d BitDepth) BytesPerSample() int {
	switch d {
	case Depth8:
		return 1
	case Depth16:
		return 2
	case Depth20, Depth24:
		return 3
	case Depth32:
		return 4
	default:
		panic(fmt.Sprintf("hypha: BytesPerSample called with unsupported bit depth %d", d))
	}
}

var errUnsupportedBitDepth = errors.New("unsupported bit depth")

// ToBitDepth converts a numeric bit depth to the BitDepth type.
func ToBitDepth(bps uint8) (BitDepth, error) {
	switch BitDepth(bps) {
	case Depth8:
		return Depth8, nil
	case Depth16:
		return Depth16, nil
	case Depth20:
		return Depth20, nil
	case Depth24:
		return Depth24, nil
	case Depth32:
		return Depth32, nil
	default:
		return 0, fmt.Errorf("%d-bit: %w", bps, errUnsupportedBitDepth)
	}
}

// Layout describes how channels are arranged in a buffer of samples.
type Layout uint8

const (
	// Interleaved stores samples as L,R,L,R,... — the only layout the
	// ring buffer and render callback deal in.
	Interleaved Layout = iota
	// NonInterleaved stores one contiguous channel at a time. Only used
	// when describing what a device physically wants; the engine never
	// produces non-interleaved buffers itself.
	NonInterleaved
)

func (l Layout) String() string {
	if l == NonInterleaved {
		return "non-interleaved"
	}

	return "interleaved"
}

// PCMFormat describes the format of raw source PCM audio data as it
// comes out of a decoder, before transcoding to the internal left-aligned
// Int32 representation.
type PCMFormat struct {
	SampleRate int
	BitDepth   BitDepth
	Channels   uint
}

// AudioFormat describes the format negotiated with the output device.
// BitsPerSample describes the *source* depth; the internal representation
// moving through the ring buffer is always left-aligned Int32.
type AudioFormat struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	Layout        Layout
}

// FrameCount returns the number of frames represented by a sample count
// at this format's channel count.
func (f AudioFormat) FrameCount(samples int) int {
	if f.Channels == 0 {
		return 0
	}

	return samples / int(f.Channels)
}
