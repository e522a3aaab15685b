// Package pcmfmt converts between packed wire PCM and the engine's
// internal representation: a signed 32-bit integer left-aligned so that
// the source's most significant bit always sits in bit 31, regardless of
// source depth. A 16-bit source value v is stored as v<<16, a 24-bit v as
// v<<8, a 32-bit v unchanged. Unsigned sources are rebiased to signed
// before shifting; floating point sources are clamped to [-1, 1] and
// scaled by math.MaxInt32.
package pcmfmt

import (
	"errors"
	"fmt"
	"math"
)

// SourceFormat identifies the on-disk sample encoding a packet carries.
type SourceFormat uint8

const (
	S8 SourceFormat = iota
	S16
	S24
	S32
	U8
	U16
	U24
	U32
	F32
	F64
)

var errUnsupportedSourceFormat = errors.New("pcmfmt: unsupported source format")

// BitsPerSample reports the bit depth implied by the format.
func (f SourceFormat) BitsPerSample() int {
	switch f {
	case S8, U8:
		return 8
	case S16, U16:
		return 16
	case S24, U24:
		return 24
	case S32, U32, F32:
		return 32
	case F64:
		return 64
	default:
		return 0
	}
}

// DecodeBytes treats raw as little-endian packed signed PCM at the given
// bit depth (16, 24, or 32) and writes left-aligned Int32 samples into
// out, returning the number of samples written.
//
// 24-bit samples are recomposed from three bytes and sign-extended with
// a shift trick (pack into the top three bytes of a 32-bit word, then an
// arithmetic right shift by 8) rather than the naive b0|b1<<8|b2<<16,
// which loses the sign bit for negative values.
func DecodeBytes(raw []byte, bitsPerSample int, out []int32) (int, error) {
	bytesPerSample := bytesPerSampleFor(bitsPerSample)
	if bytesPerSample == 0 {
		return 0, fmt.Errorf("%w: %d-bit", errUnsupportedSourceFormat, bitsPerSample)
	}

	count := min(len(raw)/bytesPerSample, len(out))

	switch bitsPerSample {
	case 16:
		for i := range count {
			v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
			out[i] = int32(v) << 16
		}
	case 24:
		for i := range count {
			b0, b1, b2 := raw[i*3], raw[i*3+1], raw[i*3+2]
			packed := int32(uint32(b0)<<8 | uint32(b1)<<16 | uint32(b2)<<24)
			out[i] = (packed >> 8) << 8
		}
	case 32:
		for i := range count {
			v := int32(uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24)
			out[i] = v
		}
	default:
		return 0, fmt.Errorf("%w: %d-bit", errUnsupportedSourceFormat, bitsPerSample)
	}

	return count, nil
}

// EncodeBytes is the inverse of DecodeBytes: it packs left-aligned Int32
// samples into little-endian bytes at the requested bit depth.
func EncodeBytes(samples []int32, bitsPerSample int, out []byte) (int, error) {
	bytesPerSample := bytesPerSampleFor(bitsPerSample)
	if bytesPerSample == 0 {
		return 0, fmt.Errorf("%w: %d-bit", errUnsupportedSourceFormat, bitsPerSample)
	}

	count := min(len(out)/bytesPerSample, len(samples))

	switch bitsPerSample {
	case 16:
		for i := range count {
			v := int16(samples[i] >> 16)
			out[i*2] = byte(v)
			out[i*2+1] = byte(v >> 8)
		}
	case 24:
		for i := range count {
			v := samples[i] >> 8
			out[i*3] = byte(v)
			out[i*3+1] = byte(v >> 8)
			out[i*3+2] = byte(v >> 16)
		}
	case 32:
		for i := range count {
			v := uint32(samples[i])
			out[i*4] = byte(v)
			out[i*4+1] = byte(v >> 8)
			out[i*4+2] = byte(v >> 16)
			out[i*4+3] = byte(v >> 24)
		}
	default:
		return 0, fmt.Errorf("%w: %d-bit", errUnsupportedSourceFormat, bitsPerSample)
	}

	return count, nil
}

func bytesPerSampleFor(bitsPerSample int) int {
	switch bitsPerSample {
	case 8:
		return 1
	case 16:
		return 2
	case 24:
		return 3
	case 32:
		return 4
	default:
		return 0
	}
}

// TranscodePacket converts a raw source packet of the given format into
// interleaved left-aligned Int32 samples, writing into out and returning
// the number of samples written. Unsigned sources are rebiased by
// subtracting the midpoint before the left shift; floating point sources
// are clamped to [-1, 1] and scaled by math.MaxInt32.
//
// For S16 sources (any channel count), a paired-lane path assembles two
// int16 samples from four bytes into one 32-bit word and shifts/stores
// them together; a scalar step handles an odd trailing sample. Every other
// format (S8, S24, S32, the unsigned and float formats) takes a scalar
// loop only.
func TranscodePacket(format SourceFormat, src []byte, out []int32) (int, error) {
	switch format {
	case S8:
		return decodeSigned8(src, out)
	case S16:
		return decodeSigned16(src, out)
	case S24:
		return decodeSigned24(src, out)
	case S32:
		return decodeSigned32(src, out)
	case U8:
		return decodeUnsigned8(src, out)
	case U16:
		return decodeUnsigned16(src, out)
	case U24:
		return decodeUnsigned24(src, out)
	case U32:
		return decodeUnsigned32(src, out)
	case F32:
		return decodeFloat32(src, out)
	case F64:
		return decodeFloat64(src, out)
	default:
		return 0, fmt.Errorf("%w: %d", errUnsupportedSourceFormat, format)
	}
}

func decodeSigned8(src []byte, out []int32) (int, error) {
	count := min(len(src), len(out))
	for i := range count {
		out[i] = int32(int8(src[i])) << 24
	}

	return count, nil
}

func decodeSigned16(src []byte, out []int32) (int, error) {
	count := min(len(src)/2, len(out))

	// Paired-lane fast path: two samples per 32-bit word load.
	pairs := count / 2
	for p := range pairs {
		i := p * 2
		word := uint32(src[i*2]) | uint32(src[i*2+1])<<8 | uint32(src[i*2+2])<<16 | uint32(src[i*2+3])<<24
		out[i] = int32(int16(word)) << 16
		out[i+1] = int32(int16(word>>16)) << 16
	}

	for i := pairs * 2; i < count; i++ {
		v := int16(uint16(src[i*2]) | uint16(src[i*2+1])<<8)
		out[i] = int32(v) << 16
	}

	return count, nil
}

func decodeSigned24(src []byte, out []int32) (int, error) {
	count := min(len(src)/3, len(out))

	for i := range count {
		b0, b1, b2 := src[i*3], src[i*3+1], src[i*3+2]
		packed := int32(uint32(b0)<<8 | uint32(b1)<<16 | uint32(b2)<<24)
		out[i] = (packed >> 8) << 8
	}

	return count, nil
}

func decodeSigned32(src []byte, out []int32) (int, error) {
	count := min(len(src)/4, len(out))

	for i := range count {
		out[i] = int32(uint32(src[i*4]) | uint32(src[i*4+1])<<8 | uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24)
	}

	return count, nil
}

func decodeUnsigned8(src []byte, out []int32) (int, error) {
	count := min(len(src), len(out))
	for i := range count {
		out[i] = (int32(src[i]) - 0x80) << 24
	}

	return count, nil
}

func decodeUnsigned16(src []byte, out []int32) (int, error) {
	count := min(len(src)/2, len(out))

	for i := range count {
		v := int32(uint16(src[i*2])|uint16(src[i*2+1])<<8) - 0x8000
		out[i] = v << 16
	}

	return count, nil
}

func decodeUnsigned24(src []byte, out []int32) (int, error) {
	count := min(len(src)/3, len(out))

	for i := range count {
		b0, b1, b2 := src[i*3], src[i*3+1], src[i*3+2]
		u := int32(uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16)
		out[i] = (u - 0x800000) << 8
	}

	return count, nil
}

func decodeUnsigned32(src []byte, out []int32) (int, error) {
	count := min(len(src)/4, len(out))

	for i := range count {
		v := int64(uint32(src[i*4])|uint32(src[i*4+1])<<8|uint32(src[i*4+2])<<16|uint32(src[i*4+3])<<24) - 0x80000000
		out[i] = int32(v)
	}

	return count, nil
}

func decodeFloat32(src []byte, out []int32) (int, error) {
	count := min(len(src)/4, len(out))

	for i := range count {
		bits := uint32(src[i*4]) | uint32(src[i*4+1])<<8 | uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24
		out[i] = clampScale(float64(math.Float32frombits(bits)))
	}

	return count, nil
}

func decodeFloat64(src []byte, out []int32) (int, error) {
	count := min(len(src)/8, len(out))

	for i := range count {
		var bits uint64
		for b := range 8 {
			bits |= uint64(src[i*8+b]) << (8 * b)
		}

		out[i] = clampScale(math.Float64frombits(bits))
	}

	return count, nil
}

func clampScale(f float64) int32 {
	switch {
	case f > 1.0:
		f = 1.0
	case f < -1.0:
		f = -1.0
	}

	return int32(f * math.MaxInt32)
}
