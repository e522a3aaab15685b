package alac

import (
	"encoding/binary"
	"fmt"
)

// Config is an ALACSpecificConfig: the per-track decode parameters an M4A
// container stores in its magic cookie (the 'alac' sample description's
// codec-private bytes). alac.Open reads one of these per track before it
// can construct a Decoder for it.
type Config struct {
	FrameLength   uint32
	BitDepth      uint8
	NumChannels   uint8
	PB            uint8
	MB            uint8
	KB            uint8
	MaxRun        uint16
	MaxFrameBytes uint32
	AvgBitRate    uint32
	SampleRate    uint32
}

// configSize is the fixed, un-atomized ALACSpecificConfig payload: a
// 4-byte frame length, a one-byte compatible version, five one-byte fields
// (bit depth, pb, mb, kb, channel count), a 2-byte max run, and 4-byte max
// frame bytes, average bit rate and sample rate, all big-endian. It never
// varies across encoders or bit depths.
const configSize = 24

const (
	// frmaHeaderSize is [size:4][type:'frma'][format:'alac'], the legacy
	// format-description atom some muxers wrap the cookie in.
	frmaHeaderSize = 12
	// alacAtomHeaderSize is [size:4][type:'alac'][version:4], the legacy
	// atom wrapper some muxers put around the bare config payload.
	alacAtomHeaderSize = 12
)

// ParseConfig extracts an ALACSpecificConfig from a magic cookie, first
// stripping whichever legacy atom wrappers are present. Modern cookies
// (as abema/go-mp4 hands them back from an 'alac' sample entry) are
// already bare; older QuickTime-style files wrap the payload in a 'frma'
// atom, an 'alac' atom, or both.
func ParseConfig(cookie []byte) (Config, error) {
	data := stripLegacyAtoms(cookie)

	if len(data) < configSize {
		return Config{}, errInvalidCookie
	}

	compatibleVersion := data[4]
	if compatibleVersion > 0 {
		return Config{}, fmt.Errorf("%w: %d", errUnsupportedVersion, compatibleVersion)
	}

	return Config{
		FrameLength:   binary.BigEndian.Uint32(data[0:4]),
		BitDepth:      data[5],
		PB:            data[6],
		MB:            data[7],
		KB:            data[8],
		NumChannels:   data[9],
		MaxRun:        binary.BigEndian.Uint16(data[10:12]),
		MaxFrameBytes: binary.BigEndian.Uint32(data[12:16]),
		AvgBitRate:    binary.BigEndian.Uint32(data[16:20]),
		SampleRate:    binary.BigEndian.Uint32(data[20:24]),
	}, nil
}

// stripLegacyAtoms removes a leading 'frma' atom and/or 'alac' atom header
// from cookie, returning the bare ALACSpecificConfig payload underneath.
// Both wrappers are optional and independent, so either, both, or neither
// may be present; each is recognized purely by its FourCC at offset 4,
// without trusting its declared size field.
func stripLegacyAtoms(cookie []byte) []byte {
	data := cookie

	if len(data) >= frmaHeaderSize && data[4] == 'f' && data[5] == 'r' && data[6] == 'm' && data[7] == 'a' {
		data = data[frmaHeaderSize:]
	}

	if len(data) >= alacAtomHeaderSize && data[4] == 'a' && data[5] == 'l' && data[6] == 'a' && data[7] == 'c' {
		data = data[alacAtomHeaderSize:]
	}

	return data
}
