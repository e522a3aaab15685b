package alac

import "errors"

// Bitstream and frame-level errors. These surface from DecodePacket and
// describe a single access unit; decode.Source treats most of them as
// "skip this packet" rather than a file-level failure. errUnsupportedElement
// is the one exception: it means this decoder doesn't implement CCE/PCE at
// all, not that one packet was corrupt, so Source propagates it instead of
// skipping (see IsUnsupportedElement).
var (
	errUnsupportedElement = errors.New("alac: unsupported element type (CCE/PCE)")
	errInvalidHeader      = errors.New("alac: invalid frame header")
	errInvalidShift       = errors.New("alac: invalid bytesShifted value")
	errBitstreamOverrun   = errors.New("alac: bitstream overrun")
	errSampleOverrun      = errors.New("alac: sample count exceeds buffer")
	errBitDepth           = errors.New("alac: unsupported bit depth")
)

// Magic cookie / ALACSpecificConfig errors, from ParseConfig.
var (
	errInvalidCookie      = errors.New("alac: invalid magic cookie")
	errUnsupportedVersion = errors.New("alac: unsupported compatible version")
)

// MP4 container box-walk errors, from Open and its sample-table helpers.
// These are always file-level: a missing or malformed box means the file
// can't be played at all, not that one sample is bad.
var (
	errNoALACTrack   = errors.New("alac: no ALAC track found in container")
	errNoChunkOffset = errors.New("alac: no chunk offset box (stco/co64)")
	errInvalidCo64   = errors.New("alac: invalid co64 payload")
	errNoStsc        = errors.New("alac: no stsc box")
	errInvalidStsc   = errors.New("alac: invalid stsc payload")
	errNoStsz        = errors.New("alac: no stsz box")
	errInvalidStsz   = errors.New("alac: invalid stsz payload")
)

// IsUnsupportedElement reports whether err is (or wraps) the error
// DecodePacket returns for a CCE or PCE syntax element. Source uses this to
// distinguish "this file needs a decoder feature we don't have" — a hard,
// file-level failure — from ordinary single-packet corruption, which it
// skips and keeps playing past.
func IsUnsupportedElement(err error) bool {
	return errors.Is(err, errUnsupportedElement)
}
