// Package decode defines the pull-based streaming contract between a
// codec backend and the engine: open a file, read its metadata, then
// pull successive packets of raw PCM until EOF. Per-format packages
// (decode/flac, decode/wav, decode/mp3, decode/vorbis, decode/alac,
// decode/aac) implement Source; Adapter turns a Source into the
// exact-n-samples stream the decoder worker consumes.
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/mycophonic/hypha/detect"
	"github.com/mycophonic/hypha/pcmfmt"
)

// Info is the metadata exposed once a file is opened.
type Info struct {
	SampleRate   int
	Channels     int
	BitDepth     int // 0 if the source format has no fixed integer depth (e.g. Vorbis/MP3 internal float)
	TotalFrames  int64
	DurationSecs float64
	FormatName   string
	CodecName    string
}

// Packet is one decoded unit of audio: raw bytes in SourceFormat, carrying
// its own channel count (normally equal to the stream's, but kept
// per-packet since some containers can change it mid-stream in theory).
type Packet struct {
	Data     []byte
	Format   pcmfmt.SourceFormat
	Channels int
}

// ErrSeekUnsupported is returned by Source.Seek for codecs this module
// cannot seek in (MP3, Vorbis, AAC) — an explicit non-goal, not a regression,
// since the realtime playback path never seeks.
var ErrSeekUnsupported = errors.New("decode: seek not supported for this codec")

// Source is the pull-based decoder backend contract of spec §6.1.
type Source interface {
	Info() Info
	// NextPacket returns the next decoded packet, io.EOF when the stream
	// is exhausted, or a wrapped error for a file-level failure.
	// Per-packet corruption is the implementation's responsibility to
	// skip internally and continue rather than surface.
	NextPacket() (Packet, error)
	Seek(secs float64) error
	Close() error
}

var (
	errUnsupportedFormat = errors.New("decode: unsupported audio format")
	errNoAudioTrack      = errors.New("decode: no audio track found")
)

// IsUnsupportedFormat and IsNoAudioTrack expose the two sentinels as
// errors.Is predicates; the underlying sentinels stay unexported so callers always
// go through errors.Is rather than comparing values directly.
func IsUnsupportedFormat(err error) bool { return errors.Is(err, errUnsupportedFormat) }
func IsNoAudioTrack(err error) bool      { return errors.Is(err, errNoAudioTrack) }

// OpenFunc constructs a Source from an opened file handle.
type OpenFunc func(io.ReadSeeker) (Source, error)

// registry maps detect.Codec to the constructor for that codec's Source.
// Populated by each decode/<format> package's init(), mirroring the
// teacher's cmd/saprobe/decode.go switch but inverted into a registration
// so decode itself never imports the leaf packages (which would create an
// import cycle, since leaf packages import decode for the Source/Packet
// types).
var registry = map[detect.Codec]OpenFunc{}

// Register associates a codec with a Source constructor. Called from the
// init() of each decode/<format> package.
func Register(codec detect.Codec, fn OpenFunc) {
	registry[codec] = fn
}

// Open identifies the codec of rs and constructs the matching Source.
func Open(rs io.ReadSeeker) (Source, detect.Codec, error) {
	codec, err := detect.Identify(rs)
	if err != nil {
		return nil, detect.Unknown, fmt.Errorf("identifying codec: %w", err)
	}

	fn, ok := registry[codec]
	if !ok {
		return nil, codec, fmt.Errorf("%s: %w", codec, errUnsupportedFormat)
	}

	src, err := fn(rs)
	if err != nil {
		return nil, codec, err
	}

	return src, codec, nil
}
