package aac

import (
	"fmt"
	"io"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/detect"
	"github.com/mycophonic/hypha/pcmfmt"
)

func init() {
	decode.Register(detect.AAC, Open)
}

const packetFrames = 4096

// Source serves pre-decoded 16-bit PCM out of memory, decoded eagerly in
// Open by the platform-specific decodeWholeFile.
type Source struct {
	sampleRate int
	channels   int
	pcm        []byte
	pos        int
}

// Open reads the whole M4A/AAC stream and decodes it via decodeWholeFile
// (CoreAudio on darwin with the with_aac tag, ErrNotSupported otherwise).
func Open(rs io.ReadSeeker) (decode.Source, error) {
	data, err := io.ReadAll(rs)
	if err != nil {
		return nil, fmt.Errorf("aac: reading input: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("aac: empty input")
	}

	pcm, sampleRate, channels, err := decodeWholeFile(data)
	if err != nil {
		return nil, err
	}

	return &Source{sampleRate: sampleRate, channels: channels, pcm: pcm}, nil
}

func (s *Source) Info() decode.Info {
	blockAlign := s.channels * 2
	var frames int64
	if blockAlign > 0 {
		frames = int64(len(s.pcm) / blockAlign)
	}

	var duration float64
	if s.sampleRate > 0 {
		duration = float64(frames) / float64(s.sampleRate)
	}

	return decode.Info{
		SampleRate:   s.sampleRate,
		Channels:     s.channels,
		BitDepth:     16,
		TotalFrames:  frames,
		DurationSecs: duration,
		FormatName:   "M4A",
		CodecName:    "AAC",
	}
}

func (s *Source) NextPacket() (decode.Packet, error) {
	blockAlign := s.channels * 2
	want := packetFrames * blockAlign

	remaining := len(s.pcm) - s.pos
	if remaining <= 0 {
		return decode.Packet{}, io.EOF
	}

	if want > remaining {
		want = remaining
	}

	data := s.pcm[s.pos : s.pos+want]
	s.pos += want

	return decode.Packet{Data: data, Format: pcmfmt.S16, Channels: s.channels}, nil
}

func (s *Source) Seek(secs float64) error {
	return fmt.Errorf("aac seek to %.3fs: %w", secs, decode.ErrSeekUnsupported)
}

func (s *Source) Close() error {
	return nil
}
