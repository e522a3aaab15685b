// Package flac implements a streaming decode.Source over FLAC, wrapping
// github.com/mewkiz/flac's per-frame parser: each call to NextPacket
// advances exactly one FLAC frame, so no whole-file buffering is needed.
package flac

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goflac "github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/detect"
	"github.com/mycophonic/hypha/pcmfmt"
)

func init() {
	decode.Register(detect.FLAC, Open)
}

var errBitDepth = errors.New("flac: unsupported bit depth")

// Source pulls one FLAC frame per NextPacket call and interleaves it into
// a reusable scratch buffer.
type Source struct {
	rs     io.ReadSeeker
	stream *goflac.Stream

	sampleRate int
	channels   int
	bitDepth   int
	format     pcmfmt.SourceFormat

	totalSamples int64
	scratch      []byte
}

// Open parses the FLAC STREAMINFO header and returns a Source positioned
// at the first frame.
func Open(rs io.ReadSeeker) (decode.Source, error) {
	stream, err := goflac.New(rs)
	if err != nil {
		return nil, fmt.Errorf("opening flac: %w", err)
	}

	info := stream.Info
	channels := int(info.NChannels)

	format, err := sourceFormatFor(info.BitsPerSample)
	if err != nil {
		stream.Close()

		return nil, fmt.Errorf("%w: %w", errBitDepth, err)
	}

	return &Source{
		rs:           rs,
		stream:       stream,
		sampleRate:   int(info.SampleRate),
		channels:     channels,
		bitDepth:     int(info.BitsPerSample),
		format:       format,
		totalSamples: int64(info.NSamples), //nolint:gosec // fits in int64 for any real track.
	}, nil
}

func sourceFormatFor(bitsPerSample uint8) (pcmfmt.SourceFormat, error) {
	switch bitsPerSample {
	case 8:
		return pcmfmt.S8, nil
	case 16:
		return pcmfmt.S16, nil
	case 24:
		return pcmfmt.S24, nil
	case 32:
		return pcmfmt.S32, nil
	default:
		return 0, fmt.Errorf("%d-bit", bitsPerSample)
	}
}

func (s *Source) Info() decode.Info {
	var duration float64
	if s.sampleRate > 0 {
		duration = float64(s.totalSamples) / float64(s.sampleRate)
	}

	return decode.Info{
		SampleRate:   s.sampleRate,
		Channels:     s.channels,
		BitDepth:     s.bitDepth,
		TotalFrames:  s.totalSamples,
		DurationSecs: duration,
		FormatName:   "FLAC",
		CodecName:    "FLAC",
	}
}

// NextPacket decodes one FLAC frame. Corrupt frames are skipped: a parse
// error on a single frame is swallowed and the next frame is attempted,
// matching the rest of the module's per-frame-skip policy; a run of
// consecutive failures eventually surfaces as io.EOF from the underlying
// stream once the reader itself is exhausted.
func (s *Source) NextPacket() (decode.Packet, error) {
	for {
		audioFrame, err := s.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			return decode.Packet{}, io.EOF
		}

		if err != nil {
			continue
		}

		blockSize := int(audioFrame.BlockSize)
		frameBytes := blockSize * s.channels * bytesPerSampleFor(s.bitDepth)

		if cap(s.scratch) < frameBytes {
			s.scratch = make([]byte, frameBytes)
		} else {
			s.scratch = s.scratch[:frameBytes]
		}

		interleave(s.scratch, audioFrame.Subframes, blockSize, s.channels, s.bitDepth)

		return decode.Packet{
			Data:     s.scratch,
			Format:   s.format,
			Channels: s.channels,
		}, nil
	}
}

func bytesPerSampleFor(bits int) int {
	switch bits {
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

// interleave writes decoded subframe samples into dst as interleaved
// little-endian signed PCM, ported frame-at-a-time from the module's
// original whole-file decoder.
func interleave(dst []byte, subframes []*frame.Subframe, blockSize, nChannels, bits int) {
	pos := 0

	switch bits {
	case 8:
		for i := range blockSize {
			for ch := range nChannels {
				dst[pos] = byte(int8(subframes[ch].Samples[i]))
				pos++
			}
		}
	case 16:
		for i := range blockSize {
			for ch := range nChannels {
				binary.LittleEndian.PutUint16(dst[pos:], uint16(int16(subframes[ch].Samples[i])))
				pos += 2
			}
		}
	case 24:
		for i := range blockSize {
			for ch := range nChannels {
				v := subframes[ch].Samples[i]
				dst[pos] = byte(v)
				dst[pos+1] = byte(v >> 8)
				dst[pos+2] = byte(v >> 16)
				pos += 3
			}
		}
	case 32:
		for i := range blockSize {
			for ch := range nChannels {
				binary.LittleEndian.PutUint32(dst[pos:], uint32(subframes[ch].Samples[i]))
				pos += 4
			}
		}
	}
}

// Seek reopens the stream from the beginning and discards frames until
// the cumulative sample position reaches the target. mewkiz/flac exposes
// no frame index, so this is linear in the number of frames skipped; an
// acceptable cost since seeks are rare, user-initiated events, not part
// of the realtime render path.
func (s *Source) Seek(secs float64) error {
	if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to start: %w", err)
	}

	stream, err := goflac.New(s.rs)
	if err != nil {
		return fmt.Errorf("reopening flac: %w", err)
	}

	s.stream.Close()
	s.stream = stream

	targetSample := int64(secs * float64(s.sampleRate))

	var consumed int64
	for consumed < targetSample {
		audioFrame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			continue
		}

		consumed += int64(audioFrame.BlockSize)
	}

	return nil
}

func (s *Source) Close() error {
	s.stream.Close()

	return nil
}
