// Package wav implements a streaming decode.Source over RIFF WAVE PCM
// files: integer PCM only, 16/24/32-bit, mono or multi-channel.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/detect"
	"github.com/mycophonic/hypha/pcmfmt"
)

func init() {
	decode.Register(detect.WAV, Open)
}

// packetFrames is the frame count pulled from the data chunk per
// NextPacket call, chosen to sit comfortably above a typical callback
// buffer size (512 frames) without growing the scratch allocation much.
const packetFrames = 4096

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

var wavGUIDPCM = [16]byte{
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0xaa, 0x00, 0x38, 0x9b, 0x71,
}

var (
	ErrNotWAV          = errors.New("wav: not a WAV file")
	ErrUnsupportedFmt  = errors.New("wav: unsupported format")
	ErrNoFmtChunk      = errors.New("wav: missing fmt chunk")
	ErrNoDataChunk     = errors.New("wav: missing data chunk")
	ErrInvalidBitDepth = errors.New("wav: invalid bit depth")
)

// Source streams PCM frames directly out of a WAV file's data chunk,
// never materializing the whole track in memory.
type Source struct {
	rs io.ReadSeeker

	sampleRate    int
	channels      int
	bitsPerSample int
	sourceFormat  pcmfmt.SourceFormat

	dataStart int64
	dataSize  int64
	pos       int64 // bytes consumed from the data chunk so far

	blockAlign int
	buf        []byte
}

// Open parses the RIFF/fmt header and positions the reader at the start
// of the data chunk, ready for NextPacket.
func Open(rs io.ReadSeeker) (decode.Source, error) {
	var riffHeader [12]byte
	if _, err := io.ReadFull(rs, riffHeader[:]); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}

	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	s := &Source{rs: rs}

	fmtFound := false

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(rs, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("reading chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if err := s.parseFmtChunk(chunkSize); err != nil {
				return nil, err
			}

			fmtFound = true

		case "data":
			pos, err := rs.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, fmt.Errorf("locating data chunk: %w", err)
			}

			s.dataStart = pos
			s.dataSize = int64(chunkSize)

			if _, err := rs.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skipping data chunk: %w", err)
			}

		default:
			if _, err := rs.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skipping chunk %s: %w", chunkID, err)
			}
		}

		if chunkSize%2 == 1 {
			if _, err := rs.Seek(1, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("seeking past pad byte: %w", err)
			}
		}
	}

	if !fmtFound {
		return nil, ErrNoFmtChunk
	}

	if s.dataSize == 0 {
		return nil, ErrNoDataChunk
	}

	if _, err := rs.Seek(s.dataStart, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to data chunk: %w", err)
	}

	s.blockAlign = s.channels * s.bitsPerSample / 8
	s.buf = make([]byte, packetFrames*s.blockAlign)

	return s, nil
}

func (s *Source) parseFmtChunk(size uint32) error {
	if size < 16 {
		return ErrUnsupportedFmt
	}

	var buf [40]byte

	toRead := min(size, 40)

	if _, err := io.ReadFull(s.rs, buf[:toRead]); err != nil {
		return fmt.Errorf("reading fmt chunk: %w", err)
	}

	if size > 40 {
		if _, err := s.rs.Seek(int64(size-40), io.SeekCurrent); err != nil {
			return fmt.Errorf("skipping fmt chunk tail: %w", err)
		}
	}

	audioFormat := binary.LittleEndian.Uint16(buf[0:2])
	channels := binary.LittleEndian.Uint16(buf[2:4])
	sampleRate := binary.LittleEndian.Uint32(buf[4:8])
	bitsPerSample := binary.LittleEndian.Uint16(buf[14:16])

	switch audioFormat {
	case wavFormatPCM:
	case wavFormatExtensible:
		if size < 40 {
			return ErrUnsupportedFmt
		}

		var subFormat [16]byte
		copy(subFormat[:], buf[24:40])

		if subFormat != wavGUIDPCM {
			return ErrUnsupportedFmt
		}
	case wavFormatIEEEFloat:
		return ErrUnsupportedFmt
	default:
		return ErrUnsupportedFmt
	}

	s.sampleRate = int(sampleRate)
	s.channels = int(channels)

	switch bitsPerSample {
	case 16:
		s.sourceFormat = pcmfmt.S16
	case 24:
		s.sourceFormat = pcmfmt.S24
	case 32:
		s.sourceFormat = pcmfmt.S32
	default:
		return fmt.Errorf("%w: %d", ErrInvalidBitDepth, bitsPerSample)
	}

	s.bitsPerSample = int(bitsPerSample)

	return nil
}

func (s *Source) Info() decode.Info {
	frames := s.dataSize / int64(s.blockAlign)

	return decode.Info{
		SampleRate:   s.sampleRate,
		Channels:     s.channels,
		BitDepth:     s.bitsPerSample,
		TotalFrames:  frames,
		DurationSecs: float64(frames) / float64(s.sampleRate),
		FormatName:   "WAV",
		CodecName:    "PCM",
	}
}

func (s *Source) NextPacket() (decode.Packet, error) {
	remaining := s.dataSize - s.pos
	if remaining <= 0 {
		return decode.Packet{}, io.EOF
	}

	want := int64(len(s.buf))
	if remaining < want {
		want = remaining
	}

	// Clamp to a whole number of frames so the transcoder never splits a
	// sample across packet boundaries.
	want -= want % int64(s.blockAlign)
	if want == 0 {
		return decode.Packet{}, io.EOF
	}

	n, err := io.ReadFull(s.rs, s.buf[:want])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return decode.Packet{}, fmt.Errorf("reading data chunk: %w", err)
	}

	s.pos += int64(n)

	return decode.Packet{
		Data:     s.buf[:n],
		Format:   s.sourceFormat,
		Channels: s.channels,
	}, nil
}

func (s *Source) Seek(secs float64) error {
	frame := int64(secs * float64(s.sampleRate))
	byteOffset := frame * int64(s.blockAlign)

	if byteOffset < 0 {
		byteOffset = 0
	}

	if byteOffset > s.dataSize {
		byteOffset = s.dataSize
	}

	if _, err := s.rs.Seek(s.dataStart+byteOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking: %w", err)
	}

	s.pos = byteOffset

	return nil
}

func (s *Source) Close() error {
	if closer, ok := s.rs.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
