// Package mp3 implements a streaming decode.Source over MPEG-1 Layer III
// using go-mp3, a pure-Go decoder. Output is always 16-bit stereo PCM at
// the source sample rate; LAME gapless metadata (encoder delay and
// padding) is trimmed from the stream edges when present.
package mp3

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/detect"
	"github.com/mycophonic/hypha/pcmfmt"
)

func init() {
	decode.Register(detect.MP3, Open)
}

const (
	channels       = 2 // go-mp3 always decodes to stereo
	bytesPerSample = 2
	bytesPerFrame  = channels * bytesPerSample

	samplesPerFrame = 1152
	decoderDelay    = 529

	readChunk = 32 * 1024
)

type gaplessInfo struct {
	delay      int
	padding    int
	hasXINGTag bool
}

// Source pulls fixed-size chunks from go-mp3's streaming Read and trims
// the LAME encoder delay/padding as the edges pass through.
type Source struct {
	decoder *gomp3.Decoder

	sampleRate int

	startSkipBytes int
	endTrimBytes   int // bytes to withhold from the very end, once known
	totalBytes     int // 0 if unknown

	rawConsumed int // bytes pulled from decoder.Read so far, pre-trim
	skipped     bool

	chunk []byte
}

// Open parses LAME gapless metadata, then opens the go-mp3 decoder.
func Open(rs io.ReadSeeker) (decode.Source, error) {
	gapless := parseGaplessInfo(rs)

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to start: %w", err)
	}

	decoder, err := gomp3.NewDecoder(rs)
	if err != nil {
		return nil, fmt.Errorf("creating mp3 decoder: %w", err)
	}

	s := &Source{
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		chunk:      make([]byte, readChunk),
		totalBytes: decoder.Length(),
	}

	if gapless.delay != 0 || gapless.padding != 0 || gapless.hasXINGTag {
		startSamples := gapless.delay + decoderDelay
		if gapless.hasXINGTag {
			startSamples += samplesPerFrame
		}

		endSamples := max(gapless.padding-decoderDelay, 0)

		s.startSkipBytes = startSamples * bytesPerFrame
		s.endTrimBytes = endSamples * bytesPerFrame
	}

	return s, nil
}

func (s *Source) Info() decode.Info {
	var (
		totalFrames int64
		duration    float64
	)

	if s.totalBytes > 0 {
		usable := s.totalBytes - s.startSkipBytes - s.endTrimBytes
		if usable > 0 {
			totalFrames = int64(usable / bytesPerFrame)
			duration = float64(totalFrames) / float64(s.sampleRate)
		}
	}

	return decode.Info{
		SampleRate:   s.sampleRate,
		Channels:     channels,
		BitDepth:     16,
		TotalFrames:  totalFrames,
		DurationSecs: duration,
		FormatName:   "MP3",
		CodecName:    "MPEG-1 Layer III",
	}
}

func (s *Source) NextPacket() (decode.Packet, error) {
	for {
		n, err := s.decoder.Read(s.chunk)

		data := s.chunk[:n]
		chunkStart := s.rawConsumed
		s.rawConsumed += n

		// Trim the encoder-delay prefix: drop bytes until we've consumed
		// startSkipBytes of raw decoder output.
		if chunkStart < s.startSkipBytes {
			skip := s.startSkipBytes - chunkStart
			if skip >= len(data) {
				data = data[:0]
			} else {
				data = data[skip:]
			}
		}

		// Trim the padding suffix once the total length is known.
		if s.totalBytes > 0 {
			limit := s.totalBytes - s.endTrimBytes
			if s.rawConsumed > limit {
				over := s.rawConsumed - limit
				if over >= len(data) {
					data = data[:0]
				} else {
					data = data[:len(data)-over]
				}
			}
		}

		if errors.Is(err, io.EOF) {
			if len(data) == 0 {
				return decode.Packet{}, io.EOF
			}

			return decode.Packet{Data: data, Format: pcmfmt.S16, Channels: channels}, nil
		}

		if err != nil {
			return decode.Packet{}, fmt.Errorf("decoding mp3: %w", err)
		}

		if len(data) == 0 {
			// Entirely trimmed chunk (can happen during the gapless delay
			// skip); pull the next one rather than returning an empty packet.
			continue
		}

		return decode.Packet{Data: data, Format: pcmfmt.S16, Channels: channels}, nil
	}
}

// Seek is unsupported: go-mp3's Decoder exposes no frame-accurate seek
// and MP3's variable bitrate framing makes byte-offset seeking lossy.
// The realtime playback path never calls Seek on a live mp3.Source.
func (s *Source) Seek(secs float64) error {
	return fmt.Errorf("mp3 seek to %.3fs: %w", secs, decode.ErrSeekUnsupported)
}

func (s *Source) Close() error {
	return nil
}

func parseGaplessInfo(rs io.ReadSeeker) gaplessInfo {
	id3Size := skipID3v2(rs)
	if id3Size < 0 {
		return gaplessInfo{}
	}

	header := make([]byte, 4096)

	n, err := rs.Read(header)
	if err != nil || n < 256 {
		return gaplessInfo{}
	}

	header = header[:n]

	syncPos := findSyncWord(header)
	if syncPos < 0 || syncPos+4 > len(header) {
		return gaplessInfo{}
	}

	frameHeader := header[syncPos : syncPos+4]
	sideInfoSize := getSideInfoSize(frameHeader)

	if sideInfoSize < 0 {
		return gaplessInfo{}
	}

	xingOffset := syncPos + 4 + sideInfoSize
	if xingOffset+120 > len(header) {
		return gaplessInfo{}
	}

	xingData := header[xingOffset:]
	if !bytes.HasPrefix(xingData, []byte("Xing")) && !bytes.HasPrefix(xingData, []byte("Info")) {
		return gaplessInfo{}
	}

	hasXING := true

	lameOffset := findLAMETag(xingData)
	if lameOffset < 0 || lameOffset+24 > len(xingData) {
		return gaplessInfo{hasXINGTag: hasXING}
	}

	lameData := xingData[lameOffset:]
	if len(lameData) < 24 {
		return gaplessInfo{hasXINGTag: hasXING}
	}

	gaplessBytes := lameData[21:24]
	gapless24 := uint32(gaplessBytes[0])<<16 | uint32(gaplessBytes[1])<<8 | uint32(gaplessBytes[2])

	return gaplessInfo{
		delay:      int(gapless24 >> 12),
		padding:    int(gapless24 & 0xFFF),
		hasXINGTag: hasXING,
	}
}

func skipID3v2(rs io.ReadSeeker) int {
	header := make([]byte, 10)

	n, err := rs.Read(header)
	if err != nil || n < 10 {
		_, _ = rs.Seek(0, io.SeekStart)

		return 0
	}

	if header[0] != 'I' || header[1] != 'D' || header[2] != '3' {
		_, _ = rs.Seek(0, io.SeekStart)

		return 0
	}

	size := (int(header[6]) << 21) | (int(header[7]) << 14) | (int(header[8]) << 7) | int(header[9])
	totalSize := 10 + size

	if _, err := rs.Seek(int64(totalSize), io.SeekStart); err != nil {
		return -1
	}

	return totalSize
}

func findSyncWord(data []byte) int {
	for i := range len(data) - 1 {
		if data[i] == 0xFF && (data[i+1]&0xE0) == 0xE0 {
			if i+4 <= len(data) && isValidFrameHeader(data[i:i+4]) {
				return i
			}
		}
	}

	return -1
}

func isValidFrameHeader(header []byte) bool {
	if len(header) < 4 {
		return false
	}

	if header[0] != 0xFF || (header[1]&0xE0) != 0xE0 {
		return false
	}

	versionBits := (header[1] >> 3) & 0x03
	layerBits := (header[1] >> 1) & 0x03
	bitrateBits := (header[2] >> 4) & 0x0F

	if versionBits == 0x01 || layerBits == 0x00 || bitrateBits == 0x0F {
		return false
	}

	return true
}

func getSideInfoSize(header []byte) int {
	if len(header) < 4 {
		return -1
	}

	versionBits := (header[1] >> 3) & 0x03
	channelBits := (header[3] >> 6) & 0x03
	isMono := channelBits == 0x03

	switch versionBits {
	case 0x03:
		if isMono {
			return 17
		}

		return 32
	case 0x02, 0x00:
		if isMono {
			return 9
		}

		return 17
	default:
		return -1
	}
}

func findLAMETag(xingData []byte) int {
	if len(xingData) < 8 {
		return -1
	}

	flags := binary.BigEndian.Uint32(xingData[4:8])
	offset := 8

	if flags&0x01 != 0 {
		offset += 4
	}

	if flags&0x02 != 0 {
		offset += 4
	}

	if flags&0x04 != 0 {
		offset += 100
	}

	if flags&0x08 != 0 {
		offset += 4
	}

	if offset+4 > len(xingData) {
		return -1
	}

	if bytes.HasPrefix(xingData[offset:], []byte("LAME")) {
		return offset
	}

	if offset+9 <= len(xingData) {
		tag := xingData[offset : offset+4]
		if isPrintableASCII(tag) {
			return offset
		}
	}

	return -1
}

func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}

	return true
}
