// Package alac implements decode.Source over ALAC audio stored in an
// M4A/MP4 container. The decoder itself is a close Go port of Apple's
// reference ALAC implementation (bitbuffer.go, golomb.go, matrix.go,
// predictor.go); this file owns the MP4 sample table walk and turns the
// container's one-sample-per-packet layout into pull-based streaming:
// each NextPacket call seeks to and decodes exactly one ALAC sample.
package alac

import (
	"encoding/binary"
	"fmt"
	"io"

	mp4 "github.com/abema/go-mp4"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/detect"
	"github.com/mycophonic/hypha/pcmfmt"
)

func init() {
	decode.Register(detect.ALAC, Open)
}

// sampleInfo holds the byte offset and size of a single encoded ALAC
// packet within the MP4 container.
type sampleInfo struct {
	offset uint64
	size   uint32
}

// Source decodes one ALAC sample per NextPacket call by seeking directly
// to its offset in the container, per the MP4 sample table built at Open.
type Source struct {
	rs      io.ReadSeeker
	dec     *Decoder
	config  Config
	samples []sampleInfo
	idx     int

	format     pcmfmt.SourceFormat
	packetBuf  []byte
	sampleRate int
	channels   int
	bitDepth   int
}

// Open walks the MP4 box tree to find the ALAC track, parses its magic
// cookie into a Config, builds the flat sample table, and constructs the
// underlying bitstream Decoder.
func Open(rs io.ReadSeeker) (decode.Source, error) {
	cookie, samples, err := findALACTrack(rs)
	if err != nil {
		return nil, err
	}

	config, err := ParseConfig(cookie)
	if err != nil {
		return nil, fmt.Errorf("parsing ALAC config: %w", err)
	}

	dec, err := NewDecoder(config)
	if err != nil {
		return nil, err
	}

	format, err := sourceFormatFor(int(config.BitDepth))
	if err != nil {
		return nil, fmt.Errorf("alac: %w", err)
	}

	return &Source{
		rs:         rs,
		dec:        dec,
		config:     config,
		samples:    samples,
		format:     format,
		sampleRate: int(config.SampleRate),
		channels:   int(config.NumChannels),
		bitDepth:   int(config.BitDepth),
	}, nil
}

func sourceFormatFor(bitDepth int) (pcmfmt.SourceFormat, error) {
	switch bitDepth {
	case 16:
		return pcmfmt.S16, nil
	case 24:
		return pcmfmt.S24, nil
	case 32:
		return pcmfmt.S32, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
}

func (s *Source) Info() decode.Info {
	totalFrames := int64(len(s.samples)) * int64(s.config.FrameLength)

	var duration float64
	if s.sampleRate > 0 {
		duration = float64(totalFrames) / float64(s.sampleRate)
	}

	return decode.Info{
		SampleRate:   s.sampleRate,
		Channels:     s.channels,
		BitDepth:     s.bitDepth,
		TotalFrames:  totalFrames,
		DurationSecs: duration,
		FormatName:   "M4A",
		CodecName:    "ALAC",
	}
}

// NextPacket seeks to and decodes the next ALAC sample in the container's
// sample table. A single malformed access unit is skipped (per the
// module's per-frame recovery policy) rather than aborting the whole
// stream. errUnsupportedElement is not a malformed-packet error, though:
// it means the stream uses a CCE/PCE syntax element this decoder doesn't
// implement at all, so every remaining sample would fail the same way —
// that propagates as a real error instead of being skipped forever.
func (s *Source) NextPacket() (decode.Packet, error) {
	for {
		if s.idx >= len(s.samples) {
			return decode.Packet{}, io.EOF
		}

		sample := s.samples[s.idx]
		s.idx++

		if int(sample.size) > len(s.packetBuf) {
			s.packetBuf = make([]byte, sample.size)
		}

		packet := s.packetBuf[:sample.size]

		if _, err := s.rs.Seek(int64(sample.offset), io.SeekStart); err != nil {
			return decode.Packet{}, fmt.Errorf("seeking to alac sample: %w", err)
		}

		if _, err := io.ReadFull(s.rs, packet); err != nil {
			return decode.Packet{}, fmt.Errorf("reading alac sample: %w", err)
		}

		decoded, err := s.dec.DecodePacket(packet)
		if err != nil {
			if IsUnsupportedElement(err) {
				return decode.Packet{}, fmt.Errorf("alac: %w", err)
			}

			// Corrupt packet: skip and try the next one.
			continue
		}

		return decode.Packet{Data: decoded, Format: s.format, Channels: s.channels}, nil
	}
}

// Seek repositions to the sample whose frame range contains the target
// time, computed directly from the constant per-sample frame length
// (ALAC packets are fixed-size in frames except for the final one).
func (s *Source) Seek(secs float64) error {
	if s.sampleRate == 0 || s.config.FrameLength == 0 {
		return fmt.Errorf("alac seek: %w", decode.ErrSeekUnsupported)
	}

	targetFrame := int64(secs * float64(s.sampleRate))
	idx := targetFrame / int64(s.config.FrameLength)

	if idx < 0 {
		idx = 0
	}

	if idx > int64(len(s.samples)) {
		idx = int64(len(s.samples))
	}

	s.idx = int(idx)

	return nil
}

func (s *Source) Close() error {
	if closer, ok := s.rs.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

const (
	alacFourCC            = "alac"
	sampleEntryHeaderSize = 8
	sampleEntryBaseSize   = 28
	sampleEntryV1Extra    = 16
	stsdPayloadHeader     = 8
)

func findALACTrack(rs io.ReadSeeker) ([]byte, []sampleInfo, error) {
	stbls, err := mp4.ExtractBox(rs, nil, mp4.BoxPath{
		mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(),
		mp4.BoxTypeMinf(), mp4.BoxTypeStbl(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reading container structure: %w", err)
	}

	for _, stbl := range stbls {
		cookie, err := extractCookie(rs, stbl)
		if err != nil {
			continue
		}

		samples, err := buildSampleTable(rs, stbl)
		if err != nil {
			return nil, nil, fmt.Errorf("building sample table: %w", err)
		}

		return cookie, samples, nil
	}

	return nil, nil, errNoALACTrack
}

func extractCookie(rs io.ReadSeeker, stbl *mp4.BoxInfo) ([]byte, error) {
	stsds, err := mp4.ExtractBox(rs, stbl, mp4.BoxPath{mp4.BoxTypeStsd()})
	if err != nil || len(stsds) == 0 {
		return nil, errNoALACTrack
	}

	stsd := stsds[0]
	payloadSize := int(stsd.Size - stsd.HeaderSize)
	data := make([]byte, payloadSize)

	if _, err := rs.Seek(int64(stsd.Offset+stsd.HeaderSize), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to stsd payload: %w", err)
	}

	if _, err := io.ReadFull(rs, data); err != nil {
		return nil, fmt.Errorf("reading stsd payload: %w", err)
	}

	if len(data) < stsdPayloadHeader {
		return nil, errNoALACTrack
	}

	entryCount := binary.BigEndian.Uint32(data[4:8])
	pos := stsdPayloadHeader

	for range entryCount {
		if pos+sampleEntryHeaderSize > len(data) {
			break
		}

		entrySize := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		if entrySize < sampleEntryHeaderSize+sampleEntryBaseSize || pos+entrySize > len(data) {
			pos += entrySize

			continue
		}

		if string(data[pos+4:pos+8]) != alacFourCC {
			pos += entrySize

			continue
		}

		version := binary.BigEndian.Uint16(data[pos+sampleEntryHeaderSize+8 : pos+sampleEntryHeaderSize+10])

		skip := sampleEntryHeaderSize + sampleEntryBaseSize
		if version == 1 {
			skip += sampleEntryV1Extra
		}

		cookieStart := pos + skip
		cookieEnd := pos + entrySize

		if cookieStart >= cookieEnd {
			return nil, errInvalidCookie
		}

		return data[cookieStart:cookieEnd], nil
	}

	return nil, errNoALACTrack
}

func buildSampleTable(rs io.ReadSeeker, stbl *mp4.BoxInfo) ([]sampleInfo, error) {
	chunkOffsets, err := readChunkOffsets(rs, stbl)
	if err != nil {
		return nil, err
	}

	stscEntries, err := readStsc(rs, stbl)
	if err != nil {
		return nil, err
	}

	entrySizes, constantSize, sampleCount, err := readStsz(rs, stbl)
	if err != nil {
		return nil, err
	}

	samples := make([]sampleInfo, 0, sampleCount)
	sampleIdx := 0

	for chunkIdx := range chunkOffsets {
		spc := lookupSamplesPerChunk(stscEntries, uint32(chunkIdx+1))
		offset := chunkOffsets[chunkIdx]

		for s := uint32(0); s < spc && sampleIdx < int(sampleCount); s++ {
			var size uint32
			if constantSize != 0 {
				size = constantSize
			} else {
				size = entrySizes[sampleIdx]
			}

			samples = append(samples, sampleInfo{offset: offset, size: size})
			offset += uint64(size)
			sampleIdx++
		}
	}

	return samples, nil
}

func readChunkOffsets(rs io.ReadSeeker, stbl *mp4.BoxInfo) ([]uint64, error) {
	if boxes, err := mp4.ExtractBoxWithPayload(rs, stbl,
		mp4.BoxPath{mp4.BoxTypeStco()}); err == nil && len(boxes) > 0 {
		if stco, ok := boxes[0].Payload.(*mp4.Stco); ok {
			offsets := make([]uint64, len(stco.ChunkOffset))
			for i, off := range stco.ChunkOffset {
				offsets[i] = uint64(off)
			}

			return offsets, nil
		}
	}

	boxes, err := mp4.ExtractBoxWithPayload(rs, stbl, mp4.BoxPath{mp4.BoxTypeCo64()})
	if err != nil || len(boxes) == 0 {
		return nil, errNoChunkOffset
	}

	co64, ok := boxes[0].Payload.(*mp4.Co64)
	if !ok {
		return nil, errInvalidCo64
	}

	return co64.ChunkOffset, nil
}

func readStsc(rs io.ReadSeeker, stbl *mp4.BoxInfo) ([]mp4.StscEntry, error) {
	boxes, err := mp4.ExtractBoxWithPayload(rs, stbl, mp4.BoxPath{mp4.BoxTypeStsc()})
	if err != nil || len(boxes) == 0 {
		return nil, errNoStsc
	}

	stsc, ok := boxes[0].Payload.(*mp4.Stsc)
	if !ok {
		return nil, errInvalidStsc
	}

	return stsc.Entries, nil
}

func readStsz(rs io.ReadSeeker, stbl *mp4.BoxInfo) ([]uint32, uint32, uint32, error) {
	boxes, err := mp4.ExtractBoxWithPayload(rs, stbl, mp4.BoxPath{mp4.BoxTypeStsz()})
	if err != nil || len(boxes) == 0 {
		return nil, 0, 0, errNoStsz
	}

	stsz, ok := boxes[0].Payload.(*mp4.Stsz)
	if !ok {
		return nil, 0, 0, errInvalidStsz
	}

	return stsz.EntrySize, stsz.SampleSize, stsz.SampleCount, nil
}

func lookupSamplesPerChunk(entries []mp4.StscEntry, chunkNumber uint32) uint32 {
	var spc uint32

	for _, e := range entries {
		if e.FirstChunk > chunkNumber {
			break
		}

		spc = e.SamplesPerChunk
	}

	return spc
}
