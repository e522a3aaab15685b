package wav

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// buildWAV assembles a minimal 16-bit PCM WAV file with frameCount frames
// of channels, each sample set to a ramp value for easy verification.
func buildWAV(sampleRate, channels, frameCount int) []byte {
	blockAlign := channels * 2
	dataSize := frameCount * blockAlign

	var buf bytes.Buffer

	buf.WriteString("RIFF")
	writeU32(&buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(&buf, 16)
	writeU16(&buf, 1) // PCM
	writeU16(&buf, uint16(channels))
	writeU32(&buf, uint32(sampleRate))
	writeU32(&buf, uint32(sampleRate*blockAlign))
	writeU16(&buf, uint16(blockAlign))
	writeU16(&buf, 16)

	buf.WriteString("data")
	writeU32(&buf, uint32(dataSize))

	for i := range frameCount {
		for range channels {
			writeU16(&buf, uint16(int16(i)))
		}
	}

	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

type memReadSeeker struct {
	*bytes.Reader
}

func newMemReadSeeker(data []byte) *memReadSeeker {
	return &memReadSeeker{bytes.NewReader(data)}
}

func TestOpenParsesFmtAndData(t *testing.T) {
	t.Parallel()

	raw := buildWAV(44100, 2, 1000)

	src, err := Open(newMemReadSeeker(raw))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	info := src.Info()
	if info.SampleRate != 44100 || info.Channels != 2 || info.BitDepth != 16 {
		t.Fatalf("unexpected info: %+v", info)
	}

	if info.TotalFrames != 1000 {
		t.Fatalf("TotalFrames = %d, want 1000", info.TotalFrames)
	}
}

func TestNextPacketDrainsWholeFile(t *testing.T) {
	t.Parallel()

	raw := buildWAV(48000, 1, 20000) // forces multiple packets at packetFrames=4096

	src, err := Open(newMemReadSeeker(raw))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var totalFrames int64

	for {
		pkt, err := src.NextPacket()
		if err == io.EOF {
			break
		}

		if err != nil {
			t.Fatalf("NextPacket: %v", err)
		}

		totalFrames += int64(len(pkt.Data) / 2)
	}

	if totalFrames != 20000 {
		t.Fatalf("decoded %d frames, want 20000", totalFrames)
	}
}

func TestSeekRepositionsDataCursor(t *testing.T) {
	t.Parallel()

	raw := buildWAV(44100, 1, 1000)

	src, err := Open(newMemReadSeeker(raw))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := src.Seek(0.01); err != nil { // 441 frames into the 1000-frame file at 44100 Hz
		t.Fatalf("Seek: %v", err)
	}

	pkt, err := src.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket after seek: %v", err)
	}

	if len(pkt.Data) == 0 {
		t.Fatal("expected data after seek")
	}
}

func TestNotWAVRejected(t *testing.T) {
	t.Parallel()

	_, err := Open(newMemReadSeeker([]byte("not a riff file at all...")))
	if err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}
