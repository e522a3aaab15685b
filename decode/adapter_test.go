package decode

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/mycophonic/hypha/pcmfmt"
)

// stubSource feeds a fixed sequence of packets, in order, then io.EOF.
// A packet with nil Data simulates a corrupt frame the Adapter must skip
// rather than surface.
type stubSource struct {
	packets []Packet
	idx     int
	closed  bool
}

func (s *stubSource) Info() Info { return Info{SampleRate: 48000, Channels: 2, BitDepth: 16} }

func (s *stubSource) NextPacket() (Packet, error) {
	if s.idx >= len(s.packets) {
		return Packet{}, io.EOF
	}

	pkt := s.packets[s.idx]
	s.idx++

	return pkt, nil
}

func (s *stubSource) Seek(secs float64) error { return ErrSeekUnsupported }

func (s *stubSource) Close() error {
	s.closed = true

	return nil
}

func s16Packet(values ...int16) Packet {
	data := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}

	return Packet{Data: data, Format: pcmfmt.S16, Channels: 2}
}

func TestAdapterNextReturnsExactlyRequestedCount(t *testing.T) {
	src := &stubSource{packets: []Packet{s16Packet(1, 2, 3, 4), s16Packet(5, 6, 7, 8)}}
	a := NewAdapter(src, 64)

	out, more := a.Next(5)
	if len(out) != 5 {
		t.Fatalf("Next(5) returned %d samples, want 5", len(out))
	}

	if !more {
		t.Error("more = false, want true: source has data left")
	}

	want := []int32{int32(1) << 16, int32(2) << 16, int32(3) << 16, int32(4) << 16, int32(5) << 16}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("out[%d] = %d, want %d", i, out[i], w)
		}
	}

	out2, _ := a.Next(3)
	want2 := []int32{int32(6) << 16, int32(7) << 16, int32(8) << 16}

	for i, w := range want2 {
		if out2[i] != w {
			t.Errorf("out2[%d] = %d, want %d", i, out2[i], w)
		}
	}
}

func TestAdapterNextPadsWithZeroAtEOF(t *testing.T) {
	src := &stubSource{packets: []Packet{s16Packet(1, 2)}}
	a := NewAdapter(src, 64)

	out, more := a.Next(5)
	if len(out) != 5 {
		t.Fatalf("len(out) = %d, want 5", len(out))
	}

	if more {
		t.Error("more = true, want false: source exhausted with no remaining tail")
	}

	if out[0] != int32(1)<<16 || out[1] != int32(2)<<16 {
		t.Errorf("first two samples wrong: %v", out[:2])
	}

	for i := 2; i < 5; i++ {
		if out[i] != 0 {
			t.Errorf("out[%d] = %d, want 0 (EOF padding)", i, out[i])
		}
	}

	// Adapter never closes the source itself; that's the decoder
	// worker's responsibility once run() observes EOF.
	if src.closed {
		t.Error("Adapter closed the source; that is the worker's job")
	}
}

// errorSource serves one good packet then a non-EOF error, simulating a
// file-level failure (e.g. a read error) partway through a track.
type errorSource struct {
	sent    bool
	failErr error
}

func (s *errorSource) Info() Info { return Info{SampleRate: 48000, Channels: 2, BitDepth: 16} }

func (s *errorSource) NextPacket() (Packet, error) {
	if s.sent {
		return Packet{}, s.failErr
	}

	s.sent = true

	return s16Packet(1, 2), nil
}

func (s *errorSource) Seek(secs float64) error { return ErrSeekUnsupported }
func (s *errorSource) Close() error            { return nil }

func TestAdapterErrIsNilAfterCleanEOF(t *testing.T) {
	src := &stubSource{packets: []Packet{s16Packet(1, 2)}}
	a := NewAdapter(src, 64)

	_, more := a.Next(10)
	if more {
		t.Fatal("more = true, want false: source exhausted")
	}

	if err := a.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after a clean io.EOF", err)
	}
}

func TestAdapterErrSurfacesFileLevelFailure(t *testing.T) {
	wantErr := errors.New("simulated read failure")
	src := &errorSource{failErr: wantErr}
	a := NewAdapter(src, 64)

	_, more := a.Next(10)
	if more {
		t.Fatal("more = true, want false: source failed")
	}

	if err := a.Err(); !errors.Is(err, wantErr) {
		t.Errorf("Err() = %v, want %v", err, wantErr)
	}
}

func TestAdapterSkipsEmptyOrUndecodablePackets(t *testing.T) {
	corrupt := Packet{Data: nil, Format: pcmfmt.S16, Channels: 2}
	src := &stubSource{packets: []Packet{corrupt, s16Packet(9, 9)}}
	a := NewAdapter(src, 64)

	out, more := a.Next(2)
	if !more {
		t.Error("more = false, want true")
	}

	if out[0] != int32(9)<<16 || out[1] != int32(9)<<16 {
		t.Errorf("corrupt packet was not skipped cleanly: got %v", out)
	}
}
