package engine

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/pcmfmt"
	"github.com/mycophonic/hypha/ring"
)

// TestDecodePipelineIsBitPerfectForS16 exercises the full decode ->
// transcode -> ring -> render path a real output backend would drain,
// using a synthetic S16 source and pcmfmt's own Encode/Decode pair
// rather than a real device. Every sample that went into the source
// packet must come back out of the ring bit-for-bit once re-encoded at
// the source's own depth: the internal left-aligned Int32 stage must
// introduce no rounding, clamping, or truncation for the one depth that
// is already a perfect subset of it.
func TestDecodePipelineIsBitPerfectForS16(t *testing.T) {
	const (
		sampleRate   = 48000
		channels     = 2
		totalFrames  = 8000
		framesPerPkt = 512
	)

	src := newFakeSource(sampleRate, channels, totalFrames, framesPerPkt)
	adapter := decode.NewAdapter(src, 4096)
	buf := ring.New[int32](1 << 16)
	state := newDecoderState()
	state.running.Store(true)

	done := make(chan struct{})

	w := &decoderWorker{
		adapter:      adapter,
		src:          src,
		ringBuf:      buf,
		state:        state,
		channels:     channels,
		sampleRate:   sampleRate,
		bufferFrames: 512,
		prebufferAt:  1 << 15,
		log:          zerolog.Nop(),
		done:         done,
	}

	totalSamples := totalFrames * channels
	got := make([]int32, 0, totalSamples)

	go w.run()

	scratch := make([]int32, 4096)

	for len(got) < totalSamples {
		n := buf.Read(scratch)
		if n > 0 {
			got = append(got, scratch[:n]...)

			continue
		}

		select {
		case <-done:
			// Worker finished; drain whatever remains without blocking
			// forever on a ring that will never receive more.
			if n := buf.Read(scratch); n > 0 {
				got = append(got, scratch[:n]...)

				continue
			}

			if len(got) < totalSamples {
				t.Fatalf("worker finished with only %d/%d samples drained", len(got), totalSamples)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out draining ring: got %d/%d samples", len(got), totalSamples)
		default:
			time.Sleep(100 * time.Microsecond)
		}
	}

	<-done

	reencoded := make([]byte, totalSamples*2)

	n, err := pcmfmt.EncodeBytes(got[:totalSamples], 16, reencoded)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}

	if n != totalSamples {
		t.Fatalf("EncodeBytes wrote %d samples, want %d", n, totalSamples)
	}

	for i := 0; i < totalSamples; i++ {
		want := int16((i) % 30000)
		got := int16(binary.LittleEndian.Uint16(reencoded[i*2:]))

		if got != want {
			t.Fatalf("sample %d: got %d, want %d (not bit-perfect)", i, got, want)
		}
	}
}
