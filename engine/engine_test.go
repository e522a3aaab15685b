package engine

import (
	"testing"

	"github.com/mycophonic/hypha"
	"github.com/mycophonic/hypha/decode"
)

// newTestEngine builds an Engine already past Play()'s setup, without
// touching the filesystem or a real decode.Source: it wires a fakeOutput
// directly and seeds the ring buffer by hand, the way Play() would have
// left things mid-Buffering.
func newTestEngine(t *testing.T, prebufferRatio float64) (*Engine, *fakeOutput) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PrebufferRatio = prebufferRatio
	cfg.RingCapacity = 1 << 12

	e := New(cfg)

	out := &fakeOutput{}
	e.output = out
	e.decoderState = newDecoderState()
	e.decoderState.running.Store(true)
	e.workerDone = make(chan struct{})
	e.currentInfo = &decode.Info{SampleRate: 48000, Channels: 2}
	e.currentFormat = hypha.AudioFormat{SampleRate: 48000, Channels: 2, BitsPerSample: 16}
	e.state = Buffering

	return e, out
}

func TestEngineBufferingPromotesToPlayingPastPrebufferRatio(t *testing.T) {
	e, _ := newTestEngine(t, 0.5)

	half := make([]int32, e.ringBuf.Capacity()/2)
	e.ringBuf.Write(half)

	if got := e.State(); got != Playing {
		t.Errorf("State() = %v after filling past prebuffer ratio, want Playing", got)
	}
}

func TestEngineStaysBufferingBelowPrebufferRatio(t *testing.T) {
	e, _ := newTestEngine(t, 0.9)

	quarter := make([]int32, e.ringBuf.Capacity()/4)
	e.ringBuf.Write(quarter)

	if got := e.State(); got != Buffering {
		t.Errorf("State() = %v below prebuffer ratio, want Buffering", got)
	}
}

func TestEnginePauseRequiresPlaying(t *testing.T) {
	e, _ := newTestEngine(t, 0.9)

	if err := e.Pause(); err != ErrInvalidState {
		t.Errorf("Pause() from Buffering = %v, want ErrInvalidState", err)
	}
}

func TestEnginePauseResumeRoundTrip(t *testing.T) {
	e, out := newTestEngine(t, 0.1)

	full := make([]int32, e.ringBuf.Capacity())
	e.ringBuf.Write(full)

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause() after crossing prebuffer ratio: %v", err)
	}

	if !out.paused {
		t.Error("Pause() did not propagate to the output backend")
	}

	if !e.decoderState.paused.Load() {
		t.Error("Pause() did not mark decoderState paused")
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume(): %v", err)
	}

	if out.paused {
		t.Error("Resume() left the output backend paused")
	}

	if e.decoderState.paused.Load() {
		t.Error("Resume() left decoderState paused")
	}

	select {
	case <-e.decoderState.resume:
	default:
		t.Error("Resume() did not nudge the resume channel")
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	e, out := newTestEngine(t, 0.1)
	close(e.workerDone) // simulate the worker having already exited

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop(): %v", err)
	}

	if e.State() != Stopped {
		t.Errorf("State() after Stop() = %v, want Stopped", e.State())
	}

	if !out.stopped {
		t.Error("Stop() did not stop the output backend")
	}

	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() = %v, want nil (idempotent)", err)
	}
}

func TestEngineIsTrackFinishedRequiresEmptyRingAndEOF(t *testing.T) {
	e, _ := newTestEngine(t, 0.1)

	if e.IsTrackFinished() {
		t.Error("IsTrackFinished() true before EOF")
	}

	e.decoderState.eofReached.Store(true)

	full := make([]int32, 16)
	e.ringBuf.Write(full)

	if e.IsTrackFinished() {
		t.Error("IsTrackFinished() true while ring still has samples")
	}

	e.ringBuf.Clear()

	if !e.IsTrackFinished() {
		t.Error("IsTrackFinished() false once EOF reached and ring drained")
	}
}

func TestEngineStatsReflectsPlayedSamplesAndPosition(t *testing.T) {
	e, _ := newTestEngine(t, 0.1)

	e.playStats.AddSamplesPlayed(48000 * 2) // 1 second of stereo frames

	stats := e.Stats()
	if stats.SamplesPlayed != 48000*2 {
		t.Errorf("SamplesPlayed = %d, want %d", stats.SamplesPlayed, 48000*2)
	}

	if stats.PositionSecs < 0.99 || stats.PositionSecs > 1.01 {
		t.Errorf("PositionSecs = %v, want ~1.0", stats.PositionSecs)
	}
}

func TestEngineIsBitPerfectDelegatesToOutput(t *testing.T) {
	e, out := newTestEngine(t, 0.1)
	out.bitPerfect = true

	if !e.IsBitPerfect() {
		t.Error("IsBitPerfect() = false, want true from fakeOutput")
	}
}

func TestEngineIsBitPerfectFalseWhenStopped(t *testing.T) {
	e := New(DefaultConfig())

	if e.IsBitPerfect() {
		t.Error("IsBitPerfect() on a freshly constructed, never-played Engine should be false")
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 1000: 1024, 1024: 1024}
	for in, want := range cases {
		if got := nextPowerOfTwo(in); got != want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}
