package engine

import (
	"encoding/binary"
	"io"

	"github.com/mycophonic/hypha"
	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/pcmfmt"
	"github.com/mycophonic/hypha/ring"
	"github.com/mycophonic/hypha/stats"
)

// fakeSource is a decode.Source serving a fixed number of S16 stereo
// frames, one packet at a time, then io.EOF.
type fakeSource struct {
	info         decode.Info
	framesPerPkt int
	totalFrames  int
	sent         int
	closed       bool
}

func newFakeSource(sampleRate, channels, totalFrames, framesPerPkt int) *fakeSource {
	return &fakeSource{
		info: decode.Info{
			SampleRate:   sampleRate,
			Channels:     channels,
			BitDepth:     16,
			TotalFrames:  int64(totalFrames),
			DurationSecs: float64(totalFrames) / float64(sampleRate),
			FormatName:   "fake",
			CodecName:    "fake",
		},
		framesPerPkt: framesPerPkt,
		totalFrames:  totalFrames,
	}
}

func (f *fakeSource) Info() decode.Info { return f.info }

func (f *fakeSource) NextPacket() (decode.Packet, error) {
	if f.sent >= f.totalFrames {
		return decode.Packet{}, io.EOF
	}

	frames := f.framesPerPkt
	if f.sent+frames > f.totalFrames {
		frames = f.totalFrames - f.sent
	}

	channels := f.info.Channels
	data := make([]byte, frames*channels*2)

	for i := 0; i < frames*channels; i++ {
		v := int16((f.sent*channels + i) % 30000)
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}

	f.sent += frames

	return decode.Packet{Data: data, Format: pcmfmt.S16, Channels: channels}, nil
}

func (f *fakeSource) Seek(secs float64) error { return decode.ErrSeekUnsupported }

func (f *fakeSource) Close() error {
	f.closed = true

	return nil
}

// failingSource serves a few good packets, then a file-level error that
// is not io.EOF, simulating a read failure partway through a track.
type failingSource struct {
	info        decode.Info
	good        int
	sent        int
	failWithErr error
	closed      bool
}

func newFailingSource(sampleRate, channels, goodPackets int, failWithErr error) *failingSource {
	return &failingSource{
		info: decode.Info{
			SampleRate: sampleRate,
			Channels:   channels,
			BitDepth:   16,
			FormatName: "fake",
			CodecName:  "fake",
		},
		good:        goodPackets,
		failWithErr: failWithErr,
	}
}

func (f *failingSource) Info() decode.Info { return f.info }

func (f *failingSource) NextPacket() (decode.Packet, error) {
	if f.sent >= f.good {
		return decode.Packet{}, f.failWithErr
	}

	channels := f.info.Channels
	data := make([]byte, 64*channels*2)
	f.sent++

	return decode.Packet{Data: data, Format: pcmfmt.S16, Channels: channels}, nil
}

func (f *failingSource) Seek(secs float64) error { return decode.ErrSeekUnsupported }

func (f *failingSource) Close() error {
	f.closed = true

	return nil
}

// fakeOutput is an audiooutput.Service double that never touches real
// hardware: Start just records the negotiated format, and a background
// drain is left to the caller (tests pull via ringBuf.Read directly).
type fakeOutput struct {
	started      bool
	paused       bool
	stopped      bool
	format       hypha.AudioFormat
	bitPerfect   bool
	startErr     error
}

func (f *fakeOutput) Start(format hypha.AudioFormat, ringBuf *ring.Buffer[int32], playStats *stats.Playback) error {
	if f.startErr != nil {
		return f.startErr
	}

	f.started = true
	f.format = format

	return nil
}

func (f *fakeOutput) Pause() error  { f.paused = true; return nil }
func (f *fakeOutput) Resume() error { f.paused = false; return nil }
func (f *fakeOutput) Stop() error   { f.stopped = true; return nil }
func (f *fakeOutput) IsRunning() bool { return f.started && !f.stopped }
func (f *fakeOutput) IsPaused() bool  { return f.paused }
func (f *fakeOutput) ActualFormat() hypha.AudioFormat { return f.format }
func (f *fakeOutput) IsBitPerfect(srcRate uint32) bool { return f.bitPerfect }
