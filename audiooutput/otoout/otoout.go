// Package otoout is the non-HAL audiooutput.Service backend: it plays
// through github.com/hajimehoshi/oto/v2, a real teacher dependency the
// teacher's own decode-only CLI never imported anywhere. Used on any
// platform without direct HAL access, and as the use_hal=false /
// Bluetooth-shared-mode fallback on darwin.
//
// oto always resamples/mixes through the OS's default audio path, so this
// backend can never claim bit-perfect output: IsBitPerfect is always
// false here, matching spec.md §4.6's Bluetooth-fallback Float32 path
// generalized to "any platform without HAL access".
package otoout

import (
	"io"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha"
	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/dither"
	"github.com/mycophonic/hypha/ring"
	"github.com/mycophonic/hypha/stats"
)

// ringReader adapts a ring.Buffer[int32] into the io.Reader oto.NewPlayer
// wants: a stream of interleaved little-endian Float32 bytes. It never
// blocks — an empty ring buffer reads back as silence, which oto's
// internal buffering smooths over the same way a CoreAudio underrun does.
type ringReader struct {
	ringBuf *ring.Buffer[int32]
	stats   *stats.Playback
	dither  *dither.State

	scratch []int32
	running *atomic.Bool
}

func (r *ringReader) Read(p []byte) (int, error) {
	if !r.running.Load() {
		for i := range p {
			p[i] = 0
		}

		return len(p), nil
	}

	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	if cap(r.scratch) < samples {
		r.scratch = make([]int32, samples)
	}

	buf := r.scratch[:samples]

	got := r.ringBuf.Read(buf)
	if got < samples {
		for i := got; i < samples; i++ {
			buf[i] = 0
		}

		r.stats.RecordUnderrun()
	}

	r.stats.AddSamplesPlayed(uint64(got))

	const i32Scale = 1.0 / 2147483648.0
	const ditherScale = 1.0 / 8388608.0

	for i, s := range buf {
		f := float32(s)*i32Scale + r.dither.NextTPDF()*ditherScale
		putFloat32LE(p[i*4:i*4+4], f)
	}

	return samples * 4, nil
}

func putFloat32LE(dst []byte, f float32) {
	bits := math.Float32bits(f)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}

// Output is the otoout implementation of audiooutput.Service.
type Output struct {
	config audiooutput.Config

	mu      sync.Mutex
	ctx     *oto.Context
	player  oto.Player
	reader  *ringReader
	running atomic.Bool
	paused  bool
	started bool

	actualFormat hypha.AudioFormat
	log          zerolog.Logger
}

// Option configures an Output at construction.
type Option func(*Output)

// WithLogger injects a zerolog.Logger, matching coreaudio.WithLogger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Output) { o.log = logger }
}

// New constructs an otoout backend. Unlike coreaudio.New, no device I/O
// happens until Start: oto.NewContext itself opens the device.
func New(cfg audiooutput.Config, opts ...Option) (*Output, error) {
	o := &Output{config: cfg, log: audiooutput.NopLogger()}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Start opens an oto context at format's sample rate and begins playing
// from ringBuf. oto has no exclusive mode and no integer format, so the
// negotiated format is always Float32.
func (o *Output) Start(format hypha.AudioFormat, ringBuf *ring.Buffer[int32], playStats *stats.Playback) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return audiooutput.ErrInvalidState
	}

	ctx, ready, err := oto.NewContext(int(format.SampleRate), int(format.Channels), 4)
	if err != nil {
		return err
	}

	<-ready

	o.reader = &ringReader{
		ringBuf: ringBuf,
		stats:   playStats,
		dither:  dither.New(0),
		running: &o.running,
	}
	o.running.Store(true)

	o.ctx = ctx
	o.player = ctx.NewPlayer(io.Reader(o.reader))
	o.player.Play()

	o.actualFormat = hypha.AudioFormat{
		SampleRate:    format.SampleRate,
		Channels:      format.Channels,
		BitsPerSample: format.BitsPerSample,
		Layout:        hypha.Interleaved,
	}
	o.started = true

	o.log.Info().Uint32("sample_rate", format.SampleRate).Uint16("channels", format.Channels).
		Msg("otoout started (mixer-routed, not bit-perfect)")

	return nil
}

func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started || o.paused {
		return audiooutput.ErrInvalidState
	}

	o.player.Pause()
	o.paused = true

	return nil
}

func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started || !o.paused {
		return audiooutput.ErrInvalidState
	}

	o.player.Play()
	o.paused = false

	return nil
}

func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return nil
	}

	o.running.Store(false)

	if o.player != nil {
		_ = o.player.Close()
	}

	o.started = false

	return nil
}

func (o *Output) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.started && !o.paused
}

func (o *Output) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.started && o.paused
}

func (o *Output) ActualFormat() hypha.AudioFormat {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.actualFormat
}

// IsBitPerfect is always false: oto routes through the OS mixer.
func (o *Output) IsBitPerfect(uint32) bool {
	return false
}
