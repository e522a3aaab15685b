// Package engine composes decode, ring, dither and audiooutput into the
// one stateful object a player's control plane drives: Play, Pause,
// Resume, Stop, and a stats/position snapshot. Grounded on
// original_source/src/engine/mod.rs, translated to Go's concurrency
// idiom (goroutine + channel instead of thread + park/unpark).
package engine

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha"
	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/ring"
	"github.com/mycophonic/hypha/stats"
)

// State is the engine's playback state machine, per spec.md §4.7:
// Stopped -> play -> Buffering -> (fill>=ratio) -> Playing <-> Paused,
// stop from anywhere back to Stopped.
type State int

const (
	Stopped State = iota
	Buffering
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Buffering:
		return "buffering"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Config is engine.Config per SPEC_FULL.md §6.3.
type Config struct {
	Output         audiooutput.Config
	RingCapacity   int
	PrebufferRatio float64
}

// DefaultConfig mirrors EngineConfig::default(): a 2-second stereo
// @48kHz ring (next_power_of_two of 48000*2*2) and 50% prebuffer.
func DefaultConfig() Config {
	return Config{
		Output:         audiooutput.DefaultConfig(),
		RingCapacity:   48000 * 2 * 2,
		PrebufferRatio: 0.5,
	}
}

var (
	ErrInvalidState = errors.New("engine: invalid state for this operation")
)

// EventKind distinguishes the events Events publishes.
type EventKind int

const (
	StateChanged EventKind = iota
	TrackFinished
	Underrun
	// DecodeFailed fires when the decoder worker stops because the
	// Source itself failed (a file-level error from decode.Adapter.Err),
	// not because it reached a clean end of stream. spec.md §7 requires
	// this to propagate rather than be mistaken for TrackFinished.
	DecodeFailed
)

// Event is one item on the Events channel, spec.md's Go-native
// substitute for "events produced" (no pack repo defines a player event
// bus of its own; this is a plain channel-of-struct, the stdlib idiom).
// Err is only populated for DecodeFailed.
type Event struct {
	Kind  EventKind
	State State
	Err   error
}

// Stats is a point-in-time snapshot, mirroring Rust's EngineStats.
type Stats struct {
	BufferFillRatio float64
	UnderrunCount   uint64
	SamplesPlayed   uint64
	PositionSecs    float64
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger injects a zerolog.Logger for setup/teardown logging. The
// decoder worker's hot loop never logs.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// backendCtor constructs the platform's audiooutput.Service. Supplied by
// backend_darwin.go (coreaudio, unless Bluetooth/use_hal=false say
// otherwise) or backend_other.go (always otoout) — kept as indirection so
// engine itself never imports a build-tagged package directly.
type backendCtor func(audiooutput.Config, zerolog.Logger) (audiooutput.Service, error)

var newBackend backendCtor = newPlatformBackend

// decoderState is the Go translation of Rust's atomics-only DecoderState:
// all-relaxed/acquire-release fields the worker and control plane share
// without a mutex.
type decoderState struct {
	running        atomic.Bool
	paused         atomic.Bool
	eofReached     atomic.Bool
	samplesDecoded atomic.Uint64

	// resume is the Go substitute for thread::park/unpark: a capacity-1
	// channel the worker receives from when paused, and the control
	// plane sends to (non-blocking) on resume. Go has no public
	// thread-park primitive, so a buffered channel is the idiomatic
	// equivalent (documented in DESIGN.md).
	resume chan struct{}
}

func newDecoderState() *decoderState {
	return &decoderState{resume: make(chan struct{}, 1)}
}

// Engine is the stateful object spec.md §4.7 calls "Engine".
type Engine struct {
	config Config
	log    zerolog.Logger

	mu           sync.Mutex
	state        State
	ringBuf      *ring.Buffer[int32]
	playStats    *stats.Playback
	output       audiooutput.Service
	decoderState *decoderState
	workerDone   chan struct{}

	currentInfo   *decode.Info
	currentFormat hypha.AudioFormat

	Events chan Event
}

// New constructs an Engine. No decoding or device I/O happens until Play.
func New(cfg Config, opts ...Option) *Engine {
	capacity := nextPowerOfTwo(cfg.RingCapacity)

	e := &Engine{
		config:       cfg,
		log:          audiooutput.NopLogger(),
		state:        Stopped,
		ringBuf:      ring.New[int32](capacity),
		playStats:    stats.New(),
		decoderState: newDecoderState(),
		Events:       make(chan Event, 16),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

func (e *Engine) emit(evt Event) {
	select {
	case e.Events <- evt:
	default:
		// Events is advisory; a full channel means nobody's listening
		// closely, and dropping beats blocking the control thread.
	}
}

// Play implements spec.md §4.7's play(path): stop if not already
// stopped, open the decoder, negotiate output, clear state, start the
// backend, and spawn the decoder worker.
func (e *Engine) Play(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Stopped {
		if err := e.stopLocked(); err != nil {
			return err
		}
	}

	file, err := os.Open(path) //nolint:gosec // player opens user-specified media files
	if err != nil {
		return fmt.Errorf("engine: opening %s: %w", path, err)
	}

	src, _, err := decode.Open(file)
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("engine: opening decoder for %s: %w", path, err)
	}

	info := src.Info()

	e.log.Info().
		Str("format", info.FormatName).
		Str("codec", info.CodecName).
		Int("sample_rate", info.SampleRate).
		Int("channels", info.Channels).
		Int("bit_depth", info.BitDepth).
		Float64("duration_secs", info.DurationSecs).
		Msg("loading track")

	bitDepth := info.BitDepth
	if bitDepth == 0 {
		bitDepth = 24
	}

	outputCfg := e.config.Output
	outputCfg.SampleRate = uint32(info.SampleRate)

	output, err := newBackend(outputCfg, e.log)
	if err != nil {
		_ = src.Close()

		return fmt.Errorf("engine: creating audio output: %w", err)
	}

	format := hypha.AudioFormat{
		SampleRate:    uint32(info.SampleRate),
		Channels:      uint16(info.Channels),
		BitsPerSample: uint16(bitDepth),
		Layout:        hypha.Interleaved,
	}

	e.ringBuf.Clear()
	e.playStats.Reset()

	if err := output.Start(format, e.ringBuf, e.playStats); err != nil {
		_ = src.Close()

		return fmt.Errorf("engine: starting audio output: %w", err)
	}

	actual := output.ActualFormat()
	if actual.SampleRate != format.SampleRate {
		e.log.Info().Uint32("source_hz", format.SampleRate).Uint32("device_hz", actual.SampleRate).
			Msg("sample rate conversion: device performs SRC")
	}

	e.decoderState = newDecoderState()
	e.decoderState.running.Store(true)

	e.workerDone = make(chan struct{})

	worker := &decoderWorker{
		adapter:      decode.NewAdapter(src, 1<<20),
		src:          src,
		ringBuf:      e.ringBuf,
		state:        e.decoderState,
		channels:     info.Channels,
		sampleRate:   info.SampleRate,
		bufferFrames: int(e.config.Output.BufferFrames),
		prebufferAt:  int(float64(e.ringBuf.Capacity()) * e.config.PrebufferRatio),
		log:          e.log,
		done:         e.workerDone,
		onEOF: func() {
			e.emit(Event{Kind: TrackFinished, State: Playing})
		},
		onFailure: func(err error) {
			e.emit(Event{Kind: DecodeFailed, State: Playing, Err: err})
		},
	}

	go worker.run()

	e.output = output
	e.currentInfo = &info
	e.currentFormat = format
	e.state = Buffering

	e.emit(Event{Kind: StateChanged, State: Buffering})

	return nil
}

// Pause implements spec.md §4.7's toggle_pause's "Playing" branch.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncBufferingLocked()

	if e.state != Playing {
		return ErrInvalidState
	}

	e.decoderState.paused.Store(true)

	if err := e.output.Pause(); err != nil {
		return err
	}

	e.state = Paused
	e.emit(Event{Kind: StateChanged, State: Paused})

	return nil
}

// Resume implements spec.md §4.7's toggle_pause's "Paused|Buffering" branch.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Paused && e.state != Buffering {
		return ErrInvalidState
	}

	if e.output != nil && e.state == Paused {
		if err := e.output.Resume(); err != nil {
			return err
		}
	}

	e.decoderState.paused.Store(false)
	nudge(e.decoderState.resume)

	e.state = Playing
	e.emit(Event{Kind: StateChanged, State: Playing})

	return nil
}

// nudge is the non-blocking "unpark" send: the resume channel has
// capacity 1, so a send never blocks and a worker not currently parked
// simply finds the slot already full next time it checks.
func nudge(resume chan struct{}) {
	select {
	case resume <- struct{}{}:
	default:
	}
}

// Stop implements spec.md §4.7's stop: clear running, unpark, join,
// stop the output, clear the ring, drop handles. Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if e.state == Stopped {
		return nil
	}

	e.decoderState.running.Store(false)
	e.decoderState.paused.Store(false)
	nudge(e.decoderState.resume)

	if e.workerDone != nil {
		<-e.workerDone
	}

	var err error
	if e.output != nil {
		err = e.output.Stop()
		e.output = nil
	}

	e.ringBuf.Clear()
	e.state = Stopped
	e.currentInfo = nil

	e.emit(Event{Kind: StateChanged, State: Stopped})

	return err
}

// syncBufferingLocked promotes Buffering to Playing once the ring has
// filled past the prebuffer ratio, mirroring Rust's state()/toggle_pause
// inline check. Caller holds e.mu.
func (e *Engine) syncBufferingLocked() {
	if e.state == Buffering && e.ringBuf.FillRatio() >= e.config.PrebufferRatio {
		e.state = Playing
		e.emit(Event{Kind: StateChanged, State: Playing})
	}
}

// State returns the current playback state, promoting Buffering to
// Playing first if the ring has filled past the prebuffer target.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.syncBufferingLocked()

	return e.state
}

// IsPlaying reports whether playback is active (Playing or Buffering).
func (e *Engine) IsPlaying() bool {
	s := e.State()

	return s == Playing || s == Buffering
}

// IsTrackFinished implements spec.md §4.7: eof_reached && ring empty.
func (e *Engine) IsTrackFinished() bool {
	return e.decoderState.eofReached.Load() && e.ringBuf.Available() == 0
}

// Stats returns a position/fill-ratio snapshot, derived from
// samples-played rather than any device clock.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	sampleRate := 48000
	channels := 2

	if e.currentInfo != nil {
		if e.currentInfo.SampleRate > 0 {
			sampleRate = e.currentInfo.SampleRate
		}

		if e.currentInfo.Channels > 0 {
			channels = e.currentInfo.Channels
		}
	}

	played := e.playStats.SamplesPlayed()
	framesPlayed := played / uint64(channels)

	return Stats{
		BufferFillRatio: e.ringBuf.FillRatio(),
		UnderrunCount:   e.playStats.Underruns(),
		SamplesPlayed:   played,
		PositionSecs:    float64(framesPlayed) / float64(sampleRate),
	}
}

// IsBitPerfect reports whether the currently active output path is
// lossless end to end for the current track's source rate.
func (e *Engine) IsBitPerfect() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.output == nil || e.currentInfo == nil {
		return false
	}

	return e.output.IsBitPerfect(uint32(e.currentInfo.SampleRate))
}

// lockOSThreadOnce ensures the calling decoder worker goroutine keeps a
// fixed OS thread for its lifetime, so the realtime-leaning scheduling
// policy set in priority_darwin.go's setDecoderThreadPriority applies to
// the thread that is actually still running the loop.
func lockOSThreadOnce() {
	runtime.LockOSThread()
}
