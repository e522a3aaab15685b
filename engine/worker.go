package engine

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha/decode"
	"github.com/mycophonic/hypha/ring"
)

// decoderWorker is spec.md §4.7's decoder worker: pulls exact-size
// chunks from a decode.Adapter and writes them into the ring buffer,
// backing off adaptively when the buffer is nearly full and parking
// (via decoderState.resume) while paused.
type decoderWorker struct {
	adapter *decode.Adapter
	src     decode.Source
	ringBuf *ring.Buffer[int32]
	state   *decoderState

	channels     int
	sampleRate   int
	bufferFrames int
	prebufferAt  int

	log  zerolog.Logger
	done chan struct{}

	onEOF func()
	// onFailure is called, instead of onEOF, when the adapter stopped
	// producing data because the underlying Source reported a file-level
	// error rather than a clean end of stream (decode.Adapter.Err() != nil).
	onFailure func(error)
}

const (
	minFreeThresholdChannelMultiple = 1024
	chunkFramesPerRead              = 4096
	spinThresholdUs                 = 50
	yieldThresholdUs                = 500
	minSleepUs                      = 100
	maxSleepUs                      = 10_000
)

func (w *decoderWorker) run() {
	defer close(w.done)
	defer func() { _ = w.src.Close() }()

	lockOSThreadOnce()
	setDecoderThreadPriority(uint32(w.bufferFrames), uint32(w.sampleRate))

	channels := w.channels
	if channels == 0 {
		channels = 2
	}

	minFreeThreshold := minFreeThresholdChannelMultiple * channels
	chunkSize := chunkFramesPerRead * channels

	nsPerSample := uint64(1_000_000_000)
	if w.sampleRate > 0 {
		nsPerSample /= uint64(w.sampleRate) * uint64(channels)
	}

	prebuffered := false

	w.log.Info().Int("prebuffer_target", w.prebufferAt).Uint64("ns_per_sample", nsPerSample).
		Msg("decoder thread started")

	for w.state.running.Load() {
		if w.state.paused.Load() {
			w.parkUntilResumedOrStopped()

			continue
		}

		availableWrite := w.ringBuf.FreeSpace()

		if availableWrite < minFreeThreshold {
			w.adaptiveBackoff(uint64(minFreeThreshold-availableWrite) * nsPerSample / 1000)

			continue
		}

		toRead := availableWrite
		if toRead > chunkSize {
			toRead = chunkSize
		}

		samples, more := w.adapter.Next(toRead)

		written := w.ringBuf.Write(samples)
		w.state.samplesDecoded.Add(uint64(written))

		if !prebuffered && w.ringBuf.Available() >= w.prebufferAt {
			prebuffered = true
			w.log.Info().Msg("prebuffer complete")
		}

		if !more {
			w.state.eofReached.Store(true)

			if err := w.adapter.Err(); err != nil {
				w.log.Error().Err(err).Msg("decoder stopped: source failed")

				if w.onFailure != nil {
					w.onFailure(err)
				}
			} else {
				w.log.Info().Msg("decoder reached end of file")

				if w.onEOF != nil {
					w.onEOF()
				}
			}

			break
		}
	}

	w.log.Info().Msg("decoder thread finished")
}

// parkUntilResumedOrStopped is the Go substitute for thread::park: block
// on the capacity-1 resume channel (sent to, non-blocking, by
// Engine.Resume/Stop), re-checking running/paused after each wake.
func (w *decoderWorker) parkUntilResumedOrStopped() {
	<-w.state.resume

	if !w.state.running.Load() {
		return
	}
}

// adaptiveBackoff implements spec.md §4.7's three-tier wait policy:
// spin under 50µs, yield+spin under 500µs, else sleep 70% of the
// estimate clamped to [100µs, 10ms].
func (w *decoderWorker) adaptiveBackoff(waitUs uint64) {
	switch {
	case waitUs < spinThresholdUs:
		for i := 0; i < 64; i++ {
			runtime.Gosched()
		}
	case waitUs < yieldThresholdUs:
		runtime.Gosched()

		for i := 0; i < 32; i++ {
			runtime.Gosched()
		}
	default:
		sleepUs := waitUs * 7 / 10
		if sleepUs < minSleepUs {
			sleepUs = minSleepUs
		}

		if sleepUs > maxSleepUs {
			sleepUs = maxSleepUs
		}

		time.Sleep(time.Duration(sleepUs) * time.Microsecond)
	}
}
