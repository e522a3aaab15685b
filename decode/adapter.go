package decode

import (
	"errors"
	"io"

	"github.com/mycophonic/hypha/pcmfmt"
)

// Adapter buffers decoded packets from a Source and serves exactly n
// left-aligned Int32 interleaved samples per Next call, transcoding each
// raw packet with pcmfmt.TranscodePacket as it arrives.
//
// It uses a double-buffer layout rather than a single growable buffer
// with copy-within-slice compaction: the unconsumed tail of the active
// buffer is copied into the inactive buffer, the newly transcoded packet
// is appended after it, and the two buffers swap roles. This avoids a
// self-overlapping copy every time a caller's request size isn't a
// multiple of the underlying packet size — a real cost when, say, FLAC's
// 4096-sample blocks don't line up with a 512-frame callback.
type Adapter struct {
	src Source

	bufs    [2][]int32
	active  int
	tail    []int32 // view into bufs[active] holding unconsumed samples
	scratch []int32 // reused for pcmfmt.TranscodePacket output

	eof bool
	err error // non-nil only for a file-level failure, never for a clean io.EOF
}

// NewAdapter wraps src. maxPacketSamples sets the initial scratch buffer
// size (e.g. 4096 frames x 8 channels); a packet with more samples than
// that grows the scratch buffer to fit.
func NewAdapter(src Source, maxPacketSamples int) *Adapter {
	return &Adapter{
		src:     src,
		scratch: make([]int32, maxPacketSamples),
	}
}

// Next returns exactly n samples and a bool reporting whether the source
// still has data beyond this call. Once it returns false, every
// subsequent call returns only silence.
func (a *Adapter) Next(n int) ([]int32, bool) {
	out := make([]int32, n)
	filled := 0

	for filled < n {
		if len(a.tail) > 0 {
			take := min(len(a.tail), n-filled)
			copy(out[filled:filled+take], a.tail[:take])
			a.tail = a.tail[take:]
			filled += take

			continue
		}

		if a.eof {
			break
		}

		if !a.fetchPacket() {
			a.eof = true

			break
		}
	}

	return out, !a.eof || len(a.tail) > 0
}

// fetchPacket pulls and transcodes the next packet, skipping corrupt or
// empty packets rather than surfacing them (spec: a corrupt frame is
// skipped, playback continues). It returns false once the source reports
// a true end of stream (io.EOF) or a file-level failure; the two are told
// apart by Err, which stays nil for a clean io.EOF and is set to the
// underlying error otherwise, so a caller can tell "track finished" from
// "track broke" after Next reports no more data.
func (a *Adapter) fetchPacket() bool {
	for {
		pkt, err := a.src.NextPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.err = err
			}

			return false
		}

		need := sampleCapacity(len(pkt.Data), pkt.Format)
		if need > len(a.scratch) {
			a.scratch = make([]int32, need)
		}

		n, terr := pcmfmt.TranscodePacket(pkt.Format, pkt.Data, a.scratch[:need])
		if terr != nil || n == 0 {
			continue
		}

		a.appendToInactive(a.scratch[:n])

		return true
	}
}

// Err returns the file-level failure that ended the stream, if any. It is
// nil both before end of stream and after a clean io.EOF; only a non-EOF
// error from the underlying Source.NextPacket sets it. Callers should
// check Err once Next reports no more data to distinguish a finished
// track from a broken one.
func (a *Adapter) Err() error {
	return a.err
}

// appendToInactive copies the unconsumed tail plus the freshly decoded
// samples into the currently-inactive buffer, then swaps buffers.
func (a *Adapter) appendToInactive(fresh []int32) {
	next := 1 - a.active
	needed := len(a.tail) + len(fresh)

	if cap(a.bufs[next]) < needed {
		a.bufs[next] = make([]int32, needed)
	} else {
		a.bufs[next] = a.bufs[next][:needed]
	}

	copy(a.bufs[next], a.tail)
	copy(a.bufs[next][len(a.tail):], fresh)

	a.active = next
	a.tail = a.bufs[next]
}

// sampleCapacity reports how many samples fit dataLen bytes at format's
// bit depth.
func sampleCapacity(dataLen int, format pcmfmt.SourceFormat) int {
	bits := format.BitsPerSample()
	if bits == 0 {
		return 0
	}

	return dataLen * 8 / bits
}
