//go:build darwin

package coreaudio

/*
#include <AudioToolbox/AudioToolbox.h>
*/
import "C"

import (
	"os"
	"runtime/cgo"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/mycophonic/hypha/audiooutput"
)

func processID() int {
	return os.Getpid()
}

func lockSlice(s []int32) bool {
	if len(s) == 0 {
		return false
	}

	return unix.Mlock(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)) == nil
}

func lockSliceF32(s []float32) bool {
	if len(s) == 0 {
		return false
	}

	return unix.Mlock(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)) == nil
}

func unlockSlice(s []int32) {
	if len(s) == 0 {
		return
	}

	_ = unix.Munlock(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4))
}

func unlockSliceF32(s []float32) {
	if len(s) == 0 {
		return
	}

	_ = unix.Munlock(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4))
}

// goRenderTrampoline is CoreAudio's AURenderCallback, called on a
// realtime OS-owned thread. It allocates nothing, takes no lock, and
// never calls back into anything that could page-fault or block.
//
//export goRenderTrampoline
func goRenderTrampoline(
	inRefCon unsafe.Pointer,
	ioActionFlags *C.AudioUnitRenderActionFlags,
	inTimeStamp *C.AudioTimeStamp,
	inBusNumber C.UInt32,
	inNumberFrames C.UInt32,
	ioData *C.AudioBufferList,
) C.OSStatus {
	handle := cgo.Handle(uintptr(inRefCon))

	ctx, ok := handle.Value().(*callbackContext)
	if !ok {
		return -1
	}

	buffers := unsafe.Slice(&ioData.mBuffers[0], int(ioData.mNumberBuffers))
	if len(buffers) == 0 {
		return C.noErr
	}

	buf := &buffers[0]
	frames := int(inNumberFrames)
	channels := int(ctx.format.Channels)
	n := frames * channels

	if !ctx.running.Load() {
		zeroFill(buf)

		return C.noErr
	}

	if ctx.threadPolicySet.CompareAndSwap(false, true) {
		setRealtimeThreadPolicy(ctx.format.SampleRate)
	}

	if n > len(ctx.sampleBuffer) {
		n = len(ctx.sampleBuffer)
		frames = n / channels
	}

	got := ctx.ringBuf.Read(ctx.sampleBuffer[:n])
	if got < n {
		for i := got; i < n; i++ {
			ctx.sampleBuffer[i] = 0
		}

		ctx.stats.RecordUnderrun()
	}

	ctx.stats.AddSamplesPlayed(uint64(got))

	switch ctx.mode {
	case audiooutput.Int32:
		writeInt32(buf, ctx.sampleBuffer[:n])
	case audiooutput.Int24:
		writeInt24(buf, ctx.sampleBuffer[:n], ctx)
	default:
		writeFloat32(buf, ctx.sampleBuffer[:n], ctx)
	}

	_ = ioActionFlags
	_ = inTimeStamp
	_ = inBusNumber

	return C.noErr
}

func zeroFill(buf *C.AudioBuffer) {
	size := int(buf.mDataByteSize)
	if size == 0 || buf.mData == nil {
		return
	}

	dst := unsafe.Slice((*byte)(buf.mData), size)
	for i := range dst {
		dst[i] = 0
	}
}

// writeInt32 is the zero-copy Int32 path: the ring buffer already holds
// left-aligned Int32 samples, so this is a straight memcpy.
func writeInt32(buf *C.AudioBuffer, samples []int32) {
	dst := unsafe.Slice((*int32)(buf.mData), len(samples))
	copy(dst, samples)
}

// writeInt24 drops the low byte of each left-aligned Int32 sample (with
// TPDF dither first when the source was deeper than 24 bits) and packs
// three little-endian bytes per sample.
func writeInt24(buf *C.AudioBuffer, samples []int32, ctx *callbackContext) {
	dst := unsafe.Slice((*byte)(buf.mData), len(samples)*3)

	needsDither := ctx.sourceBits > 24

	for i, s := range samples {
		v := s
		if needsDither {
			v += ctx.dither.Int24TPDF()
		}

		packed := uint32(v) >> 8
		dst[i*3+0] = byte(packed)
		dst[i*3+1] = byte(packed >> 8)
		dst[i*3+2] = byte(packed >> 16)
	}
}

// writeFloat32 rescales each Int32 sample to [-1, 1) with TPDF dither
// added at the 24th bit, matching spec.md §4.6's scalar reference form.
func writeFloat32(buf *C.AudioBuffer, samples []int32, ctx *callbackContext) {
	dst := unsafe.Slice((*float32)(buf.mData), len(samples))

	const i32Scale = 1.0 / 2147483648.0
	const ditherScale = 1.0 / 8388608.0

	for i, s := range samples {
		dst[i] = float32(s)*i32Scale + ctx.dither.NextTPDF()*ditherScale
	}
}
