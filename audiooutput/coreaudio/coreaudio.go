//go:build darwin

// Package coreaudio implements the audiooutput.Service contract directly
// against CoreAudio's AUHAL (AudioComponent of subtype kAudioUnitSubType_HALOutput),
// the bit-perfect path: exclusive (hog) mode, device-native sample rates,
// and an integer stream format that bypasses the OS mixer's float32
// resampling entirely whenever the device will take it.
//
// Grounded on aac/decode_darwin_cgo.go's cgo idiom (inline C helpers in a
// comment block, import "C", CBytes/GoBytes/unsafe.Pointer handoff) and on
// the AUHAL call sequence of original_source/src/audio/output.rs.
package coreaudio

/*
#cgo LDFLAGS: -framework AudioToolbox -framework AudioUnit -framework CoreAudio -framework CoreFoundation
#include <AudioToolbox/AudioToolbox.h>
#include <AudioUnit/AudioUnit.h>
#include <CoreAudio/CoreAudio.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdlib.h>
#include <string.h>

static OSStatus ca_get_default_device(AudioDeviceID *outID) {
	AudioObjectPropertyAddress addr = {
		kAudioHardwarePropertyDefaultOutputDevice,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = sizeof(AudioDeviceID);
	return AudioObjectGetPropertyData(kAudioObjectSystemObject, &addr, 0, NULL, &size, outID);
}

static OSStatus ca_get_all_devices(AudioDeviceID **outIDs, UInt32 *outCount) {
	AudioObjectPropertyAddress addr = {
		kAudioHardwarePropertyDevices,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = 0;
	OSStatus status = AudioObjectGetPropertyDataSize(kAudioObjectSystemObject, &addr, 0, NULL, &size);
	if (status != noErr) return status;
	*outCount = size / sizeof(AudioDeviceID);
	if (*outCount == 0) { *outIDs = NULL; return noErr; }
	*outIDs = (AudioDeviceID *)malloc(size);
	return AudioObjectGetPropertyData(kAudioObjectSystemObject, &addr, 0, NULL, &size, *outIDs);
}

static int ca_has_output_channels(AudioDeviceID devID) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyStreams,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = 0;
	OSStatus status = AudioObjectGetPropertyDataSize(devID, &addr, 0, NULL, &size);
	return status == noErr && size > 0;
}

static int ca_is_bluetooth(AudioDeviceID devID) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyTransportType,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	UInt32 transport = 0;
	UInt32 size = sizeof(transport);
	OSStatus status = AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, &transport);
	if (status != noErr) return 0;
	return transport == kAudioDeviceTransportTypeBluetooth || transport == kAudioDeviceTransportTypeBluetoothLE;
}

static OSStatus ca_get_device_name(AudioDeviceID devID, char *buf, int bufLen) {
	AudioObjectPropertyAddress addr = {
		kAudioObjectPropertyName,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	CFStringRef name = NULL;
	UInt32 size = sizeof(name);
	OSStatus status = AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, &name);
	if (status != noErr || name == NULL) return status;
	CFStringGetCString(name, buf, bufLen, kCFStringEncodingUTF8);
	CFRelease(name);
	return noErr;
}

static OSStatus ca_get_sample_rates(AudioDeviceID devID, double *out, int maxCount, int *outCount) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyAvailableNominalSampleRates,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = 0;
	OSStatus status = AudioObjectGetPropertyDataSize(devID, &addr, 0, NULL, &size);
	if (status != noErr) { *outCount = 0; return status; }

	int rangeCount = size / sizeof(AudioValueRange);
	AudioValueRange *ranges = (AudioValueRange *)malloc(size);
	status = AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, ranges);
	if (status != noErr) { free(ranges); *outCount = 0; return status; }

	int n = 0;
	for (int i = 0; i < rangeCount && n < maxCount; i++) {
		if (ranges[i].mMaximum - ranges[i].mMinimum < 0.1) {
			out[n++] = ranges[i].mMinimum;
		} else {
			static const double common[] = {44100.0, 48000.0, 88200.0, 96000.0, 176400.0, 192000.0};
			for (int c = 0; c < 6 && n < maxCount; c++) {
				if (common[c] >= ranges[i].mMinimum && common[c] <= ranges[i].mMaximum) out[n++] = common[c];
			}
		}
	}
	free(ranges);
	*outCount = n;
	return noErr;
}

static OSStatus ca_get_current_sample_rate(AudioDeviceID devID, double *out) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyNominalSampleRate,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = sizeof(double);
	OSStatus status = AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, out);
	if (status == noErr) return noErr;
	addr.mScope = kAudioObjectPropertyScopeGlobal;
	return AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, out);
}

static OSStatus ca_set_sample_rate(AudioDeviceID devID, double rate) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyNominalSampleRate,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	OSStatus status = AudioObjectSetPropertyData(devID, &addr, 0, NULL, sizeof(double), &rate);
	if (status == noErr) return noErr;
	addr.mScope = kAudioObjectPropertyScopeGlobal;
	return AudioObjectSetPropertyData(devID, &addr, 0, NULL, sizeof(double), &rate);
}

static OSStatus ca_set_buffer_size(AudioDeviceID devID, UInt32 frames) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyBufferFrameSize,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	return AudioObjectSetPropertyData(devID, &addr, 0, NULL, sizeof(UInt32), &frames);
}

static OSStatus ca_get_buffer_size(AudioDeviceID devID, UInt32 *frames) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyBufferFrameSize,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = sizeof(UInt32);
	return AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, frames);
}

static OSStatus ca_set_hog_mode(AudioDeviceID devID, pid_t pid) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyHogMode,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	return AudioObjectSetPropertyData(devID, &addr, 0, NULL, sizeof(pid_t), &pid);
}

static OSStatus ca_get_hog_mode(AudioDeviceID devID, pid_t *pid) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyHogMode,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = sizeof(pid_t);
	return AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, pid);
}

static OSStatus ca_new_audio_unit(int useHAL, AudioUnit *outUnit) {
	AudioComponentDescription desc;
	desc.componentType = kAudioUnitType_Output;
	desc.componentSubType = useHAL ? kAudioUnitSubType_HALOutput : kAudioUnitSubType_DefaultOutput;
	desc.componentManufacturer = kAudioUnitManufacturer_Apple;
	desc.componentFlags = 0;
	desc.componentFlagsMask = 0;

	AudioComponent comp = AudioComponentFindNext(NULL, &desc);
	if (comp == NULL) return -1;

	return AudioComponentInstanceNew(comp, outUnit);
}

static OSStatus ca_set_current_device(AudioUnit unit, AudioDeviceID devID) {
	return AudioUnitSetProperty(unit, kAudioOutputUnitProperty_CurrentDevice,
		kAudioUnitScope_Global, 0, &devID, sizeof(AudioDeviceID));
}

static OSStatus ca_enable_io(AudioUnit unit) {
	UInt32 enable = 1;
	return AudioUnitSetProperty(unit, kAudioOutputUnitProperty_EnableIO,
		kAudioUnitScope_Output, 0, &enable, sizeof(UInt32));
}

static AudioStreamBasicDescription ca_make_asbd(double sampleRate, UInt32 channels, UInt32 bits, int isFloat) {
	AudioStreamBasicDescription asbd;
	memset(&asbd, 0, sizeof(asbd));
	asbd.mSampleRate = sampleRate;
	asbd.mFormatID = kAudioFormatLinearPCM;
	asbd.mFormatFlags = (isFloat ? kAudioFormatFlagIsFloat : kAudioFormatFlagIsSignedInteger) | kAudioFormatFlagIsPacked;
	asbd.mBitsPerChannel = bits;
	asbd.mChannelsPerFrame = channels;
	asbd.mBytesPerFrame = (bits / 8) * channels;
	asbd.mFramesPerPacket = 1;
	asbd.mBytesPerPacket = asbd.mBytesPerFrame;
	return asbd;
}

static OSStatus ca_set_input_stream_format(AudioUnit unit, double sampleRate, UInt32 channels, UInt32 bits, int isFloat) {
	AudioStreamBasicDescription asbd = ca_make_asbd(sampleRate, channels, bits, isFloat);
	return AudioUnitSetProperty(unit, kAudioUnitProperty_StreamFormat,
		kAudioUnitScope_Input, 0, &asbd, sizeof(asbd));
}

static OSStatus ca_get_output_stream_id(AudioDeviceID devID, AudioStreamID *outStream) {
	AudioObjectPropertyAddress addr = {
		kAudioDevicePropertyStreams,
		kAudioDevicePropertyScopeOutput,
		kAudioObjectPropertyElementMain,
	};
	UInt32 size = sizeof(AudioStreamID);
	return AudioObjectGetPropertyData(devID, &addr, 0, NULL, &size, outStream);
}

static OSStatus ca_set_physical_format(AudioStreamID streamID, double sampleRate, UInt32 channels, UInt32 bits) {
	AudioStreamBasicDescription asbd = ca_make_asbd(sampleRate, channels, bits, 0);
	AudioObjectPropertyAddress addr = {
		kAudioStreamPropertyPhysicalFormat,
		kAudioObjectPropertyScopeGlobal,
		kAudioObjectPropertyElementMain,
	};
	return AudioObjectSetPropertyData(streamID, &addr, 0, NULL, sizeof(asbd), &asbd);
}

// goRenderTrampoline is declared in callback.go and exported to C via
// //export; it recovers the Go callbackContext from inRefCon (a
// cgo.Handle value smuggled through as a uintptr) and fills ioData.
extern OSStatus goRenderTrampoline(void *inRefCon, AudioUnitRenderActionFlags *ioActionFlags,
	const AudioTimeStamp *inTimeStamp, UInt32 inBusNumber, UInt32 inNumberFrames,
	AudioBufferList *ioData);

static OSStatus ca_set_render_callback(AudioUnit unit, void *refCon) {
	AURenderCallbackStruct cb;
	cb.inputProc = (AURenderCallback)goRenderTrampoline;
	cb.inputProcRefCon = refCon;
	return AudioUnitSetProperty(unit, kAudioUnitProperty_SetRenderCallback,
		kAudioUnitScope_Input, 0, &cb, sizeof(cb));
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha"
	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/dither"
	"github.com/mycophonic/hypha/ring"
	"github.com/mycophonic/hypha/stats"
)

// Option configures an Output at construction.
type Option func(*Output)

// WithLogger injects a zerolog.Logger for the setup/teardown logging
// spec.md describes (hog-mode acquisition, sample-rate fallback). The
// render callback never logs, regardless of this option.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Output) { o.log = logger }
}

// GetDefaultDevice returns spec.md §4.6's get_default_device().
func GetDefaultDevice() (audiooutput.DeviceInfo, error) {
	var id C.AudioDeviceID

	if status := C.ca_get_default_device(&id); status != C.noErr {
		return audiooutput.DeviceInfo{}, audiooutput.ErrorFor("get_default_device", int32(status))
	}

	if id == 0 {
		return audiooutput.DeviceInfo{}, audiooutput.ErrNoDefaultDevice
	}

	return deviceInfo(id)
}

// EnumerateOutputDevices returns spec.md §4.6's enumerate_output_devices().
func EnumerateOutputDevices() ([]audiooutput.DeviceInfo, error) {
	var ids *C.AudioDeviceID
	var count C.UInt32

	if status := C.ca_get_all_devices(&ids, &count); status != C.noErr {
		return nil, audiooutput.ErrorFor("get_all_output_devices", int32(status))
	}
	defer C.free(unsafe.Pointer(ids))

	idSlice := unsafe.Slice(ids, int(count))

	devices := make([]audiooutput.DeviceInfo, 0, count)

	for _, id := range idSlice {
		if C.ca_has_output_channels(id) == 0 {
			continue
		}

		info, err := deviceInfo(id)
		if err != nil {
			continue
		}

		devices = append(devices, info)
	}

	return devices, nil
}

// FindDeviceByName implements find_by_name(name): exact match first,
// substring match second, case-insensitively.
func FindDeviceByName(name string) (audiooutput.DeviceInfo, bool) {
	devices, err := EnumerateOutputDevices()
	if err != nil {
		return audiooutput.DeviceInfo{}, false
	}

	lower := toLower(name)

	for _, d := range devices {
		if toLower(d.Name) == lower {
			return d, true
		}
	}

	for _, d := range devices {
		if contains(toLower(d.Name), lower) {
			return d, true
		}
	}

	return audiooutput.DeviceInfo{}, false
}

func deviceInfo(id C.AudioDeviceID) (audiooutput.DeviceInfo, error) {
	nameBuf := make([]byte, 256)
	name := fmt.Sprintf("Device %d", uint32(id))

	if status := C.ca_get_device_name(id, (*C.char)(unsafe.Pointer(&nameBuf[0])), C.int(len(nameBuf))); status == C.noErr {
		name = C.GoString((*C.char)(unsafe.Pointer(&nameBuf[0])))
	}

	rates := make([]C.double, 16)
	var rateCount C.int

	var sampleRates []float64
	if status := C.ca_get_sample_rates(id, &rates[0], C.int(len(rates)), &rateCount); status == C.noErr {
		for i := 0; i < int(rateCount); i++ {
			sampleRates = append(sampleRates, float64(rates[i]))
		}
	} else {
		sampleRates = []float64{44100.0, 48000.0}
	}

	var current C.double

	currentRate := 48000.0
	if status := C.ca_get_current_sample_rate(id, &current); status == C.noErr {
		currentRate = float64(current)
	}

	return audiooutput.DeviceInfo{
		ID:                   uint32(id),
		Name:                 name,
		SupportedSampleRates: sampleRates,
		CurrentSampleRate:    currentRate,
		IsBluetooth:          C.ca_is_bluetooth(id) != 0,
	}, nil
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}

	return string(b)
}

func contains(haystack, needle string) bool {
	if len(needle) == 0 {
		return true
	}

	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}

	return false
}

// state is AudioOutput's lifecycle, mirroring spec.md §4.6's state machine.
type state int32

const (
	stateConstructed state = iota
	stateRunning
	statePaused
	stateStopped
)

// Output is the coreaudio implementation of audiooutput.Service, one per
// active track's output device.
type Output struct {
	config   audiooutput.Config
	deviceID C.AudioDeviceID
	unit     C.AudioUnit

	mu    sync.Mutex
	state state

	hogAcquired    bool
	originalRate   float64
	isHAL          bool
	actualFormat   hypha.AudioFormat
	outputMode     audiooutput.FormatMode

	handle cgo.Handle
	ctx    *callbackContext

	log zerolog.Logger
}

// New constructs an AudioOutput per spec.md §4.6's "Construction" policy:
// HAL path unless the device is Bluetooth or use_hal is false.
func New(cfg audiooutput.Config, opts ...Option) (*Output, error) {
	o := &Output{config: cfg, log: audiooutput.NopLogger()}

	for _, opt := range opts {
		opt(o)
	}

	var devID C.AudioDeviceID
	isBluetooth := false

	if cfg.DeviceID != nil {
		devID = C.AudioDeviceID(*cfg.DeviceID)
		info, err := deviceInfo(devID)
		if err == nil {
			isBluetooth = info.IsBluetooth
		}
	} else {
		var status C.OSStatus
		status = C.ca_get_default_device(&devID)
		if status != C.noErr || devID == 0 {
			return nil, audiooutput.ErrNoDefaultDevice
		}

		info, err := deviceInfo(devID)
		if err == nil {
			isBluetooth = info.IsBluetooth
		}
	}

	o.deviceID = devID
	o.isHAL = cfg.UseHAL && !isBluetooth

	var unit C.AudioUnit
	if status := C.ca_new_audio_unit(boolToInt(o.isHAL), &unit); status != C.noErr {
		return nil, audiooutput.ErrNoAudioComponent
	}

	o.unit = unit

	return o, nil
}

func boolToInt(b bool) C.int {
	if b {
		return 1
	}

	return 0
}

// Start implements spec.md §4.6's seven-step Start sequence.
func (o *Output) Start(format hypha.AudioFormat, ringBuf *ring.Buffer[int32], playStats *stats.Playback) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateConstructed {
		return audiooutput.ErrInvalidState
	}

	deviceRate := float64(o.config.SampleRate)

	if o.deviceID != 0 {
		if o.config.ExclusiveMode {
			if C.ca_set_hog_mode(o.deviceID, C.pid_t(processID())) == C.noErr {
				o.hogAcquired = true
				o.log.Info().Msg("acquired exclusive (hog) mode")
			} else {
				o.log.Warn().Msg("failed to acquire exclusive mode, continuing in shared mode")
			}
		}

		var current C.double
		_ = C.ca_get_current_sample_rate(o.deviceID, &current)
		o.originalRate = float64(current)

		supported := supportedRatesFor(o.deviceID)
		chosen := audiooutput.SelectOptimalSampleRate(float64(format.SampleRate), supported)

		if abs64(chosen-float64(format.SampleRate)) > 1.0 {
			o.log.Info().Float64("requested", float64(format.SampleRate)).Float64("chosen", chosen).Msg("sample rate fallback")
		}

		setSampleRateVerified(o.deviceID, chosen, o.log)

		var actual C.double
		if C.ca_get_current_sample_rate(o.deviceID, &actual) == C.noErr {
			deviceRate = float64(actual)
		} else {
			deviceRate = chosen
		}

		_ = C.ca_set_buffer_size(o.deviceID, C.UInt32(o.config.BufferFrames))
		_ = C.ca_set_current_device(o.unit, o.deviceID)
	}

	_ = C.ca_enable_io(o.unit)

	needsSRC := uint32(deviceRate) != format.SampleRate
	mode := o.negotiateFormat(format, deviceRate, needsSRC)

	var bufFrames C.UInt32
	frames := uint32(4096)
	if o.deviceID != 0 && C.ca_get_buffer_size(o.deviceID, &bufFrames) == C.noErr && uint32(bufFrames) > frames {
		frames = uint32(bufFrames)
	}

	maxSamples := int(frames) * int(format.Channels)
	if maxSamples < 8192*int(format.Channels) {
		maxSamples = 8192 * int(format.Channels)
	}

	o.actualFormat = hypha.AudioFormat{
		SampleRate:    uint32(deviceRate),
		Channels:      format.Channels,
		BitsPerSample: format.BitsPerSample,
		Layout:        hypha.Interleaved,
	}
	o.outputMode = mode

	if !ringBuf.LockMemory() {
		o.log.Warn().Msg("failed to lock ring buffer memory, continuing unlocked")
	}

	ctx := newCallbackContext(ringBuf, playStats, o.actualFormat, mode, format.BitsPerSample, maxSamples)
	ctx.lockMemory()
	o.ctx = ctx
	o.handle = cgo.NewHandle(ctx)

	if status := C.ca_set_render_callback(o.unit, unsafe.Pointer(uintptr(o.handle))); status != C.noErr { //nolint:govet // cgo.Handle round-trips through C as an opaque integer, never dereferenced on the Go side
		o.handle.Delete()
		o.handle = 0

		return audiooutput.ErrorFor("set_render_callback", int32(status))
	}

	if status := C.AudioUnitInitialize(o.unit); status != C.noErr {
		return audiooutput.ErrorFor("AudioUnitInitialize", int32(status))
	}

	if status := C.AudioOutputUnitStart(o.unit); status != C.noErr {
		return audiooutput.ErrorFor("AudioOutputUnitStart", int32(status))
	}

	o.state = stateRunning

	return nil
}

// negotiateFormat implements the physical-format-then-ASBD fallback
// chain from spec.md §4.6 step 4.
func (o *Output) negotiateFormat(format hypha.AudioFormat, deviceRate float64, needsSRC bool) audiooutput.FormatMode {
	if o.config.IntegerMode && o.deviceID != 0 {
		if !needsSRC {
			if mode, ok := o.tryPhysicalFormat(format, deviceRate); ok {
				return mode
			}
		}

		if mode, ok := o.tryIntegerFormat(format, deviceRate); ok {
			return mode
		}
	}

	_ = C.ca_set_input_stream_format(o.unit, deviceRate, C.UInt32(format.Channels), 32, 1)

	return audiooutput.Float32
}

func (o *Output) tryPhysicalFormat(format hypha.AudioFormat, deviceRate float64) (audiooutput.FormatMode, bool) {
	var streamID C.AudioStreamID
	if C.ca_get_output_stream_id(o.deviceID, &streamID) != C.noErr {
		return 0, false
	}

	if C.ca_set_physical_format(streamID, deviceRate, C.UInt32(format.Channels), 32) == C.noErr {
		return audiooutput.Int32, true
	}

	if C.ca_set_physical_format(streamID, deviceRate, C.UInt32(format.Channels), 24) == C.noErr {
		return audiooutput.Int24, true
	}

	return 0, false
}

func (o *Output) tryIntegerFormat(format hypha.AudioFormat, deviceRate float64) (audiooutput.FormatMode, bool) {
	if C.ca_set_input_stream_format(o.unit, deviceRate, C.UInt32(format.Channels), 32, 0) == C.noErr {
		return audiooutput.Int32, true
	}

	if C.ca_set_input_stream_format(o.unit, deviceRate, C.UInt32(format.Channels), 24, 0) == C.noErr {
		return audiooutput.Int24, true
	}

	return 0, false
}

func supportedRatesFor(devID C.AudioDeviceID) []float64 {
	rates := make([]C.double, 16)
	var count C.int

	if C.ca_get_sample_rates(devID, &rates[0], C.int(len(rates)), &count) != C.noErr {
		return []float64{44100.0, 48000.0}
	}

	out := make([]float64, count)
	for i := range out {
		out[i] = float64(rates[i])
	}

	return out
}

// setSampleRateVerified applies spec.md §4.6 step 2's 10x20ms verify loop.
func setSampleRateVerified(devID C.AudioDeviceID, rate float64, log zerolog.Logger) {
	var current C.double
	if C.ca_get_current_sample_rate(devID, &current) == C.noErr && abs64(float64(current)-rate) < 1.0 {
		return
	}

	if C.ca_set_sample_rate(devID, C.double(rate)) != C.noErr {
		log.Warn().Float64("rate", rate).Msg("cannot set sample rate, using device default")

		return
	}

	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)

		var actual C.double
		if C.ca_get_current_sample_rate(devID, &actual) == C.noErr && abs64(float64(actual)-rate) < 1.0 {
			log.Info().Float64("rate", float64(actual)).Int("attempt", i+1).Msg("sample rate verified")

			return
		}
	}

	log.Warn().Float64("requested", rate).Msg("sample rate verification failed after 10 attempts")
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}

// Pause implements spec.md §4.6's pause: halts the device, keeps the
// callback registered.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateRunning {
		return audiooutput.ErrInvalidState
	}

	if status := C.AudioOutputUnitStop(o.unit); status != C.noErr {
		return audiooutput.ErrorFor("AudioOutputUnitStop", int32(status))
	}

	o.state = statePaused

	return nil
}

// Resume restarts a paused unit.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != statePaused {
		return audiooutput.ErrInvalidState
	}

	if status := C.AudioOutputUnitStart(o.unit); status != C.noErr {
		return audiooutput.ErrorFor("AudioOutputUnitStart", int32(status))
	}

	o.state = stateRunning

	return nil
}

// Stop implements spec.md §4.6's stop: idempotent teardown that restores
// the original device sample rate and releases hog mode.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == stateStopped {
		return nil
	}

	if o.ctx != nil {
		o.ctx.running.Store(false)
	}

	_ = C.AudioOutputUnitStop(o.unit)
	_ = C.AudioUnitUninitialize(o.unit)
	_ = C.AudioComponentInstanceDispose(o.unit)

	if o.hogAcquired {
		_ = C.ca_set_hog_mode(o.deviceID, -1)
		o.hogAcquired = false
	}

	if o.deviceID != 0 && o.originalRate > 0 {
		_ = C.ca_set_sample_rate(o.deviceID, C.double(o.originalRate))
	}

	if o.ctx != nil {
		o.ctx.unlockMemory()
	}

	if o.handle != 0 {
		o.handle.Delete()
		o.handle = 0
	}

	o.state = stateStopped

	return nil
}

func (o *Output) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state == stateRunning
}

func (o *Output) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state == statePaused
}

func (o *Output) ActualFormat() hypha.AudioFormat {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.actualFormat
}

// IsBitPerfect implements spec.md §4.6's predicate: HAL path, exclusive
// mode, an integer output mode, and a matching device rate.
func (o *Output) IsBitPerfect(srcRate uint32) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.isHAL && o.hogAcquired &&
		(o.outputMode == audiooutput.Int32 || o.outputMode == audiooutput.Int24) &&
		o.actualFormat.SampleRate == srcRate
}

// callbackContext mirrors spec.md §4.6's CallbackContext: everything the
// render callback touches is preallocated here before Start registers it.
type callbackContext struct {
	ringBuf *ring.Buffer[int32]
	stats   *stats.Playback
	format  hypha.AudioFormat
	mode    audiooutput.FormatMode

	sampleBuffer []int32
	ditherBuf    []float32
	dither       *dither.State
	sourceBits   uint16

	running         atomic.Bool
	threadPolicySet atomic.Bool
}

func newCallbackContext(ringBuf *ring.Buffer[int32], playStats *stats.Playback, format hypha.AudioFormat, mode audiooutput.FormatMode, sourceBits uint16, maxSamples int) *callbackContext {
	seed := uint32(time.Now().UnixNano())

	ctx := &callbackContext{
		ringBuf:      ringBuf,
		stats:        playStats,
		format:       format,
		mode:         mode,
		sampleBuffer: make([]int32, maxSamples),
		ditherBuf:    make([]float32, maxSamples),
		dither:       dither.New(seed),
		sourceBits:   sourceBits,
	}
	ctx.running.Store(true)

	return ctx
}

func (c *callbackContext) lockMemory() {
	_ = lockSlice(c.sampleBuffer)
	_ = lockSliceF32(c.ditherBuf)
}

func (c *callbackContext) unlockMemory() {
	unlockSlice(c.sampleBuffer)
	unlockSliceF32(c.ditherBuf)
}
