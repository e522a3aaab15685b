//go:build darwin

package coreaudio

/*
#include <mach/mach.h>
#include <mach/thread_policy.h>

static kern_return_t set_time_constraint_policy(uint32_t period, uint32_t computation, uint32_t constraint, int preemptible) {
	thread_time_constraint_policy_data_t policy;
	policy.period = period;
	policy.computation = computation;
	policy.constraint = constraint;
	policy.preemptible = preemptible;

	return thread_policy_set(mach_thread_self(), THREAD_TIME_CONSTRAINT_POLICY,
		(thread_policy_t)&policy, THREAD_TIME_CONSTRAINT_POLICY_COUNT);
}
*/
import "C"

import "github.com/mycophonic/hypha/internal/timebase"

// setRealtimeThreadPolicy installs a THREAD_TIME_CONSTRAINT_POLICY on the
// calling (render callback) thread, per spec.md §4.6's render callback
// contract: period = assumedBufferFrames (512) / sample_rate, computation
// = period/2, constraint = period, preemptible. The period always uses
// that fixed 512-frame count; the configured BufferFrames is not
// consulted. Runs exactly once, on the first callback invocation — see
// callbackContext.threadPolicySet.
func setRealtimeThreadPolicy(sampleRate uint32) bool {
	const assumedBufferFrames = 512

	if sampleRate == 0 {
		return false
	}

	periodNs := uint64(assumedBufferFrames) * 1_000_000_000 / uint64(sampleRate)
	periodTicks := uint32(timebase.NsToTicks(periodNs))
	computationTicks := uint32(timebase.NsToTicks(periodNs / 2))

	result := C.set_time_constraint_policy(C.uint32_t(periodTicks), C.uint32_t(computationTicks), C.uint32_t(periodTicks), 1)

	return result == C.KERN_SUCCESS
}
