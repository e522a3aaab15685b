//go:build darwin

package engine

/*
#include <pthread.h>
#include <mach/mach.h>
#include <mach/thread_policy.h>
#include <sys/resource.h>

extern int pthread_set_qos_class_self_np(unsigned int qos_class, int relative_priority);

static int set_qos_user_interactive(void) {
	// QOS_CLASS_USER_INTERACTIVE
	return pthread_set_qos_class_self_np(0x21, 0);
}

typedef struct {
	uint32_t period;
	uint32_t computation;
	uint32_t constraint;
	uint32_t preemptible;
} dec_time_constraint_policy_t;

static kern_return_t dec_set_time_constraint(uint32_t period, uint32_t computation, uint32_t constraint) {
	dec_time_constraint_policy_t policy;
	policy.period = period;
	policy.computation = computation;
	policy.constraint = constraint;
	policy.preemptible = 1;

	return thread_policy_set(mach_thread_self(), THREAD_TIME_CONSTRAINT_POLICY,
		(thread_policy_t)&policy, THREAD_TIME_CONSTRAINT_POLICY_COUNT);
}

typedef struct {
	int affinity_tag;
} dec_affinity_policy_t;

static kern_return_t dec_set_affinity_tag(int tag) {
	dec_affinity_policy_t policy;
	policy.affinity_tag = tag;

	return thread_policy_set(mach_thread_self(), THREAD_AFFINITY_POLICY,
		(thread_policy_t)&policy, THREAD_AFFINITY_POLICY_COUNT);
}

static void dec_setpriority_fallback(void) {
	setpriority(PRIO_PROCESS, 0, -10);
}
*/
import "C"

import (
	"github.com/mycophonic/hypha/internal/timebase"
)

// setDecoderThreadPriority mirrors original_source's three-tier decoder
// thread priority: a QoS class (always succeeds, no privilege needed), a
// Mach THREAD_TIME_CONSTRAINT_POLICY sized from buffer_frames/sample_rate
// (period floored at 1ms, since the decoder isn't the render thread and
// doesn't need sub-millisecond periods), and a shared affinity tag with
// the render callback so the scheduler prefers placing the two threads on
// cache-adjacent cores. Falls back to a nice value if the realtime policy
// is refused.
func setDecoderThreadPriority(bufferFrames, sampleRate uint32) {
	C.set_qos_user_interactive()

	if sampleRate == 0 {
		return
	}

	periodNs := uint64(bufferFrames) * 1_000_000_000 / uint64(sampleRate)
	if periodNs < 1_000_000 {
		periodNs = 1_000_000
	}

	computationNs := periodNs / 2

	periodTicks := uint32(timebase.NsToTicks(periodNs))
	computationTicks := uint32(timebase.NsToTicks(computationNs))

	if result := C.dec_set_time_constraint(C.uint32_t(periodTicks), C.uint32_t(computationTicks), C.uint32_t(periodTicks)); result != C.KERN_SUCCESS {
		C.dec_setpriority_fallback()
	}

	const audioThreadAffinityTag = 1

	C.dec_set_affinity_tag(C.int(audioThreadAffinityTag))
}
