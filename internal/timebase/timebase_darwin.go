//go:build darwin

package timebase

/*
#include <mach/mach_time.h>
*/
import "C"

// platformRatio queries mach_timebase_info once: the numerator/denominator
// that converts mach_absolute_time ticks to nanoseconds on this machine.
func platformRatio() (uint64, uint64) {
	var info C.mach_timebase_info_data_t

	C.mach_timebase_info(&info)

	return uint64(info.numer), uint64(info.denom)
}

func platformNowTicks() uint64 {
	return uint64(C.mach_absolute_time())
}
