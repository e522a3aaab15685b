//go:build !darwin

package engine

import "golang.org/x/sys/unix"

// setDecoderThreadPriority has no Mach-equivalent time-constraint policy
// off Darwin; it falls back to a best-effort nice value, same as the
// teacher's ported fallback when thread_policy_set itself is refused.
func setDecoderThreadPriority(_, _ uint32) {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, -10)
}
