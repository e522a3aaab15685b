//go:build !darwin

package engine

import (
	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/audiooutput/otoout"
)

// newPlatformBackend on non-Darwin platforms always uses otoout: there is
// no HAL-equivalent direct device path wired here, so output is never
// bit-perfect off macOS.
func newPlatformBackend(cfg audiooutput.Config, log zerolog.Logger) (audiooutput.Service, error) {
	return otoout.New(cfg, otoout.WithLogger(log))
}
