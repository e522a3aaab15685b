//go:build darwin

package engine

import (
	"github.com/rs/zerolog"

	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/audiooutput/coreaudio"
	"github.com/mycophonic/hypha/audiooutput/otoout"
)

// newPlatformBackend picks coreaudio's AUHAL backend unless the target
// device is Bluetooth or the caller set use_hal=false, per spec.md §4.6's
// construction policy: Bluetooth devices fall back to the mixer path
// because exclusive/integer formats fail on them.
func newPlatformBackend(cfg audiooutput.Config, log zerolog.Logger) (audiooutput.Service, error) {
	if !cfg.UseHAL {
		return otoout.New(cfg, otoout.WithLogger(log))
	}

	isBluetooth := false

	if cfg.DeviceID != nil {
		id := *cfg.DeviceID

		devices, err := coreaudio.EnumerateOutputDevices()
		if err == nil {
			for _, d := range devices {
				if d.ID == id {
					isBluetooth = d.IsBluetooth

					break
				}
			}
		}
	} else if info, err := coreaudio.GetDefaultDevice(); err == nil {
		isBluetooth = info.IsBluetooth
	}

	if isBluetooth {
		log.Info().Msg("default device is Bluetooth, using mixer-routed output")

		return otoout.New(cfg, otoout.WithLogger(log))
	}

	return coreaudio.New(cfg, coreaudio.WithLogger(log))
}
