//go:build darwin

package main

import (
	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/audiooutput/coreaudio"
)

func listDevices() ([]audiooutput.DeviceInfo, error) {
	return coreaudio.EnumerateOutputDevices()
}
