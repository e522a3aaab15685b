//go:build !darwin

package main

import "github.com/mycophonic/hypha/audiooutput"

// listDevices has nothing to enumerate off Darwin: the otoout backend
// routes through the OS mixer's single default device.
func listDevices() ([]audiooutput.DeviceInfo, error) {
	return nil, nil
}
