package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func devicesCommand() *cli.Command {
	return &cli.Command{
		Name:   "devices",
		Usage:  "List output devices known to the platform backend",
		Action: runDevices,
	}
}

func runDevices(_ context.Context, _ *cli.Command) error {
	devices, err := listDevices()
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	if len(devices) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "no output devices reported (mixer-routed fallback has no enumerable list)")

		return nil
	}

	for _, d := range devices {
		bt := ""
		if d.IsBluetooth {
			bt = " [bluetooth]"
		}

		fmt.Printf("%d\t%s\t%.0fHz current, %d rates supported%s\n",
			d.ID, d.Name, d.CurrentSampleRate, len(d.SupportedSampleRates), bt)
	}

	return nil
}
