// Package hyphacfg loads engine.Config/audiooutput.Config from an
// optional TOML file, the way a CLI's persistent settings file is
// normally layered under its own flags: file values seed the struct,
// flags passed to cmd/hyphaplay override individual fields afterward.
package hyphacfg

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/mycophonic/hypha/audiooutput"
	"github.com/mycophonic/hypha/engine"
)

// File is the on-disk shape of a hypha config file, intentionally a flat
// mirror of engine.Config/audiooutput.Config rather than those structs
// directly: DeviceID is a string in the file (empty means "default
// device") since TOML has no native nil-vs-zero distinction for integers.
type File struct {
	RingCapacitySamples int     `toml:"ring_capacity_samples"`
	PrebufferRatio      float64 `toml:"prebuffer_ratio"`

	Output OutputFile `toml:"output"`
}

// OutputFile is the [output] table of a config file.
type OutputFile struct {
	SampleRate    uint32 `toml:"sample_rate"`
	BufferFrames  uint32 `toml:"buffer_frames"`
	ExclusiveMode bool   `toml:"exclusive_mode"`
	IntegerMode   bool   `toml:"integer_mode"`
	UseHAL        bool   `toml:"use_hal"`
	DeviceID      string `toml:"device_id"`
}

// Load reads and parses path into an engine.Config seeded with
// engine.DefaultConfig(), so a missing or partial file still yields
// every documented default. A missing file is not an error: it is
// treated the same as an empty one.
func Load(path string) (engine.Config, error) {
	cfg := engine.DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var f File

	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return cfg, fmt.Errorf("hyphacfg: parsing %s: %w", path, err)
	}

	applyFile(&cfg, f, meta)

	return cfg, nil
}

// applyFile overlays only the fields a config file actually set onto
// cfg, so an incomplete file never clobbers a default. Numeric fields
// use "nonzero" as the presence test; the three boolean output fields
// all default to true, so a file explicitly turning one off (a real,
// meaningful zero value) would be indistinguishable from "not set" under
// that same test — meta.IsDefined resolves the ambiguity by checking
// whether the key was actually present in the file.
func applyFile(cfg *engine.Config, f File, meta toml.MetaData) {
	if f.RingCapacitySamples > 0 {
		cfg.RingCapacity = f.RingCapacitySamples
	}

	if f.PrebufferRatio > 0 {
		cfg.PrebufferRatio = f.PrebufferRatio
	}

	out := &cfg.Output

	if f.Output.SampleRate > 0 {
		out.SampleRate = f.Output.SampleRate
	}

	if f.Output.BufferFrames > 0 {
		out.BufferFrames = f.Output.BufferFrames
	}

	if meta.IsDefined("output", "exclusive_mode") {
		out.ExclusiveMode = f.Output.ExclusiveMode
	}

	if meta.IsDefined("output", "integer_mode") {
		out.IntegerMode = f.Output.IntegerMode
	}

	if meta.IsDefined("output", "use_hal") {
		out.UseHAL = f.Output.UseHAL
	}

	if f.Output.DeviceID != "" {
		var id uint32
		if _, err := fmt.Sscanf(f.Output.DeviceID, "%d", &id); err == nil {
			out.DeviceID = &id
		}
	}
}

// ApplyFlagOverrides layers CLI-flag values on top of a loaded config,
// the priority order documented in SPEC_FULL.md §6: file, then flags. A
// zero value for any of these means "flag not set, keep what the file
// (or default) already has" — sampleRate/bufferFrames 0 and deviceID < 0
// are the respective "unset" sentinels a urfave/cli/v3 IntFlag/Uint32Flag
// reports when the user didn't pass it.
func ApplyFlagOverrides(cfg engine.Config, sampleRate, bufferFrames uint32, exclusive, integerMode, useHAL *bool, deviceID int64) engine.Config {
	if sampleRate > 0 {
		cfg.Output.SampleRate = sampleRate
	}

	if bufferFrames > 0 {
		cfg.Output.BufferFrames = bufferFrames
	}

	if exclusive != nil {
		cfg.Output.ExclusiveMode = *exclusive
	}

	if integerMode != nil {
		cfg.Output.IntegerMode = *integerMode
	}

	if useHAL != nil {
		cfg.Output.UseHAL = *useHAL
	}

	if deviceID >= 0 {
		id := uint32(deviceID)
		cfg.Output.DeviceID = &id
	}

	return cfg
}

// DefaultOutputConfig exposes audiooutput.DefaultConfig() so callers that
// only need the output half (e.g. a "devices" listing command) don't have
// to pull in engine.DefaultConfig()'s ring/prebuffer fields too.
func DefaultOutputConfig() audiooutput.Config {
	return audiooutput.DefaultConfig()
}
