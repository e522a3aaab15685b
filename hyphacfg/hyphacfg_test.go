package hyphacfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mycophonic/hypha/engine"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}

	want := engine.DefaultConfig()
	if cfg != want {
		t.Errorf("Load(\"\") = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadNonexistentFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load() on missing file: %v", err)
	}

	if cfg.Output.SampleRate != 48000 {
		t.Errorf("SampleRate = %d, want default 48000", cfg.Output.SampleRate)
	}
}

func TestLoadOverlaysOnlySetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hypha.toml")

	contents := `
prebuffer_ratio = 0.75

[output]
sample_rate = 96000
exclusive_mode = false
`

	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}

	if cfg.PrebufferRatio != 0.75 {
		t.Errorf("PrebufferRatio = %v, want 0.75", cfg.PrebufferRatio)
	}

	if cfg.Output.SampleRate != 96000 {
		t.Errorf("Output.SampleRate = %d, want 96000", cfg.Output.SampleRate)
	}

	if cfg.Output.BufferFrames != 512 {
		t.Errorf("Output.BufferFrames = %d, want default 512 (unset in file)", cfg.Output.BufferFrames)
	}

	if cfg.RingCapacity != engine.DefaultConfig().RingCapacity {
		t.Errorf("RingCapacity = %d, want default (unset in file)", cfg.RingCapacity)
	}

	if cfg.Output.ExclusiveMode {
		t.Error("Output.ExclusiveMode = true, want false as explicitly set in file")
	}

	if !cfg.Output.IntegerMode {
		t.Errorf("Output.IntegerMode = false, want default true (unset in file)")
	}
}

func TestApplyFlagOverridesLeavesUnsetFieldsAlone(t *testing.T) {
	base := engine.DefaultConfig()

	got := ApplyFlagOverrides(base, 0, 0, nil, nil, nil, -1)
	if got != base {
		t.Errorf("ApplyFlagOverrides with all-unset args = %+v, want unchanged %+v", got, base)
	}

	got = ApplyFlagOverrides(base, 44100, 256, nil, nil, nil, 3)
	if got.Output.SampleRate != 44100 || got.Output.BufferFrames != 256 {
		t.Errorf("flag overrides not applied: %+v", got)
	}

	if got.Output.DeviceID == nil || *got.Output.DeviceID != 3 {
		t.Errorf("DeviceID override not applied: %+v", got.Output.DeviceID)
	}
}
