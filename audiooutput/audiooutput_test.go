package audiooutput

import "testing"

func TestSelectOptimalSampleRate(t *testing.T) {
	tests := []struct {
		name      string
		requested float64
		supported []float64
		want      float64
	}{
		{"exact match", 48000, []float64{44100, 48000, 96000}, 48000},
		{"96 downsamples to 48 family", 96000, []float64{44100, 48000}, 48000},
		{"192 downsamples to 48 within family", 192000, []float64{48000, 96000}, 96000},
		{"88200 downsamples to 44100 family", 88200, []float64{44100, 48000}, 44100},
		{"nearest picks the closer of two unrelated rates", 45000, []float64{44100, 48000}, 44100},
		{"an above-requested best is not displaced by a closer below-requested one", 50000, []float64{52000, 49500}, 52000},
		{"nearest falls back below when nothing is >=", 200000, []float64{44100, 48000}, 48000},
		{"empty supported list returns requested unchanged", 48000, nil, 48000},
		{"unrelated family picks nearest", 32000, []float64{44100, 48000}, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectOptimalSampleRate(tt.requested, tt.supported)
			if got != tt.want {
				t.Errorf("SelectOptimalSampleRate(%v, %v) = %v, want %v", tt.requested, tt.supported, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SampleRate != 48000 || cfg.BufferFrames != 512 || !cfg.ExclusiveMode || !cfg.IntegerMode || !cfg.UseHAL || cfg.DeviceID != nil {
		t.Errorf("DefaultConfig() = %+v, want spec.md defaults 48000/512/true/true/true/nil", cfg)
	}
}

func TestFormatModeString(t *testing.T) {
	cases := map[FormatMode]string{Float32: "float32", Int32: "int32", Int24: "int24"}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("FormatMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}
