package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetListenAddr(); got != ":20777" {
		t.Errorf("GetListenAddr = %q, want :20777", got)
	}
	if got := cfg.GetSampleRate(); got != 60.0 {
		t.Errorf("GetSampleRate = %v, want 60", got)
	}
	if got := cfg.GetStalenessLimit(); got != 500*time.Millisecond {
		t.Errorf("GetStalenessLimit = %v, want 500ms", got)
	}
	if got := cfg.GetWashoutFreq(); got != 1.0 {
		t.Errorf("GetWashoutFreq = %v, want 1.0", got)
	}
	if got := cfg.GetSustainedFreq(); got != 0.2 {
		t.Errorf("GetSustainedFreq = %v, want 0.2", got)
	}
	if got := cfg.GetMinCommandInterval(); got != time.Second/30 {
		t.Errorf("GetMinCommandInterval = %v, want %v", got, time.Second/30)
	}
	if got := cfg.GetTransport(); got != "dry-run" {
		t.Errorf("GetTransport = %q, want dry-run", got)
	}
	if got := cfg.GetSMCCenterMM(); got != 450.0 {
		t.Errorf("GetSMCCenterMM = %v, want 450", got)
	}
	if got := cfg.GetMoogAddress(); got != "192.168.1.100:991" {
		t.Errorf("GetMoogAddress = %q, want 192.168.1.100:991", got)
	}
	if err := cfg.GetLimits().Validate(); err != nil {
		t.Errorf("default limits invalid: %v", err)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfigFile(t, "rig.json", `{
		"washout_freq_hz": 2.5,
		"staleness_limit": "250ms",
		"transport": "smc",
		"surge_limits": [-0.1, 0.2]
	}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	// Overridden fields take the file values.
	if got := cfg.GetWashoutFreq(); got != 2.5 {
		t.Errorf("GetWashoutFreq = %v, want 2.5", got)
	}
	if got := cfg.GetStalenessLimit(); got != 250*time.Millisecond {
		t.Errorf("GetStalenessLimit = %v, want 250ms", got)
	}
	if got := cfg.GetTransport(); got != "smc" {
		t.Errorf("GetTransport = %q, want smc", got)
	}
	limits := cfg.GetLimits()
	if limits.Surge.Min != -0.1 || limits.Surge.Max != 0.2 {
		t.Errorf("surge limits = %+v, want [-0.1, 0.2]", limits.Surge)
	}

	// Everything else keeps defaults.
	if got := cfg.GetSustainedFreq(); got != 0.2 {
		t.Errorf("GetSustainedFreq = %v, want default 0.2", got)
	}
	if limits.Pitch.Max != 0.3840 {
		t.Errorf("pitch max = %v, want default 0.384", limits.Pitch.Max)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"wrong extension", "rig.yaml", `{}`},
		{"invalid JSON", "rig.json", `{not json`},
		{"negative sample rate", "rig.json", `{"sample_rate": -1}`},
		{"zero washout freq", "rig.json", `{"washout_freq_hz": 0}`},
		{"negative deadband", "rig.json", `{"deadband": -0.1}`},
		{"bad duration", "rig.json", `{"staleness_limit": "half a second"}`},
		{"unknown transport", "rig.json", `{"transport": "hydraulic"}`},
		{"inverted limits", "rig.json", `{"surge_limits": [0.2, -0.1]}`},
		{"limits exclude home", "rig.json", `{"heave_limits": [0.1, 0.2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.file, tt.content)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaultsFileParses(t *testing.T) {
	// The shipped defaults file must load and agree with the compiled-in
	// defaults for the values it pins.
	cfg, err := LoadTuningConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("defaults file failed to load: %v", err)
	}
	if got := cfg.GetSampleRate(); got != 60.0 {
		t.Errorf("defaults sample rate = %v, want 60", got)
	}
	if got := cfg.GetTransport(); got != "dry-run" {
		t.Errorf("defaults transport = %q, want dry-run", got)
	}
	if err := cfg.GetLimits().Validate(); err != nil {
		t.Errorf("defaults limits invalid: %v", err)
	}
}

func TestEffectiveJSON(t *testing.T) {
	out, err := EmptyTuningConfig().EffectiveJSON()
	if err != nil {
		t.Fatalf("EffectiveJSON failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("EffectiveJSON output is not valid JSON: %v", err)
	}
	for _, key := range []string{"listen_addr", "washout_freq_hz", "min_command_interval", "transport"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("EffectiveJSON missing %q", key)
		}
	}
}
