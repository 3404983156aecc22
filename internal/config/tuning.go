// Package config loads the rig tuning file. The schema uses pointer
// fields so partial configs are safe: anything omitted from the JSON
// falls back to the Get* defaults, which describe the LEL25LT/6DOF2000E
// test rigs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/simrig/internal/safety"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/rig.defaults.json"

// AxisLimitsConfig is a [min, max] pair in axis units.
type AxisLimitsConfig [2]float64

// TuningConfig is the root configuration for the motion rig.
type TuningConfig struct {
	// Telemetry params
	ListenAddr     *string  `json:"listen_addr,omitempty"`
	ReceiveBuffer  *int     `json:"receive_buffer,omitempty"`
	SampleRate     *float64 `json:"sample_rate,omitempty"`
	StalenessLimit *string  `json:"staleness_limit,omitempty"` // duration string like "500ms"

	// Washout filter params
	WashoutFreq      *float64 `json:"washout_freq_hz,omitempty"`
	SustainedFreq    *float64 `json:"sustained_freq_hz,omitempty"`
	OnsetGain        *float64 `json:"onset_gain,omitempty"`
	SustainedGain    *float64 `json:"sustained_gain,omitempty"`
	Deadband         *float64 `json:"deadband,omitempty"`
	TranslationScale *float64 `json:"translation_scale,omitempty"`
	RotationScale    *float64 `json:"rotation_scale,omitempty"`
	TiltScale        *float64 `json:"tilt_scale,omitempty"`

	// Scheduler params
	MinCommandInterval  *string  `json:"min_command_interval,omitempty"` // duration string like "33ms"
	SlewRateTranslation *float64 `json:"slew_rate_translation,omitempty"`
	SlewRateRotation    *float64 `json:"slew_rate_rotation,omitempty"`
	PositionThreshold   *float64 `json:"position_threshold,omitempty"`
	MaxRetries          *int     `json:"max_retries,omitempty"`
	RetryBackoff        *string  `json:"retry_backoff,omitempty"`

	// Safety envelope, [min, max] per axis. Asymmetric limits supported.
	SurgeLimits *AxisLimitsConfig `json:"surge_limits,omitempty"`
	SwayLimits  *AxisLimitsConfig `json:"sway_limits,omitempty"`
	HeaveLimits *AxisLimitsConfig `json:"heave_limits,omitempty"`
	RollLimits  *AxisLimitsConfig `json:"roll_limits,omitempty"`
	PitchLimits *AxisLimitsConfig `json:"pitch_limits,omitempty"`
	YawLimits   *AxisLimitsConfig `json:"yaw_limits,omitempty"`

	// Hardware selection and endpoints
	Transport   *string  `json:"transport,omitempty"` // "smc", "moog" or "dry-run"
	SMCPort     *string  `json:"smc_port,omitempty"`
	SMCCenterMM *float64 `json:"smc_center_mm,omitempty"`
	SMCMinMM    *float64 `json:"smc_min_mm,omitempty"`
	SMCMaxMM    *float64 `json:"smc_max_mm,omitempty"`
	MoogAddress *string  `json:"moog_address,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %f", *c.SampleRate)
	}
	if c.Deadband != nil && *c.Deadband < 0 {
		return fmt.Errorf("deadband must be non-negative, got %f", *c.Deadband)
	}
	if c.WashoutFreq != nil && *c.WashoutFreq <= 0 {
		return fmt.Errorf("washout_freq_hz must be positive, got %f", *c.WashoutFreq)
	}
	if c.SustainedFreq != nil && *c.SustainedFreq <= 0 {
		return fmt.Errorf("sustained_freq_hz must be positive, got %f", *c.SustainedFreq)
	}

	for _, d := range []struct {
		name  string
		value *string
	}{
		{"staleness_limit", c.StalenessLimit},
		{"min_command_interval", c.MinCommandInterval},
		{"retry_backoff", c.RetryBackoff},
	} {
		if d.value != nil && *d.value != "" {
			if _, err := time.ParseDuration(*d.value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
			}
		}
	}

	if c.Transport != nil {
		switch *c.Transport {
		case "smc", "moog", "dry-run":
		default:
			return fmt.Errorf("transport must be smc, moog or dry-run, got %q", *c.Transport)
		}
	}

	return c.GetLimits().Validate()
}

func duration(s *string, fallback time.Duration) time.Duration {
	if s == nil || *s == "" {
		return fallback
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fallback
	}
	return d
}

// GetListenAddr returns the telemetry listen address or the default.
func (c *TuningConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":20777" // F1 game default UDP port
	}
	return *c.ListenAddr
}

// GetReceiveBuffer returns the UDP receive buffer size or the default.
func (c *TuningConfig) GetReceiveBuffer() int {
	if c.ReceiveBuffer == nil {
		return 1 << 20
	}
	return *c.ReceiveBuffer
}

// GetSampleRate returns the telemetry sample rate or the default.
func (c *TuningConfig) GetSampleRate() float64 {
	if c.SampleRate == nil {
		return 60.0
	}
	return *c.SampleRate
}

// GetStalenessLimit parses and returns the staleness timeout.
func (c *TuningConfig) GetStalenessLimit() time.Duration {
	return duration(c.StalenessLimit, 500*time.Millisecond)
}

// GetWashoutFreq returns the onset high-pass cutoff or the default.
func (c *TuningConfig) GetWashoutFreq() float64 {
	if c.WashoutFreq == nil {
		return 1.0
	}
	return *c.WashoutFreq
}

// GetSustainedFreq returns the tilt low-pass cutoff or the default.
func (c *TuningConfig) GetSustainedFreq() float64 {
	if c.SustainedFreq == nil {
		return 0.2
	}
	return *c.SustainedFreq
}

// GetOnsetGain returns the onset channel gain or the default.
func (c *TuningConfig) GetOnsetGain() float64 {
	if c.OnsetGain == nil {
		return 1.0
	}
	return *c.OnsetGain
}

// GetSustainedGain returns the sustained channel gain or the default.
func (c *TuningConfig) GetSustainedGain() float64 {
	if c.SustainedGain == nil {
		return 1.0
	}
	return *c.SustainedGain
}

// GetDeadband returns the input deadband or the default.
func (c *TuningConfig) GetDeadband() float64 {
	if c.Deadband == nil {
		return 0.05
	}
	return *c.Deadband
}

// GetTranslationScale returns meters of travel per G or the default.
func (c *TuningConfig) GetTranslationScale() float64 {
	if c.TranslationScale == nil {
		return 0.05
	}
	return *c.TranslationScale
}

// GetRotationScale returns platform radians per telemetry radian or the default.
func (c *TuningConfig) GetRotationScale() float64 {
	if c.RotationScale == nil {
		return 0.3
	}
	return *c.RotationScale
}

// GetTiltScale returns tilt-coordination radians per G or the default.
func (c *TuningConfig) GetTiltScale() float64 {
	if c.TiltScale == nil {
		return 0.1
	}
	return *c.TiltScale
}

// GetMinCommandInterval parses and returns the dispatch interval floor.
func (c *TuningConfig) GetMinCommandInterval() time.Duration {
	return duration(c.MinCommandInterval, time.Second/30)
}

// GetSlewRateTranslation returns the translation slew bound (m/s).
func (c *TuningConfig) GetSlewRateTranslation() float64 {
	if c.SlewRateTranslation == nil {
		return 0.5
	}
	return *c.SlewRateTranslation
}

// GetSlewRateRotation returns the rotation slew bound (rad/s).
func (c *TuningConfig) GetSlewRateRotation() float64 {
	if c.SlewRateRotation == nil {
		return 1.5
	}
	return *c.SlewRateRotation
}

// GetPositionThreshold returns the minimum-movement threshold.
func (c *TuningConfig) GetPositionThreshold() float64 {
	if c.PositionThreshold == nil {
		return 0.001
	}
	return *c.PositionThreshold
}

// GetMaxRetries returns the transport retry budget.
func (c *TuningConfig) GetMaxRetries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// GetRetryBackoff parses and returns the initial retry backoff.
func (c *TuningConfig) GetRetryBackoff() time.Duration {
	return duration(c.RetryBackoff, 10*time.Millisecond)
}

// GetLimits assembles the safety envelope, axis by axis, falling back to
// the platform defaults for any axis not configured.
func (c *TuningConfig) GetLimits() safety.Limits {
	limits := safety.DefaultLimits()
	assign := func(dst *safety.AxisLimits, src *AxisLimitsConfig) {
		if src != nil {
			dst.Min = src[0]
			dst.Max = src[1]
		}
	}
	assign(&limits.Surge, c.SurgeLimits)
	assign(&limits.Sway, c.SwayLimits)
	assign(&limits.Heave, c.HeaveLimits)
	assign(&limits.Roll, c.RollLimits)
	assign(&limits.Pitch, c.PitchLimits)
	assign(&limits.Yaw, c.YawLimits)
	return limits
}

// GetTransport returns the selected hardware family or the default.
func (c *TuningConfig) GetTransport() string {
	if c.Transport == nil {
		return "dry-run"
	}
	return *c.Transport
}

// GetSMCPort returns the SMC serial device path or the default.
func (c *TuningConfig) GetSMCPort() string {
	if c.SMCPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SMCPort
}

// GetSMCCenterMM returns the SMC center position or the default.
func (c *TuningConfig) GetSMCCenterMM() float64 {
	if c.SMCCenterMM == nil {
		return 450.0
	}
	return *c.SMCCenterMM
}

// GetSMCMinMM returns the SMC low soft limit or the default.
func (c *TuningConfig) GetSMCMinMM() float64 {
	if c.SMCMinMM == nil {
		return 50.0
	}
	return *c.SMCMinMM
}

// GetSMCMaxMM returns the SMC high soft limit or the default.
func (c *TuningConfig) GetSMCMaxMM() float64 {
	if c.SMCMaxMM == nil {
		return 850.0
	}
	return *c.SMCMaxMM
}

// GetMoogAddress returns the MOOG controller endpoint or the default.
func (c *TuningConfig) GetMoogAddress() string {
	if c.MoogAddress == nil {
		return "192.168.1.100:991"
	}
	return *c.MoogAddress
}

// EffectiveJSON serializes the effective (defaults-merged) tuning for
// display with --show-config.
func (c *TuningConfig) EffectiveJSON() ([]byte, error) {
	effective := map[string]interface{}{
		"listen_addr":           c.GetListenAddr(),
		"sample_rate":           c.GetSampleRate(),
		"staleness_limit":       c.GetStalenessLimit().String(),
		"washout_freq_hz":       c.GetWashoutFreq(),
		"sustained_freq_hz":     c.GetSustainedFreq(),
		"onset_gain":            c.GetOnsetGain(),
		"sustained_gain":        c.GetSustainedGain(),
		"deadband":              c.GetDeadband(),
		"translation_scale":     c.GetTranslationScale(),
		"rotation_scale":        c.GetRotationScale(),
		"tilt_scale":            c.GetTiltScale(),
		"min_command_interval":  c.GetMinCommandInterval().String(),
		"slew_rate_translation": c.GetSlewRateTranslation(),
		"slew_rate_rotation":    c.GetSlewRateRotation(),
		"position_threshold":    c.GetPositionThreshold(),
		"transport":             c.GetTransport(),
	}
	return json.MarshalIndent(effective, "", "  ")
}
