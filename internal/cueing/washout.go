// Package cueing converts raw car physics into bounded platform motion
// using classical two-channel washout: a high-pass "onset" channel that
// reproduces transient acceleration and decays to neutral, and a low-pass
// "sustained" channel that tilts the platform so gravity stands in for
// sustained acceleration (tilt-coordination).
package cueing

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/simrig/internal/telemetry"
)

// ErrInvalidInput is returned when a sample carries non-finite values.
// Filter state is left untouched so NaN never enters the recurrences.
var ErrInvalidInput = errors.New("cueing: non-finite input sample")

// WashoutConfig holds the filter tuning for all axes.
type WashoutConfig struct {
	SampleRate float64 // telemetry rate in Hz (60 for F1 2024)

	WashoutFreq   float64 // onset high-pass cutoff, Hz
	SustainedFreq float64 // tilt low-pass cutoff, Hz

	OnsetGain     float64 // weight of the onset channel
	SustainedGain float64 // weight of the sustained channel

	Deadband float64 // inputs below this magnitude are treated as zero

	TranslationScale float64 // meters of travel per G (surge/sway/heave)
	RotationScale    float64 // platform radians per telemetry radian
	TiltScale        float64 // tilt-coordination radians per sustained G
}

// DefaultWashoutConfig returns conservative tuning for a 60 Hz feed.
func DefaultWashoutConfig() WashoutConfig {
	return WashoutConfig{
		SampleRate:       60.0,
		WashoutFreq:      1.0,
		SustainedFreq:    0.2,
		OnsetGain:        1.0,
		SustainedGain:    1.0,
		Deadband:         0.05,
		TranslationScale: 0.05,
		RotationScale:    0.3,
		TiltScale:        0.1,
	}
}

// channel is the per-axis washout state: the previous input plus the two
// filter outputs. Owned exclusively by one Washout instance.
type channel struct {
	prevInput     float64
	prevOnset     float64
	prevSustained float64
}

// step advances the channel one sample and returns the onset and
// sustained outputs.
//
// Onset is a discrete first-order high-pass:
//
//	onset[n] = alphaHP * (onset[n-1] + x[n] - x[n-1])
//
// so a constant input washes out to zero with time constant
// 1/(2*pi*washoutFreq). Sustained is a first-order low-pass:
//
//	sustained[n] = sustained[n-1] + alphaLP * (x[n] - sustained[n-1])
func (c *channel) step(x, alphaHP, alphaLP float64) (onset, sustained float64) {
	onset = alphaHP * (c.prevOnset + x - c.prevInput)
	sustained = c.prevSustained + alphaLP*(x-c.prevSustained)

	c.prevInput = x
	c.prevOnset = onset
	c.prevSustained = sustained
	return onset, sustained
}

func (c *channel) reset() {
	*c = channel{}
}

// Input channels. Surge/sway/heave carry G-forces, the tilt pair carries
// the same G-forces into rotation, and the attitude trio carries the
// telemetry angles.
const (
	chSurge = iota // longitudinal G
	chSway         // lateral G
	chHeave        // vertical G minus gravity baseline
	chPitchTilt    // longitudinal G -> pitch tilt-coordination
	chRollTilt     // lateral G -> roll tilt-coordination
	chYawAtt       // telemetry yaw
	chPitchAtt     // telemetry pitch
	chRollAtt      // telemetry roll
	numChannels
)

// Washout runs the two-channel filter for every axis. Not safe for
// concurrent use; one instance belongs to one pipeline.
type Washout struct {
	cfg      WashoutConfig
	alphaHP  float64
	alphaLP  float64
	channels [numChannels]channel
	samples  uint64
}

// NewWashout creates a filter with the given tuning.
func NewWashout(cfg WashoutConfig) (*Washout, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("cueing: sample rate must be positive, got %v", cfg.SampleRate)
	}
	if cfg.WashoutFreq <= 0 || cfg.SustainedFreq <= 0 {
		return nil, fmt.Errorf("cueing: cutoff frequencies must be positive")
	}

	dt := 1.0 / cfg.SampleRate
	whp := 2 * math.Pi * cfg.WashoutFreq * dt
	wlp := 2 * math.Pi * cfg.SustainedFreq * dt

	return &Washout{
		cfg:     cfg,
		alphaHP: 1.0 / (1.0 + whp),
		alphaLP: wlp / (1.0 + wlp),
	}, nil
}

// Config returns the active tuning.
func (w *Washout) Config() WashoutConfig {
	return w.cfg
}

// Process advances every axis one sample and returns the unclamped pose.
//
// Axis mapping: longitudinal G drives surge and pitch (braking tips the
// platform forward), lateral G drives sway and roll, vertical G (with the
// 1 G gravity baseline removed) drives heave, and the telemetry attitude
// angles feed their own filtered channels.
//
// Non-finite inputs fail with ErrInvalidInput before any channel state is
// touched.
func (w *Washout) Process(sample telemetry.MotionSample) (Pose, error) {
	inputs := [numChannels]float64{
		chSurge:     sample.GLongitudinal,
		chSway:      sample.GLateral,
		chHeave:     sample.GVertical - 1.0, // remove gravity baseline
		chPitchTilt: sample.GLongitudinal,
		chRollTilt:  sample.GLateral,
		chYawAtt:    sample.Yaw,
		chPitchAtt:  sample.Pitch,
		chRollAtt:   sample.Roll,
	}

	for _, x := range inputs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Pose{}, fmt.Errorf("%w: %v", ErrInvalidInput, x)
		}
	}

	var combined [numChannels]float64
	for i := range inputs {
		x := inputs[i]
		if math.Abs(x) < w.cfg.Deadband {
			x = 0
		}
		onset, sustained := w.channels[i].step(x, w.alphaHP, w.alphaLP)
		combined[i] = w.cfg.OnsetGain*onset + w.cfg.SustainedGain*sustained
	}
	w.samples++

	return Pose{
		Surge: combined[chSurge] * w.cfg.TranslationScale,
		Sway:  combined[chSway] * w.cfg.TranslationScale,
		Heave: combined[chHeave] * w.cfg.TranslationScale,
		Roll:  combined[chRollTilt]*w.cfg.TiltScale + combined[chRollAtt]*w.cfg.RotationScale,
		Pitch: combined[chPitchTilt]*w.cfg.TiltScale + combined[chPitchAtt]*w.cfg.RotationScale,
		Yaw:   combined[chYawAtt] * w.cfg.RotationScale,
	}, nil
}

// Reset zeroes all channel state. Called at startup and whenever the
// platform re-homes, so stale filter history never replays onto fresh
// hardware position.
func (w *Washout) Reset() {
	for i := range w.channels {
		w.channels[i].reset()
	}
}

// Samples returns the number of samples processed since construction.
func (w *Washout) Samples() uint64 {
	return w.samples
}
