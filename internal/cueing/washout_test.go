package cueing

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/simrig/internal/telemetry"
)

// restSample is a car at rest: 1 G vertical, everything else zero.
func restSample() telemetry.MotionSample {
	return telemetry.MotionSample{GVertical: 1.0}
}

func newTestWashout(t *testing.T, cfg WashoutConfig) *Washout {
	t.Helper()
	w, err := NewWashout(cfg)
	if err != nil {
		t.Fatalf("NewWashout failed: %v", err)
	}
	return w
}

func TestNewWashoutValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WashoutConfig)
	}{
		{"zero sample rate", func(c *WashoutConfig) { c.SampleRate = 0 }},
		{"negative sample rate", func(c *WashoutConfig) { c.SampleRate = -60 }},
		{"zero washout freq", func(c *WashoutConfig) { c.WashoutFreq = 0 }},
		{"zero sustained freq", func(c *WashoutConfig) { c.SustainedFreq = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWashoutConfig()
			tt.mutate(&cfg)
			if _, err := NewWashout(cfg); err == nil {
				t.Error("expected config error")
			}
		})
	}
}

func TestRestProducesNoMotion(t *testing.T) {
	w := newTestWashout(t, DefaultWashoutConfig())

	// A car at rest sits inside the deadband on every channel.
	for i := 0; i < 100; i++ {
		pose, err := w.Process(restSample())
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if pose != Home {
			t.Fatalf("sample %d: pose = %s, want home", i, pose)
		}
	}
}

func TestOnsetWashesOutUnderConstantInput(t *testing.T) {
	// With the sustained channel silenced, a held acceleration must decay
	// back to neutral: that is the washout property.
	cfg := DefaultWashoutConfig()
	cfg.SustainedGain = 0
	cfg.TiltScale = 0
	w := newTestWashout(t, cfg)

	sample := restSample()
	sample.GLongitudinal = 2.0

	first, err := w.Process(sample)
	if err != nil {
		t.Fatal(err)
	}
	if first.Surge <= 0 {
		t.Fatalf("initial onset surge = %v, want > 0", first.Surge)
	}

	// Five high-pass time constants at 60 Hz.
	settle := int(5.0 / (2 * math.Pi * cfg.WashoutFreq) * cfg.SampleRate)
	var last Pose
	for i := 0; i < settle; i++ {
		last, err = w.Process(sample)
		if err != nil {
			t.Fatal(err)
		}
	}

	if math.Abs(last.Surge) > 0.01*first.Surge {
		t.Errorf("surge after %d samples = %v, want < 1%% of initial %v", settle, last.Surge, first.Surge)
	}
}

func TestSustainedConvergesToScaledInput(t *testing.T) {
	// With the onset channel silenced, a held acceleration converges to
	// input * scale through the low-pass.
	cfg := DefaultWashoutConfig()
	cfg.OnsetGain = 0
	w := newTestWashout(t, cfg)

	sample := restSample()
	sample.GLongitudinal = 2.0

	// Five low-pass time constants (the slow channel) at 60 Hz.
	settle := int(5.0 / (2 * math.Pi * cfg.SustainedFreq) * cfg.SampleRate)
	var last Pose
	var err error
	for i := 0; i < settle; i++ {
		last, err = w.Process(sample)
		if err != nil {
			t.Fatal(err)
		}
	}

	want := 2.0 * cfg.TranslationScale
	if math.Abs(last.Surge-want) > 0.01*want {
		t.Errorf("sustained surge = %v, want %v within 1%%", last.Surge, want)
	}
}

func TestTiltCoordinationUnderBraking(t *testing.T) {
	// Sustained braking tips the platform nose-down so gravity stands in
	// for deceleration.
	cfg := DefaultWashoutConfig()
	cfg.OnsetGain = 0
	cfg.RotationScale = 0 // isolate the tilt contribution
	w := newTestWashout(t, cfg)

	sample := restSample()
	sample.GLongitudinal = -3.0 // hard braking

	settle := int(5.0 / (2 * math.Pi * cfg.SustainedFreq) * cfg.SampleRate)
	var last Pose
	var err error
	for i := 0; i < settle; i++ {
		last, err = w.Process(sample)
		if err != nil {
			t.Fatal(err)
		}
	}

	want := -3.0 * cfg.TiltScale
	if math.Abs(last.Pitch-want) > 0.01*math.Abs(want) {
		t.Errorf("pitch under braking = %v, want %v within 1%%", last.Pitch, want)
	}
}

func TestHardBrakingScenario(t *testing.T) {
	// Two seconds of -5 G braking at 60 Hz: surge snaps back immediately
	// (onset), the onset contribution washes out, and pitch tilts the
	// platform forward so gravity carries the sustained cue.
	cfg := DefaultWashoutConfig()
	w := newTestWashout(t, cfg)

	sample := restSample()
	sample.GLongitudinal = -5.0

	first, err := w.Process(sample)
	if err != nil {
		t.Fatal(err)
	}
	if first.Surge >= 0 {
		t.Fatalf("initial surge = %v, want negative for braking", first.Surge)
	}

	var mid, final Pose
	for i := 1; i < 120; i++ {
		pose, err := w.Process(sample)
		if err != nil {
			t.Fatal(err)
		}
		if i == 30 {
			mid = pose
		}
		final = pose
	}

	// The onset spike decays: mid-trajectory surge is weaker than the
	// initial response.
	if math.Abs(mid.Surge) >= math.Abs(first.Surge) {
		t.Errorf("surge did not wash out: first %v, mid %v", first.Surge, mid.Surge)
	}
	if final.Pitch >= 0 {
		t.Errorf("final pitch = %v, want forward (negative) tilt", final.Pitch)
	}
}

func TestDeadbandZeroesSmallInputs(t *testing.T) {
	cfg := DefaultWashoutConfig()
	w := newTestWashout(t, cfg)

	sample := restSample()
	sample.GLateral = cfg.Deadband * 0.9

	for i := 0; i < 50; i++ {
		pose, err := w.Process(sample)
		if err != nil {
			t.Fatal(err)
		}
		if pose.Sway != 0 || pose.Roll != 0 {
			t.Fatalf("sub-deadband input leaked into pose: %s", pose)
		}
	}
}

func TestInvalidInputLeavesStateUntouched(t *testing.T) {
	// Two filters fed the same valid stream must agree even if one of
	// them was also offered invalid samples along the way.
	clean := newTestWashout(t, DefaultWashoutConfig())
	dirty := newTestWashout(t, DefaultWashoutConfig())

	valid := restSample()
	valid.GLongitudinal = 1.5

	bad := restSample()
	bad.Yaw = math.Inf(1)

	for i := 0; i < 20; i++ {
		want, err := clean.Process(valid)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := dirty.Process(bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("invalid sample: error = %v, want ErrInvalidInput", err)
		}
		got, err := dirty.Process(valid)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("sample %d: state diverged after invalid input: %s vs %s", i, got, want)
		}
	}
}

func TestResetClearsFilterState(t *testing.T) {
	w := newTestWashout(t, DefaultWashoutConfig())

	sample := restSample()
	sample.GLongitudinal = 3.0
	for i := 0; i < 30; i++ {
		if _, err := w.Process(sample); err != nil {
			t.Fatal(err)
		}
	}

	w.Reset()

	pose, err := w.Process(restSample())
	if err != nil {
		t.Fatal(err)
	}
	if pose != Home {
		t.Errorf("pose after reset = %s, want home", pose)
	}
}

func TestSamplesCounter(t *testing.T) {
	w := newTestWashout(t, DefaultWashoutConfig())
	for i := 0; i < 7; i++ {
		if _, err := w.Process(restSample()); err != nil {
			t.Fatal(err)
		}
	}
	if w.Samples() != 7 {
		t.Errorf("Samples = %d, want 7", w.Samples())
	}
}
