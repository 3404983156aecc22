package safety

import (
	"testing"

	"github.com/banshee-data/simrig/internal/cueing"
)

func TestDefaultLimitsValid(t *testing.T) {
	if err := DefaultLimits().Validate(); err != nil {
		t.Fatalf("default limits invalid: %v", err)
	}
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Limits)
		valid  bool
	}{
		{"defaults", func(l *Limits) {}, true},
		{"inverted surge", func(l *Limits) { l.Surge = AxisLimits{Min: 0.3, Max: -0.3} }, false},
		{"excludes home low", func(l *Limits) { l.Pitch = AxisLimits{Min: 0.1, Max: 0.3} }, false},
		{"excludes home high", func(l *Limits) { l.Yaw = AxisLimits{Min: -0.3, Max: -0.1} }, false},
		{"zero-width at home", func(l *Limits) { l.Heave = AxisLimits{} }, true},
		{"asymmetric", func(l *Limits) { l.Surge = AxisLimits{Min: -0.1, Max: 0.4} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			tt.mutate(&l)
			err := l.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tt.valid && err == nil {
				t.Error("Validate = nil, want error")
			}
		})
	}
}

func TestClampSaturates(t *testing.T) {
	limits := DefaultLimits()

	in := cueing.Pose{
		Surge: 1.0,    // above max 0.259
		Sway:  -1.0,   // below min -0.259
		Heave: 0.05,   // inside
		Roll:  0.3665, // exactly at max
		Pitch: -2.0,   // below min
		Yaw:   0.1,    // inside
	}

	out, clamped := Clamp(in, limits)
	if !clamped {
		t.Fatal("expected clamping to be reported")
	}

	want := cueing.Pose{
		Surge: limits.Surge.Max,
		Sway:  limits.Sway.Min,
		Heave: 0.05,
		Roll:  0.3665,
		Pitch: limits.Pitch.Min,
		Yaw:   0.1,
	}
	if out != want {
		t.Errorf("Clamp = %s, want %s", out, want)
	}
}

func TestClampIdempotent(t *testing.T) {
	limits := DefaultLimits()
	in := cueing.Pose{Surge: 5, Sway: -5, Heave: 5, Roll: 5, Pitch: -5, Yaw: 5}

	once, _ := Clamp(in, limits)
	twice, clamped := Clamp(once, limits)
	if clamped {
		t.Error("clamping an already-clamped pose reported clamping")
	}
	if once != twice {
		t.Errorf("clamp not idempotent: %s vs %s", once, twice)
	}
}

func TestClampInsideEnvelopeUntouched(t *testing.T) {
	in := cueing.Pose{Surge: 0.1, Sway: -0.1, Heave: 0.05, Roll: 0.2, Pitch: -0.2, Yaw: 0.3}
	out, clamped := Clamp(in, DefaultLimits())
	if clamped {
		t.Error("in-envelope pose reported clamped")
	}
	if out != in {
		t.Errorf("in-envelope pose changed: %s vs %s", out, in)
	}
}

func TestAxisAccessorCoversAllAxes(t *testing.T) {
	l := Limits{
		Surge: AxisLimits{-1, 1},
		Sway:  AxisLimits{-2, 2},
		Heave: AxisLimits{-3, 3},
		Roll:  AxisLimits{-4, 4},
		Pitch: AxisLimits{-5, 5},
		Yaw:   AxisLimits{-6, 6},
	}
	for a := cueing.Axis(0); a < cueing.NumAxes; a++ {
		lim := l.Axis(a)
		if lim.Max != float64(a+1) {
			t.Errorf("%s: Axis = %+v, want max %v", a, lim, float64(a+1))
		}
	}
}
