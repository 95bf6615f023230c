package motion

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cjeanneret/PenGo/internal/hw/gpio"
	"github.com/cjeanneret/PenGo/internal/hw/stepper"
	"github.com/cjeanneret/PenGo/internal/logic/geometry"
	"github.com/cjeanneret/PenGo/internal/logic/kinematics"
)

// travelSwitch triggers once its motor has wound in the given length.
type travelSwitch struct {
	motor stepper.Actuator
	at    float64
	fail  error
}

func (s *travelSwitch) Triggered() (bool, error) {
	if s.fail != nil {
		return false, s.fail
	}
	return s.motor.Position() <= s.at, nil
}

func newHomingController(t *testing.T) (*Controller, *stepper.Stepper, *stepper.Stepper) {
	drv := gpio.NewMockDriver()
	left := newMockStepper(t, drv, "left", 1)
	right := newMockStepper(t, drv, "right", 4)
	ctrl := NewController(left, right, plotter(), Options{PollInterval: 200 * time.Microsecond})
	return ctrl, left, right
}

func TestHome(t *testing.T) {
	ctrl, left, right := newHomingController(t)
	// Unknown start: counters at zero, switches a few mm away.
	h := Homing{
		Axes: [2]HomingAxis{
			{Switch: &travelSwitch{motor: left, at: -3}, Direction: -1, Home: 60},
			{Switch: &travelSwitch{motor: right, at: -6}, Direction: -1, Home: 65},
		},
		StepDelay: 50 * time.Microsecond,
		MaxTravel: 100,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Home(ctx, h); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if left.Running() || right.Running() {
		t.Error("motors still running after homing")
	}
	if got := left.Position(); math.Abs(got-60) > 1e-9 {
		t.Errorf("left = %v, want 60", got)
	}
	if got := right.Position(); math.Abs(got-65) > 1e-9 {
		t.Errorf("right = %v, want 65", got)
	}
	if p := ctrl.Position(); !ctrl.Plotter().Contains(p, 1e-6) {
		t.Errorf("homed position %v outside the drawing area", p)
	}
	m1, m2 := ctrl.Plotter().Inverse(ctrl.Position())
	if math.Abs(m1-60) > 1e-6 || math.Abs(m2-65) > 1e-6 {
		t.Errorf("position %v does not match home lengths", ctrl.Position())
	}
}

func TestHome_AlreadyOnSwitch(t *testing.T) {
	ctrl, left, right := newHomingController(t)
	h := Homing{
		Axes: [2]HomingAxis{
			{Switch: &travelSwitch{motor: left, at: 0}, Direction: -1, Home: 60},
			{Switch: &travelSwitch{motor: right, at: 0}, Direction: -1, Home: 60},
		},
		MaxTravel: 10,
	}
	if err := ctrl.Home(context.Background(), h); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if got := ctrl.Position(); geometry.Dist(got, ctrl.Plotter().Forward(60, 60)) > 1e-6 {
		t.Errorf("Position() = %v", got)
	}
}

func TestHome_SwitchNotReached(t *testing.T) {
	ctrl, left, right := newHomingController(t)
	h := Homing{
		Axes: [2]HomingAxis{
			{Switch: &travelSwitch{motor: left, at: -1}, Direction: -1, Home: 60},
			{Switch: &travelSwitch{motor: right, at: -50}, Direction: -1, Home: 60},
		},
		StepDelay: 10 * time.Microsecond,
		MaxTravel: 5,
	}
	err := ctrl.Home(context.Background(), h)
	if !errors.Is(err, ErrHomingFailed) {
		t.Fatalf("Home = %v, want ErrHomingFailed", err)
	}
	_ = left.Wait(context.Background())
	_ = right.Wait(context.Background())
}

func TestHome_SwitchError(t *testing.T) {
	ctrl, left, _ := newHomingController(t)
	fault := &gpio.FaultError{Op: "read", Pin: 17, Err: errors.New("bus error")}
	h := Homing{
		Axes: [2]HomingAxis{
			{Switch: &travelSwitch{motor: left, fail: fault}, Direction: -1, Home: 60},
			{Switch: &travelSwitch{motor: left, at: 0}, Direction: -1, Home: 60},
		},
		MaxTravel: 5,
	}
	if err := ctrl.Home(context.Background(), h); !errors.Is(err, fault) {
		t.Errorf("Home = %v, want the switch fault", err)
	}
}

func TestHome_Cancelled(t *testing.T) {
	ctrl, left, right := newHomingController(t)
	h := Homing{
		Axes: [2]HomingAxis{
			{Switch: &travelSwitch{motor: left, at: -1000}, Direction: -1, Home: 60},
			{Switch: &travelSwitch{motor: right, at: -1000}, Direction: -1, Home: 60},
		},
		StepDelay: time.Millisecond,
		MaxTravel: 1000,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ctrl.Home(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Home = %v, want deadline exceeded", err)
	}
	_ = left.Wait(context.Background())
	_ = right.Wait(context.Background())
	if left.Running() || right.Running() {
		t.Error("motors still running after cancelled homing")
	}
}

func TestHome_RejectsImpossibleLengths(t *testing.T) {
	cases := []struct {
		name        string
		left, right float64
		want        error
	}{
		{"too short to meet", 20, 25, kinematics.ErrUnreachable},
		{"difference above separation", 150, 40, kinematics.ErrUnreachable},
		{"above the drawing area", 50.5, 50.5, kinematics.ErrOutsideEnvelope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, left, right := newHomingController(t)
			h := Homing{
				Axes: [2]HomingAxis{
					{Switch: &travelSwitch{motor: left, at: 0}, Direction: -1, Home: tc.left},
					{Switch: &travelSwitch{motor: right, at: 0}, Direction: -1, Home: tc.right},
				},
				MaxTravel: 10,
			}
			if err := ctrl.Home(context.Background(), h); !errors.Is(err, tc.want) {
				t.Fatalf("Home = %v, want %v", err, tc.want)
			}
			if left.Steps() != 0 || right.Steps() != 0 {
				t.Errorf("counters changed: left=%d right=%d", left.Steps(), right.Steps())
			}
		})
	}
}
