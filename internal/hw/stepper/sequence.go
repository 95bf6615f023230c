package stepper

import (
	"fmt"

	"github.com/cjeanneret/PenGo/internal/hw/gpio"
)

// Supported driver chips.
const (
	DriverA4988   = "a4988"
	DriverTMC2130 = "tmc2130"
	DriverL9110   = "l9110"
)

// Coil sequences for hi-bridge drivers (L9110).
const (
	SequenceWave     = "wave"
	SequenceTwoPhase = "two_phase"
	SequenceHalfStep = "half_step"
)

const (
	lo = gpio.Low
	hi = gpio.High
)

// coilTables holds the energizing pattern for the four L9110 inputs
// [B-1A, B-1B, A-1A, A-1B], one row per step.
var coilTables = map[string][][]gpio.Level{
	SequenceWave: {
		{hi, lo, lo, lo},
		{lo, lo, hi, lo},
		{lo, hi, lo, lo},
		{lo, lo, lo, hi},
	},
	SequenceTwoPhase: {
		{lo, hi, hi, lo},
		{lo, hi, lo, hi},
		{hi, lo, lo, hi},
		{hi, lo, hi, lo},
	},
	SequenceHalfStep: {
		{hi, lo, lo, lo},
		{hi, lo, hi, lo},
		{lo, lo, hi, lo},
		{lo, hi, hi, lo},
		{lo, hi, lo, lo},
		{lo, hi, lo, hi},
		{lo, lo, lo, hi},
		{hi, lo, lo, hi},
	},
}

// microstepTable maps a microstep count to the MS1..MS3 levels of a
// step/dir driver.
var microstepTable = map[int][3]gpio.Level{
	1:  {lo, lo, lo},
	2:  {hi, lo, lo},
	4:  {lo, hi, lo},
	8:  {hi, hi, lo},
	16: {hi, hi, hi},
}

// profile describes how a driver chip turns one logical step into pin writes.
type profile struct {
	// coils is the coil table for hi-bridge drivers, nil for step/dir drivers.
	coils [][]gpio.Level
	// microsteps lists the supported microstep counts.
	microsteps []int
}

func (p profile) supports(n int) bool {
	for _, m := range p.microsteps {
		if m == n {
			return true
		}
	}
	return false
}

// resolveProfile returns the step profile for a driver and sequence name.
func resolveProfile(driver, sequence string) (profile, error) {
	switch driver {
	case "", DriverA4988:
		return profile{microsteps: []int{1, 2, 4, 8, 16}}, nil
	case DriverTMC2130:
		return profile{microsteps: []int{16}}, nil
	case DriverL9110:
		if sequence == "" {
			sequence = SequenceWave
		}
		table, ok := coilTables[sequence]
		if !ok {
			return profile{}, fmt.Errorf("unknown coil sequence %q", sequence)
		}
		p := profile{coils: table, microsteps: []int{1}}
		if sequence == SequenceHalfStep {
			p.microsteps = []int{2}
		}
		return p, nil
	default:
		return profile{}, fmt.Errorf("unknown stepper driver %q", driver)
	}
}
