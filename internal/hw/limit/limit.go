package limit

import (
	"fmt"

	"github.com/cjeanneret/PenGo/internal/debug"
	"github.com/cjeanneret/PenGo/internal/hw/gpio"
)

// Contact describes the switch contact type.
type Contact string

const (
	NormallyOpen   Contact = "NO"
	NormallyClosed Contact = "NC"
)

// Load tells which rail the switch connects the pin to.
// LoadHigh (1): switch to 3.3V, pin pulled down.
// LoadLow (0): switch to ground, pin pulled up.
type Load int

const (
	LoadLow  Load = 0
	LoadHigh Load = 1
)

// Switch is a mechanical limit switch on an input pin.
type Switch struct {
	gpio    gpio.Driver
	pin     int
	trigger gpio.Level
}

// New configures pin as an input with the pull resistor implied by the
// wiring and returns the switch.
//
//	NO + load 1: pull-down, triggers HIGH
//	NC + load 1: pull-down, triggers LOW
//	NO + load 0: pull-up, triggers LOW
//	NC + load 0: pull-up, triggers HIGH
func New(g gpio.Driver, pin int, contact Contact, load Load) (*Switch, error) {
	var pull gpio.Pull
	var trigger gpio.Level
	switch load {
	case LoadHigh:
		pull = gpio.PullDown
		trigger = contact == NormallyOpen
	case LoadLow:
		pull = gpio.PullUp
		trigger = contact == NormallyClosed
	default:
		return nil, fmt.Errorf("limit switch pin %d: load must be 0 or 1, got %d", pin, load)
	}
	if contact != NormallyOpen && contact != NormallyClosed {
		return nil, fmt.Errorf("limit switch pin %d: contact must be NO or NC, got %q", pin, contact)
	}

	if err := g.SetupPin(pin, gpio.Input); err != nil {
		return nil, err
	}
	if err := g.SetPull(pin, pull); err != nil {
		return nil, err
	}
	debug.Verbose("Limit switch pin %d: %s contact, pull %s, triggers %v", pin, contact, pull, trigger)
	return &Switch{gpio: g, pin: pin, trigger: trigger}, nil
}

// Triggered reports whether the switch is currently pressed.
func (s *Switch) Triggered() (bool, error) {
	lvl, err := s.gpio.ReadPin(s.pin)
	if err != nil {
		return false, err
	}
	return lvl == s.trigger, nil
}

// Pin returns the input pin.
func (s *Switch) Pin() int { return s.pin }
