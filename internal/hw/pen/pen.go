package pen

// Lifter is the high-level interface used by the plot sequence.
// It represents an abstract pen holder, regardless of how it's actuated
// (servo, solenoid, ...).
type Lifter interface {
	// Up lifts the pen off the paper and waits until it has settled.
	Up() error
	// Down puts the pen on the paper and waits until it has settled.
	Down() error
}
