// Package errtax implements the error taxonomy of spec §7: the small set of
// engine conditions that halt the tick loop or refuse to start it, as
// distinct from the in-VM flagged faults that never leave the CPU's E flag.
//
// Shaped after the teacher's internal/errors package: a typed Kind enum, a
// struct implementing the error interface, and New* constructors.
package errtax

import "fmt"

// Kind identifies an engine-level condition.
type Kind string

const (
	// NoReproduction fires when drop_dead million instructions have
	// elapsed with no CELL_BORN event (spec §4.7 step 5, §7).
	NoReproduction Kind = "NoReproduction"
	// Extinction fires when the live-cell set becomes empty (spec §7).
	Extinction Kind = "Extinction"
	// ConfigError fires at Simulation construction time for an invalid
	// option combination (spec §7); it is the only one of the three that
	// can occur outside a running tick loop.
	ConfigError Kind = "ConfigError"
)

// EngineError is the error type returned by Simulation.Tick / Simulation.Run
// and by config validation. It never originates inside instruction
// dispatch - per spec §7, in-VM faults set the CPU's E flag and continue.
type EngineError struct {
	Kind    Kind
	Message string
	// Field names the offending configuration field for ConfigError; empty
	// for the two runtime halt conditions.
	Field string
}

func (e *EngineError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewNoReproduction reports that dropDeadInstructions instructions elapsed
// without a birth, as observed at instruction instructionCount.
func NewNoReproduction(instructionCount uint64, dropDeadInstructions uint64) *EngineError {
	return &EngineError{
		Kind:    NoReproduction,
		Message: fmt.Sprintf("no births in the last %d instructions (at instruction %d)", dropDeadInstructions, instructionCount),
	}
}

// NewExtinction reports that the live-cell population reached zero.
func NewExtinction() *EngineError {
	return &EngineError{Kind: Extinction, Message: "no live cells remain"}
}

// NewConfigError reports an invalid configuration field at construction
// time.
func NewConfigError(field, message string) *EngineError {
	return &EngineError{Kind: ConfigError, Message: message, Field: field}
}

// Is allows errors.Is(err, &errtax.EngineError{Kind: errtax.NoReproduction})
// style matching: any *EngineError target with the same Kind matches, by
// comparing Kind fields rather than pointer identity.
func (e *EngineError) Is(target error) bool {
	other, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
