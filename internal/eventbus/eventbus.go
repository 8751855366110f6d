// Package eventbus implements the observer dispatch described in spec §4
// ("EventBus: Observer dispatch to external collaborators") and §6
// (event payloads), with the synchronous, totally-ordered delivery spec §5
// requires: "Observers receive events synchronously during the emitting
// tick; an observer that blocks stalls the engine."
//
// Grounded on the teacher's internal/concurrency idiom: ID-keyed maps
// guarded by sync.RWMutex, atomic counters for totals (WorkerPool /
// ConcurrencyMetrics), rather than on the teacher's job-queue machinery
// itself, which has no Tierra analogue.
package eventbus

import (
	"sync"
	"sync/atomic"

	"tierra/internal/cell"
)

// Kind enumerates the event types of spec §6.
type Kind string

const (
	CellBorn       Kind = "CELL_BORN"
	CellDied       Kind = "CELL_DIED"
	NewGenotype    Kind = "NEW_GENOTYPE"
	GenotypeExtinct Kind = "GENOTYPE_EXTINCT"
	Mutation       Kind = "MUTATION"
	Milestone      Kind = "MILESTONE"
)

// DeathCause enumerates spec §6's CELL_DIED cause values.
type DeathCause string

const (
	CauseLazy        DeathCause = "lazy"
	CauseReaper      DeathCause = "reaper"
	CauseDisturbance DeathCause = "disturbance"
	CauseAllocation  DeathCause = "allocation"
)

// MutationKind enumerates spec §6's MUTATION kind values. Genetic operator
// sub-kinds are rendered as "genetic:<sub>".
type MutationKind string

const (
	MutCosmic MutationKind = "cosmic"
	MutCopy   MutationKind = "copy"
	MutFlaw   MutationKind = "flaw"
	MutDivide MutationKind = "divide"
)

// Event is the value-typed payload delivered to observers. Only the fields
// relevant to Kind are populated; this mirrors spec §6's "payloads
// minimal, value-typed" instruction exactly, avoiding one bloated struct
// per distinct event by keeping every field a plain value, never a pointer
// into live state.
type Event struct {
	Kind Kind

	CellID         cell.ID
	ParentID       cell.ID
	GenotypeName   string

	Cause DeathCause

	MutationKind MutationKind

	InstructionCount uint64

	// RunID disambiguates events when more than one Simulation shares a
	// process (spec §9).
	RunID string
}

// Observer receives events synchronously, in emission order, during the
// tick that produced them (spec §5).
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Bus dispatches events to a registered set of observers in the order the
// engine produced them (spec §5 "Ordering guarantees").
type Bus struct {
	mu        sync.RWMutex
	observers map[int]Observer
	nextID    int

	emitted atomic.Uint64
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{observers: make(map[int]Observer)}
}

// Subscribe registers an observer and returns a handle for Unsubscribe.
func (b *Bus) Subscribe(o Observer) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.observers[id] = o
	return id
}

// Unsubscribe removes a previously registered observer.
func (b *Bus) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.observers, handle)
}

// Emit delivers ev to every subscribed observer, in registration order is
// not guaranteed (map iteration), but emission order across successive
// Emit calls is: this is the single point all engine code calls to produce
// an event, so the sequence of Emit calls IS the total order (spec §5).
// A blocking observer stalls this call, and therefore the engine, exactly
// as spec §5 describes.
func (b *Bus) Emit(ev Event) {
	b.emitted.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.observers {
		o.OnEvent(ev)
	}
}

// Emitted returns the total number of events emitted so far.
func (b *Bus) Emitted() uint64 { return b.emitted.Load() }
