// Package datalog implements the time-series ring buffers sampled once every
// SampleInterval instructions (spec §2 "DataLog", §4.7 step 4 "Sample DataLog at configured
// interval"). No teacher or pack library provides a ring-buffer metrics
// store, so this is built on plain slices - see DESIGN.md.
package datalog

// Sample is one recorded observation of the simulation's coarse-grained
// state, taken at a sampling tick boundary.
type Sample struct {
	InstructionCount  uint64
	LiveCellCount     int
	GenotypeCount     int
	FreeBytes         int
	MeanCellSize      float64
	BirthsSinceLast   int
	DeathsSinceLast   int
}

// Ring is a fixed-capacity ring buffer of Samples; once full, the oldest
// sample is overwritten.
type Ring struct {
	buf   []Sample
	start int
	count int
}

// NewRing returns a Ring with room for capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]Sample, capacity)}
}

// Push appends s, evicting the oldest sample if the ring is full.
func (r *Ring) Push(s Sample) {
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = s
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// Len returns the number of samples currently stored.
func (r *Ring) Len() int { return r.count }

// Samples returns the stored samples in chronological order (oldest
// first), a fresh copy safe for the caller to retain.
func (r *Ring) Samples() []Sample {
	out := make([]Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Latest returns the most recently pushed sample, and whether any sample
// has been pushed yet.
func (r *Ring) Latest() (Sample, bool) {
	if r.count == 0 {
		return Sample{}, false
	}
	idx := (r.start + r.count - 1) % len(r.buf)
	return r.buf[idx], true
}

// DataLog owns the set of metric Rings the simulation samples every
// SampleInterval instructions.
type DataLog struct {
	Population *Ring
	Memory     *Ring
	Events     *Ring

	SampleInterval   uint64
	lastSampledAt    uint64
	birthsSinceLast  int
	deathsSinceLast  int
}

// New returns a DataLog sampling every sampleInterval instructions, each
// ring sized to hold history samples.
func New(sampleInterval uint64, history int) *DataLog {
	if sampleInterval == 0 {
		sampleInterval = 1000
	}
	return &DataLog{
		Population:     NewRing(history),
		Memory:         NewRing(history),
		Events:         NewRing(history),
		SampleInterval: sampleInterval,
	}
}

// RecordBirth and RecordDeath accumulate counts consumed by the next
// sample, matching spec §4's "sample DataLog at slice end" cadence without
// requiring every birth/death to itself be a sample point.
func (d *DataLog) RecordBirth() { d.birthsSinceLast++ }
func (d *DataLog) RecordDeath() { d.deathsSinceLast++ }

// MaybeSample pushes a Sample to all rings if at least SampleInterval
// instructions have elapsed since the last sample, resetting the
// birth/death accumulators. Returns whether a sample was taken.
func (d *DataLog) MaybeSample(instructionCount uint64, liveCellCount, genotypeCount, freeBytes int, meanCellSize float64) bool {
	if instructionCount-d.lastSampledAt < d.SampleInterval {
		return false
	}
	s := Sample{
		InstructionCount: instructionCount,
		LiveCellCount:    liveCellCount,
		GenotypeCount:    genotypeCount,
		FreeBytes:        freeBytes,
		MeanCellSize:     meanCellSize,
		BirthsSinceLast:  d.birthsSinceLast,
		DeathsSinceLast:  d.deathsSinceLast,
	}
	d.Population.Push(s)
	d.Memory.Push(s)
	d.Events.Push(s)
	d.lastSampledAt = instructionCount
	d.birthsSinceLast = 0
	d.deathsSinceLast = 0
	return true
}
