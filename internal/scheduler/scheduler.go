// Package scheduler implements the round-robin cell queue and
// size-dependent slice-length computation of spec §4.3. Grounded on the
// teacher's internal/concurrency.WorkerPool queue idiom: a plain slice
// used as a ring, IDs rather than pointers, guarded by the caller's
// single-threaded tick rather than its own lock (spec §5: "the engine is
// single-threaded and cooperative").
package scheduler

import (
	"math"

	"tierra/internal/cell"
	"tierra/internal/config"
	"tierra/internal/rng"
)

// Scheduler is a FIFO queue of live cell IDs (spec §4.3).
type Scheduler struct {
	queue []cell.ID
	pos   map[cell.ID]int
	cfg   config.Config
	rng   *rng.Source
}

// New returns an empty Scheduler.
func New(cfg config.Config, r *rng.Source) *Scheduler {
	return &Scheduler{pos: make(map[cell.ID]int), cfg: cfg, rng: r}
}

// Len returns the number of queued cells.
func (s *Scheduler) Len() int { return len(s.queue) }

// Enqueue adds id to the tail (spec §4.2 divide step 4: "add to scheduler
// tail").
func (s *Scheduler) Enqueue(id cell.ID) {
	s.pos[id] = len(s.queue)
	s.queue = append(s.queue, id)
}

// Remove drops id from the queue, wherever it currently sits (a cell may
// be reaped out of turn).
func (s *Scheduler) Remove(id cell.ID) {
	i, ok := s.pos[id]
	if !ok {
		return
	}
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	delete(s.pos, id)
	for j := i; j < len(s.queue); j++ {
		s.pos[s.queue[j]] = j
	}
}

// Next returns the head cell ID and rotates it to the tail, reporting
// ok=false if the queue is empty.
func (s *Scheduler) Next() (id cell.ID, ok bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	id = s.queue[0]
	s.queue = append(s.queue[1:], id)
	for j := range s.queue {
		s.pos[s.queue[j]] = j
	}
	return id, true
}

// SliceFor computes the number of instructions to run on c this turn
// (spec §4.3): a base slice, optionally size-dependent on c's mother
// region relative to the population mean, optionally randomized.
func (s *Scheduler) SliceFor(c *cell.Cell, meanCellSize float64) int {
	base := float64(s.cfg.SliceSize)
	if s.cfg.SizDepSlice && meanCellSize > 0 {
		ratio := float64(c.MotherRegion.Length) / meanCellSize
		base = float64(s.cfg.SliceSize) * math.Pow(ratio, s.cfg.SlicePow)
	}
	slice := base
	if s.cfg.SliceStyle == 2 {
		jitter := s.rng.Float64() * s.cfg.SlicRanFrac * base
		slice = s.cfg.SlicFixFrac*base + jitter
	}
	n := int(slice + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}
