// Package reaper implements the ordered kill queue of spec §4.4: age and
// error-flag ranking, lazy-tolerance promotion, allocation-failure reap
// selection, and periodic disturbance. Grounded on the same ID-keyed
// queue idiom as internal/scheduler; the reaper differs only in how it
// orders and promotes within the queue.
package reaper

import (
	"tierra/internal/cell"
	"tierra/internal/config"
	"tierra/internal/region"
	"tierra/internal/rng"
)

// Reaper is an ordered queue of live cell IDs, most-reapable at the head
// (spec §4.4).
type Reaper struct {
	queue []cell.ID
	pos   map[cell.ID]int
	cfg   config.Config
	rng   *rng.Source
}

// New returns an empty Reaper.
func New(cfg config.Config, r *rng.Source) *Reaper {
	return &Reaper{pos: make(map[cell.ID]int), cfg: cfg, rng: r}
}

// Len returns the number of queued cells.
func (rp *Reaper) Len() int { return len(rp.queue) }

// Enqueue adds id to the tail, the safest position for a newborn (spec
// §4.4 "on divide, a newborn enters at the tail").
func (rp *Reaper) Enqueue(id cell.ID) {
	rp.pos[id] = len(rp.queue)
	rp.queue = append(rp.queue, id)
}

// Remove drops id from the queue.
func (rp *Reaper) Remove(id cell.ID) {
	i, ok := rp.pos[id]
	if !ok {
		return
	}
	rp.queue = append(rp.queue[:i], rp.queue[i+1:]...)
	delete(rp.pos, id)
	for j := i; j < len(rp.queue); j++ {
		rp.pos[rp.queue[j]] = j
	}
}

// Head returns the most-reapable cell ID without removing it.
func (rp *Reaper) Head() (cell.ID, bool) {
	if len(rp.queue) == 0 {
		return 0, false
	}
	return rp.queue[0], true
}

// IDs returns a copy of the queue in head-to-tail order, for invariant
// checks and snapshotting.
func (rp *Reaper) IDs() []cell.ID {
	out := make([]cell.ID, len(rp.queue))
	copy(out, rp.queue)
	return out
}

// Promote moves id one position toward the head, used by lazy-tolerance
// checks (spec §4.4 "the cell is promoted toward the reaper head").
func (rp *Reaper) Promote(id cell.ID) {
	i, ok := rp.pos[id]
	if !ok || i == 0 {
		return
	}
	rp.queue[i-1], rp.queue[i] = rp.queue[i], rp.queue[i-1]
	rp.pos[rp.queue[i-1]] = i - 1
	rp.pos[rp.queue[i]] = i
}

// PromoteByErrors moves id toward the head by a number of positions
// proportional to its cumulative error count, so "errors move a cell
// toward the head faster" (spec §4.4) than age alone.
func (rp *Reaper) PromoteByErrors(id cell.ID, errorCount int) {
	if errorCount <= 0 {
		return
	}
	i, ok := rp.pos[id]
	if !ok {
		return
	}
	steps := errorCount
	if steps > i {
		steps = i
	}
	for s := 0; s < steps; s++ {
		rp.Promote(id)
	}
}

// CheckLazy reports whether c should be promoted under spec §4.4's lazy
// rule: now - last_reproduction_instruction > lazy_tol * mother region
// length.
func (rp *Reaper) CheckLazy(c *cell.Cell, now uint64) bool {
	threshold := uint64(rp.cfg.LazyTol) * uint64(c.MotherRegion.Length)
	if now < c.Demographics.LastReproductionInstruction {
		return false
	}
	return now-c.Demographics.LastReproductionInstruction > threshold
}

// arena is the minimal view of the live population the selection/
// disturbance helpers need, so this package does not depend on
// internal/simulation for region lookups.
type arena interface {
	Region(id cell.ID) (region.Region, bool)
}

// SelectForSpace implements spec §4.4's allocation-failure reaping
// policy: with mal_reap_tol=0, the head; with mal_reap_tol=1 and a hint
// region, the oldest (nearest-head) cell within mal_tol*meanCellSize
// modular distance of the hint, falling back to the head.
func (rp *Reaper) SelectForSpace(a arena, hint region.Region, meanCellSize float64, soupSize int) (cell.ID, bool) {
	if len(rp.queue) == 0 {
		return 0, false
	}
	if rp.cfg.MalReapTol == 0 || hint.None() {
		return rp.queue[0], true
	}
	tolerance := int(float64(rp.cfg.MalTol) * meanCellSize)
	for _, id := range rp.queue {
		r, ok := a.Region(id)
		if !ok {
			continue
		}
		if region.ModDistance(r.Start, hint.Start, soupSize) <= tolerance {
			return id, true
		}
	}
	return rp.queue[0], true
}

// SelectForDisturbance returns a random dist_prop fraction of the current
// population for mass killing (spec §4.4 "Disturbance"), independent of
// queue order.
func (rp *Reaper) SelectForDisturbance() []cell.ID {
	n := int(float64(len(rp.queue)) * rp.cfg.DistProp)
	if n <= 0 {
		return nil
	}
	shuffled := append([]cell.ID(nil), rp.queue...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rp.rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// DisturbanceDue reports whether a disturbance should fire at
// instructionCount given the last time one fired (spec §4.4): a positive
// dist_freq fires every dist_freq million instructions; negative fires
// every |dist_freq| * recoveryInstructions (the caller's estimate of
// population recovery time).
func DisturbanceDue(cfg config.Config, instructionCount, lastFired uint64, recoveryInstructions uint64) bool {
	if cfg.DistFreq == 0 {
		return false
	}
	var period uint64
	if cfg.DistFreq > 0 {
		period = uint64(cfg.DistFreq * 1_000_000)
	} else {
		period = uint64(-cfg.DistFreq * float64(recoveryInstructions))
	}
	if period == 0 {
		return false
	}
	return instructionCount-lastFired >= period
}
