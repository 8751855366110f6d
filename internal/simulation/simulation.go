// Package simulation composes every other piece - Soup, Scheduler,
// Reaper, Genebank, MutationEngine, EventBus, DataLog, RNG, and
// InstructionSet - into the top-level tick loop of spec §4.7. It is the
// only package that holds the live-cell arena, keyed by cell.ID, and the
// only implementer of instructionset.Lifecycle (spec §9 "arena +
// integer IDs" to avoid cyclic references between Cell, the queues, and
// the genebank).
//
// Grounded on the teacher's top-level VM/runtime loop shape: one
// coarse-grained owner struct, a mutex held across a batch of work, and
// value-typed snapshot accessors for external readers (spec §5).
package simulation

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"tierra/internal/cell"
	"tierra/internal/config"
	"tierra/internal/datalog"
	"tierra/internal/errtax"
	"tierra/internal/eventbus"
	"tierra/internal/genebank"
	"tierra/internal/genebank/store"
	"tierra/internal/instructionset"
	"tierra/internal/mutation"
	"tierra/internal/obslog"
	"tierra/internal/reaper"
	"tierra/internal/region"
	"tierra/internal/rng"
	"tierra/internal/scheduler"
	"tierra/internal/soup"
)

// Simulation owns all engine state and drives the tick loop.
type Simulation struct {
	mu sync.Mutex

	cfg config.Config
	log *obslog.Logger

	soup      *soup.Soup
	scheduler *scheduler.Scheduler
	reaper    *reaper.Reaper
	genebank  *genebank.Genebank
	mutation  *mutation.Engine
	bus       *eventbus.Bus
	datalog   *datalog.DataLog
	rng       *rng.Source
	machine   *instructionset.Machine
	store     *store.Store

	arena            map[cell.ID]*cell.Cell
	nextID           cell.ID
	totalMotherBytes int64

	instructionCount           uint64
	lastBirthInstruction       uint64
	lastDisturbanceInstruction uint64
	ticksSinceSave             int
	lastCheckpointPop          int
	lastCheckpointFree         int

	runID   string
	stopped atomic.Bool
}

// New validates cfg and builds a fully wired Simulation, opening the
// disk-bank store if cfg.DiskBank is set.
func New(cfg config.Config, log *obslog.Logger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = obslog.Default()
	}

	r := rng.New(cfg.Seed)
	s := soup.New(cfg.SoupSize, cfg.MaxFreeBlocks, cfg.MalTol, r)

	sim := &Simulation{
		cfg:       cfg,
		log:       log,
		soup:      s,
		scheduler: scheduler.New(cfg, r),
		reaper:    reaper.New(cfg, r),
		genebank:  genebank.New(r),
		mutation:  mutation.NewEngine(cfg, r),
		bus:       eventbus.New(),
		datalog:   datalog.New(0, 600),
		rng:       r,
		arena:     make(map[cell.ID]*cell.Cell),
		nextID:    1,
		runID:     uuid.NewString(),
	}

	if cfg.DiskBank {
		dsn := cfg.DiskBankDSN
		if dsn == "" {
			dsn = "sqlite://tierra.db"
		}
		st, err := store.Open(dsn)
		if err != nil {
			return nil, err
		}
		sim.store = st
	}

	sim.machine = &instructionset.Machine{
		Soup:      s,
		Genebank:  sim.genebank,
		Mutation:  sim.mutation,
		Bus:       sim.bus,
		Config:    cfg,
		RNG:       r,
		Lifecycle: sim,
	}
	return sim, nil
}

// Close releases the disk-bank connection, if one is open.
func (sim *Simulation) Close() error {
	if sim.store == nil {
		return nil
	}
	return sim.store.Close()
}

// RunID uniquely identifies this Simulation instance across a process
// that may host more than one (spec §9).
func (sim *Simulation) RunID() string { return sim.runID }

// Subscribe registers an event observer (spec §4 EventBus).
func (sim *Simulation) Subscribe(o eventbus.Observer) int { return sim.bus.Subscribe(o) }

// Unsubscribe removes a previously registered observer.
func (sim *Simulation) Unsubscribe(handle int) { sim.bus.Unsubscribe(handle) }

// Stop cooperatively asks Run to return at the next tick boundary (spec
// §5 "cancellation is cooperative").
func (sim *Simulation) Stop() { sim.stopped.Store(true) }

// InjectGenome seeds a new cell at addr from genome bytes, registering it
// with the genebank under parentName (spec §4.6 "injected seed genomes
// receive a configured parent name", e.g. "0666god").
func (sim *Simulation) InjectGenome(genome []byte, addr int, parentName string) (*cell.Cell, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	r, err := sim.soup.AllocateAt(addr, len(genome))
	if err != nil {
		return nil, err
	}
	for i, b := range genome {
		sim.soup.Write(region.Mod(r.Start+i, sim.soup.Size()), b)
	}

	c := cell.New(sim.allocCellID(), r, sim.instructionCount)
	gt, created := sim.genebank.RegisterSeed(genome, parentName)
	c.Demographics.GenotypeName = gt.Name
	c.Demographics.ParentGenotypeName = parentName

	if created {
		sim.bus.Emit(eventbus.Event{Kind: eventbus.NewGenotype, GenotypeName: gt.Name, RunID: sim.runID})
	}
	sim.birthCellLocked(c)
	sim.bus.Emit(eventbus.Event{Kind: eventbus.CellBorn, CellID: c.ID, GenotypeName: gt.Name, RunID: sim.runID})
	return c, nil
}

// Tick runs exactly one scheduler turn: pick a cell, execute its
// computed slice, apply the lazy/disturbance checks, sample DataLog,
// emit a MILESTONE event at every DataLog sample boundary (spec §6
// MILESTONE event), and check the two halt conditions (spec §4.7).
func (sim *Simulation) Tick() error {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	id, ok := sim.scheduler.Next()
	if !ok {
		return errtax.NewExtinction()
	}
	c, ok := sim.arena[id]
	if !ok {
		return nil
	}

	slice := sim.scheduler.SliceFor(c, sim.meanCellSizeLocked())
	for i := 0; i < slice; i++ {
		sim.instructionCount++
		sim.machine.Step(c)
		if _, alive := sim.arena[id]; !alive {
			break
		}
	}

	if c, alive := sim.arena[id]; alive {
		if sim.reaper.CheckLazy(c, sim.instructionCount) {
			sim.reaper.Promote(c.ID)
		}
		sim.reaper.PromoteByErrors(c.ID, c.ErrorCount)
	}

	sim.maybeDisturb()
	sim.maybeEject()

	if sim.datalog.MaybeSample(sim.instructionCount, len(sim.arena), sim.genebank.Count(), sim.soup.FreeBytes(), sim.meanCellSizeLocked()) {
		sim.bus.Emit(eventbus.Event{Kind: eventbus.Milestone, InstructionCount: sim.instructionCount, RunID: sim.runID})
	}

	sim.maybeCheckpoint()

	if len(sim.arena) == 0 {
		return errtax.NewExtinction()
	}
	dropDeadInstructions := uint64(sim.cfg.DropDead) * 1_000_000
	if sim.instructionCount-sim.lastBirthInstruction > dropDeadInstructions {
		return errtax.NewNoReproduction(sim.instructionCount, dropDeadInstructions)
	}
	return nil
}

// Run calls Tick repeatedly until it returns a non-nil error, Stop is
// called, or maxTicks ticks have elapsed (0 means unbounded).
func (sim *Simulation) Run(maxTicks int) error {
	for i := 0; maxTicks == 0 || i < maxTicks; i++ {
		if sim.stopped.Load() {
			return nil
		}
		if err := sim.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// maybeDisturb fires a mass-kill disturbance if one is due (spec §4.4).
// recoveryInstructions approximates "population recovery time" as the
// instructions elapsed since the previous disturbance, per-population -
// the only recovery-time estimate available without a dedicated
// calibration run.
func (sim *Simulation) maybeDisturb() {
	recovery := sim.instructionCount - sim.lastDisturbanceInstruction
	if !reaper.DisturbanceDue(sim.cfg, sim.instructionCount, sim.lastDisturbanceInstruction, recovery) {
		return
	}
	for _, id := range sim.reaper.SelectForDisturbance() {
		sim.killCellLocked(id, eventbus.CauseDisturbance)
	}
	sim.lastDisturbanceInstruction = sim.instructionCount
}

// maybeEject applies eject_rate (spec §6 disturbance family): independent of
// the periodic mass disturbance, each tick has a flat eject_rate chance of
// culling a single cell - the reaper's current head, i.e. its
// lowest-fitness candidate - as a continuous background pruning pressure
// distinct from dist_freq's scheduled events.
func (sim *Simulation) maybeEject() {
	if sim.cfg.EjectRate <= 0 || !sim.rng.Chance(sim.cfg.EjectRate) {
		return
	}
	if id, ok := sim.reaper.Head(); ok {
		sim.killCellLocked(id, eventbus.CauseDisturbance)
	}
}

// maybeCheckpoint saves every registered genotype to the disk bank every
// save_freq ticks, once the genebank holds at least sav_min_num entries
// (spec §6 disk_bank family), or earlier if the live population or free
// memory has drifted from the last checkpoint by more than sav_thr_pop /
// sav_thr_mem (both fractions of soup_size) - an early
// save before a cadence boundary when state is changing fast.
func (sim *Simulation) maybeCheckpoint() {
	if sim.store == nil {
		return
	}
	sim.ticksSinceSave++
	dueByCadence := sim.cfg.SaveFreq > 0 && sim.ticksSinceSave >= sim.cfg.SaveFreq
	dueByDrift := sim.checkpointDriftExceeded()
	if !dueByCadence && !dueByDrift {
		return
	}
	sim.ticksSinceSave = 0
	all := sim.genebank.All()
	if len(all) < sim.cfg.SavMinNum {
		return
	}
	records := make([]store.Record, 0, len(all))
	for _, gt := range all {
		records = append(records, store.Record{
			Name:              gt.Name,
			Size:              gt.Size,
			ParentName:        gt.ParentName,
			OriginInstruction: gt.OriginInstruction,
			CurrentPopulation: gt.CurrentPopulation,
			MaxPopulation:     gt.MaxPopulation,
			Genome:            gt.Genome,
		})
	}
	if err := sim.store.SaveAll(records); err != nil {
		sim.log.Error("genebank checkpoint failed: %v", err)
		return
	}
	sim.lastCheckpointPop = len(sim.arena)
	sim.lastCheckpointFree = sim.soup.FreeBytes()
}

// checkpointDriftExceeded reports whether the live population or free-byte
// count has moved by more than the configured fraction since the last
// checkpoint. Both thresholds are expressed as a fraction of soup_size
// (spec §6 sav_thr_mem, sav_thr_pop), consistent with how mal/reap
// tolerances elsewhere in the config are scaled.
func (sim *Simulation) checkpointDriftExceeded() bool {
	if sim.cfg.SoupSize <= 0 {
		return false
	}
	scale := float64(sim.cfg.SoupSize)
	if sim.cfg.SavThrPop > 0 {
		if delta := absInt(len(sim.arena) - sim.lastCheckpointPop); float64(delta) > sim.cfg.SavThrPop*scale {
			return true
		}
	}
	if sim.cfg.SavThrMem > 0 {
		if delta := absInt(sim.soup.FreeBytes() - sim.lastCheckpointFree); float64(delta) > sim.cfg.SavThrMem*scale {
			return true
		}
	}
	return false
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// -- instructionset.Lifecycle --

// ReapForSpace implements instructionset.Lifecycle.
func (sim *Simulation) ReapForSpace(hint region.Region) bool {
	id, ok := sim.reaper.SelectForSpace(sim, hint, sim.meanCellSizeLocked(), sim.soup.Size())
	if !ok {
		return false
	}
	sim.killCellLocked(id, eventbus.CauseAllocation)
	return true
}

// BirthCell implements instructionset.Lifecycle.
func (sim *Simulation) BirthCell(c *cell.Cell) { sim.birthCellLocked(c) }

// NextCellID implements instructionset.Lifecycle.
func (sim *Simulation) NextCellID() cell.ID { return sim.allocCellID() }

// InstructionCount implements instructionset.Lifecycle.
func (sim *Simulation) InstructionCount() uint64 { return sim.instructionCount }

// MeanCellSize implements instructionset.Lifecycle.
func (sim *Simulation) MeanCellSize() float64 { return sim.meanCellSizeLocked() }

// Region implements the reaper package's unexported arena interface, so
// SelectForSpace can look up a queued cell's mother region without this
// package exposing its whole arena map.
func (sim *Simulation) Region(id cell.ID) (region.Region, bool) {
	c, ok := sim.arena[id]
	if !ok {
		return region.Region{}, false
	}
	return c.MotherRegion, true
}

func (sim *Simulation) allocCellID() cell.ID {
	id := sim.nextID
	sim.nextID++
	return id
}

func (sim *Simulation) birthCellLocked(c *cell.Cell) {
	sim.arena[c.ID] = c
	sim.scheduler.Enqueue(c.ID)
	sim.reaper.Enqueue(c.ID)
	sim.totalMotherBytes += int64(c.MotherRegion.Length)
	sim.lastBirthInstruction = sim.instructionCount
	sim.datalog.RecordBirth()
}

func (sim *Simulation) killCellLocked(id cell.ID, cause eventbus.DeathCause) {
	c, ok := sim.arena[id]
	if !ok {
		return
	}
	sim.soup.Free(c.MotherRegion)
	if c.HasDaughter() {
		sim.soup.Free(c.DaughterRegion)
	}
	sim.scheduler.Remove(id)
	sim.reaper.Remove(id)
	delete(sim.arena, id)
	sim.totalMotherBytes -= int64(c.MotherRegion.Length)
	sim.datalog.RecordDeath()

	if extinct, ok := sim.genebank.Release(c.Demographics.GenotypeName); ok && extinct {
		sim.bus.Emit(eventbus.Event{Kind: eventbus.GenotypeExtinct, GenotypeName: c.Demographics.GenotypeName, RunID: sim.runID})
	}
	sim.bus.Emit(eventbus.Event{Kind: eventbus.CellDied, CellID: id, Cause: cause, RunID: sim.runID})
}

func (sim *Simulation) meanCellSizeLocked() float64 {
	if len(sim.arena) == 0 {
		return 0
	}
	return float64(sim.totalMotherBytes) / float64(len(sim.arena))
}

// -- snapshots (spec §5 "copy-out snapshots") --

// Cells returns a value-typed snapshot of every live cell.
func (sim *Simulation) Cells() []cell.Snapshot {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	out := make([]cell.Snapshot, 0, len(sim.arena))
	for _, c := range sim.arena {
		out = append(out, c.Snapshot())
	}
	return out
}

// Genotypes returns every genotype currently registered.
func (sim *Simulation) Genotypes() []*genebank.Genotype {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.genebank.All()
}

// LiveCellCount returns the number of live cells.
func (sim *Simulation) LiveCellCount() int {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return len(sim.arena)
}

// FreeBytes returns the soup's total free-block byte count.
func (sim *Simulation) FreeBytes() int {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.soup.FreeBytes()
}

// DataLog exposes the metric rings for external sampling (spec §2
// DataLog, out-of-scope plotting reads these).
func (sim *Simulation) DataLog() *datalog.DataLog { return sim.datalog }
