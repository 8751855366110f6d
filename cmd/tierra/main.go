// Command tierra runs the simulation engine as a minimal headless demo:
// build a Simulation from the documented defaults, inject one seed
// genome, run until a halt condition, and log what happened. Argument
// parsing, genome-file loading, and the GUI are explicitly out of scope
// (spec §1) - a real deployment wires internal/simulation into one of
// those external front ends instead of this command.
package main

import (
	"errors"
	"os"

	"tierra/internal/config"
	"tierra/internal/errtax"
	"tierra/internal/eventbus"
	"tierra/internal/obslog"
	"tierra/internal/simulation"
)

// seedAncestor is a small synthetic placeholder genome for this demo
// binary: eight nop0 followed by eight nop1, and no other opcodes. It is not
// a biologically faithful Tierra ancestor - building one of those is the
// job of the out-of-scope genome-text-format loader (spec §6), which
// reads a real ancestor off disk rather than hard-coding one here.
var seedAncestor = []byte{
	0, 0, 0, 0, 0, 0, 0, 0, // nop0 x8
	1, 1, 1, 1, 1, 1, 1, 1, // nop1 x8: its complement
}

func main() {
	log := obslog.Default()

	cfg := config.Default()
	cfg.DiskBank = false // demo run: skip the disk-bank dependency entirely

	sim, err := simulation.New(cfg, log)
	if err != nil {
		log.Error("failed to build simulation: %v", err)
		os.Exit(1)
	}
	defer sim.Close()

	sim.Subscribe(eventbus.ObserverFunc(func(ev eventbus.Event) {
		log.Info("event kind=%s cell=%d genotype=%s cause=%s", ev.Kind, ev.CellID, ev.GenotypeName, ev.Cause)
	}))

	if _, err := sim.InjectGenome(seedAncestor, 0, "0016god"); err != nil {
		log.Error("failed to inject seed genome: %v", err)
		os.Exit(1)
	}

	log.Info("tierra run %s started: soup_size=%d seed=%d", sim.RunID(), cfg.SoupSize, cfg.Seed)

	err = sim.Run(0)
	var engineErr *errtax.EngineError
	switch {
	case err == nil:
		log.Info("run stopped")
	case errors.As(err, &engineErr):
		log.Info("run halted: %s", engineErr.Error())
	default:
		log.Error("run failed: %v", err)
		os.Exit(1)
	}

	log.Info("final population: %d live cells, %d genotypes, %d free bytes",
		sim.LiveCellCount(), len(sim.Genotypes()), sim.FreeBytes())
}
