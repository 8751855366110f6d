package mutation

import (
	"testing"

	"tierra/internal/config"
	"tierra/internal/cpu"
	"tierra/internal/rng"
	"tierra/internal/soup"
)

func TestRateZeroDenominatorDisables(t *testing.T) {
	if got := rate(0, 100); got != 0 {
		t.Errorf("rate(0, 100) = %f, want 0", got)
	}
	if got := rate(32, 0); got != 0 {
		t.Errorf("rate(32, 0) = %f, want 0", got)
	}
}

func TestRateFormula(t *testing.T) {
	if got := rate(32, 10); got != 1.0/320 {
		t.Errorf("rate(32, 10) = %f, want %f", got, 1.0/320)
	}
}

func TestPerDivideRateZeroDenominatorDisables(t *testing.T) {
	if got := perDivideRate(0); got != 0 {
		t.Errorf("perDivideRate(0) = %f, want 0", got)
	}
	if got := perDivideRate(-1); got != 0 {
		t.Errorf("perDivideRate(-1) = %f, want 0", got)
	}
}

func TestPerDivideRateFormulaIgnoresGenomeLength(t *testing.T) {
	if got := perDivideRate(32); got != 1.0/32 {
		t.Errorf("perDivideRate(32) = %f, want %f", got, 1.0/32)
	}
}

func TestMaybeCosmicRayDisabledAtZeroRate(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerBkgMut = 0
	e := NewEngine(cfg, rng.New(1))
	s := soup.New(100, 10, 5, rng.New(1))
	for i := 0; i < 50; i++ {
		if e.MaybeCosmicRay(s, 20) {
			t.Fatalf("MaybeCosmicRay should never fire when gen_per_bkg_mut is 0")
		}
	}
}

func TestMaybeCosmicRayAlwaysFiresAtRateOne(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerBkgMut = 1
	e := NewEngine(cfg, rng.New(1))
	s := soup.New(100, 10, 5, rng.New(1))
	if !e.MaybeCosmicRay(s, 1) {
		t.Errorf("MaybeCosmicRay with rate 1 should always fire")
	}
}

func TestMaybeCorruptCopyDisabledByDefault(t *testing.T) {
	cfg := config.Default() // GenPerMovMut defaults to 0
	e := NewEngine(cfg, rng.New(1))
	for i := 0; i < 50; i++ {
		b, did := e.MaybeCorruptCopy(5, 20)
		if did || b != 5 {
			t.Fatalf("MaybeCorruptCopy should never fire when gen_per_mov_mut is 0")
		}
	}
}

func TestMaybeCorruptCopyProducesValidOpcode(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerMovMut = 1
	e := NewEngine(cfg, rng.New(1))
	for i := 0; i < 50; i++ {
		b, did := e.MaybeCorruptCopy(byte(i%32), 1)
		if !did {
			t.Fatalf("MaybeCorruptCopy with rate 1 should always fire")
		}
		if b > 0x1F {
			t.Errorf("corrupted byte %#x has bits outside the 5-bit opcode range", b)
		}
	}
}

func TestMaybeFlawPerturbsByOne(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerFlaw = 1
	e := NewEngine(cfg, rng.New(1))
	c := cpu.New(0)
	c.Set(cpu.RegA, 10)
	if !e.MaybeFlaw(&c, cpu.RegA, 1) {
		t.Fatalf("MaybeFlaw with rate 1 should always fire")
	}
	delta := c.AX - 10
	if delta != 1 && delta != -1 {
		t.Errorf("AX changed by %d, want +1 or -1", delta)
	}
}

type fakePool struct {
	genome []byte
	ok     bool
}

func (p fakePool) RandomSameSizeGenome(size int) ([]byte, bool) {
	if !p.ok || len(p.genome) != size {
		return nil, false
	}
	return p.genome, true
}

func TestMaybeDivideMutationDisabledAtZeroRate(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerDivMut = 0
	e := NewEngine(cfg, rng.New(1))
	genome := []byte{1, 2, 3, 4, 5}
	for i := 0; i < 50; i++ {
		out, did := e.MaybeDivideMutation(genome, 20)
		if did || string(out) != string(genome) {
			t.Fatalf("MaybeDivideMutation should never fire when gen_per_div_mut is 0")
		}
	}
}

func TestMaybeDivideMutationFlipsOneBitAtRateOne(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerDivMut = 1
	e := NewEngine(cfg, rng.New(1))
	genome := []byte{1, 1, 1, 1, 1}
	out, did := e.MaybeDivideMutation(genome, 1)
	if !did {
		t.Fatalf("MaybeDivideMutation with rate 1 should always fire")
	}
	if len(out) != len(genome) {
		t.Errorf("len(out) = %d, want %d: a bit flip must not change genome length", len(out), len(genome))
	}
	diffs := 0
	for i := range genome {
		if out[i] != genome[i] {
			diffs++
		}
	}
	if diffs != 1 {
		t.Errorf("exactly one byte should differ from the original, got %d", diffs)
	}
}

func TestMaybeDivideMutationEmptyGenomeNeverFires(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerDivMut = 1
	e := NewEngine(cfg, rng.New(1))
	out, did := e.MaybeDivideMutation(nil, 1)
	if did || out != nil {
		t.Errorf("MaybeDivideMutation on an empty genome should never fire")
	}
}

func TestApplyDivideOperatorsNoneFireAtZeroRates(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerInsIns, cfg.GenPerDelIns, cfg.GenPerCroInsSamSiz = 0, 0, 0
	cfg.GenPerDelSeg, cfg.GenPerInsSeg, cfg.GenPerCroSeg = 0, 0, 0
	e := NewEngine(cfg, rng.New(1))
	genome := []byte{1, 1, 2, 2, 3}
	out, applied := e.ApplyDivideOperators(genome, fakePool{})
	if len(applied) != 0 {
		t.Errorf("applied = %v, want none when every gen_per_* is 0", applied)
	}
	if string(out) != string(genome) {
		t.Errorf("genome mutated despite all rates being 0: %v", out)
	}
}

func TestApplyDivideOperatorsInsertAlwaysFires(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerInsIns = 1 // perDivideRate(1) == 1: guaranteed regardless of RNG draw
	cfg.GenPerDelIns, cfg.GenPerCroInsSamSiz = 0, 0
	cfg.GenPerDelSeg, cfg.GenPerInsSeg, cfg.GenPerCroSeg = 0, 0, 0
	e := NewEngine(cfg, rng.New(1))
	genome := []byte{1}
	out, applied := e.ApplyDivideOperators(genome, fakePool{})
	if len(applied) != 1 || applied[0] != OpInsIns {
		t.Fatalf("applied = %v, want only OpInsIns", applied)
	}
	if len(out) != len(genome)+1 {
		t.Errorf("len(out) = %d, want %d after an insertion", len(out), len(genome)+1)
	}
}

func TestApplyDivideOperatorsCrossoverNeedsAMate(t *testing.T) {
	cfg := config.Default()
	cfg.GenPerCroInsSamSiz = 1 // perDivideRate(1) == 1: guaranteed regardless of RNG draw
	cfg.GenPerInsIns, cfg.GenPerDelIns = 0, 0
	cfg.GenPerDelSeg, cfg.GenPerInsSeg, cfg.GenPerCroSeg = 0, 0, 0
	e := NewEngine(cfg, rng.New(1))
	genome := []byte{3}

	out, applied := e.ApplyDivideOperators(genome, fakePool{ok: false})
	if len(applied) != 0 {
		t.Errorf("crossover should not apply with no candidate mate, got %v", applied)
	}
	if string(out) != string(genome) {
		t.Errorf("genome should be unchanged with no mate available")
	}

	mate := []byte{9}
	out, applied = e.ApplyDivideOperators(genome, fakePool{genome: mate, ok: true})
	if len(applied) != 1 || applied[0] != OpCroIns {
		t.Fatalf("applied = %v, want only OpCroIns with a mate available", applied)
	}
	if len(out) != len(genome) {
		t.Errorf("same-size crossover must preserve length, got %d want %d", len(out), len(genome))
	}
	if out[0] != mate[0] {
		t.Errorf("single-byte same-size crossover must copy the mate's byte, got %v", out)
	}
}

func TestSegmentsSplitsOnOpcodeChange(t *testing.T) {
	segs := segments([]byte{1, 1, 1, 2, 2, 3})
	if len(segs) != 3 {
		t.Fatalf("segments() = %v, want 3 runs", segs)
	}
	want := []segment{{0, 3}, {3, 2}, {5, 1}}
	for i, s := range segs {
		if s != want[i] {
			t.Errorf("segs[%d] = %+v, want %+v", i, s, want[i])
		}
	}
}

func TestSegmentsEmptyGenome(t *testing.T) {
	if segs := segments(nil); segs != nil {
		t.Errorf("segments(nil) = %v, want nil", segs)
	}
}

func TestDeleteSegmentRequiresMoreThanOneSegment(t *testing.T) {
	if _, ok := deleteSegment([]byte{1, 1, 1}, rng.New(1)); ok {
		t.Errorf("deleteSegment on a single-segment genome should fail (would empty it)")
	}
}
