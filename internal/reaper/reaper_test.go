package reaper

import (
	"testing"

	"tierra/internal/cell"
	"tierra/internal/config"
	"tierra/internal/region"
	"tierra/internal/rng"
)

func TestHeadAndEnqueueOrder(t *testing.T) {
	rp := New(config.Default(), rng.New(1))
	if _, ok := rp.Head(); ok {
		t.Fatalf("Head() on an empty reaper should report ok=false")
	}
	rp.Enqueue(1)
	rp.Enqueue(2)
	head, ok := rp.Head()
	if !ok || head != 1 {
		t.Errorf("Head() = %d, %v, want 1, true", head, ok)
	}
}

func TestPromoteMovesOneStepTowardHead(t *testing.T) {
	rp := New(config.Default(), rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	rp.Enqueue(3)
	rp.Promote(3)
	ids := rp.IDs()
	want := []cell.ID{1, 3, 2}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
}

func TestPromoteAtHeadIsNoop(t *testing.T) {
	rp := New(config.Default(), rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	rp.Promote(1)
	ids := rp.IDs()
	if ids[0] != 1 || ids[1] != 2 {
		t.Errorf("IDs() = %v, promoting the head should be a no-op", ids)
	}
}

func TestPromoteByErrorsCapsAtQueueDepth(t *testing.T) {
	rp := New(config.Default(), rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	rp.Enqueue(3)
	rp.PromoteByErrors(3, 100) // far more steps than the queue is deep
	ids := rp.IDs()
	if ids[0] != 3 {
		t.Errorf("IDs() = %v, want id 3 promoted all the way to the head", ids)
	}
}

func TestPromoteByErrorsZeroIsNoop(t *testing.T) {
	rp := New(config.Default(), rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	rp.PromoteByErrors(2, 0)
	ids := rp.IDs()
	if ids[0] != 1 || ids[1] != 2 {
		t.Errorf("IDs() = %v, zero errors should not promote", ids)
	}
}

func TestRemoveDropsFromQueue(t *testing.T) {
	rp := New(config.Default(), rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	rp.Remove(1)
	if rp.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", rp.Len())
	}
	head, _ := rp.Head()
	if head != 2 {
		t.Errorf("Head() = %d, want 2", head)
	}
}

func TestCheckLazy(t *testing.T) {
	cfg := config.Default()
	cfg.LazyTol = 10
	rp := New(cfg, rng.New(1))
	c := cell.New(1, region.Region{Start: 0, Length: 20}, 0)
	c.Demographics.LastReproductionInstruction = 100

	if rp.CheckLazy(c, 100+200) { // threshold is 10*20=200, not yet exceeded
		t.Errorf("CheckLazy at exactly the threshold should not fire")
	}
	if !rp.CheckLazy(c, 100+201) {
		t.Errorf("CheckLazy just past the threshold should fire")
	}
}

type fakeArena map[cell.ID]region.Region

func (a fakeArena) Region(id cell.ID) (region.Region, bool) {
	r, ok := a[id]
	return r, ok
}

func TestSelectForSpaceIgnoresHintWhenReapTolZero(t *testing.T) {
	cfg := config.Default()
	cfg.MalReapTol = 0
	rp := New(cfg, rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	a := fakeArena{1: {Start: 0, Length: 10}, 2: {Start: 50, Length: 10}}
	id, ok := rp.SelectForSpace(a, region.Region{Start: 50, Length: 5}, 10, 100)
	if !ok || id != 1 {
		t.Errorf("SelectForSpace() = %d, %v, want the head (1) when mal_reap_tol is 0", id, ok)
	}
}

func TestSelectForSpaceFindsNearestWithinTolerance(t *testing.T) {
	cfg := config.Default()
	cfg.MalReapTol = 1
	cfg.MalTol = 5
	rp := New(cfg, rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	a := fakeArena{1: {Start: 0, Length: 10}, 2: {Start: 52, Length: 10}}
	id, ok := rp.SelectForSpace(a, region.Region{Start: 50, Length: 5}, 1, 100)
	if !ok || id != 2 {
		t.Errorf("SelectForSpace() = %d, %v, want 2 (within tolerance of the hint)", id, ok)
	}
}

func TestSelectForSpaceFallsBackToHead(t *testing.T) {
	cfg := config.Default()
	cfg.MalReapTol = 1
	cfg.MalTol = 1
	rp := New(cfg, rng.New(1))
	rp.Enqueue(1)
	rp.Enqueue(2)
	a := fakeArena{1: {Start: 0, Length: 10}, 2: {Start: 90, Length: 10}}
	id, ok := rp.SelectForSpace(a, region.Region{Start: 50, Length: 5}, 1, 100)
	if !ok || id != 1 {
		t.Errorf("SelectForSpace() = %d, %v, want the head (1) when nothing is within tolerance", id, ok)
	}
}

func TestSelectForDisturbanceProportion(t *testing.T) {
	cfg := config.Default()
	cfg.DistProp = 0.5
	rp := New(cfg, rng.New(1))
	for i := cell.ID(1); i <= 10; i++ {
		rp.Enqueue(i)
	}
	selected := rp.SelectForDisturbance()
	if len(selected) != 5 {
		t.Errorf("SelectForDisturbance() selected %d, want 5 (50%% of 10)", len(selected))
	}
}

func TestSelectForDisturbanceZeroProportion(t *testing.T) {
	cfg := config.Default()
	cfg.DistProp = 0
	rp := New(cfg, rng.New(1))
	rp.Enqueue(1)
	if got := rp.SelectForDisturbance(); got != nil {
		t.Errorf("SelectForDisturbance() = %v, want nil at dist_prop 0", got)
	}
}

func TestDisturbanceDuePositiveFrequency(t *testing.T) {
	cfg := config.Default()
	cfg.DistFreq = 1 // every 1,000,000 instructions
	if DisturbanceDue(cfg, 999_999, 0, 0) {
		t.Errorf("DisturbanceDue should not fire before the period elapses")
	}
	if !DisturbanceDue(cfg, 1_000_000, 0, 0) {
		t.Errorf("DisturbanceDue should fire once the period elapses")
	}
}

func TestDisturbanceDueNegativeFrequencyUsesRecoveryTime(t *testing.T) {
	cfg := config.Default()
	cfg.DistFreq = -2
	if DisturbanceDue(cfg, 199, 0, 100) {
		t.Errorf("DisturbanceDue should not fire before 2x recovery time")
	}
	if !DisturbanceDue(cfg, 200, 0, 100) {
		t.Errorf("DisturbanceDue should fire at exactly 2x recovery time")
	}
}

func TestDisturbanceDueZeroFrequencyDisables(t *testing.T) {
	cfg := config.Default()
	cfg.DistFreq = 0
	if DisturbanceDue(cfg, 1_000_000_000, 0, 1000) {
		t.Errorf("DisturbanceDue should never fire at dist_freq 0")
	}
}
