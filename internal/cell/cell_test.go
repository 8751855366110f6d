package cell

import (
	"testing"

	"tierra/internal/region"
)

func TestNewCellStartsAtMotherRegionStart(t *testing.T) {
	c := New(1, region.Region{Start: 50, Length: 20}, 100)
	if c.CPU.IP != 50 {
		t.Errorf("IP = %d, want 50", c.CPU.IP)
	}
	if c.Demographics.BirthInstruction != 100 {
		t.Errorf("BirthInstruction = %d, want 100", c.Demographics.BirthInstruction)
	}
	if c.Demographics.LastReproductionInstruction != 100 {
		t.Errorf("LastReproductionInstruction = %d, want 100 (birth, not yet reproduced)", c.Demographics.LastReproductionInstruction)
	}
	if c.HasDaughter() {
		t.Errorf("a freshly born cell should have no daughter region")
	}
}

func TestMovProportion(t *testing.T) {
	c := New(1, region.Region{Start: 0, Length: 20}, 0)
	if got := c.MovProportion(); got != 0 {
		t.Errorf("MovProportion() with no daughter = %f, want 0", got)
	}
	c.DaughterRegion = region.Region{Start: 20, Length: 10}
	c.Demographics.MovCount = 5
	if got := c.MovProportion(); got != 0.5 {
		t.Errorf("MovProportion() = %f, want 0.5", got)
	}
}

func TestAge(t *testing.T) {
	c := New(1, region.Region{Start: 0, Length: 20}, 1000)
	if got := c.Age(1500); got != 500 {
		t.Errorf("Age(1500) = %d, want 500", got)
	}
	if got := c.Age(500); got != 0 {
		t.Errorf("Age() before birth should clamp to 0, got %d", got)
	}
}

func TestSnapshotIsValueTyped(t *testing.T) {
	c := New(1, region.Region{Start: 0, Length: 20}, 0)
	c.CPU.AX = 7
	snap := c.Snapshot()
	c.CPU.AX = 99
	if snap.AX != 7 {
		t.Errorf("Snapshot should be a frozen copy, but AX tracked the live cell: got %d, want 7", snap.AX)
	}
}
