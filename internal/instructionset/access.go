package instructionset

import (
	"tierra/internal/cell"
	"tierra/internal/config"
	"tierra/internal/soup"
)

// AccessClass is which of the three protection masks (spec §4.1) governs an
// address, relative to the cell currently requesting access.
type AccessClass int

const (
	ClassFree AccessClass = iota
	ClassMine
	ClassProt
)

// classify determines addr's AccessClass for requester. Because spec §8's
// invariant guarantees free blocks plus every live cell's regions exactly
// partition the soup, membership only needs two checks: is addr in the
// requester's own regions (Mine), else is it free (Free); anything left
// over belongs to some other specific cell (Prot), and which cell it is
// does not matter for protection purposes.
func classify(addr int, requester *cell.Cell, s *soup.Soup) AccessClass {
	size := s.Size()
	if requester.MotherRegion.Contains(addr, size) || requester.DaughterRegion.Contains(addr, size) {
		return ClassMine
	}
	for _, b := range s.FreeBlocks() {
		if b.Contains(addr, size) {
			return ClassFree
		}
	}
	return ClassProt
}

func maskFor(class AccessClass, cfg config.Config) int {
	switch class {
	case ClassFree:
		return cfg.MemModeFree
	case ClassMine:
		return cfg.MemModeMine
	default:
		return cfg.MemModeProt
	}
}

// allowed reports whether kind (one of config.ProtExecute/Write/Read) is
// permitted at addr for requester: a set bit in the governing mask means
// that access type is blocked for that memory class (spec §4.1).
func allowed(addr int, requester *cell.Cell, s *soup.Soup, cfg config.Config, kind int) bool {
	class := classify(addr, requester, s)
	mask := maskFor(class, cfg)
	return mask&kind == 0
}
