// Package soup implements the shared linear memory (spec §3 "Soup") and its
// free-block allocator (spec §4.1). Addressing is modular over soup_size
// throughout; opcode bytes are masked to their low 5 bits on read and
// written with upper bits cleared, matching spec §3.
package soup

import (
	"errors"
	"sort"

	"tierra/internal/region"
	"tierra/internal/rng"
)

// ErrNoSpace is returned by Allocate when no free block satisfies the
// request (spec §4.1, §4.2 "mal" NoSpace).
var ErrNoSpace = errors.New("soup: no free block large enough")

// Policy selects an allocation strategy (spec §4.1).
type Policy int

const (
	FirstFit Policy = iota
	BetterFit
	Random
	NearParent
	NearAddress
)

// Soup is the fixed-length, modularly addressed instruction memory shared
// by every cell, plus the free-block index tracking unallocated regions.
type Soup struct {
	data          []byte
	size          int
	free          []region.Region // sorted by Start, non-overlapping, non-adjacent
	maxFreeBlocks int
	malTol        int
	rng           *rng.Source
}

// New builds a Soup of the given size, initially entirely free, so the
// first allocation always succeeds against one block spanning the ring.
func New(size, maxFreeBlocks, malTol int, r *rng.Source) *Soup {
	s := &Soup{
		data:          make([]byte, size),
		size:          size,
		maxFreeBlocks: maxFreeBlocks,
		malTol:        malTol,
		rng:           r,
	}
	if size > 0 {
		s.free = []region.Region{{Start: 0, Length: size}}
	}
	return s
}

// Size returns soup_size.
func (s *Soup) Size() int { return s.size }

// Read returns the opcode (low 5 bits) stored at addr, modularly addressed.
func (s *Soup) Read(addr int) byte {
	return s.data[region.Mod(addr, s.size)] & 0x1F
}

// Write stores opcode's low 5 bits at addr, modularly addressed, clearing
// any upper bits per spec §3.
func (s *Soup) Write(addr int, opcode byte) {
	s.data[region.Mod(addr, s.size)] = opcode & 0x1F
}

// FlipBit flips one of the low 5 bits of the byte at addr, used by cosmic
// ray mutation which bypasses protection entirely (spec §4.5).
func (s *Soup) FlipBit(addr int, bit uint) {
	i := region.Mod(addr, s.size)
	s.data[i] ^= (1 << (bit % 5))
	s.data[i] &= 0x1F
}

// FreeBlocks returns a copy of the current free-block index, sorted by
// Start, for snapshotting and invariant checks.
func (s *Soup) FreeBlocks() []region.Region {
	out := make([]region.Region, len(s.free))
	copy(out, s.free)
	return out
}

// FreeBytes returns the total length of all free blocks.
func (s *Soup) FreeBytes() int {
	total := 0
	for _, b := range s.free {
		total += b.Length
	}
	return total
}

// Allocate finds and removes a sub-range of at least length bytes from the
// free-block index per policy, returning the allocated Region. near is
// consulted only by NearParent/NearAddress.
func (s *Soup) Allocate(length int, policy Policy, near *int) (region.Region, error) {
	if length <= 0 || length > s.size {
		return region.Region{}, ErrNoSpace
	}
	idx, ok := s.choose(length, policy, near)
	if !ok {
		return region.Region{}, ErrNoSpace
	}
	block := s.free[idx]
	allocated := region.Region{Start: block.Start, Length: length}
	remainder := region.Region{Start: region.Mod(block.Start+length, s.size), Length: block.Length - length}
	if remainder.Length == 0 {
		s.free = append(s.free[:idx], s.free[idx+1:]...)
	} else {
		s.free[idx] = remainder
	}
	return allocated, nil
}

// choose returns the index into s.free of the block selected by policy.
func (s *Soup) choose(length int, policy Policy, near *int) (int, bool) {
	var candidates []int
	for i, b := range s.free {
		if b.Length >= length {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	switch policy {
	case FirstFit:
		return candidates[0], true
	case BetterFit:
		return s.chooseBetterFit(candidates, length), true
	case Random:
		return candidates[s.rng.Intn(len(candidates))], true
	case NearParent, NearAddress:
		ref := 0
		if near != nil {
			ref = *near
		}
		return s.chooseNearest(candidates, ref), true
	default:
		return candidates[0], true
	}
}

// chooseBetterFit picks the smallest sufficient block, but accepts blocks
// up to length+malTol oversized first, favoring reuse of near-exact blocks
// over fragmenting a much larger one (spec §4.1).
func (s *Soup) chooseBetterFit(candidates []int, length int) int {
	tolerance := length + s.malTol
	bestWithin, bestWithinSize := -1, 0
	bestOverall, bestOverallSize := -1, 0
	for _, i := range candidates {
		sz := s.free[i].Length
		if bestOverall == -1 || sz < bestOverallSize {
			bestOverall, bestOverallSize = i, sz
		}
		if sz <= tolerance && (bestWithin == -1 || sz < bestWithinSize) {
			bestWithin, bestWithinSize = i, sz
		}
	}
	if bestWithin != -1 {
		return bestWithin
	}
	return bestOverall
}

// chooseNearest picks the candidate block whose Start is modularly closest
// to ref.
func (s *Soup) chooseNearest(candidates []int, ref int) int {
	best, bestDist := candidates[0], -1
	for _, i := range candidates {
		d := region.ModDistance(s.free[i].Start, ref, s.size)
		if bestDist == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// AllocateAt carves [start, start+length) out of the free-block index
// exactly, for seed-genome injection at a caller-chosen address (spec
// §4.7 "inoculant"/§6 new_soup). It fails if that range is not entirely
// contained in one free block.
func (s *Soup) AllocateAt(start, length int) (region.Region, error) {
	if length <= 0 || length > s.size {
		return region.Region{}, ErrNoSpace
	}
	want := region.Region{Start: region.Mod(start, s.size), Length: length}
	for i, b := range s.free {
		offset := region.Mod(want.Start-b.Start, s.size)
		if offset >= b.Length || offset+length > b.Length {
			continue
		}
		before := region.Region{Start: b.Start, Length: offset}
		after := region.Region{Start: region.Mod(want.Start+length, s.size), Length: b.Length - offset - length}
		rest := s.free[:i:i]
		if before.Length > 0 {
			rest = append(rest, before)
		}
		if after.Length > 0 {
			rest = append(rest, after)
		}
		s.free = append(rest, s.free[i+1:]...)
		sort.Slice(s.free, func(x, y int) bool { return s.free[x].Start < s.free[y].Start })
		return want, nil
	}
	return region.Region{}, ErrNoSpace
}

// Free returns r to the free-block index, merging with adjacent blocks
// (spec §3 "Free-block index invariant examples", §4.1 "free").
func (s *Soup) Free(r region.Region) {
	if r.Length <= 0 {
		return
	}
	s.free = append(s.free, r)
	sort.Slice(s.free, func(i, j int) bool { return s.free[i].Start < s.free[j].Start })
	s.coalesce()
	if len(s.free) > s.maxFreeBlocks {
		// Already eagerly coalesced above; maxFreeBlocks is the trigger
		// spec §4.1 names, not an additional compaction step - there is
		// no live-data relocation in this model.
	}
}

// coalesce merges adjacent and overlapping blocks in s.free, maintaining
// the invariant that free blocks are sorted, disjoint, and never adjacent.
func (s *Soup) coalesce() {
	if len(s.free) < 2 {
		return
	}
	merged := s.free[:1]
	for _, b := range s.free[1:] {
		last := &merged[len(merged)-1]
		if region.Mod(last.Start+last.Length, s.size) == region.Mod(b.Start, s.size) {
			last.Length += b.Length
			continue
		}
		merged = append(merged, b)
	}
	// The whole-ring case: if after merging there is exactly one block and
	// it wraps to cover everything, collapse duplicate coverage.
	if len(merged) > 1 {
		first, last := &merged[0], &merged[len(merged)-1]
		if region.Mod(last.Start+last.Length, s.size) == first.Start {
			first.Start = last.Start
			first.Length += last.Length
			merged = merged[:len(merged)-1]
		}
	}
	s.free = merged
}
