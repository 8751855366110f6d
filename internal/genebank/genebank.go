// Package genebank implements the genotype identity registry, naming, and
// lineage tracking described in spec §4.6 and §3 "Genotype". The registry
// itself is in-memory and authoritative; internal/genebank/store provides
// an optional periodic checkpoint sink selected by the disk_bank family of
// config options (spec §6, SPEC_FULL.md §11.1).
package genebank

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"tierra/internal/rng"
)

// Genotype is an equivalence class of cells by genome bytes (spec §3).
type Genotype struct {
	Name              string
	Genome            []byte
	Size              int
	ParentName        string
	OriginInstruction uint64
	CurrentPopulation int
	MaxPopulation     int
}

// key identifies a genotype by (size, hash) per spec §3 "Identity".
type key struct {
	size int
	hash string
}

func hashOf(genome []byte) string {
	sum := sha256.Sum256(genome)
	return hex.EncodeToString(sum[:])
}

// Genebank is the in-memory registry mapping genome identity to a Genotype
// record, plus the size-scoped naming sequence from spec §4.6.
type Genebank struct {
	byKey  map[key]*Genotype
	byName map[string]*Genotype
	// nextTriple tracks, per size class, the next "aaa".."zzz" triple to
	// assign (spec §4.6 naming).
	nextTriple map[int]int
	r          *rng.Source
}

// New returns an empty Genebank drawing its crossover-pool randomness from r.
func New(r *rng.Source) *Genebank {
	return &Genebank{
		byKey:      make(map[key]*Genotype),
		byName:     make(map[string]*Genotype),
		nextTriple: make(map[int]int),
		r:          r,
	}
}

// Lookup finds the Genotype matching genome's (size, hash) identity, if any.
func (g *Genebank) Lookup(genome []byte) (*Genotype, bool) {
	k := key{size: len(genome), hash: hashOf(genome)}
	gt, ok := g.byKey[k]
	return gt, ok
}

// ByName returns the Genotype registered under name, if any.
func (g *Genebank) ByName(name string) (*Genotype, bool) {
	gt, ok := g.byName[name]
	return gt, ok
}

// Register records a daughter's genome at divide time (spec §4.6): if an
// identical genome already exists, its population is incremented and it is
// returned with created=false; otherwise a new Genotype is named and
// inserted, returned with created=true (the caller emits NEW_GENOTYPE for
// that case).
func (g *Genebank) Register(genome []byte, parentName string, originInstruction uint64) (gt *Genotype, created bool) {
	if existing, ok := g.Lookup(genome); ok {
		existing.CurrentPopulation++
		if existing.CurrentPopulation > existing.MaxPopulation {
			existing.MaxPopulation = existing.CurrentPopulation
		}
		return existing, false
	}
	name := g.nextName(len(genome))
	copyGenome := make([]byte, len(genome))
	copy(copyGenome, genome)
	gt = &Genotype{
		Name:              name,
		Genome:            copyGenome,
		Size:              len(genome),
		ParentName:        parentName,
		OriginInstruction: originInstruction,
		CurrentPopulation: 1,
		MaxPopulation:     1,
	}
	g.byKey[key{size: gt.Size, hash: hashOf(genome)}] = gt
	g.byName[name] = gt
	return gt, true
}

// RegisterSeed inserts an inoculant genome directly (external injection,
// spec §4.6 "injected seed genomes receive a configured parent name"),
// bypassing the birth-instruction counting of a real divide.
func (g *Genebank) RegisterSeed(genome []byte, parentName string) (gt *Genotype, created bool) {
	return g.Register(genome, parentName, 0)
}

// Release decrements a genotype's population on a cell's death, reporting
// extinct=true when the population reaches zero (caller emits
// GENOTYPE_EXTINCT, spec §4.4).
func (g *Genebank) Release(name string) (extinct bool, ok bool) {
	gt, found := g.byName[name]
	if !found {
		return false, false
	}
	if gt.CurrentPopulation > 0 {
		gt.CurrentPopulation--
	}
	return gt.CurrentPopulation == 0, true
}

// nextName assigns the next "NNNNxxx" name for the given size class (spec
// §4.6): NNNN is the zero-padded size, xxx is the next available base-26
// triple from aaa..zzz within that size class.
func (g *Genebank) nextName(size int) string {
	idx := g.nextTriple[size]
	g.nextTriple[size] = idx + 1
	return fmt.Sprintf("%04d%s", size, tripleOf(idx))
}

// tripleOf renders idx (0-based) as a base-26 triple using 'a'..'z', so 0 ->
// "aaa", 1 -> "aab", ..., 25 -> "aaz", 26 -> "aba", wrapping indefinitely
// past "zzz" rather than erroring (an implementation choice: spec §4.6 does
// not bound the number of size-class members).
func tripleOf(idx int) string {
	const base = 26
	digits := [3]byte{}
	for i := 2; i >= 0; i-- {
		digits[i] = byte('a' + idx%base)
		idx /= base
	}
	return string(digits[:])
}

// Count returns the number of distinct genotypes currently registered.
func (g *Genebank) Count() int { return len(g.byName) }

// All returns every registered genotype, for snapshotting.
func (g *Genebank) All() []*Genotype {
	out := make([]*Genotype, 0, len(g.byName))
	for _, gt := range g.byName {
		out = append(out, gt)
	}
	return out
}

// RandomSameSizeGenome returns a uniformly chosen living genome of exactly
// size bytes, for the divide-time crossover operators (spec §4.5
// "same-size swap with a random same-size living genome"). Implements
// internal/mutation.GeneticPool.
func (g *Genebank) RandomSameSizeGenome(size int) ([]byte, bool) {
	var candidates [][]byte
	for _, gt := range g.byName {
		if gt.Size == size && gt.CurrentPopulation > 0 {
			candidates = append(candidates, gt.Genome)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[g.r.Intn(len(candidates))], true
}

// TotalPopulation sums CurrentPopulation across every registered genotype -
// spec §8's "Σ genotype.population = |live cells|" invariant.
func (g *Genebank) TotalPopulation() int {
	total := 0
	for _, gt := range g.byName {
		total += gt.CurrentPopulation
	}
	return total
}
