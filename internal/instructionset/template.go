package instructionset

import "tierra/internal/region"

// searchDir selects which way a template-using instruction looks for its
// complement (spec §4.2 "jmpo...outward search", "jmpb...backward",
// "adro...outward", "adrb...backward", "adrf...forward").
type searchDir int

const (
	dirOutward searchDir = iota
	dirBackward
	dirForward
)

// complement returns the opposite template bit: nop0 (0) <-> nop1 (1).
func complement(b byte) byte {
	return 1 - b
}

// readTemplate reads the maximal run of nop0/nop1 opcodes starting at pos
// (mod soup size), returning the template bytes and the address
// immediately following the run (spec §4.2 "Template matching").
func (m *Machine) readTemplate(pos int) (tmpl []byte, endPos int) {
	size := m.Soup.Size()
	p := pos
	for {
		op := m.Soup.Read(p)
		if op != byte(Nop0) && op != byte(Nop1) {
			break
		}
		tmpl = append(tmpl, op)
		p = region.Mod(p+1, size)
		if len(tmpl) >= size {
			// Defensive bound: a soup entirely made of nop0/nop1 would
			// otherwise loop forever.
			break
		}
	}
	return tmpl, p
}

// searchLimit returns search_limit * mean_cell_size addresses, measured at
// search start (spec §4.2), with a floor of 1 so a limit is always made of
// at least one probe.
func (m *Machine) searchLimit() int {
	limit := int(float64(m.Config.SearchLimit) * m.Lifecycle.MeanCellSize())
	if limit < 1 {
		limit = 1
	}
	return limit
}

// matchesAt reports whether the complement of tmpl begins exactly at p.
func (m *Machine) matchesAt(p int, tmpl []byte) bool {
	size := m.Soup.Size()
	for i, b := range tmpl {
		if m.Soup.Read(region.Mod(p+i, size)) != complement(b) {
			return false
		}
	}
	return true
}

// findComplement searches outward/forward/backward from "from" (the
// address just past the consumed template) for tmpl's complement, scanning
// byte by byte up to searchLimit() addresses (spec §4.2). On match it
// returns the address just after the matched template and the template
// length; min_templ_size bounds the smallest template considered eligible
// at all (with min_templ_size of 1 or more, an empty template, i.e. no
// nop0/nop1 immediately followed the using instruction, never matches; at
// 0 an empty template matches at the first address probed).
func (m *Machine) findComplement(from int, tmpl []byte, dir searchDir) (matchAddr int, length int, found bool) {
	if len(tmpl) < m.Config.MinTemplSize {
		return 0, 0, false
	}
	size := m.Soup.Size()
	limit := m.searchLimit()
	check := func(p int) bool { return m.matchesAt(p, tmpl) }
	switch dir {
	case dirForward:
		for d := 1; d <= limit; d++ {
			p := region.Mod(from+d, size)
			if check(p) {
				return region.Mod(p+len(tmpl), size), len(tmpl), true
			}
		}
	case dirBackward:
		for d := 1; d <= limit; d++ {
			p := region.Mod(from-d, size)
			if check(p) {
				return region.Mod(p+len(tmpl), size), len(tmpl), true
			}
		}
	case dirOutward:
		for d := 1; d <= limit; d++ {
			pf := region.Mod(from+d, size)
			if check(pf) {
				return region.Mod(pf+len(tmpl), size), len(tmpl), true
			}
			pb := region.Mod(from-d, size)
			if check(pb) {
				return region.Mod(pb+len(tmpl), size), len(tmpl), true
			}
		}
	}
	return 0, 0, false
}
