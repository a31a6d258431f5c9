package store

import (
	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
)

// Range is a closed attribute interval, normalized so Min <= Max.
type Range struct {
	Min float64 `json:"min" cbor:"min"`
	Max float64 `json:"max" cbor:"max"`
}

// Normalized swaps endpoints if needed.
func (r Range) Normalized() Range {
	if r.Min > r.Max {
		return Range{Min: r.Max, Max: r.Min}
	}
	return r
}

// Mul scales the interval by a base value; a negative value flips the
// endpoints, so the result is re-normalized.
func (r Range) Mul(v float64) Range {
	return Range{Min: r.Min * v, Max: r.Max * v}.Normalized()
}

// Union widens the interval to cover o.
func (r Range) Union(o Range) Range {
	if o.Min < r.Min {
		r.Min = o.Min
	}
	if o.Max > r.Max {
		r.Max = o.Max
	}
	return r
}

// MutatorIndex is the three-way relation over (source, mutator,
// resulting) tuples plus the per-mutator attribute roll ranges. All
// insertion is first-writer-wins; the catalogue is append-only.
type MutatorIndex struct {
	forward map[esi.TypeID]map[esi.TypeID]esi.TypeID              // source -> mutator -> resulting
	coarse  map[esi.TypeID]map[esi.TypeID]struct{}                // resulting -> sources
	fine    map[esi.TypeID]map[esi.TypeID]map[esi.TypeID]struct{} // resulting -> mutator -> sources
	ranges  map[esi.TypeID]map[esi.DogmaAttributeID]Range         // mutator -> attr -> range
}

func NewMutatorIndex() *MutatorIndex {
	return &MutatorIndex{
		forward: make(map[esi.TypeID]map[esi.TypeID]esi.TypeID),
		coarse:  make(map[esi.TypeID]map[esi.TypeID]struct{}),
		fine:    make(map[esi.TypeID]map[esi.TypeID]map[esi.TypeID]struct{}),
		ranges:  make(map[esi.TypeID]map[esi.DogmaAttributeID]Range),
	}
}

// Insert records source x mutator -> resulting. The first tuple for a
// (source, mutator) pair wins.
func (m *MutatorIndex) Insert(source, mutator, resulting esi.TypeID) {
	byMut, ok := m.forward[source]
	if !ok {
		byMut = make(map[esi.TypeID]esi.TypeID)
		m.forward[source] = byMut
	}
	if _, exists := byMut[mutator]; exists {
		return
	}
	byMut[mutator] = resulting

	srcs, ok := m.coarse[resulting]
	if !ok {
		srcs = make(map[esi.TypeID]struct{})
		m.coarse[resulting] = srcs
	}
	srcs[source] = struct{}{}

	byMutFine, ok := m.fine[resulting]
	if !ok {
		byMutFine = make(map[esi.TypeID]map[esi.TypeID]struct{})
		m.fine[resulting] = byMutFine
	}
	fineSrcs, ok := byMutFine[mutator]
	if !ok {
		fineSrcs = make(map[esi.TypeID]struct{})
		byMutFine[mutator] = fineSrcs
	}
	fineSrcs[source] = struct{}{}
}

// SetRange records a mutator's roll range for one attribute, first
// writer wins. The range is normalized at insert.
func (m *MutatorIndex) SetRange(mutator esi.TypeID, attr esi.DogmaAttributeID, r Range) {
	byAttr, ok := m.ranges[mutator]
	if !ok {
		byAttr = make(map[esi.DogmaAttributeID]Range)
		m.ranges[mutator] = byAttr
	}
	if _, exists := byAttr[attr]; exists {
		return
	}
	byAttr[attr] = r.Normalized()
}

// Resulting returns the type produced by applying mutator to source.
func (m *MutatorIndex) Resulting(source, mutator esi.TypeID) (esi.TypeID, bool) {
	r, ok := m.forward[source][mutator]
	return r, ok
}

// Ranges returns one mutator's roll ranges.
func (m *MutatorIndex) Ranges(mutator esi.TypeID) map[esi.DogmaAttributeID]Range {
	return m.ranges[mutator]
}

// AddMutators loads a whole mutator catalogue into the index. Implied
// refs: every mutator, source, and resulting type not yet held.
func (s *Store) AddMutators(data hobo.MutatorData) []Ref {
	need := make(map[esi.TypeID]struct{})

	s.mutMu.Lock()
	for mutator, eff := range data {
		need[mutator] = struct{}{}
		for _, mapping := range eff.InputOutputMapping {
			need[mapping.ResultingType] = struct{}{}
			for _, src := range mapping.ApplicableTypes {
				need[src] = struct{}{}
				s.mut.Insert(src, mutator, mapping.ResultingType)
			}
		}
		for attr, r := range eff.AttributeIDs {
			s.mut.SetRange(mutator, attr, Range{Min: r.Min, Max: r.Max})
		}
	}
	s.mutMu.Unlock()
	s.gen.Add(1)

	var refs []Ref
	s.typesMu.RLock()
	for t := range need {
		if _, ok := s.types[t]; !ok {
			refs = append(refs, TypeRef(t))
		}
	}
	s.typesMu.RUnlock()
	return refs
}

// ResultingType answers source x mutator -> resulting.
func (s *Store) ResultingType(source, mutator esi.TypeID) (esi.TypeID, bool) {
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()
	return s.mut.Resulting(source, mutator)
}

// MutatorInfo is one mutator as seen from a resulting type.
type MutatorInfo struct {
	Name   string
	Ranges map[esi.DogmaAttributeID]Range
}

// MutatorsByResultingType lists every mutator that can produce the
// resulting type, with its display name and roll ranges.
func (s *Store) MutatorsByResultingType(resulting esi.TypeID) map[esi.TypeID]MutatorInfo {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()

	out := make(map[esi.TypeID]MutatorInfo)
	for mutator := range s.mut.fine[resulting] {
		info := MutatorInfo{Ranges: make(map[esi.DogmaAttributeID]Range)}
		if t, ok := s.types[mutator]; ok {
			info.Name = t.Name
		}
		for attr, r := range s.mut.ranges[mutator] {
			info.Ranges[attr] = r
		}
		out[mutator] = info
	}
	return out
}

// ApplicableTypesByResultingType lists every source type that some
// mutator turns into the resulting type.
func (s *Store) ApplicableTypesByResultingType(resulting esi.TypeID) map[esi.TypeID]struct{} {
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()
	out := make(map[esi.TypeID]struct{}, len(s.mut.coarse[resulting]))
	for src := range s.mut.coarse[resulting] {
		out[src] = struct{}{}
	}
	return out
}

// AttributeIDsByMutator lists the attribute ids a mutator rolls.
func (s *Store) AttributeIDsByMutator(mutator esi.TypeID) []esi.DogmaAttributeID {
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()
	out := make([]esi.DogmaAttributeID, 0, len(s.mut.ranges[mutator]))
	for id := range s.mut.ranges[mutator] {
		out = append(out, id)
	}
	return out
}

// AttributeRangesByMutator copies a mutator's roll ranges.
func (s *Store) AttributeRangesByMutator(mutator esi.TypeID) map[esi.DogmaAttributeID]Range {
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()
	return copyMap(s.mut.ranges[mutator])
}

// SourceMutatorPairs lists the (source, mutator) pairs producing the
// resulting type.
func (s *Store) SourceMutatorPairs(resulting esi.TypeID) [][2]esi.TypeID {
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()
	var out [][2]esi.TypeID
	for mutator, srcs := range s.mut.fine[resulting] {
		for src := range srcs {
			out = append(out, [2]esi.TypeID{src, mutator})
		}
	}
	return out
}

// MinMaxAttributesByResultingType computes, for every attribute with a
// roll range on any producing mutator and a base value on any
// applicable source, the union of the per-pair scaled intervals.
func (s *Store) MinMaxAttributesByResultingType(resulting esi.TypeID) map[esi.DogmaAttributeID]Range {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	s.mutMu.RLock()
	defer s.mutMu.RUnlock()

	out := make(map[esi.DogmaAttributeID]Range)
	for mutator, srcs := range s.mut.fine[resulting] {
		ranges := s.mut.ranges[mutator]
		if len(ranges) == 0 {
			continue
		}
		for src := range srcs {
			t, ok := s.types[src]
			if !ok {
				continue
			}
			for _, dv := range t.DogmaAttributes {
				r, ok := ranges[dv.AttributeID]
				if !ok {
					continue
				}
				scaled := r.Mul(dv.Value)
				if cur, ok := out[dv.AttributeID]; ok {
					out[dv.AttributeID] = cur.Union(scaled)
				} else {
					out[dv.AttributeID] = scaled
				}
			}
		}
	}
	return out
}
