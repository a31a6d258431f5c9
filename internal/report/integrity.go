package report

import (
	"fmt"
	"sort"

	"abyssrun/internal/esi"
)

type idSet map[esi.DogmaAttributeID]struct{}

func (s idSet) equal(o idSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if _, ok := o[id]; !ok {
			return false
		}
	}
	return true
}

func (s idSet) sorted() []esi.DogmaAttributeID {
	out := make([]esi.DogmaAttributeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func valueIDs(attrs []AttributeValue) (idSet, []esi.DogmaAttributeID) {
	set := make(idSet, len(attrs))
	var dups []esi.DogmaAttributeID
	for _, a := range attrs {
		if _, ok := set[a.ID]; ok {
			dups = append(dups, a.ID)
		}
		set[a.ID] = struct{}{}
	}
	return set, dups
}

func rangeIDs(attrs []AttributeRange) (idSet, []esi.DogmaAttributeID) {
	set := make(idSet, len(attrs))
	var dups []esi.DogmaAttributeID
	for _, a := range attrs {
		if _, ok := set[a.ID]; ok {
			dups = append(dups, a.ID)
		}
		set[a.ID] = struct{}{}
	}
	return set, dups
}

// checkIntegrity validates structural consistency of a built report:
// every per-item attribute list carries exactly the varying set, with
// no duplicates; every pair's source appears in base_types and its
// mutator in mutators. Problems are reported, never fatal.
func checkIntegrity(rep *Report) []string {
	var warnings []string
	warn := func(group, format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf("%s: %s", group, fmt.Sprintf(format, args...)))
	}

	for name, group := range rep.Data {
		varying := make(idSet, len(group.VaryingAttributes))
		for _, va := range group.VaryingAttributes {
			if _, ok := varying[va.ID]; ok {
				warn(name, "duplicate varying attribute %d", va.ID)
			}
			varying[va.ID] = struct{}{}
		}

		baseIDs := make(map[esi.TypeID]int)
		for _, bt := range group.BaseTypes {
			baseIDs[bt.ID]++
			if baseIDs[bt.ID] > 1 {
				warn(name, "duplicate base type %d", bt.ID)
			}
			set, dups := valueIDs(bt.Attributes)
			if len(dups) > 0 {
				warn(name, "duplicate attributes %v in base_type[%d]", dups, bt.ID)
			}
			if !set.equal(varying) {
				warn(name, "mismatched attributes in base_type[%d]: have %v want %v",
					bt.ID, set.sorted(), varying.sorted())
			}
		}

		mutatorIDs := make(map[esi.TypeID]int)
		for _, m := range group.Mutators {
			mutatorIDs[m.ID]++
			if mutatorIDs[m.ID] > 1 {
				warn(name, "duplicate mutator %d", m.ID)
			}
			set, dups := rangeIDs(m.Attributes)
			if len(dups) > 0 {
				warn(name, "duplicate attributes %v in mutator[%d]", dups, m.ID)
			}
			if !set.equal(varying) {
				warn(name, "mismatched attributes in mutator[%d]: have %v want %v",
					m.ID, set.sorted(), varying.sorted())
			}
		}

		set, dups := rangeIDs(group.MinMaxAttributes)
		if len(dups) > 0 {
			warn(name, "duplicate attributes %v in min_max_attributes", dups)
		}
		if !set.equal(varying) {
			warn(name, "mismatched attributes in min_max_attributes: have %v want %v",
				set.sorted(), varying.sorted())
		}

		for _, smg := range group.SourceMutatorGroups {
			if _, ok := baseIDs[smg.SourceTypeID]; !ok {
				warn(name, "source type %d missing from base_types", smg.SourceTypeID)
			}
			if _, ok := mutatorIDs[smg.MutatorTypeID]; !ok {
				warn(name, "mutator type %d missing from mutators", smg.MutatorTypeID)
			}
			set, dups := rangeIDs(smg.Attributes)
			if len(dups) > 0 {
				warn(name, "duplicate attributes %v in pair (%d,%d)", dups, smg.SourceTypeID, smg.MutatorTypeID)
			}
			if !set.equal(varying) {
				warn(name, "mismatched attributes in pair (%d,%d): have %v want %v",
					smg.SourceTypeID, smg.MutatorTypeID, set.sorted(), varying.sorted())
			}
			for _, d := range smg.Dynamics {
				set, dups := valueIDs(d.Attributes)
				if len(dups) > 0 {
					warn(name, "duplicate attributes %v in dynamic[%d]", dups, d.ItemID)
				}
				if !set.equal(varying) {
					warn(name, "mismatched attributes in dynamic[%d]: have %v want %v",
						d.ItemID, set.sorted(), varying.sorted())
				}
			}
		}
	}
	return warnings
}
