package report

import (
	"abyssrun/internal/esi"
)

// Virtual attribute ids. Negative so they can never collide with real
// dogma attribute ids.
const (
	VirtualArmorRepairEfficiencyID  esi.DogmaAttributeID = -1
	VirtualArmorRepairSpeedID       esi.DogmaAttributeID = -2
	VirtualShieldRepairEfficiencyID esi.DogmaAttributeID = -3
	VirtualShieldRepairSpeedID      esi.DogmaAttributeID = -4
	VirtualDPSModifierID            esi.DogmaAttributeID = -5
	VirtualMissileDPSModifierID     esi.DogmaAttributeID = -6
	VirtualNeutralizationEfficiency esi.DogmaAttributeID = -7
)

// formula is a derived attribute: a product of numerators divided by a
// product of denominators, referenced by attribute display name and
// resolved to ids against the store's reverse index once metadata is
// available.
type formula struct {
	id           esi.DogmaAttributeID
	name         string
	highIsGood   bool
	numerators   []string
	denominators []string
}

var virtualFormulas = []formula{
	{
		id: VirtualArmorRepairEfficiencyID, name: "Armor Repair Efficiency", highIsGood: true,
		numerators: []string{"Armor Hitpoints Repaired"}, denominators: []string{"Activation Cost"},
	},
	{
		id: VirtualArmorRepairSpeedID, name: "Armor Repair Speed", highIsGood: true,
		numerators: []string{"Armor Hitpoints Repaired"}, denominators: []string{"Activation time / duration"},
	},
	{
		id: VirtualShieldRepairEfficiencyID, name: "Shield Repair Efficiency", highIsGood: true,
		numerators: []string{"Shield Bonus"}, denominators: []string{"Activation Cost"},
	},
	{
		id: VirtualShieldRepairSpeedID, name: "Shield Repair Speed", highIsGood: true,
		numerators: []string{"Shield Bonus"}, denominators: []string{"Activation time / duration"},
	},
	{
		id: VirtualDPSModifierID, name: "DPS Modifier", highIsGood: true,
		numerators: []string{"Damage Modifier"}, denominators: []string{"rate of fire bonus"},
	},
	{
		id: VirtualMissileDPSModifierID, name: "Missile DPS Modifier", highIsGood: true,
		numerators: []string{"Missile Damage Bonus"}, denominators: []string{"rate of fire bonus"},
	},
	{
		id: VirtualNeutralizationEfficiency, name: "Neutralization Efficiency", highIsGood: true,
		numerators: []string{"Neutralization Amount"}, denominators: []string{"Activation Cost"},
	},
}

// resolvedFormula has the name references bound to concrete ids.
type resolvedFormula struct {
	id           esi.DogmaAttributeID
	name         string
	highIsGood   bool
	numerators   []esi.DogmaAttributeID
	denominators []esi.DogmaAttributeID
}

// nameResolver maps an attribute display name to its id.
type nameResolver interface {
	AttributeIDByName(name string) (esi.DogmaAttributeID, bool)
}

// resolveFormulas binds every formula whose referenced attributes are
// all known; unresolvable formulas are dropped and reported.
func resolveFormulas(r nameResolver) (resolved []resolvedFormula, missing []string) {
	for _, f := range virtualFormulas {
		rf := resolvedFormula{id: f.id, name: f.name, highIsGood: f.highIsGood}
		ok := true
		for _, name := range f.numerators {
			id, found := r.AttributeIDByName(name)
			if !found {
				missing = append(missing, name)
				ok = false
				break
			}
			rf.numerators = append(rf.numerators, id)
		}
		if ok {
			for _, name := range f.denominators {
				id, found := r.AttributeIDByName(name)
				if !found {
					missing = append(missing, name)
					ok = false
					break
				}
				rf.denominators = append(rf.denominators, id)
			}
		}
		if ok {
			resolved = append(resolved, rf)
		}
	}
	return resolved, missing
}

func valueOf(attrs []AttributeValue, id esi.DogmaAttributeID) (float64, bool) {
	for _, a := range attrs {
		if a.ID == id {
			return a.Value, true
		}
	}
	return 0, false
}

func rangeOf(attrs []AttributeRange, id esi.DogmaAttributeID) (AttributeRange, bool) {
	for _, a := range attrs {
		if a.ID == id {
			return a, true
		}
	}
	return AttributeRange{}, false
}

// appendValues appends every computable virtual value: all components
// present and the denominator product non-zero.
func appendValues(formulas []resolvedFormula, attrs []AttributeValue) []AttributeValue {
	for _, f := range formulas {
		num, den := 1.0, 1.0
		ok := true
		for _, id := range f.numerators {
			v, found := valueOf(attrs, id)
			if !found {
				ok = false
				break
			}
			num *= v
		}
		if ok {
			for _, id := range f.denominators {
				v, found := valueOf(attrs, id)
				if !found {
					ok = false
					break
				}
				den *= v
			}
		}
		if ok && den != 0 {
			attrs = append(attrs, AttributeValue{ID: f.id, Value: num / den})
		}
	}
	return attrs
}

// appendRanges appends every computable virtual range. Division uses
// the opposite denominator bound so the interval stays conservative,
// then normalizes.
func appendRanges(formulas []resolvedFormula, attrs []AttributeRange) []AttributeRange {
	for _, f := range formulas {
		numMin, numMax, denMin, denMax := 1.0, 1.0, 1.0, 1.0
		ok := true
		for _, id := range f.numerators {
			r, found := rangeOf(attrs, id)
			if !found {
				ok = false
				break
			}
			numMin *= r.Min
			numMax *= r.Max
		}
		if ok {
			for _, id := range f.denominators {
				r, found := rangeOf(attrs, id)
				if !found {
					ok = false
					break
				}
				denMin *= r.Min
				denMax *= r.Max
			}
		}
		if !ok || denMin == 0 || denMax == 0 {
			continue
		}
		v1 := numMin / denMax
		v2 := numMax / denMin
		if v1 > v2 {
			v1, v2 = v2, v1
		}
		attrs = append(attrs, AttributeRange{ID: f.id, Min: v1, Max: v2})
	}
	return attrs
}

// appendVarying appends the virtual attributes whose components are all
// in the varying set.
func appendVarying(formulas []resolvedFormula, attrs []VaryingAttribute) []VaryingAttribute {
	present := func(id esi.DogmaAttributeID) bool {
		for _, a := range attrs {
			if a.ID == id {
				return true
			}
		}
		return false
	}
	for _, f := range formulas {
		ok := true
		for _, id := range f.numerators {
			if !present(id) {
				ok = false
				break
			}
		}
		if ok {
			for _, id := range f.denominators {
				if !present(id) {
					ok = false
					break
				}
			}
		}
		if ok {
			hig := f.highIsGood
			attrs = append(attrs, VaryingAttribute{ID: f.id, Name: f.name, HighIsGood: &hig})
		}
	}
	return attrs
}
