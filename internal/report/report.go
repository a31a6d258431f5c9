// Package report projects a resolved asset store into the dynamics
// view: held mutated items grouped by the resulting type their
// (source, mutator) pair produces, with attribute ranges and derived
// virtual attributes.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"abyssrun/internal/esi"
	"abyssrun/internal/store"
)

// AttributeValue is one (id, value) pair.
type AttributeValue struct {
	ID    esi.DogmaAttributeID `json:"id"`
	Value float64              `json:"value"`
}

// AttributeRange is one (id, interval) pair.
type AttributeRange struct {
	ID  esi.DogmaAttributeID `json:"id"`
	Min float64              `json:"min"`
	Max float64              `json:"max"`
}

// VaryingAttribute is one column of a resulting group's schema.
type VaryingAttribute struct {
	ID         esi.DogmaAttributeID `json:"id"`
	Name       string               `json:"name"`
	HighIsGood *bool                `json:"high_is_good"`
}

// BaseType is a source type's base values restricted to the schema.
type BaseType struct {
	ID         esi.TypeID       `json:"id"`
	Name       string           `json:"name"`
	Attributes []AttributeValue `json:"attributes"`
}

// Mutator is one producing mutator with its roll ranges.
type Mutator struct {
	ID         esi.TypeID       `json:"id"`
	Name       string           `json:"name"`
	Attributes []AttributeRange `json:"attributes"`
}

// DynamicInstance is one held mutated item with its location chain.
type DynamicInstance struct {
	ItemID       esi.ItemID       `json:"item_id"`
	StationName  string           `json:"station_name"`
	LocationType string           `json:"location_type"`
	LocationName string           `json:"location_name"`
	Attributes   []AttributeValue `json:"attributes"`
}

// SourceMutatorGroup is one (source, mutator) pair: its multiplied
// ranges and the held instances it explains.
type SourceMutatorGroup struct {
	SourceTypeID  esi.TypeID        `json:"source_type_id"`
	MutatorTypeID esi.TypeID        `json:"mutator_type_id"`
	Attributes    []AttributeRange  `json:"attributes"`
	Dynamics      []DynamicInstance `json:"dynamics"`
}

// ResultingGroup is everything known about one resulting type.
type ResultingGroup struct {
	SourceMutatorGroups []SourceMutatorGroup `json:"source_mutator_groups"`
	BaseTypes           []BaseType           `json:"base_types"`
	Mutators            []Mutator            `json:"mutators"`
	VaryingAttributes   []VaryingAttribute   `json:"varying_attributes"`
	MinMaxAttributes    []AttributeRange     `json:"min_max_attributes"`
}

// Report is the full projection, keyed by resulting type name.
type Report struct {
	Data        map[string]*ResultingGroup `json:"data"`
	GeneratedAt string                     `json:"generated_at"`
	Warnings    []string                   `json:"warnings,omitempty"`
}

// Builder projects the store.
type Builder struct {
	store *store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewBuilder builds a report builder.
func NewBuilder(st *store.Store, log zerolog.Logger) *Builder {
	return &Builder{store: st, log: log, now: time.Now}
}

// Build produces the report from the store's current state. A store
// that is not yet closed yields a partial report; problems found by
// the integrity check are attached as warnings, never failures.
func (b *Builder) Build() *Report {
	v := b.store.View()
	resolver := store.NewLocationResolver(v)

	formulas, missing := resolveFormulas(b.store)
	for _, name := range missing {
		b.log.Warn().Str("attribute", name).Msg("virtual attribute component unresolved")
	}

	// group held dynamics by (source, mutator)
	bySourceMutator := make(map[pair][]DynamicInstance)
	for itemID, dyn := range v.Dynamics {
		asset, ok := v.Items[itemID]
		var loc store.Location
		if ok {
			loc = resolver.Resolve(asset)
		} else {
			loc = store.Location{StationName: "Unknown", LocationType: "unknown", Chain: "Direct"}
		}
		attrs := make([]AttributeValue, 0, len(dyn.DogmaAttributes))
		for _, a := range dyn.DogmaAttributes {
			attrs = append(attrs, AttributeValue{ID: a.AttributeID, Value: a.Value})
		}
		p := pair{source: dyn.SourceTypeID, mutator: dyn.MutatorTypeID}
		bySourceMutator[p] = append(bySourceMutator[p], DynamicInstance{
			ItemID:       itemID,
			StationName:  loc.StationName,
			LocationType: loc.LocationType,
			LocationName: loc.Chain,
			Attributes:   attrs,
		})
	}

	var warnings []string
	byResulting := make(map[esi.TypeID][]pair)
	for p := range bySourceMutator {
		resulting, ok := b.store.ResultingType(p.source, p.mutator)
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"no resulting type for source %d mutator %d", p.source, p.mutator))
			continue
		}
		byResulting[resulting] = append(byResulting[resulting], p)
	}

	rep := &Report{Data: make(map[string]*ResultingGroup, len(byResulting))}
	for resulting, pairs := range byResulting {
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].source != pairs[j].source {
				return pairs[i].source < pairs[j].source
			}
			return pairs[i].mutator < pairs[j].mutator
		})

		name := fmt.Sprintf("Type_%d", resulting)
		if t, ok := v.Types[resulting]; ok {
			name = t.Name
		}

		group := &ResultingGroup{}
		varyingIDs := b.buildVarying(v, formulas, pairs2mutators(pairs), group)

		b.buildBaseTypes(v, formulas, resulting, varyingIDs, group)
		b.buildMutators(formulas, resulting, varyingIDs, group)
		b.buildMinMax(formulas, resulting, varyingIDs, group)

		for _, p := range pairs {
			group.SourceMutatorGroups = append(group.SourceMutatorGroups,
				b.buildPairGroup(v, formulas, p.source, p.mutator, varyingIDs, bySourceMutator[p]))
		}

		rep.Data[name] = group
	}

	rep.GeneratedAt = b.now().UTC().Format(time.RFC3339)
	warnings = append(warnings, checkIntegrity(rep)...)
	for _, w := range warnings {
		b.log.Warn().Str("warning", w).Msg("report integrity")
	}
	rep.Warnings = warnings
	return rep
}

// pair identifies one (source, mutator) combination.
type pair struct{ source, mutator esi.TypeID }

func pairs2mutators(pairs []pair) []esi.TypeID {
	seen := make(map[esi.TypeID]struct{})
	var out []esi.TypeID
	for _, p := range pairs {
		if _, ok := seen[p.mutator]; ok {
			continue
		}
		seen[p.mutator] = struct{}{}
		out = append(out, p.mutator)
	}
	return out
}

// buildVarying computes the schema: the intersection of the attribute
// sets of every mutator present in the held dynamics, plus applicable
// virtuals. Returns the id set used to restrict every other list.
func (b *Builder) buildVarying(v *store.View, formulas []resolvedFormula, mutators []esi.TypeID, group *ResultingGroup) map[esi.DogmaAttributeID]struct{} {
	var intersection map[esi.DogmaAttributeID]struct{}
	for _, mutator := range mutators {
		ids := b.store.AttributeIDsByMutator(mutator)
		set := make(map[esi.DogmaAttributeID]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		if intersection == nil {
			intersection = set
			continue
		}
		for id := range intersection {
			if _, ok := set[id]; !ok {
				delete(intersection, id)
			}
		}
	}

	sorted := make([]esi.DogmaAttributeID, 0, len(intersection))
	for id := range intersection {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, id := range sorted {
		va := VaryingAttribute{ID: id, Name: fmt.Sprintf("attribute_%d", id)}
		if meta, ok := v.Attrs[id]; ok {
			if meta.Name != nil {
				va.Name = *meta.Name
			}
			va.HighIsGood = meta.HighIsGood
		}
		group.VaryingAttributes = append(group.VaryingAttributes, va)
	}
	group.VaryingAttributes = appendVarying(formulas, group.VaryingAttributes)

	ids := make(map[esi.DogmaAttributeID]struct{}, len(group.VaryingAttributes))
	for _, va := range group.VaryingAttributes {
		ids[va.ID] = struct{}{}
	}
	return ids
}

func (b *Builder) buildBaseTypes(v *store.View, formulas []resolvedFormula, resulting esi.TypeID, varying map[esi.DogmaAttributeID]struct{}, group *ResultingGroup) {
	applicable := b.store.ApplicableTypesByResultingType(resulting)
	ids := make([]esi.TypeID, 0, len(applicable))
	for id := range applicable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t, ok := v.Types[id]
		if !ok {
			b.log.Warn().Int32("type_id", int32(id)).Msg("applicable type missing from store")
			continue
		}
		var attrs []AttributeValue
		for _, a := range t.DogmaAttributes {
			if _, keep := varying[a.AttributeID]; keep {
				attrs = append(attrs, AttributeValue{ID: a.AttributeID, Value: a.Value})
			}
		}
		attrs = appendValues(formulas, attrs)
		group.BaseTypes = append(group.BaseTypes, BaseType{ID: id, Name: t.Name, Attributes: attrs})
	}
}

func (b *Builder) buildMutators(formulas []resolvedFormula, resulting esi.TypeID, varying map[esi.DogmaAttributeID]struct{}, group *ResultingGroup) {
	infos := b.store.MutatorsByResultingType(resulting)
	ids := make([]esi.TypeID, 0, len(infos))
	for id := range infos {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		info := infos[id]
		attrs := rangesToSorted(info.Ranges, varying)
		attrs = appendRanges(formulas, attrs)
		group.Mutators = append(group.Mutators, Mutator{ID: id, Name: info.Name, Attributes: attrs})
	}
}

func (b *Builder) buildMinMax(formulas []resolvedFormula, resulting esi.TypeID, varying map[esi.DogmaAttributeID]struct{}, group *ResultingGroup) {
	union := b.store.MinMaxAttributesByResultingType(resulting)
	attrs := rangesToSorted(union, varying)
	group.MinMaxAttributes = appendRanges(formulas, attrs)
}

func (b *Builder) buildPairGroup(v *store.View, formulas []resolvedFormula, source, mutator esi.TypeID, varying map[esi.DogmaAttributeID]struct{}, dynamics []DynamicInstance) SourceMutatorGroup {
	mutRanges := b.store.AttributeRangesByMutator(mutator)
	var attrs []AttributeRange
	if t, ok := v.Types[source]; ok {
		for _, a := range t.DogmaAttributes {
			r, has := mutRanges[a.AttributeID]
			if !has {
				continue
			}
			if _, keep := varying[a.AttributeID]; !keep {
				continue
			}
			scaled := r.Mul(a.Value)
			attrs = append(attrs, AttributeRange{ID: a.AttributeID, Min: scaled.Min, Max: scaled.Max})
		}
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].ID < attrs[j].ID })
	attrs = appendRanges(formulas, attrs)

	out := SourceMutatorGroup{
		SourceTypeID:  source,
		MutatorTypeID: mutator,
		Attributes:    attrs,
	}
	for _, d := range dynamics {
		kept := make([]AttributeValue, 0, len(d.Attributes))
		for _, a := range d.Attributes {
			if _, keep := varying[a.ID]; keep {
				kept = append(kept, a)
			}
		}
		d.Attributes = appendValues(formulas, kept)
		out.Dynamics = append(out.Dynamics, d)
	}
	sort.Slice(out.Dynamics, func(i, j int) bool { return out.Dynamics[i].ItemID < out.Dynamics[j].ItemID })
	return out
}

// rangesToSorted restricts a range map to the varying set and sorts by
// id ascending.
func rangesToSorted(m map[esi.DogmaAttributeID]store.Range, varying map[esi.DogmaAttributeID]struct{}) []AttributeRange {
	out := make([]AttributeRange, 0, len(m))
	for id, r := range m {
		if _, keep := varying[id]; !keep {
			continue
		}
		out = append(out, AttributeRange{ID: id, Min: r.Min, Max: r.Max})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
