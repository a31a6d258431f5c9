// Package store is the canonical in-memory asset database. Every entity
// admitted through an Add method returns the references that entity
// introduces which the store does not yet hold; that list is the only
// mechanism by which the resolution pipeline discovers new work.
package store

import (
	"sync"
	"sync/atomic"

	"abyssrun/internal/esi"
)

// RefKind discriminates Ref.
type RefKind int

const (
	RefType RefKind = iota
	RefStation
	RefDynamic
	RefMarketGroup
	RefDogmaAttribute
)

// Ref is one unresolved reference surfaced by an admission.
type Ref struct {
	Kind        RefKind
	TypeID      esi.TypeID
	ItemID      esi.ItemID
	StationID   esi.StationID
	GroupID     esi.MarketGroupID
	AttributeID esi.DogmaAttributeID
}

func TypeRef(id esi.TypeID) Ref           { return Ref{Kind: RefType, TypeID: id} }
func StationRef(id esi.StationID) Ref     { return Ref{Kind: RefStation, StationID: id} }
func GroupRef(id esi.MarketGroupID) Ref   { return Ref{Kind: RefMarketGroup, GroupID: id} }
func AttrRef(id esi.DogmaAttributeID) Ref { return Ref{Kind: RefDogmaAttribute, AttributeID: id} }
func DynamicRef(t esi.TypeID, i esi.ItemID) Ref {
	return Ref{Kind: RefDynamic, TypeID: t, ItemID: i}
}

// Store holds all tables. Tables are locked independently; an Add takes
// the write lock on its own table, releases it, then takes read locks on
// cross-referenced tables to compute implied refs. Lock acquisition
// across tables always follows declaration order below, so no two
// operations can deadlock.
type Store struct {
	abyssal map[esi.TypeID]struct{} // immutable after New

	itemsMu sync.RWMutex
	items   map[esi.ItemID]esi.AssetItem

	namesMu sync.RWMutex
	names   map[esi.ItemID]string

	stationsMu sync.RWMutex
	stations   map[esi.StationID]esi.Station

	typesMu sync.RWMutex
	types   map[esi.TypeID]esi.ItemType

	groupsMu sync.RWMutex
	groups   map[esi.MarketGroupID]esi.MarketGroup

	attrsMu     sync.RWMutex
	attrs       map[esi.DogmaAttributeID]esi.DogmaAttribute
	attrsByName map[string]esi.DogmaAttributeID

	dynamicsMu sync.RWMutex
	dynamics   map[esi.ItemID]esi.DynamicItem

	mutMu sync.RWMutex
	mut   *MutatorIndex

	gen      atomic.Uint64 // bumped on every write
	savedGen atomic.Uint64 // generation of the last written snapshot
}

// New builds an empty store. The abyssal set is fixed at construction
// and marks which type ids make an asset a dynamic item.
func New(abyssal []esi.TypeID) *Store {
	set := make(map[esi.TypeID]struct{}, len(abyssal))
	for _, id := range abyssal {
		set[id] = struct{}{}
	}
	return &Store{
		abyssal:     set,
		items:       make(map[esi.ItemID]esi.AssetItem),
		names:       make(map[esi.ItemID]string),
		stations:    make(map[esi.StationID]esi.Station),
		types:       make(map[esi.TypeID]esi.ItemType),
		groups:      make(map[esi.MarketGroupID]esi.MarketGroup),
		attrs:       make(map[esi.DogmaAttributeID]esi.DogmaAttribute),
		attrsByName: make(map[string]esi.DogmaAttributeID),
		dynamics:    make(map[esi.ItemID]esi.DynamicItem),
		mut:         NewMutatorIndex(),
	}
}

// IsAbyssal reports whether the type id belongs to the mutated-gear set.
func (s *Store) IsAbyssal(id esi.TypeID) bool {
	_, ok := s.abyssal[id]
	return ok
}

// AddAsset admits an item instance. Implied refs: the hosting station
// when the item sits directly in one, the item itself as a dynamic when
// its type is abyssal, and the item's type.
func (s *Store) AddAsset(a esi.AssetItem) []Ref {
	s.itemsMu.Lock()
	s.items[a.ItemID] = a
	s.itemsMu.Unlock()
	s.gen.Add(1)

	var refs []Ref
	if a.OnStation() {
		st := esi.StationID(a.LocationID)
		s.stationsMu.RLock()
		_, ok := s.stations[st]
		s.stationsMu.RUnlock()
		if !ok {
			refs = append(refs, StationRef(st))
		}
	}
	s.typesMu.RLock()
	_, haveType := s.types[a.TypeID]
	s.typesMu.RUnlock()
	if !haveType {
		refs = append(refs, TypeRef(a.TypeID))
	}
	if s.IsAbyssal(a.TypeID) {
		s.dynamicsMu.RLock()
		_, haveDyn := s.dynamics[a.ItemID]
		s.dynamicsMu.RUnlock()
		if !haveDyn {
			refs = append(refs, DynamicRef(a.TypeID, a.ItemID))
		}
	}
	return refs
}

// AddAssetName records a player-assigned label. Last write wins.
func (s *Store) AddAssetName(n esi.AssetName) []Ref {
	s.namesMu.Lock()
	s.names[n.ItemID] = n.Name
	s.namesMu.Unlock()
	s.gen.Add(1)
	return nil
}

// AddStation admits a station. Stations are terminal; no refs.
func (s *Store) AddStation(st esi.Station) []Ref {
	s.stationsMu.Lock()
	s.stations[st.StationID] = st
	s.stationsMu.Unlock()
	s.gen.Add(1)
	return nil
}

// AddType admits an item class. Implied refs: its market group, if any.
func (s *Store) AddType(t esi.ItemType) []Ref {
	s.typesMu.Lock()
	s.types[t.TypeID] = t
	s.typesMu.Unlock()
	s.gen.Add(1)

	if t.MarketGroupID == nil {
		return nil
	}
	s.groupsMu.RLock()
	_, ok := s.groups[*t.MarketGroupID]
	s.groupsMu.RUnlock()
	if ok {
		return nil
	}
	return []Ref{GroupRef(*t.MarketGroupID)}
}

// AddMarketGroup admits a market-group node. Implied refs: every member
// type not yet held. Parent groups are resolved lazily through the
// static data, not fetched here.
func (s *Store) AddMarketGroup(g esi.MarketGroup) []Ref {
	s.groupsMu.Lock()
	s.groups[g.MarketGroupID] = g
	s.groupsMu.Unlock()
	s.gen.Add(1)

	var refs []Ref
	s.typesMu.RLock()
	for _, t := range g.Types {
		if _, ok := s.types[t]; !ok {
			refs = append(refs, TypeRef(t))
		}
	}
	s.typesMu.RUnlock()
	return refs
}

// AddDogmaAttribute admits attribute metadata and maintains the reverse
// name index.
func (s *Store) AddDogmaAttribute(a esi.DogmaAttribute) []Ref {
	s.attrsMu.Lock()
	s.attrs[a.AttributeID] = a
	if a.Name != nil {
		s.attrsByName[*a.Name] = a.AttributeID
	}
	s.attrsMu.Unlock()
	s.gen.Add(1)
	return nil
}

// AddDynamic admits the mutated attribute record of an item instance.
// Implied refs: the source and mutator types, and every referenced
// attribute, where missing.
func (s *Store) AddDynamic(item esi.ItemID, d esi.DynamicItem) []Ref {
	s.dynamicsMu.Lock()
	s.dynamics[item] = d
	s.dynamicsMu.Unlock()
	s.gen.Add(1)

	var refs []Ref
	s.typesMu.RLock()
	for _, t := range []esi.TypeID{d.SourceTypeID, d.MutatorTypeID} {
		if _, ok := s.types[t]; !ok {
			refs = append(refs, TypeRef(t))
		}
	}
	s.typesMu.RUnlock()

	s.attrsMu.RLock()
	for _, dv := range d.DogmaAttributes {
		if _, ok := s.attrs[dv.AttributeID]; !ok {
			refs = append(refs, AttrRef(dv.AttributeID))
		}
	}
	s.attrsMu.RUnlock()
	return refs
}

// Asset returns one item instance.
func (s *Store) Asset(id esi.ItemID) (esi.AssetItem, bool) {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	a, ok := s.items[id]
	return a, ok
}

// Type returns one item class.
func (s *Store) Type(id esi.TypeID) (esi.ItemType, bool) {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	t, ok := s.types[id]
	return t, ok
}

// HasType reports whether the class is held. Used by the processor to
// decide whether a remote fetch is needed at all.
func (s *Store) HasType(id esi.TypeID) bool {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	_, ok := s.types[id]
	return ok
}

// HasDogmaAttribute reports whether attribute metadata is held.
func (s *Store) HasDogmaAttribute(id esi.DogmaAttributeID) bool {
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	_, ok := s.attrs[id]
	return ok
}

// HasMarketGroup reports whether the group is held.
func (s *Store) HasMarketGroup(id esi.MarketGroupID) bool {
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()
	_, ok := s.groups[id]
	return ok
}

// AttributeIDByName resolves an attribute by internal name.
func (s *Store) AttributeIDByName(name string) (esi.DogmaAttributeID, bool) {
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	id, ok := s.attrsByName[name]
	return id, ok
}

// AllItemsResolved reports whether the dependency graph is closed:
// every on-station asset's station is held, every asset's type is held,
// every abyssal asset has a dynamic record, every held type's market
// group is held, every dynamic's source/mutator types and attribute
// ids are held.
func (s *Store) AllItemsResolved() bool {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	s.dynamicsMu.RLock()
	defer s.dynamicsMu.RUnlock()

	for _, a := range s.items {
		if a.OnStation() {
			if _, ok := s.stations[esi.StationID(a.LocationID)]; !ok {
				return false
			}
		}
		if _, ok := s.types[a.TypeID]; !ok {
			return false
		}
		if s.IsAbyssal(a.TypeID) {
			if _, ok := s.dynamics[a.ItemID]; !ok {
				return false
			}
		}
	}
	for _, t := range s.types {
		if t.MarketGroupID != nil {
			if _, ok := s.groups[*t.MarketGroupID]; !ok {
				return false
			}
		}
	}
	for _, d := range s.dynamics {
		if _, ok := s.types[d.SourceTypeID]; !ok {
			return false
		}
		if _, ok := s.types[d.MutatorTypeID]; !ok {
			return false
		}
		for _, dv := range d.DogmaAttributes {
			if _, ok := s.attrs[dv.AttributeID]; !ok {
				return false
			}
		}
	}
	return true
}

// View is a point-in-time copy of the tables readers need. It is safe
// to use without locks for the duration of one read operation.
type View struct {
	Items    map[esi.ItemID]esi.AssetItem
	Names    map[esi.ItemID]string
	Stations map[esi.StationID]esi.Station
	Types    map[esi.TypeID]esi.ItemType
	Groups   map[esi.MarketGroupID]esi.MarketGroup
	Attrs    map[esi.DogmaAttributeID]esi.DogmaAttribute
	Dynamics map[esi.ItemID]esi.DynamicItem
}

// View copies the tables under read locks taken in declaration order.
func (s *Store) View() *View {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	s.namesMu.RLock()
	defer s.namesMu.RUnlock()
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	s.dynamicsMu.RLock()
	defer s.dynamicsMu.RUnlock()

	return &View{
		Items:    copyMap(s.items),
		Names:    copyMap(s.names),
		Stations: copyMap(s.stations),
		Types:    copyMap(s.types),
		Groups:   copyMap(s.groups),
		Attrs:    copyMap(s.attrs),
		Dynamics: copyMap(s.dynamics),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
