// Package assets is the concrete resolution pipeline for a character's
// belongings: it maps work items to fetches against the game API, the
// static data, and the mutator catalogue, and folds results into the
// asset store.
package assets

import (
	"fmt"

	"abyssrun/internal/esi"
	"abyssrun/internal/store"
)

// Kind enumerates the remote resource classes.
type Kind int

const (
	KindCatalogue Kind = iota
	KindAssetsPage
	KindAssetNames
	KindDynamic
	KindType
	KindMarketGroup
	KindStation
	KindAttribute
)

// Work is one unit of resolution. Only the fields relevant to a kind
// are set; Items carries the names-lookup payload and is deliberately
// not part of the work key.
type Work struct {
	Kind        Kind
	Character   esi.CharacterID
	Page        int
	Items       []esi.ItemID
	TypeID      esi.TypeID
	ItemID      esi.ItemID
	GroupID     esi.MarketGroupID
	StationID   esi.StationID
	AttributeID esi.DogmaAttributeID
}

// Key derives the dedup identity. The numeric prefix fixes the dispatch
// order across kinds: the catalogue and asset pages go out before the
// per-entity lookups they fan into.
func (w Work) Key() string {
	switch w.Kind {
	case KindCatalogue:
		return "00:catalogue"
	case KindAssetsPage:
		return fmt.Sprintf("01:assets:%d:%06d", w.Character, w.Page)
	case KindAssetNames:
		return fmt.Sprintf("02:names:%d:%06d", w.Character, w.Page)
	case KindDynamic:
		return fmt.Sprintf("03:dynamic:%d:%d", w.TypeID, w.ItemID)
	case KindType:
		return fmt.Sprintf("04:type:%010d", w.TypeID)
	case KindMarketGroup:
		return fmt.Sprintf("05:group:%010d", w.GroupID)
	case KindStation:
		return fmt.Sprintf("06:station:%010d", w.StationID)
	case KindAttribute:
		return fmt.Sprintf("07:attr:%010d", w.AttributeID)
	}
	return fmt.Sprintf("99:unknown:%d", w.Kind)
}

// Seeds is the initial work for one character: the mutator catalogue
// and the first asset page.
func Seeds(char esi.CharacterID) []Work {
	return []Work{
		{Kind: KindCatalogue},
		{Kind: KindAssetsPage, Character: char, Page: 1},
	}
}

// workFromRef translates a store-implied reference into work.
func workFromRef(r store.Ref) Work {
	switch r.Kind {
	case store.RefStation:
		return Work{Kind: KindStation, StationID: r.StationID}
	case store.RefDynamic:
		return Work{Kind: KindDynamic, TypeID: r.TypeID, ItemID: r.ItemID}
	case store.RefMarketGroup:
		return Work{Kind: KindMarketGroup, GroupID: r.GroupID}
	case store.RefDogmaAttribute:
		return Work{Kind: KindAttribute, AttributeID: r.AttributeID}
	default:
		return Work{Kind: KindType, TypeID: r.TypeID}
	}
}
