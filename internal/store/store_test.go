package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
)

func mg(id esi.MarketGroupID) *esi.MarketGroupID { return &id }

func TestAddAsset_ImpliedRefs(t *testing.T) {
	s := New([]esi.TypeID{47740})

	refs := s.AddAsset(esi.AssetItem{
		ItemID: 1001, TypeID: 47740,
		LocationID: 60003760, LocationType: "station", Quantity: 1,
	})
	require.ElementsMatch(t, []Ref{
		StationRef(60003760),
		TypeRef(47740),
		DynamicRef(47740, 1001),
	}, refs)

	// non-abyssal, nested in another item: only the type is implied
	refs = s.AddAsset(esi.AssetItem{
		ItemID: 1002, TypeID: 2048,
		LocationID: 1001, LocationType: "item", Quantity: 1,
	})
	require.Equal(t, []Ref{TypeRef(2048)}, refs)
}

func TestAddAsset_Idempotent(t *testing.T) {
	s := New([]esi.TypeID{47740})
	a := esi.AssetItem{ItemID: 1001, TypeID: 47740, LocationID: 60003760, LocationType: "station"}

	first := s.AddAsset(a)
	require.NotEmpty(t, first)

	// resolve the implied refs, then re-apply
	s.AddStation(esi.Station{StationID: 60003760, Name: "Jita IV - Moon 4"})
	s.AddType(esi.ItemType{TypeID: 47740, Name: "Abyssal Warp Scrambler"})
	s.AddDynamic(1001, esi.DynamicItem{SourceTypeID: 447, MutatorTypeID: 47702})

	refs := s.AddAsset(a)
	require.Empty(t, refs)
}

func TestAddType_ImpliesMarketGroup(t *testing.T) {
	s := New(nil)
	refs := s.AddType(esi.ItemType{TypeID: 2048, Name: "Damage Control II", MarketGroupID: mg(615)})
	require.Equal(t, []Ref{GroupRef(615)}, refs)

	refs = s.AddMarketGroup(esi.MarketGroup{MarketGroupID: 615, Name: "Damage Controls", Types: []esi.TypeID{2048, 2046}})
	require.Equal(t, []Ref{TypeRef(2046)}, refs)

	// second add of the same type: group now present, nothing implied
	refs = s.AddType(esi.ItemType{TypeID: 2048, Name: "Damage Control II", MarketGroupID: mg(615)})
	require.Empty(t, refs)
}

func TestAddDynamic_ImpliesTypesAndAttributes(t *testing.T) {
	s := New(nil)
	s.AddType(esi.ItemType{TypeID: 447, Name: "Warp Scrambler II"})

	refs := s.AddDynamic(1001, esi.DynamicItem{
		SourceTypeID:  447,
		MutatorTypeID: 47702,
		DogmaAttributes: []esi.DogmaValue{
			{AttributeID: 9, Value: 44},
			{AttributeID: 30, Value: 0.9},
		},
	})
	require.ElementsMatch(t, []Ref{TypeRef(47702), AttrRef(9), AttrRef(30)}, refs)
}

func TestAttributeNameIndex(t *testing.T) {
	s := New(nil)
	name := "hp"
	s.AddDogmaAttribute(esi.DogmaAttribute{AttributeID: 9, Name: &name})

	id, ok := s.AttributeIDByName("hp")
	require.True(t, ok)
	require.Equal(t, esi.DogmaAttributeID(9), id)

	_, ok = s.AttributeIDByName("nope")
	require.False(t, ok)
}

func TestAllItemsResolved(t *testing.T) {
	s := New([]esi.TypeID{47740})
	s.AddAsset(esi.AssetItem{ItemID: 1001, TypeID: 47740, LocationID: 60003760, LocationType: "station"})
	require.False(t, s.AllItemsResolved())

	s.AddStation(esi.Station{StationID: 60003760, Name: "Jita"})
	require.False(t, s.AllItemsResolved())

	s.AddType(esi.ItemType{TypeID: 47740, Name: "Abyssal Warp Scrambler"})
	require.False(t, s.AllItemsResolved())

	s.AddDynamic(1001, esi.DynamicItem{
		SourceTypeID:    447,
		MutatorTypeID:   47702,
		DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 44}},
	})
	require.False(t, s.AllItemsResolved()) // dynamic's types and attribute missing

	s.AddType(esi.ItemType{TypeID: 447, Name: "Warp Scrambler II"})
	s.AddType(esi.ItemType{TypeID: 47702, Name: "Decayed Mutaplasmid"})
	name := "hp"
	s.AddDogmaAttribute(esi.DogmaAttribute{AttributeID: 9, Name: &name})
	require.True(t, s.AllItemsResolved())
}

func TestMutatorAlgebra_ScaledUnionRange(t *testing.T) {
	s := New(nil)
	// source S with attr A=100; mutator M rolls A in [0.8, 1.2]; result R
	s.AddType(esi.ItemType{
		TypeID: 447, Name: "S",
		DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 100}},
	})
	s.AddMutators(hobo.MutatorData{
		47702: {
			InputOutputMapping: []hobo.Mapping{{ResultingType: 47740, ApplicableTypes: []esi.TypeID{447}}},
			AttributeIDs:       map[esi.DogmaAttributeID]hobo.Range{9: {Min: 0.8, Max: 1.2}},
		},
	})

	res, ok := s.ResultingType(447, 47702)
	require.True(t, ok)
	require.Equal(t, esi.TypeID(47740), res)

	got := s.MinMaxAttributesByResultingType(47740)
	require.Equal(t, Range{Min: 80, Max: 120}, got[9])
}

func TestMutatorAlgebra_UnionAcrossSources(t *testing.T) {
	s := New(nil)
	s.AddType(esi.ItemType{TypeID: 1, Name: "S1", DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 100}}})
	s.AddType(esi.ItemType{TypeID: 2, Name: "S2", DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 200}}})
	s.AddMutators(hobo.MutatorData{
		50: {
			InputOutputMapping: []hobo.Mapping{{ResultingType: 99, ApplicableTypes: []esi.TypeID{1, 2}}},
			AttributeIDs:       map[esi.DogmaAttributeID]hobo.Range{9: {Min: 0.5, Max: 1.5}},
		},
	})

	got := s.MinMaxAttributesByResultingType(99)
	require.Equal(t, Range{Min: 50, Max: 300}, got[9])
}

func TestRange_MulNegativeValueNormalizes(t *testing.T) {
	r := Range{Min: 0.8, Max: 1.2}.Mul(-10)
	require.Equal(t, Range{Min: -12, Max: -8}, r)
}

func TestMutatorIndex_FirstWriterWins(t *testing.T) {
	idx := NewMutatorIndex()
	idx.Insert(1, 2, 3)
	idx.Insert(1, 2, 4)
	res, ok := idx.Resulting(1, 2)
	require.True(t, ok)
	require.Equal(t, esi.TypeID(3), res)

	idx.SetRange(2, 9, Range{Min: 1, Max: 2})
	idx.SetRange(2, 9, Range{Min: 5, Max: 6})
	require.Equal(t, Range{Min: 1, Max: 2}, idx.Ranges(2)[9])
}

func TestAddMutators_ImpliesMissingTypes(t *testing.T) {
	s := New(nil)
	s.AddType(esi.ItemType{TypeID: 447, Name: "S"})
	refs := s.AddMutators(hobo.MutatorData{
		47702: {
			InputOutputMapping: []hobo.Mapping{{ResultingType: 47740, ApplicableTypes: []esi.TypeID{447}}},
		},
	})
	require.ElementsMatch(t, []Ref{TypeRef(47702), TypeRef(47740)}, refs)
}
