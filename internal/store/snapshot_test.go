package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
)

func populated() *Store {
	s := New([]esi.TypeID{47740})
	s.AddAsset(esi.AssetItem{ItemID: 1001, TypeID: 47740, LocationID: 60003760, LocationType: "station", Quantity: 1})
	s.AddAssetName(esi.AssetName{ItemID: 1001, Name: "Scram of Theseus"})
	s.AddStation(esi.Station{StationID: 60003760, Name: "Jita IV - Moon 4"})
	s.AddType(esi.ItemType{TypeID: 447, Name: "Warp Scrambler II", DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 40}}})
	name := "hp"
	s.AddDogmaAttribute(esi.DogmaAttribute{AttributeID: 9, Name: &name})
	s.AddDynamic(1001, esi.DynamicItem{SourceTypeID: 447, MutatorTypeID: 47702, DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 44}}})
	s.AddMutators(hobo.MutatorData{
		47702: {
			InputOutputMapping: []hobo.Mapping{{ResultingType: 47740, ApplicableTypes: []esi.TypeID{447}}},
			AttributeIDs:       map[esi.DogmaAttributeID]hobo.Range{9: {Min: 0.8, Max: 1.2}},
		},
	})
	return s
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s := populated()
	path := filepath.Join(t.TempDir(), "assets.cbor")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, s.View(), loaded.View())
	require.True(t, loaded.IsAbyssal(47740))

	// derived indexes are rebuilt
	id, ok := loaded.AttributeIDByName("hp")
	require.True(t, ok)
	require.Equal(t, esi.DogmaAttributeID(9), id)

	res, ok := loaded.ResultingType(447, 47702)
	require.True(t, ok)
	require.Equal(t, esi.TypeID(47740), res)
	require.Equal(t, Range{Min: 32, Max: 48}, loaded.MinMaxAttributesByResultingType(47740)[9])
}

func TestSnapshot_SkipsWhenUnchanged(t *testing.T) {
	s := populated()
	path := filepath.Join(t.TempDir(), "assets.cbor")
	require.NoError(t, s.Save(path))

	fi1, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, s.Save(path)) // no writes in between
	fi2, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, fi1.ModTime(), fi2.ModTime())

	s.AddAssetName(esi.AssetName{ItemID: 1001, Name: "Renamed"})
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Renamed", loaded.View().Names[1001])
}
