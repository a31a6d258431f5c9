// Package esi talks to the game's ESI HTTP API and defines the domain
// identifier and entity types shared across the repository. Identifier
// types are distinct semantic integers and are never mixed.
package esi

// Identifier types.
type (
	CharacterID      int64
	ItemID           int64 // item instance
	TypeID           int32 // item class
	RegionID         int64
	StationID        int32
	MarketGroupID    int32
	DogmaAttributeID int32
)

// AssetItem is one owned item instance as returned by the assets endpoint.
type AssetItem struct {
	ItemID          ItemID `json:"item_id"`
	TypeID          TypeID `json:"type_id"`
	LocationID      int64  `json:"location_id"`
	LocationType    string `json:"location_type"`
	LocationFlag    string `json:"location_flag"`
	Quantity        int32  `json:"quantity"`
	IsSingleton     bool   `json:"is_singleton"`
	IsBlueprintCopy *bool  `json:"is_blueprint_copy,omitempty"`
}

// OnStation reports whether the asset sits directly in a station.
func (a AssetItem) OnStation() bool { return a.LocationType == "station" }

// AssetName is a player-assigned item label.
type AssetName struct {
	ItemID ItemID `json:"item_id"`
	Name   string `json:"name"`
}

// DogmaValue is one (attribute, value) pair on a type or a dynamic item.
type DogmaValue struct {
	AttributeID DogmaAttributeID `json:"attribute_id"`
	Value       float64          `json:"value"`
}

// DogmaEffect is carried through unmodified; the pipeline never reads it.
type DogmaEffect struct {
	EffectID  int32 `json:"effect_id"`
	IsDefault bool  `json:"is_default"`
}

// ItemType is an item class with its base attribute values.
type ItemType struct {
	TypeID          TypeID         `json:"type_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	GroupID         int32          `json:"group_id"`
	MarketGroupID   *MarketGroupID `json:"market_group_id,omitempty"`
	DogmaAttributes []DogmaValue   `json:"dogma_attributes,omitempty"`
	DogmaEffects    []DogmaEffect  `json:"dogma_effects,omitempty"`
	Capacity        *float64       `json:"capacity,omitempty"`
	Mass            *float64       `json:"mass,omitempty"`
	Volume          *float64       `json:"volume,omitempty"`
	PackagedVolume  *float64       `json:"packaged_volume,omitempty"`
	PortionSize     *int32         `json:"portion_size,omitempty"`
	Radius          *float64       `json:"radius,omitempty"`
	GraphicID       *int32         `json:"graphic_id,omitempty"`
	IconID          *int32         `json:"icon_id,omitempty"`
	Published       bool           `json:"published"`
}

// DynamicItem is an item instance whose attributes were perturbed from a
// base type by a mutator.
type DynamicItem struct {
	CreatedBy       int64         `json:"created_by"`
	SourceTypeID    TypeID        `json:"source_type_id"`
	MutatorTypeID   TypeID        `json:"mutator_type_id"`
	DogmaAttributes []DogmaValue  `json:"dogma_attributes"`
	DogmaEffects    []DogmaEffect `json:"dogma_effects"`
}

// DogmaAttribute is attribute metadata.
type DogmaAttribute struct {
	AttributeID  DogmaAttributeID `json:"attribute_id"`
	Name         *string          `json:"name,omitempty"`
	DisplayName  *string          `json:"display_name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	DefaultValue *float64         `json:"default_value,omitempty"`
	HighIsGood   *bool            `json:"high_is_good,omitempty"`
	IconID       *int32           `json:"icon_id,omitempty"`
	Published    *bool            `json:"published,omitempty"`
	Stackable    *bool            `json:"stackable,omitempty"`
	UnitID       *int32           `json:"unit_id,omitempty"`
}

// Position is a station's location in space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Station is a dockable station; terminal in location chains.
type Station struct {
	StationID                StationID `json:"station_id"`
	Name                     string    `json:"name"`
	SystemID                 int32     `json:"system_id"`
	TypeID                   TypeID    `json:"type_id"`
	Owner                    *int32    `json:"owner,omitempty"`
	RaceID                   *int32    `json:"race_id,omitempty"`
	Position                 Position  `json:"position"`
	MaxDockableShipVolume    float64   `json:"max_dockable_ship_volume"`
	OfficeRentalCost         float64   `json:"office_rental_cost"`
	ReprocessingEfficiency   float64   `json:"reprocessing_efficiency"`
	ReprocessingStationsTake float64   `json:"reprocessing_stations_take"`
	Services                 []string  `json:"services,omitempty"`
}

// MarketGroup is a node in the market-group hierarchy.
type MarketGroup struct {
	MarketGroupID MarketGroupID  `json:"market_group_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	ParentGroupID *MarketGroupID `json:"parent_group_id,omitempty"`
	Types         []TypeID       `json:"types"`
}

// MarketOrder is one order-book entry.
type MarketOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       TypeID  `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	SystemID     int64   `json:"system_id"`
	IsBuyOrder   bool    `json:"is_buy_order"`
	Price        float64 `json:"price"`
	VolumeRemain int64   `json:"volume_remain"`
	VolumeTotal  int64   `json:"volume_total"`
	MinVolume    int64   `json:"min_volume"`
	Duration     int64   `json:"duration"`
	Issued       string  `json:"issued"`
	Range        string  `json:"range"`
}

// VerifiedCharacter is the character-verify response. The endpoint uses
// PascalCase field names, unlike the rest of ESI.
type VerifiedCharacter struct {
	CharacterID   CharacterID `json:"CharacterID"`
	CharacterName string      `json:"CharacterName"`
}
