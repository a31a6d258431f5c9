package store

import (
	"fmt"
	"strings"

	"abyssrun/internal/esi"
)

// maxHops caps location walks; asset data has been seen to contain
// container cycles.
const maxHops = 10

// Location is the resolved placement of one asset.
type Location struct {
	StationName  string
	LocationType string
	Chain        string
}

// LocationResolver walks an asset's container nesting up to its hosting
// station, memoized by location id. It reads only from an immutable
// view and never touches store locks.
type LocationResolver struct {
	view *View
	memo map[int64]Location
}

// NewLocationResolver builds a resolver over a view.
func NewLocationResolver(v *View) *LocationResolver {
	return &LocationResolver{view: v, memo: make(map[int64]Location)}
}

// Resolve returns where the asset lives: the station name, the terminal
// location type, and the container chain rendered outermost-first.
func (r *LocationResolver) Resolve(a esi.AssetItem) Location {
	if loc, ok := r.memo[a.LocationID]; ok {
		return loc
	}
	loc := r.walk(a)
	r.memo[a.LocationID] = loc
	return loc
}

func (r *LocationResolver) walk(a esi.AssetItem) Location {
	if a.OnStation() {
		return Location{
			StationName:  r.stationName(esi.StationID(a.LocationID)),
			LocationType: "station",
			Chain:        "Direct",
		}
	}

	var names []string
	cur := a.LocationID
	for hop := 0; hop < maxHops; hop++ {
		parent, ok := r.view.Items[esi.ItemID(cur)]
		if !ok {
			return Location{
				StationName:  "Unknown",
				LocationType: a.LocationType,
				Chain:        joinChain(names),
			}
		}
		names = append(names, r.friendlyName(parent.ItemID))
		if parent.OnStation() {
			return Location{
				StationName:  r.stationName(esi.StationID(parent.LocationID)),
				LocationType: "station",
				Chain:        joinChain(names),
			}
		}
		cur = parent.LocationID
	}
	return Location{StationName: "Unknown", LocationType: a.LocationType, Chain: joinChain(names)}
}

func (r *LocationResolver) stationName(id esi.StationID) string {
	if st, ok := r.view.Stations[id]; ok {
		return st.Name
	}
	return fmt.Sprintf("Station_%d", id)
}

func (r *LocationResolver) friendlyName(id esi.ItemID) string {
	if name, ok := r.view.Names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Container_%d", id)
}

// joinChain renders collected names outermost-first.
func joinChain(names []string) string {
	if len(names) == 0 {
		return "Direct"
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " -> ")
}
