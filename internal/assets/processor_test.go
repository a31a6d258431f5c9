package assets

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"abyssrun/internal/esi"
	"abyssrun/internal/hobo"
	"abyssrun/internal/saga"
	"abyssrun/internal/sde"
	"abyssrun/internal/store"
)

type fakeAPI struct {
	mu        sync.Mutex
	calls     map[string]int
	pages     map[int][]esi.AssetItem
	total     int
	types     map[esi.TypeID]esi.ItemType
	stations  map[esi.StationID]esi.Station
	dynamics  map[esi.ItemID]esi.DynamicItem
	failTypes map[esi.TypeID]int // remaining 503s before success
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:     make(map[string]int),
		pages:     make(map[int][]esi.AssetItem),
		types:     make(map[esi.TypeID]esi.ItemType),
		stations:  make(map[esi.StationID]esi.Station),
		dynamics:  make(map[esi.ItemID]esi.DynamicItem),
		failTypes: make(map[esi.TypeID]int),
	}
}

func (f *fakeAPI) record(key string) {
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()
}

func (f *fakeAPI) AssetsPage(_ context.Context, _ string, char esi.CharacterID, page int) ([]esi.AssetItem, int, error) {
	f.record(fmt.Sprintf("assets:%d:%d", char, page))
	return f.pages[page], f.total, nil
}

func (f *fakeAPI) AssetNames(_ context.Context, _ string, char esi.CharacterID, items []esi.ItemID) ([]esi.AssetName, error) {
	f.record(fmt.Sprintf("names:%d", char))
	return nil, nil
}

func (f *fakeAPI) Type(_ context.Context, id esi.TypeID) (esi.ItemType, error) {
	f.record(fmt.Sprintf("type:%d", id))
	f.mu.Lock()
	left := f.failTypes[id]
	if left > 0 {
		f.failTypes[id]--
	}
	f.mu.Unlock()
	if left > 0 {
		return esi.ItemType{}, &esi.Error{Kind: esi.ErrServer, Status: 503, Message: "maintenance"}
	}
	if t, ok := f.types[id]; ok {
		return t, nil
	}
	return esi.ItemType{TypeID: id, Name: fmt.Sprintf("Type %d", id)}, nil
}

func (f *fakeAPI) Station(_ context.Context, id esi.StationID) (esi.Station, error) {
	f.record(fmt.Sprintf("station:%d", id))
	if st, ok := f.stations[id]; ok {
		return st, nil
	}
	return esi.Station{StationID: id, Name: fmt.Sprintf("Station %d", id)}, nil
}

func (f *fakeAPI) DogmaAttribute(_ context.Context, id esi.DogmaAttributeID) (esi.DogmaAttribute, error) {
	f.record(fmt.Sprintf("attr:%d", id))
	name := fmt.Sprintf("attr_%d", id)
	return esi.DogmaAttribute{AttributeID: id, Name: &name}, nil
}

func (f *fakeAPI) MarketGroup(_ context.Context, id esi.MarketGroupID) (esi.MarketGroup, error) {
	f.record(fmt.Sprintf("group:%d", id))
	return esi.MarketGroup{MarketGroupID: id, Name: fmt.Sprintf("Group %d", id)}, nil
}

func (f *fakeAPI) DynamicItem(_ context.Context, typeID esi.TypeID, itemID esi.ItemID) (esi.DynamicItem, error) {
	f.record(fmt.Sprintf("dynamic:%d:%d", typeID, itemID))
	return f.dynamics[itemID], nil
}

type fakeCatalogue struct{ data hobo.MutatorData }

func (c fakeCatalogue) Get(context.Context) (hobo.MutatorData, error) { return c.data, nil }

type fakeTokens struct{}

func (fakeTokens) AccessToken(context.Context, esi.CharacterID) (string, error) {
	return "token", nil
}

func runSaga(t *testing.T, p *Processor, char esi.CharacterID) error {
	t.Helper()
	e := saga.New[Work, string, Result](p)
	return e.Run(context.Background(), Seeds(char))
}

// Seeding one page that references two types must dispatch each fetch
// exactly once and close.
func TestSaga_ClosureWithExactDispatches(t *testing.T) {
	const char = esi.CharacterID(90000001)
	api := newFakeAPI()
	api.total = 2
	api.pages[1] = []esi.AssetItem{
		{ItemID: 1, TypeID: 101, LocationID: 5000, LocationType: "other"},
	}
	api.pages[2] = []esi.AssetItem{
		{ItemID: 2, TypeID: 102, LocationID: 5000, LocationType: "other"},
	}

	st := store.New(nil)
	p := NewProcessor(api, nil, fakeCatalogue{}, st, fakeTokens{}, zerolog.Nop())
	require.NoError(t, runSaga(t, p, char))

	for key, want := range map[string]int{
		"assets:90000001:1": 1,
		"assets:90000001:2": 1,
		"names:90000001":    2, // one per page
		"type:101":          1,
		"type:102":          1,
	} {
		require.Equal(t, want, api.calls[key], "call %s", key)
	}
	require.True(t, st.AllItemsResolved())
}

// An abyssal asset on a station pulls in the station, the dynamic
// record, the source/mutator types, and the referenced attributes.
func TestSaga_ResolvesFullDependencyChain(t *testing.T) {
	const char = esi.CharacterID(90000001)
	api := newFakeAPI()
	api.total = 1
	api.pages[1] = []esi.AssetItem{
		{ItemID: 1001, TypeID: 47740, LocationID: 60003760, LocationType: "station", Quantity: 1},
	}
	api.dynamics[1001] = esi.DynamicItem{
		SourceTypeID:    447,
		MutatorTypeID:   47702,
		DogmaAttributes: []esi.DogmaValue{{AttributeID: 9, Value: 44}},
	}

	st := store.New([]esi.TypeID{47740})
	cat := fakeCatalogue{data: hobo.MutatorData{
		47702: {
			InputOutputMapping: []hobo.Mapping{{ResultingType: 47740, ApplicableTypes: []esi.TypeID{447}}},
			AttributeIDs:       map[esi.DogmaAttributeID]hobo.Range{9: {Min: 0.8, Max: 1.2}},
		},
	}}
	p := NewProcessor(api, nil, cat, st, fakeTokens{}, zerolog.Nop())
	require.NoError(t, runSaga(t, p, char))

	require.True(t, st.AllItemsResolved())
	require.Equal(t, 1, api.calls["station:60003760"])
	require.Equal(t, 1, api.calls["dynamic:47740:1001"])
	require.Equal(t, 1, api.calls["type:447"])
	require.Equal(t, 1, api.calls["type:47702"])
	require.Equal(t, 1, api.calls["attr:9"])

	res, ok := st.ResultingType(447, 47702)
	require.True(t, ok)
	require.Equal(t, esi.TypeID(47740), res)
}

// Two 503s then success: the saga retries and closes, with at most two
// retries on that key.
func TestSaga_RetryThenSucceed(t *testing.T) {
	const char = esi.CharacterID(90000001)
	api := newFakeAPI()
	api.total = 1
	api.pages[1] = []esi.AssetItem{
		{ItemID: 1, TypeID: 101, LocationID: 5000, LocationType: "other"},
	}
	api.failTypes[101] = 2

	var retries int
	var mu sync.Mutex
	st := store.New(nil)
	p := NewProcessor(api, nil, fakeCatalogue{}, st, fakeTokens{}, zerolog.Nop())
	e := saga.New[Work, string, Result](p, saga.WithHooks(saga.Hooks{
		Retried: func() { mu.Lock(); retries++; mu.Unlock() },
	}))
	require.NoError(t, e.Run(context.Background(), Seeds(char)))

	require.Equal(t, 3, api.calls["type:101"])
	require.LessOrEqual(t, retries, 2)
	require.True(t, st.AllItemsResolved())
}

// A static-data hit must not trigger a remote type fetch.
func TestProcess_TypePrefersStaticData(t *testing.T) {
	api := newFakeAPI()
	static := staticStub{types: map[esi.TypeID]esi.ItemType{
		101: {TypeID: 101, Name: "Local Type"},
	}}
	p := NewProcessor(api, static, fakeCatalogue{}, store.New(nil), fakeTokens{}, zerolog.Nop())

	r, err := p.Process(context.Background(), Work{Kind: KindType, TypeID: 101})
	require.NoError(t, err)
	require.Equal(t, "Local Type", r.Type.Name)
	require.Zero(t, api.calls["type:101"])

	// miss falls through to the network
	r, err = p.Process(context.Background(), Work{Kind: KindType, TypeID: 202})
	require.NoError(t, err)
	require.Equal(t, 1, api.calls["type:202"])
	require.Equal(t, esi.TypeID(202), r.Type.TypeID)
}

// Applying the same page twice yields no new work the second time.
func TestApply_Idempotent(t *testing.T) {
	st := store.New(nil)
	p := NewProcessor(newFakeAPI(), nil, fakeCatalogue{}, st, fakeTokens{}, zerolog.Nop())

	res := Result{
		Work:       Work{Kind: KindAssetsPage, Character: 1, Page: 1},
		Assets:     []esi.AssetItem{{ItemID: 1, TypeID: 101, LocationID: 5000, LocationType: "other"}},
		TotalPages: 1,
	}
	first, err := p.Apply(context.Background(), res)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	tt := esi.ItemType{TypeID: 101, Name: "T"}
	p.store.AddType(tt)

	second, err := p.Apply(context.Background(), res)
	require.NoError(t, err)
	// only the (deduped upstream) names work remains; no new refs
	require.Len(t, second, 1)
	require.Equal(t, KindAssetNames, second[0].Kind)
}

type staticStub struct {
	types  map[esi.TypeID]esi.ItemType
	attrs  map[esi.DogmaAttributeID]esi.DogmaAttribute
	groups map[esi.MarketGroupID]sde.GroupNode
}

func (s staticStub) TypesByIDs(_ context.Context, ids []esi.TypeID) (map[esi.TypeID]esi.ItemType, error) {
	out := make(map[esi.TypeID]esi.ItemType)
	for _, id := range ids {
		if t, ok := s.types[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (s staticStub) DogmaAttributesByIDs(_ context.Context, ids []esi.DogmaAttributeID) (map[esi.DogmaAttributeID]esi.DogmaAttribute, error) {
	out := make(map[esi.DogmaAttributeID]esi.DogmaAttribute)
	for _, id := range ids {
		if a, ok := s.attrs[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s staticStub) MarketGroupsByIDs(_ context.Context, ids []esi.MarketGroupID) (map[esi.MarketGroupID]sde.GroupNode, error) {
	out := make(map[esi.MarketGroupID]sde.GroupNode)
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

func TestProcess_MarketGroupPrefersStaticData(t *testing.T) {
	api := newFakeAPI()
	static := staticStub{groups: map[esi.MarketGroupID]sde.GroupNode{
		1396: {ID: 1396, Name: "Abyssal Modules"},
	}}
	p := NewProcessor(api, static, fakeCatalogue{}, store.New(nil), fakeTokens{}, zerolog.Nop())

	r, err := p.Process(context.Background(), Work{Kind: KindMarketGroup, GroupID: 1396})
	require.NoError(t, err)
	require.Equal(t, "Abyssal Modules", r.Group.Name)
	require.Zero(t, api.calls["group:1396"])
}

func TestWorkKeys_OrderAcrossKinds(t *testing.T) {
	catalogue := Work{Kind: KindCatalogue}.Key()
	page := Work{Kind: KindAssetsPage, Character: 1, Page: 1}.Key()
	typ := Work{Kind: KindType, TypeID: 101}.Key()
	require.Less(t, catalogue, page)
	require.Less(t, page, typ)
}

func TestWorkKeys_NamesIgnorePayload(t *testing.T) {
	a := Work{Kind: KindAssetNames, Character: 1, Page: 2, Items: []esi.ItemID{1, 2}}
	b := Work{Kind: KindAssetNames, Character: 1, Page: 2, Items: []esi.ItemID{9}}
	require.Equal(t, a.Key(), b.Key())
}
