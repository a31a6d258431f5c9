package esi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"abyssrun/internal/netx/client"
	"abyssrun/internal/netx/ratelimit"
)

func testClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	hc := client.New(ratelimit.NewGroup(ratelimit.NewWindow(time.Second, 1000)))
	return NewClient(hc, WithBaseURL(srv.URL))
}

func TestAssetsPage_ReadsPageHeader(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/latest/characters/90000001/assets/", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("x-pages", "3")
		json.NewEncoder(w).Encode([]AssetItem{
			{ItemID: 1001, TypeID: 47702, LocationID: 60003760, LocationType: "station", Quantity: 1, IsSingleton: true},
		})
	}))

	assets, pages, err := c.AssetsPage(context.Background(), "tok", 90000001, 1)
	require.NoError(t, err)
	require.Equal(t, 3, pages)
	require.Len(t, assets, 1)
	require.Equal(t, ItemID(1001), assets[0].ItemID)
	require.True(t, assets[0].OnStation())
}

func TestAssetsPage_DefaultsToOnePage(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]AssetItem{})
	}))
	_, pages, err := c.AssetsPage(context.Background(), "tok", 1, 1)
	require.NoError(t, err)
	require.Equal(t, 1, pages)
}

func TestAssetNames_PostsItemIDs(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var ids []ItemID
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ids))
		require.Equal(t, []ItemID{5, 9}, ids)
		json.NewEncoder(w).Encode([]AssetName{{ItemID: 5, Name: "Hauler"}})
	}))

	names, err := c.AssetNames(context.Background(), "tok", 1, []ItemID{5, 9})
	require.NoError(t, err)
	require.Equal(t, "Hauler", names[0].Name)
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
		temp   bool
	}{
		{401, ErrAuth, false},
		{403, ErrAuth, false},
		{404, ErrAPI, false},
		{420, ErrAPI, false},
		{429, ErrAPI, true},
		{502, ErrServer, true},
		{500, ErrServer, true},
	}
	for _, tc := range cases {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := c.Type(context.Background(), 34)
		require.Error(t, err)
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, tc.kind, apiErr.Kind, "status %d", tc.status)
		require.Equal(t, tc.status, apiErr.Status)
		require.Equal(t, tc.temp, apiErr.Temporary(), "status %d", tc.status)
	}
}

func TestIsTemporary_DefaultsToRetry(t *testing.T) {
	require.True(t, IsTemporary(context.DeadlineExceeded))
	require.False(t, IsTemporary(&Error{Kind: ErrAuth, Status: 401}))
}

func TestOrders_SideAndRegion(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/latest/markets/10000002/orders/", r.URL.Path)
		require.Equal(t, "buy", r.URL.Query().Get("order_type"))
		require.Equal(t, "44992", r.URL.Query().Get("type_id"))
		w.Header().Set("x-pages", "2")
		json.NewEncoder(w).Encode([]MarketOrder{{OrderID: 7, TypeID: 44992, IsBuyOrder: true, Price: 4.2e6}})
	}))

	orders, pages, err := c.Orders(context.Background(), 10000002, 44992, true, 1)
	require.NoError(t, err)
	require.Equal(t, 2, pages)
	require.Equal(t, int64(7), orders[0].OrderID)
}

func TestDynamicItem_Path(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/latest/dogma/dynamic/items/47702/1001/", r.URL.Path)
		json.NewEncoder(w).Encode(DynamicItem{
			SourceTypeID:    47740,
			MutatorTypeID:   47702,
			DogmaAttributes: []DogmaValue{{AttributeID: 9, Value: 120}},
		})
	}))

	dyn, err := c.DynamicItem(context.Background(), 47702, 1001)
	require.NoError(t, err)
	require.Equal(t, TypeID(47740), dyn.SourceTypeID)
	require.Len(t, dyn.DogmaAttributes, 1)
}
