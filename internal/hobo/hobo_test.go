package hobo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"abyssrun/internal/esi"
	"abyssrun/internal/netx/client"
	"abyssrun/internal/netx/ratelimit"
)

const sampleExport = `{
  "47702": {
    "inputOutputMapping": [
      {"resultingType": 47740, "applicableTypes": [2048, 41491]}
    ],
    "attributeIDs": {
      "9":   {"min": 0.8, "max": 1.2},
      "30":  {"min": 0.85, "max": 1.1}
    }
  }
}`

func newHTTP() *client.Client {
	return client.New(ratelimit.NewGroup(ratelimit.NewWindow(time.Second, 1000)))
}

func TestFetch_DecodesExport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleExport))
	}))
	defer srv.Close()

	data, err := Fetch(context.Background(), newHTTP(), srv.URL)
	require.NoError(t, err)

	eff, ok := data[47702]
	require.True(t, ok)
	require.Equal(t, esi.TypeID(47740), eff.InputOutputMapping[0].ResultingType)
	require.Contains(t, eff.InputOutputMapping[0].ApplicableTypes, esi.TypeID(2048))
	require.Equal(t, Range{Min: 0.8, Max: 1.2}, eff.AttributeIDs[9])
}

func TestCache_ServesWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleExport))
	}))
	defer srv.Close()

	c := NewCache(newHTTP(), srv.URL, time.Hour, zerolog.Nop())
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestCache_ServesStaleOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleExport))
	}))
	defer srv.Close()

	c := NewCache(newHTTP(), srv.URL, 0, zerolog.Nop()) // zero TTL forces refresh each call
	first, err := c.Get(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	second, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCache_FailsWhenNeverPrimed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewCache(newHTTP(), srv.URL, time.Hour, zerolog.Nop())
	_, err := c.Get(context.Background())
	require.Error(t, err)
}
