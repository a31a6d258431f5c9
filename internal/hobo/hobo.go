// Package hobo fetches the community-maintained mutator data export:
// which base types each mutator applies to, what type results, and the
// multiplicative roll range per attribute.
package hobo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"abyssrun/internal/esi"
	"abyssrun/internal/netx/client"
)

// DefaultURL is the published dynamic-item attribute export.
const DefaultURL = "https://sde.hoboleaks.space/tq/dynamicitemattributes.json"

// Range is a closed multiplier interval applied to a base attribute value.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Mapping pairs the base types a mutator accepts with the type it yields.
type Mapping struct {
	ResultingType   esi.TypeID   `json:"resultingType"`
	ApplicableTypes []esi.TypeID `json:"applicableTypes"`
}

// Effects is everything one mutator does.
type Effects struct {
	InputOutputMapping []Mapping                      `json:"inputOutputMapping"`
	AttributeIDs       map[esi.DogmaAttributeID]Range `json:"attributeIDs"`
}

// MutatorData maps mutator type to its effects.
type MutatorData map[esi.TypeID]Effects

// Fetch downloads and decodes the export.
func Fetch(ctx context.Context, hc *client.Client, url string) (MutatorData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("hobo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hobo: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("hobo: status %d: %s", resp.StatusCode, msg)
	}
	var data MutatorData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("hobo: decode: %w", err)
	}
	return data, nil
}

// Cache serves the export with a TTL, refetching lazily. On refresh
// failure it keeps serving the previous copy and logs a warning, so a
// flaky upstream never takes the pipeline down once primed.
type Cache struct {
	hc  *client.Client
	url string
	ttl time.Duration
	log zerolog.Logger

	mu        sync.Mutex
	data      MutatorData
	fetchedAt time.Time
}

// NewCache builds a cache over url with the given TTL.
func NewCache(hc *client.Client, url string, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{hc: hc, url: url, ttl: ttl, log: log}
}

// Get returns the current export, fetching if missing or expired.
func (c *Cache) Get(ctx context.Context) (MutatorData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.data, nil
	}
	data, err := Fetch(ctx, c.hc, c.url)
	if err != nil {
		if c.data != nil {
			c.log.Warn().Err(err).Msg("mutator data refresh failed, serving stale copy")
			return c.data, nil
		}
		return nil, err
	}
	c.data = data
	c.fetchedAt = time.Now()
	c.log.Info().Int("mutators", len(data)).Msg("mutator data refreshed")
	return c.data, nil
}
