// Package market maintains regional order books for a fixed set of
// watched types, refreshed periodically by its own saga run.
package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"abyssrun/internal/esi"
	"abyssrun/internal/saga"
)

// API is the order-book fetch surface; satisfied by *esi.Client.
type API interface {
	Orders(ctx context.Context, region esi.RegionID, typeID esi.TypeID, buy bool, page int) ([]esi.MarketOrder, int, error)
}

// Watch is one (region, type) pair to track.
type Watch struct {
	Region esi.RegionID
	TypeID esi.TypeID
}

// DefaultWatches covers the mutaplasmid market in the main trade hub
// region.
var DefaultWatches = []Watch{
	{Region: 10000002, TypeID: 44992},
	{Region: 10000002, TypeID: 40520},
	{Region: 10000002, TypeID: 40519},
}

// Work is one order-book page fetch.
type Work struct {
	Region esi.RegionID
	TypeID esi.TypeID
	Buy    bool
	Page   int
}

// Key orders pages within a side within a type.
func (w Work) Key() string {
	side := "sell"
	if w.Buy {
		side = "buy"
	}
	return fmt.Sprintf("orders:%d:%010d:%s:%06d", w.Region, w.TypeID, side, w.Page)
}

// Seeds expands watches into page-one fetches for both sides.
func Seeds(watches []Watch) []Work {
	out := make([]Work, 0, 2*len(watches))
	for _, w := range watches {
		out = append(out,
			Work{Region: w.Region, TypeID: w.TypeID, Buy: true, Page: 1},
			Work{Region: w.Region, TypeID: w.TypeID, Buy: false, Page: 1},
		)
	}
	return out
}

// Book holds fetched orders per (region, type), split by side. Buy
// orders are kept best-bid first, sell orders best-ask first.
type Book struct {
	mu    sync.RWMutex
	books map[Watch]*sides
}

type sides struct {
	buy  []esi.MarketOrder
	sell []esi.MarketOrder
}

func NewBook() *Book {
	return &Book{books: make(map[Watch]*sides)}
}

// Add appends one page of orders.
func (b *Book) Add(region esi.RegionID, typeID esi.TypeID, buy bool, orders []esi.MarketOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := Watch{Region: region, TypeID: typeID}
	s, ok := b.books[key]
	if !ok {
		s = &sides{}
		b.books[key] = s
	}
	if buy {
		s.buy = append(s.buy, orders...)
		sort.Slice(s.buy, func(i, j int) bool { return s.buy[i].Price > s.buy[j].Price })
	} else {
		s.sell = append(s.sell, orders...)
		sort.Slice(s.sell, func(i, j int) bool { return s.sell[i].Price < s.sell[j].Price })
	}
}

// Orders returns copies of both sides for one watched pair.
func (b *Book) Orders(region esi.RegionID, typeID esi.TypeID) (buy, sell []esi.MarketOrder) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.books[Watch{Region: region, TypeID: typeID}]
	if !ok {
		return nil, nil
	}
	return append([]esi.MarketOrder(nil), s.buy...), append([]esi.MarketOrder(nil), s.sell...)
}

// Best returns the best bid and ask; ok is false for an empty side.
func (b *Book) Best(region esi.RegionID, typeID esi.TypeID) (bid, ask float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, found := b.books[Watch{Region: region, TypeID: typeID}]
	if !found || len(s.buy) == 0 || len(s.sell) == 0 {
		return 0, 0, false
	}
	return s.buy[0].Price, s.sell[0].Price, true
}

// Result is one fetched page.
type Result struct {
	Work       Work
	Orders     []esi.MarketOrder
	TotalPages int
}

// Processor plugs order-book fetching into the saga engine. Unlike the
// assets pipeline it never expands beyond pagination.
type Processor struct {
	api  API
	book *Book
}

func NewProcessor(api API, book *Book) *Processor {
	return &Processor{api: api, book: book}
}

func (p *Processor) Key(w Work) string { return w.Key() }

func (p *Processor) Process(ctx context.Context, w Work) (Result, error) {
	orders, pages, err := p.api.Orders(ctx, w.Region, w.TypeID, w.Buy, w.Page)
	if err != nil {
		return Result{}, err
	}
	return Result{Work: w, Orders: orders, TotalPages: pages}, nil
}

func (p *Processor) Apply(_ context.Context, r Result) ([]Work, error) {
	p.book.Add(r.Work.Region, r.Work.TypeID, r.Work.Buy, r.Orders)
	if r.Work.Page != 1 {
		return nil, nil
	}
	var out []Work
	for page := 2; page <= r.TotalPages; page++ {
		next := r.Work
		next.Page = page
		out = append(out, next)
	}
	return out, nil
}

// Refresher re-runs the market saga on a fixed cadence, swapping in a
// freshly built book after each successful run so readers never see a
// half-refreshed view.
type Refresher struct {
	api      API
	watches  []Watch
	interval time.Duration
	log      zerolog.Logger

	mu   sync.RWMutex
	book *Book
}

// NewRefresher builds a refresher; Current serves an empty book until
// the first run completes.
func NewRefresher(api API, watches []Watch, interval time.Duration, log zerolog.Logger) *Refresher {
	return &Refresher{api: api, watches: watches, interval: interval, log: log, book: NewBook()}
}

// Current returns the latest complete book.
func (r *Refresher) Current() *Book {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.book
}

// RefreshOnce runs one saga to completion and swaps the book.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	book := NewBook()
	e := saga.New[Work, string, Result](NewProcessor(r.api, book), saga.WithLogger(r.log))
	if err := e.Run(ctx, Seeds(r.watches)); err != nil {
		return fmt.Errorf("market: refresh: %w", err)
	}
	r.mu.Lock()
	r.book = book
	r.mu.Unlock()
	return nil
}

// Run refreshes immediately and then on every interval tick until ctx
// is canceled. Failed refreshes keep the previous book.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.RefreshOnce(ctx); err != nil {
		r.log.Warn().Err(err).Msg("initial market refresh failed")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.log.Warn().Err(err).Msg("market refresh failed")
			}
		}
	}
}
