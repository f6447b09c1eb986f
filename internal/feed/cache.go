package feed

import (
	"sync/atomic"
	"time"
)

const (
	priceHistoryWindow = 5 * time.Minute
	volumeWindowSize   = 1000
	bookStaleAfter     = 2 * time.Second
)

// PricePoint is one entry in a symbol's price-history log.
type PricePoint struct {
	Price float64
	At    time.Time
}

// symbolCache is the consistent, immutable-once-published snapshot for a
// symbol. The feed goroutine builds a new value and swaps it into place;
// readers (the core, rolling-stats functions) load it without locking.
type symbolCache struct {
	lastTrade  PricePoint
	book       BookSnapshot
	bookAt     time.Time
	priceHist  []PricePoint // ascending by time, truncated to priceHistoryWindow
	volWindow  []float64    // ascending by time, truncated to volumeWindowSize
}

// BookSnapshot mirrors events.BookTicker without importing the events
// package, so stats can read it without a cycle.
type BookSnapshot struct {
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
	At       time.Time
}

// Cache owns one symbol's market-data state. The writer (feed goroutine) is
// the only one that calls the update methods; everyone else calls Snapshot.
type Cache struct {
	symbol string
	ptr    atomic.Pointer[symbolCache]
}

// NewCache returns an empty cache for symbol.
func NewCache(symbol string) *Cache {
	c := &Cache{symbol: symbol}
	c.ptr.Store(&symbolCache{})
	return c
}

// Snapshot is the point-in-time view handed to Rolling Statistics. It is a
// value copy of the internal cache so the caller can't observe a partial
// update mid-read.
type Snapshot struct {
	LastTrade PricePoint
	Book      BookSnapshot
	BookStale bool
	History   []PricePoint
	Volumes   []float64
}

// Snapshot returns a consistent read of the cache at call time.
func (c *Cache) Snapshot(now time.Time) Snapshot {
	sc := c.ptr.Load()
	return Snapshot{
		LastTrade: sc.lastTrade,
		Book:      sc.book,
		BookStale: sc.bookAt.IsZero() || now.Sub(sc.bookAt) > bookStaleAfter,
		History:   sc.priceHist,
		Volumes:   sc.volWindow,
	}
}

// ApplyBookTicker updates the book cache and the mid-price entry in the
// price cache, per spec §4.1.
func (c *Cache) ApplyBookTicker(b BookSnapshot) {
	prev := c.ptr.Load()
	next := cloneCache(prev)
	next.book = b
	next.bookAt = b.At
	mid := (b.BidPrice + b.AskPrice) / 2
	next.priceHist = appendPrice(next.priceHist, PricePoint{Price: mid, At: b.At}, b.At)
	c.ptr.Store(next)
}

// ApplyTrade appends to the price-history log and the volume window, and
// updates the last-price cache, per spec §4.1.
func (c *Cache) ApplyTrade(price, quantity float64, at time.Time) {
	prev := c.ptr.Load()
	next := cloneCache(prev)
	next.lastTrade = PricePoint{Price: price, At: at}
	next.priceHist = appendPrice(next.priceHist, PricePoint{Price: price, At: at}, at)
	next.volWindow = appendVolume(next.volWindow, price*quantity)
	c.ptr.Store(next)
}

func cloneCache(sc *symbolCache) *symbolCache {
	n := &symbolCache{
		lastTrade: sc.lastTrade,
		book:      sc.book,
		bookAt:    sc.bookAt,
	}
	n.priceHist = append(n.priceHist, sc.priceHist...)
	n.volWindow = append(n.volWindow, sc.volWindow...)
	return n
}

func appendPrice(hist []PricePoint, p PricePoint, now time.Time) []PricePoint {
	hist = append(hist, p)
	cutoff := now.Add(-priceHistoryWindow)
	i := 0
	for i < len(hist) && hist[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		hist = append([]PricePoint(nil), hist[i:]...)
	}
	return hist
}

func appendVolume(vols []float64, notional float64) []float64 {
	vols = append(vols, notional)
	if len(vols) > volumeWindowSize {
		vols = append([]float64(nil), vols[len(vols)-volumeWindowSize:]...)
	}
	return vols
}
