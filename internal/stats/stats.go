// Package stats implements the Rolling Statistics component: pure,
// deterministic functions over the Market Feed's per-symbol snapshot. None
// of these functions hold state of their own, matching the teacher's
// indicators.go idiom (plain slice-in, value-out, sentinel-safe on short
// history) rather than accumulating incremental state.
package stats

import (
	"math"
	"time"

	"github.com/chidi150c/liqreversion/internal/feed"
)

// SpreadSentinel is returned by SpreadBps when the book is missing or stale,
// so spread checks fail safe per spec §4.1/§4.2.
const SpreadSentinel = 999.0

// Mid returns (bid+ask)/2 from the latest book ticker. ok is false if no
// book has been observed yet.
func Mid(s feed.Snapshot) (mid float64, ok bool) {
	if s.Book.BidPrice <= 0 || s.Book.AskPrice <= 0 {
		return 0, false
	}
	return (s.Book.BidPrice + s.Book.AskPrice) / 2, true
}

// SpreadBps returns (ask-bid)/mid * 10000. Returns SpreadSentinel if the
// book is missing or stale (no update for > 2s).
func SpreadBps(s feed.Snapshot) float64 {
	if s.BookStale {
		return SpreadSentinel
	}
	mid, ok := Mid(s)
	if !ok || mid <= 0 {
		return SpreadSentinel
	}
	bps := (s.Book.AskPrice - s.Book.BidPrice) / mid * 10000
	if bps < SpreadSentinel {
		return bps
	}
	return SpreadSentinel
}

// AvgVolume is the arithmetic mean of the entire volume window.
func AvgVolume(s feed.Snapshot) float64 {
	if len(s.Volumes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Volumes {
		sum += v
	}
	return sum / float64(len(s.Volumes))
}

// RecentVolume is the mean of the last min(len, seconds*10) samples, per
// spec §4.2 (the venue's aggTrade cadence is approximated at 10 samples/s).
func RecentVolume(s feed.Snapshot, seconds int) float64 {
	n := seconds * 10
	if n <= 0 || len(s.Volumes) == 0 {
		return 0
	}
	if n > len(s.Volumes) {
		n = len(s.Volumes)
	}
	tail := s.Volumes[len(s.Volumes)-n:]
	var sum float64
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}

// PriceDelta returns ((current - oldest_in_window) / oldest_in_window) * 100
// using the earliest history entry within the last `seconds`; if none falls
// inside the window it falls back to the earliest available entry.
func PriceDelta(s feed.Snapshot, now time.Time, seconds int) float64 {
	if len(s.History) == 0 {
		return 0
	}
	current := s.History[len(s.History)-1].Price
	cutoff := now.Add(-time.Duration(seconds) * time.Second)

	// Earliest entry still inside the window; if none falls inside it
	// (the whole history is older than the window), fall back to the
	// earliest available entry, per spec §4.2.
	oldest := s.History[0]
	for _, p := range s.History {
		if !p.At.Before(cutoff) {
			oldest = p
			break
		}
	}
	if oldest.Price == 0 {
		return 0
	}
	return (current - oldest.Price) / oldest.Price * 100
}

// ExhaustionCandles counts direction reversals across four samples taken at
// now, now-20s, now-40s, now-60s (nearest entry within 10s of each target).
// Returns 0 when fewer than 3 samples are available, per spec §4.2.
func ExhaustionCandles(s feed.Snapshot, now time.Time) int {
	targets := []time.Time{now, now.Add(-20 * time.Second), now.Add(-40 * time.Second), now.Add(-60 * time.Second)}
	samples := make([]float64, 0, 4)
	for _, t := range targets {
		if p, ok := nearestWithin(s.History, t, 10*time.Second); ok {
			samples = append(samples, p)
		}
	}
	if len(samples) < 3 {
		return 0
	}
	reversals := 0
	for i := 2; i < len(samples); i++ {
		d1 := sign(samples[i] - samples[i-1])
		d2 := sign(samples[i-1] - samples[i-2])
		if d1 != 0 && d2 != 0 && d1 != d2 {
			reversals++
		}
	}
	return reversals
}

func nearestWithin(hist []feed.PricePoint, target time.Time, tolerance time.Duration) (float64, bool) {
	best := math.MaxFloat64
	var bestPrice float64
	found := false
	for _, p := range hist {
		d := p.At.Sub(target)
		if d < 0 {
			d = -d
		}
		if d <= tolerance && float64(d) < best {
			best = float64(d)
			bestPrice = p.Price
			found = true
		}
	}
	return bestPrice, found
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
