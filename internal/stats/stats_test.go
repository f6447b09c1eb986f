package stats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/stats"
)

func TestSpreadBpsStaleBookFailsSafe(t *testing.T) {
	s := feed.Snapshot{BookStale: true}
	assert.Equal(t, stats.SpreadSentinel, stats.SpreadBps(s))
}

func TestSpreadBpsComputed(t *testing.T) {
	s := feed.Snapshot{
		Book: feed.BookSnapshot{BidPrice: 100, AskPrice: 100.02},
	}
	got := stats.SpreadBps(s)
	assert.InDelta(t, 2.0, got, 0.01)
}

func TestAvgVolumeEmpty(t *testing.T) {
	assert.Equal(t, 0.0, stats.AvgVolume(feed.Snapshot{}))
}

func TestRecentVolumeCapsAtWindow(t *testing.T) {
	vols := make([]float64, 5)
	for i := range vols {
		vols[i] = float64(i + 1) // 1..5
	}
	s := feed.Snapshot{Volumes: vols}
	// seconds=1 -> n=10, but only 5 samples exist -> mean of all 5
	got := stats.RecentVolume(s, 1)
	assert.InDelta(t, 3.0, got, 1e-9)
}

func TestPriceDeltaUsesEarliestInWindow(t *testing.T) {
	now := time.Now().UTC()
	hist := []feed.PricePoint{
		{Price: 100, At: now.Add(-90 * time.Second)},
		{Price: 105, At: now.Add(-50 * time.Second)},
		{Price: 110, At: now},
	}
	s := feed.Snapshot{History: hist}
	got := stats.PriceDelta(s, now, 60)
	assert.InDelta(t, (110.0-105.0)/105.0*100, got, 1e-9)
}

func TestExhaustionCandlesNeedsThreeSamples(t *testing.T) {
	now := time.Now().UTC()
	hist := []feed.PricePoint{
		{Price: 100, At: now.Add(-40 * time.Second)},
		{Price: 105, At: now},
	}
	assert.Equal(t, 0, stats.ExhaustionCandles(feed.Snapshot{History: hist}, now))
}

func TestExhaustionCandlesCountsReversal(t *testing.T) {
	now := time.Now().UTC()
	hist := []feed.PricePoint{
		{Price: 100, At: now.Add(-60 * time.Second)},
		{Price: 110, At: now.Add(-40 * time.Second)}, // up
		{Price: 105, At: now.Add(-20 * time.Second)}, // down: reversal
		{Price: 115, At: now},                         // up: reversal
	}
	got := stats.ExhaustionCandles(feed.Snapshot{History: hist}, now)
	assert.Equal(t, 2, got)
}
