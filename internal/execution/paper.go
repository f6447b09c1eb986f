package execution

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/liqreversion/internal/events"
)

// slippageMinPct and slippageMaxPct bound the uniform random adverse
// slippage applied to a paper fill, per spec §4.3.
const (
	slippageMinPct = 0.0001
	slippageMaxPct = 0.0003
)

// PaperBroker synthesizes fills against the current mid with simulated
// slippage; it keeps no position ledger of its own and relies on the
// Strategy Core's Open Position slot, matching the teacher's PaperBroker in
// broker_paper.go.
type PaperBroker struct {
	prices    PriceSource
	equityUSD float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewPaperBroker returns a paper adapter seeded with the given starting
// equity, quoting fills against prices.
func NewPaperBroker(prices PriceSource, startEquityUSD float64) *PaperBroker {
	return &PaperBroker{
		prices:    prices,
		equityUSD: startEquityUSD,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *PaperBroker) Name() string { return "paper" }

func (p *PaperBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_ = clampLeverage(leverage)
	return nil
}

func (p *PaperBroker) GetEquity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equityUSD, nil
}

// SetEquity lets the Strategy Core update the paper equity baseline after a
// trade closes (the paper broker has no ledger of its own to derive it from).
func (p *PaperBroker) SetEquity(usd float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.equityUSD = usd
}

func (p *PaperBroker) GetPositions(ctx context.Context) ([]Position, error) {
	// Paper mode keeps no ledger; the Strategy Core's Open Position slot is
	// authoritative. An empty list is the correct answer here.
	return nil, nil
}

func (p *PaperBroker) MarketOrder(ctx context.Context, symbol string, side events.Side, qty float64) (*OrderResult, error) {
	return p.synthesizeFill(symbol, side, qty)
}

func (p *PaperBroker) LimitIOC(ctx context.Context, symbol string, side events.Side, qty, price float64) (*OrderResult, error) {
	return p.synthesizeFill(symbol, side, qty)
}

func (p *PaperBroker) CloseAll(ctx context.Context) error {
	// Nothing to do: the Strategy Core drives closes through MarketOrder;
	// this adapter keeps no independent ledger to sweep.
	return nil
}

func (p *PaperBroker) synthesizeFill(symbol string, side events.Side, qty float64) (*OrderResult, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("paper: qty must be > 0, got %v", qty)
	}
	mid, ok := p.prices.Mid(symbol)
	if !ok || mid <= 0 {
		return nil, fmt.Errorf("paper: no mid price available for %s", symbol)
	}

	p.mu.Lock()
	slip := slippageMinPct + p.rand.Float64()*(slippageMaxPct-slippageMinPct)
	p.mu.Unlock()

	// Slippage is always adverse to the taker.
	fillPrice := mid
	switch side {
	case events.Buy:
		fillPrice = mid * (1 + slip)
	case events.Sell:
		fillPrice = mid * (1 - slip)
	}

	return &OrderResult{
		OrderID:     uuid.NewString(),
		AvgPrice:    fillPrice,
		ExecutedQty: qty,
		Status:      "filled",
		LatencyMs:   0,
	}, nil
}
