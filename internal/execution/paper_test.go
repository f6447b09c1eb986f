package execution_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/execution"
)

type fixedPrice struct{ mid float64 }

func (f fixedPrice) Mid(symbol string) (float64, bool) { return f.mid, f.mid > 0 }

func TestPaperBrokerBuySlipsUp(t *testing.T) {
	p := execution.NewPaperBroker(fixedPrice{mid: 100}, 1000)
	res, err := p.MarketOrder(context.Background(), "BTCUSDT", events.Buy, 1)
	require.NoError(t, err)
	assert.Greater(t, res.AvgPrice, 100.0)
	assert.LessOrEqual(t, res.AvgPrice, 100.0*1.0003)
	assert.Equal(t, 1.0, res.ExecutedQty)
	assert.NotEmpty(t, res.OrderID)
}

func TestPaperBrokerSellSlipsDown(t *testing.T) {
	p := execution.NewPaperBroker(fixedPrice{mid: 100}, 1000)
	res, err := p.MarketOrder(context.Background(), "BTCUSDT", events.Sell, 1)
	require.NoError(t, err)
	assert.Less(t, res.AvgPrice, 100.0)
	assert.GreaterOrEqual(t, res.AvgPrice, 100.0*0.9997)
}

func TestPaperBrokerRejectsZeroQty(t *testing.T) {
	p := execution.NewPaperBroker(fixedPrice{mid: 100}, 1000)
	_, err := p.MarketOrder(context.Background(), "BTCUSDT", events.Buy, 0)
	assert.Error(t, err)
}

func TestPaperBrokerNoMidErrors(t *testing.T) {
	p := execution.NewPaperBroker(fixedPrice{mid: 0}, 1000)
	_, err := p.MarketOrder(context.Background(), "BTCUSDT", events.Buy, 1)
	assert.Error(t, err)
}
