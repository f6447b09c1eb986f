package control_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/liqreversion/internal/config"
	"github.com/chidi150c/liqreversion/internal/control"
	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/execution"
	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/risk"
	"github.com/chidi150c/liqreversion/internal/strategy"
)

type stubSink struct {
	healths []domain.HealthCheck
}

func (s *stubSink) EnqueueMarketEvent(domain.MarketEvent) {}
func (s *stubSink) EnqueueTrade(domain.TradeRecord)       {}
func (s *stubSink) EnqueueLog(domain.LogEntry)            {}
func (s *stubSink) EnqueueMetrics(domain.MetricsSnapshot) {}
func (s *stubSink) EnqueueBotState(domain.BotStateRecord) {}
func (s *stubSink) EnqueueHealth(h domain.HealthCheck)    { s.healths = append(s.healths, h) }
func (s *stubSink) EnqueueConfig(domain.ConfigSnapshot)   {}
func (s *stubSink) PollPendingControlCommands(context.Context) ([]domain.ControlCommand, error) {
	return nil, nil
}
func (s *stubSink) AckControlCommand(context.Context, uint) error { return nil }
func (s *stubSink) Healthy() bool                                 { return true }
func (s *stubSink) Close()                                        {}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T) (*control.Server, *strategy.Core, *stubSink) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	symbols := []string{"BTCUSDT"}
	f := feed.New("wss://example.invalid", symbols, make(chan events.Event, 16), logger)
	snk := &stubSink{}
	gov := risk.New(risk.Config{
		MaxTradesPerDay:                    10,
		MaxConsecutiveLosses:               3,
		DailyMaxLossPct:                    0.02,
		PauseAfterConsecutiveLossesMinutes: 30,
	}, 1000, time.Now())
	broker := execution.NewPaperBroker(strategy.FeedPriceSource{Feed: f}, 1000)
	cfg := config.Config{Symbols: symbols, Mode: "paper"}
	core := strategy.New(cfg, f, broker, gov, snk, logger)
	require.NoError(t, core.Boot(context.Background()))

	srv := control.New(":0", core, f, broker, snk, symbols, logger)
	return srv, core, snk
}

func TestPauseReflectsInHealthz(t *testing.T) {
	srv, core, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go core.Run(ctx)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/control/pause", nil)
	srv.Handler().ServeHTTP(rec, req)

	var res events.CommandResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.OK)

	// The reply only arrives after onCommand's setState call returns, so the
	// state is already applied by the time we issue the /healthz round-trip.
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/healthz", nil)
	srv.Handler().ServeHTTP(rec2, req2)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec2.Body).Decode(&body))
	assert.Equal(t, string(domain.PausedManual), body["state"])
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	srv, core, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go core.Run(ctx)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/control/mode", strings.NewReader(`{"mode":"nonsense"}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
}
