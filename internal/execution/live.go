package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chidi150c/liqreversion/internal/events"
)

const (
	prodBaseURL    = "https://fapi.venue.example"
	testnetBaseURL = "https://testnet.fapi.venue.example"
)

// LiveConfig carries the credentials and mode flags needed to construct a
// LiveBroker, matching the env surface the teacher's NewBinanceBroker reads
// (BINANCE_API_KEY / BINANCE_API_SECRET / BINANCE_API_BASE / recv window).
type LiveConfig struct {
	APIKey        string
	APISecret     string
	RecvWindowMs  int64
	Paper         bool // operator-requested paper/testnet routing
	TestnetAPIKey string
	TestnetSecret string
	HTTPTimeout   time.Duration
}

// LiveBroker signs requests with HMAC-SHA256 over the canonical query string
// and attaches the venue's API-key header, matching binance_broker.go's
// sign()/get()/post() exactly but issued through a resty client instead of
// raw net/http (see DESIGN.md).
type LiveBroker struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	client     *resty.Client
}

// NewLiveBroker wires the teacher's HMAC signing algorithm as a resty
// request middleware: every outbound request has timestamp/recvWindow/
// signature appended by OnBeforeRequest and X-MBX-APIKEY set once at client
// construction.
//
// Uses the testnet base URL when Paper is set AND real testnet credentials
// are present; otherwise the production URL, per spec §4.3.
func NewLiveBroker(cfg LiveConfig) *LiveBroker {
	apiKey, apiSecret, base := cfg.APIKey, cfg.APISecret, prodBaseURL
	if cfg.Paper && cfg.TestnetAPIKey != "" && cfg.TestnetSecret != "" {
		apiKey, apiSecret, base = cfg.TestnetAPIKey, cfg.TestnetSecret, testnetBaseURL
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	lb := &LiveBroker{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    strings.TrimRight(base, "/"),
		recvWindow: cfg.RecvWindowMs,
	}
	if lb.recvWindow <= 0 {
		lb.recvWindow = 5000
	}

	lb.client = resty.New().
		SetBaseURL(lb.baseURL).
		SetTimeout(timeout).
		SetHeader("X-MBX-APIKEY", lb.apiKey).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return lb.signRequest(req)
		})

	return lb
}

func (lb *LiveBroker) Name() string { return "live" }

// signRequest adds timestamp, recvWindow and signature to the request, in
// place, before it goes out on the wire. For GET they go into the query
// string; for POST the whole signed parameter set (query and form values)
// is written as the form body, and the original query parameters stay on
// the URL unsigned.
func (lb *LiveBroker) signRequest(req *resty.Request) error {
	q := url.Values{}
	for k, vs := range req.QueryParam {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if req.Method == "POST" {
		for k, v := range req.FormData {
			for _, vv := range v {
				q.Set(k, vv)
			}
		}
	}
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if lb.recvWindow > 0 {
		q.Set("recvWindow", strconv.FormatInt(lb.recvWindow, 10))
	}
	q.Set("signature", sign(lb.apiSecret, q))

	if req.Method == "POST" {
		req.SetFormData(urlValuesToMap(q))
	} else {
		req.SetQueryParamsFromValues(q)
	}
	return nil
}

func urlValuesToMap(q url.Values) map[string]string {
	m := make(map[string]string, len(q))
	for k := range q {
		m[k] = q.Get(k)
	}
	return m
}

func mapSymbol(product string) string {
	p := strings.ToUpper(strings.TrimSpace(product))
	if strings.HasSuffix(p, "-USD") {
		return strings.ReplaceAll(p[:len(p)-4], "-", "") + "USDT"
	}
	return strings.ReplaceAll(p, "-", "")
}

func (lb *LiveBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	leverage = clampLeverage(leverage)
	resp, err := lb.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", mapSymbol(symbol)).
		SetQueryParam("leverage", strconv.Itoa(leverage)).
		Post("/fapi/v1/leverage")
	return checkVenueResponse(resp, err, "set_leverage")
}

func (lb *LiveBroker) GetEquity(ctx context.Context) (float64, error) {
	resp, err := lb.client.R().SetContext(ctx).Get("/fapi/v2/balance")
	if err := checkVenueResponse(resp, err, "get_equity"); err != nil {
		return 0, err
	}
	var rows []struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return 0, fmt.Errorf("get_equity: decode: %w", err)
	}
	for _, r := range rows {
		if r.Asset == "USDT" {
			v, _ := strconv.ParseFloat(r.Balance, 64)
			return v, nil
		}
	}
	return 0, fmt.Errorf("get_equity: USDT balance not found")
}

func (lb *LiveBroker) GetPositions(ctx context.Context) ([]Position, error) {
	resp, err := lb.client.R().SetContext(ctx).Get("/fapi/v2/positionRisk")
	if err := checkVenueResponse(resp, err, "get_positions"); err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnrealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
	}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("get_positions: decode: %w", err)
	}
	out := make([]Position, 0, len(rows))
	for _, r := range rows {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if qty == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		upnl, _ := strconv.ParseFloat(r.UnrealizedProfit, 64)
		lev, _ := strconv.Atoi(r.Leverage)
		out = append(out, Position{
			Symbol:        r.Symbol,
			SignedQty:     qty,
			EntryPrice:    entry,
			UnrealizedPnL: upnl,
			Leverage:      lev,
		})
	}
	return out, nil
}

func (lb *LiveBroker) MarketOrder(ctx context.Context, symbol string, side events.Side, qty float64) (*OrderResult, error) {
	return lb.placeOrder(ctx, symbol, side, qty, 0, "MARKET")
}

func (lb *LiveBroker) LimitIOC(ctx context.Context, symbol string, side events.Side, qty, price float64) (*OrderResult, error) {
	return lb.placeOrder(ctx, symbol, side, qty, price, "LIMIT")
}

func (lb *LiveBroker) placeOrder(ctx context.Context, symbol string, side events.Side, qty, price float64, orderType string) (*OrderResult, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("live: qty must be > 0, got %v", qty)
	}
	start := time.Now()
	req := lb.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", mapSymbol(symbol)).
		SetQueryParam("side", string(side)).
		SetQueryParam("type", orderType).
		SetQueryParam("quantity", strconv.FormatFloat(qty, 'f', -1, 64)).
		SetQueryParam("newOrderRespType", "RESULT")
	if orderType == "LIMIT" {
		req.SetQueryParam("timeInForce", "IOC").
			SetQueryParam("price", strconv.FormatFloat(price, 'f', -1, 64))
	}
	resp, err := req.Post("/fapi/v1/order")
	latency := time.Since(start).Milliseconds()
	if err := checkVenueResponse(resp, err, "place_order"); err != nil {
		return nil, err
	}

	var ord struct {
		AvgPrice    string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &ord); err != nil {
		return nil, fmt.Errorf("place_order: decode: %w", err)
	}
	avg, _ := strconv.ParseFloat(ord.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(ord.ExecutedQty, 64)
	status := "filled"
	switch ord.Status {
	case "PARTIALLY_FILLED":
		status = "partial"
	case "NEW", "EXPIRED", "CANCELED":
		status = "rejected"
	}
	return &OrderResult{
		AvgPrice:    avg,
		ExecutedQty: filled,
		Status:      status,
		LatencyMs:   latency,
	}, nil
}

func (lb *LiveBroker) CloseAll(ctx context.Context) error {
	positions, err := lb.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("close_all: %w", err)
	}
	for _, p := range positions {
		side := events.Sell
		qty := p.SignedQty
		if qty < 0 {
			side = events.Buy
			qty = -qty
		}
		if _, err := lb.MarketOrder(ctx, p.Symbol, side, qty); err != nil {
			return fmt.Errorf("close_all: %s: %w", p.Symbol, err)
		}
	}
	return nil
}

// checkVenueResponse turns a resty response/transport error into the
// taxonomy used by the Strategy Core: transient errors (timeouts, 5xx) vs.
// venue rejections (4xx with a business reason), per spec §7.
func checkVenueResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: transient: %w", op, err)
	}
	if resp.StatusCode()/100 == 5 {
		return fmt.Errorf("%s: transient: venue %d: %s", op, resp.StatusCode(), resp.String())
	}
	if resp.StatusCode()/100 != 2 {
		return fmt.Errorf("%s: venue rejection %d: %s", op, resp.StatusCode(), resp.String())
	}
	return nil
}
