package feed

import "encoding/json"

// envelope is the outer {stream, data} wrapper every venue frame arrives in.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// forceOrderFrame is the !forceOrder@arr payload: a venue-wide liquidation.
type forceOrderFrame struct {
	O struct {
		Symbol string  `json:"s"`
		Side   string  `json:"S"`
		Price  string  `json:"p"`
		Qty    string  `json:"q"`
		TimeMs int64   `json:"T"`
	} `json:"o"`
}

// aggTradeFrame is the <sym>@aggTrade payload.
type aggTradeFrame struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	IsBuyerMaker bool   `json:"m"`
	TimeMs       int64  `json:"T"`
}

// bookTickerFrame is the <sym>@bookTicker payload.
type bookTickerFrame struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}
