package api

// InstrumentsResponse from GET /v3/accounts/{id}/instruments
type InstrumentsResponse struct {
	Instruments       []APIInstrument `json:"instruments"`
	LastTransactionID string          `json:"lastTransactionID"`
}

// APIInstrument represents a tradeable instrument from the provider.
type APIInstrument struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	DisplayName         string `json:"displayName"`
	PipLocation         int    `json:"pipLocation"`
	DisplayPrecision    int    `json:"displayPrecision"`
	TradeUnitsPrecision int    `json:"tradeUnitsPrecision"`
	MinimumTradeSize    string `json:"minimumTradeSize"`
	MaximumOrderUnits   string `json:"maximumOrderUnits"`
	MarginRate          string `json:"marginRate"`
}

// CandlesResponse from GET /v3/instruments/{instrument}/candles
type CandlesResponse struct {
	Instrument  string   `json:"instrument"`
	Granularity string   `json:"granularity"`
	Candles     []Candle `json:"candles"`
}

// Candle is one historical bar. Which of Mid/Bid/Ask is populated depends on
// the price component requested ("M", "B", "A" or combinations like "BA").
type Candle struct {
	Time     string      `json:"time"` // RFC3339 with nanoseconds
	Volume   int64       `json:"volume"`
	Complete bool        `json:"complete"`
	Mid      *CandleOHLC `json:"mid,omitempty"`
	Bid      *CandleOHLC `json:"bid,omitempty"`
	Ask      *CandleOHLC `json:"ask,omitempty"`
}

// CandleOHLC holds decimal-string prices for one side of a candle.
type CandleOHLC struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

// CandlesOptions configures a GetCandles request.
type CandlesOptions struct {
	Count       int    // Number of candles, provider max 5000
	Granularity string // e.g., "S5", "M1", "H1"
	Price       string // Price components: "M", "B", "A", "BA", "MBA"
}
