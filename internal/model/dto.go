package model

// Request bodies for the operator API. Shapes mirror the engine
// contracts; transport stays a thin layer.

type PretradeCheckIn struct {
	Symbol        string  `json:"symbol" binding:"required"`
	Side          string  `json:"side" binding:"required,oneof=BUY SELL buy sell"`
	Qty           float64 `json:"qty" binding:"required,gt=0"`
	RREstimate    float64 `json:"rr_estimate"`
	TrendTF       string  `json:"trend_tf"`
	SignalTF      string  `json:"signal_tf"`
	TimingTF      string  `json:"timing_tf"`
	MarketContext
}

type ExitCheckIn struct {
	Symbol        string  `json:"symbol" binding:"required"`
	Side          string  `json:"side" binding:"required,oneof=BUY SELL buy sell"`
	EntryPrice    float64 `json:"entry_price" binding:"required,gt=0"`
	CurrentPrice  float64 `json:"current_price" binding:"required,gt=0"`
	StopLoss      float64 `json:"stop_loss"`
	TakeProfit    float64 `json:"take_profit"`
	OpenedMinutes int     `json:"opened_minutes"`
	TrendBreak    bool    `json:"trend_break"`
	SignalReverse bool    `json:"signal_reverse"`
	MarketContext
}

type CredentialUpsertIn struct {
	Exchange  string `json:"exchange" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

type RotateIn struct {
	OldKey string `json:"old_key" binding:"required"`
	NewKey string `json:"new_key" binding:"required"`
	DryRun bool   `json:"dry_run"`
}

type AssignIn struct {
	UserID     string `json:"user_id" binding:"required"`
	Exchange   string `json:"exchange" binding:"required"`
	StrategyID string `json:"strategy_id" binding:"required"`
	Enabled    bool   `json:"enabled"`
}

type TradingControlIn struct {
	Enabled bool `json:"enabled"`
}

type TestOrderIn struct {
	Symbol string  `json:"symbol" binding:"required"`
	Side   string  `json:"side" binding:"required,oneof=BUY SELL buy sell"`
	Qty    float64 `json:"qty" binding:"required,gt=0"`
}

type PrepareIn struct {
	Exchange string  `json:"exchange" binding:"required"`
	Symbol   string  `json:"symbol" binding:"required"`
	Side     string  `json:"side" binding:"required,oneof=BUY SELL buy sell"`
	Qty      float64 `json:"qty" binding:"required,gt=0"`
}

type OutcomeIn struct {
	PnL float64 `json:"pnl"`
}

// PrepareOut deliberately exposes only a masked key and a signature
// preview; raw credentials never cross the API boundary.
type PrepareOut struct {
	Mode             string  `json:"mode"`
	Exchange         string  `json:"exchange"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Qty              float64 `json:"qty"`
	APIKeyMasked     string  `json:"api_key_masked"`
	SignaturePreview string  `json:"signature_preview"`
}
