package model

// MarketContext carries the exchange-specific fields a caller supplies
// with a pretrade or exit check. Binance checks read the liquidity
// fields; IBKR checks read the session/event flags.
type MarketContext struct {
	SpreadBps         float64 `json:"spread_bps"`
	SlippageBps       float64 `json:"slippage_bps"`
	Volume24hUSDT     float64 `json:"volume_24h_usdt"`
	InRTH             bool    `json:"in_rth"`
	MacroEventBlock   bool    `json:"macro_event_block"`
	EarningsWithin24h bool    `json:"earnings_within_24h"`
}

// PretradeRequest is one order-gating evaluation.
type PretradeRequest struct {
	UserID     string
	Exchange   Exchange
	Symbol     string
	Side       Side
	Qty        float64
	StrategyID string
	RREstimate float64
	TrendTF    string
	SignalTF   string
	TimingTF   string
	Market     MarketContext
}

// PretradeDecision is the structured outcome of a pretrade check.
// Blocked attempts carry every applicable reason for operator diagnosis.
type PretradeDecision struct {
	Passed     bool     `json:"passed"`
	Reasons    []string `json:"reasons"`
	StrategyID string   `json:"strategy_id"`
}

// ExitRequest asks whether an open position should be closed now.
type ExitRequest struct {
	UserID        string
	Exchange      Exchange
	Symbol        string
	Side          Side
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	TakeProfit    float64
	OpenedMinutes int
	TrendBreak    bool
	SignalReverse bool
	Market        MarketContext
}

// ExitDecision reports the first matching exit rule, or "hold".
type ExitDecision struct {
	ShouldExit bool   `json:"should_exit"`
	Reason     string `json:"reason"`
}

// StrategyParams are the operational thresholds for one strategy. They
// are configuration inputs, not constants; defaults ship in config.
type StrategyParams struct {
	ID               string   `mapstructure:"id"`
	MinRR            float64  `mapstructure:"min_rr"`
	TrendTFs         []string `mapstructure:"trend_tfs"`
	SignalTFs        []string `mapstructure:"signal_tfs"`
	TimingTFs        []string `mapstructure:"timing_tfs"`
	MinVolume24hUSDT float64  `mapstructure:"min_volume_24h_usdt"`
	MaxSpreadBps     float64  `mapstructure:"max_spread_bps"`
	MaxSlippageBps   float64  `mapstructure:"max_slippage_bps"`
	MaxHoldMinutes   int      `mapstructure:"max_hold_minutes"`
}

// RiskProfile caps a user's daily activity. DailyStopPct is stored as a
// negative threshold: trading halts once realized PnL falls to or below it.
type RiskProfile struct {
	Name            string  `mapstructure:"name"`
	MaxTradesPerDay int     `mapstructure:"max_trades_per_day"`
	DailyStopPct    float64 `mapstructure:"daily_stop_pct"`
}

// PostureUserRow is one user's line in the security posture report.
type PostureUserRow struct {
	UserID                  string `json:"user_id"`
	Email                   string `json:"email"`
	Role                    string `json:"role"`
	TwoFactorEnabled        bool   `json:"two_factor_enabled"`
	BinanceSecretConfigured bool   `json:"binance_secret_configured"`
	IBKRSecretConfigured    bool   `json:"ibkr_secret_configured"`
	OldestSecretAgeDays     *int   `json:"oldest_secret_age_days"`
	StaleSecret             bool   `json:"stale_secret"`
}

type PostureSummary struct {
	TotalUsers            int `json:"total_users"`
	UsersMissing2FA       int `json:"users_missing_2fa"`
	UsersWithStaleSecrets int `json:"users_with_stale_secrets"`
}

type PostureReport struct {
	GeneratedAt      string           `json:"generated_at"`
	RealOnly         bool             `json:"real_only"`
	MaxSecretAgeDays int              `json:"max_secret_age_days"`
	Summary          PostureSummary   `json:"summary"`
	Users            []PostureUserRow `json:"users"`
}
