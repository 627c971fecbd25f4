package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange identifies a supported trading venue.
type Exchange string

const (
	ExchangeBinance Exchange = "BINANCE"
	ExchangeIBKR    Exchange = "IBKR"
)

// ParseExchange normalizes and validates an exchange name.
func ParseExchange(value string) (Exchange, bool) {
	switch Exchange(strings.ToUpper(strings.TrimSpace(value))) {
	case ExchangeBinance:
		return ExchangeBinance, true
	case ExchangeIBKR:
		return ExchangeIBKR, true
	default:
		return "", false
	}
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(value string) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(value))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	default:
		return "", false
	}
}

// ExchangeSecret is an encrypted exchange API credential at rest.
// At most one active secret exists per (user, exchange); plaintext is
// never persisted. KeyVersion tags which key produced the ciphertext so
// partially-rotated stores remain decryptable and resumable.
type ExchangeSecret struct {
	UserID              string    `db:"user_id" json:"user_id"`
	Exchange            Exchange  `db:"exchange" json:"exchange"`
	APIKeyCiphertext    string    `db:"api_key_encrypted" json:"-"`
	APISecretCiphertext string    `db:"api_secret_encrypted" json:"-"`
	KeyVersion          string    `db:"key_version" json:"key_version"`
	Quarantined         bool      `db:"quarantined" json:"quarantined"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// DecryptedCredential is handed only to execution paths, never across
// a transport boundary.
type DecryptedCredential struct {
	Exchange  Exchange
	APIKey    string
	APISecret string
}

// StrategyAssignment binds a user to a strategy on one exchange.
// enabled=false blocks credential upsert and every execution call for
// the (user, exchange) pair.
type StrategyAssignment struct {
	UserID     string    `db:"user_id" json:"user_id"`
	Exchange   Exchange  `db:"exchange" json:"exchange"`
	StrategyID string    `db:"strategy_id" json:"strategy_id"`
	Enabled    bool      `db:"enabled" json:"enabled"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// DailyRiskState is one UTC day of risk counters for a (user, exchange).
// A new day gets a new row; prior rows are never mutated across days.
type DailyRiskState struct {
	UserID           string          `db:"user_id" json:"user_id"`
	Exchange         Exchange        `db:"exchange" json:"exchange"`
	Day              string          `db:"day" json:"day"` // YYYY-MM-DD, UTC
	TradesToday      int             `db:"trades_today" json:"trades_today"`
	RealizedPnLToday decimal.Decimal `db:"realized_pnl_today" json:"realized_pnl_today"`
	DailyStop        decimal.Decimal `db:"daily_stop" json:"daily_stop"`
	MaxTrades        int             `db:"max_trades" json:"max_trades"`
}

// UTCDay formats t as the canonical risk-state day key.
func UTCDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// AuditRecord is an append-only, signed audit entry. Once written it is
// immutable; exports can be verified without trusting the storage layer.
type AuditRecord struct {
	ID          int64          `db:"id" json:"id"`
	Timestamp   time.Time      `db:"created_at" json:"timestamp"`
	Actor       string         `db:"actor" json:"actor"`
	Action      string         `db:"action" json:"action"`
	Payload     map[string]any `json:"payload"`
	PayloadHash string         `db:"payload_hash" json:"payload_hash"`
	Signature   string         `db:"signature" json:"signature"`
}

// AuditFilter selects records for export.
type AuditFilter struct {
	Actor        string
	ActionPrefix string
	Limit        int
}

// RotationReport summarizes one re-encryption pass over the secret store.
// Updated == Scanned (with Errors == 0) is the operator's signal that the
// old key may be retired.
type RotationReport struct {
	DryRun  bool     `json:"dry_run"`
	Scanned int      `json:"scanned"`
	Updated int      `json:"updated"`
	Errors  int      `json:"errors"`
	Failed  []string `json:"failed,omitempty"`
}

// User is an operator-configured identity. Registration and password
// handling live outside this engine.
type User struct {
	ID               string `mapstructure:"id" json:"id"`
	Email            string `mapstructure:"email" json:"email"`
	APIKey           string `mapstructure:"api_key" json:"-"`
	Role             string `mapstructure:"role" json:"role"`
	TwoFactorEnabled bool   `mapstructure:"two_factor_enabled" json:"two_factor_enabled"`
	RiskProfile      string `mapstructure:"risk_profile" json:"risk_profile"`
}

// SubmitResult is what the external exchange collaborator reports back
// for a test order.
type SubmitResult struct {
	Exchange Exchange `json:"exchange"`
	Mode     string   `json:"mode"`
	Symbol   string   `json:"symbol"`
	Side     Side     `json:"side"`
	Qty      float64  `json:"qty"`
	Sent     bool     `json:"sent"`
	OrderRef string   `json:"order_ref,omitempty"`
}
