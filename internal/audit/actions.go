package audit

import "strings"

// Action taxonomy. Non-exhaustive: callers may record additional
// dotted actions, these are the ones the engine itself emits.
const (
	ActionPretradePassed  = "pretrade.check.passed"
	ActionPretradeBlocked = "pretrade.blocked"

	ActionExitHold      = "exit.check.hold"
	ActionExitTriggered = "exit.check.triggered"

	ActionExecutionPrepare = "execution.prepare"

	ActionSecretUpsert      = "security.secret.upsert"
	ActionSecretDelete      = "security.secret.delete"
	ActionSecretQuarantined = "security.secret.quarantined"
	ActionKeyRotation       = "security.key_rotation.reencrypt"
	ActionPostureRead       = "security.posture.read"

	ActionTradingEnabled  = "controls.trading.enabled"
	ActionTradingDisabled = "controls.trading.disabled"

	ActionStrategyAssign = "strategy.assign"
)

// TestOrderAction builds the per-exchange execution action, e.g.
// execution.binance.test_order.success.
func TestOrderAction(exchange string, ok bool) string {
	suffix := "success"
	if !ok {
		suffix = "error"
	}
	return "execution." + strings.ToLower(exchange) + ".test_order." + suffix
}
