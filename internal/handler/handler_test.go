package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/config"
	"github.com/tradeops/riskgate/internal/controls"
	"github.com/tradeops/riskgate/internal/crypto"
	"github.com/tradeops/riskgate/internal/guard"
	"github.com/tradeops/riskgate/internal/middleware"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/policy"
	"github.com/tradeops/riskgate/internal/repository"
	"github.com/tradeops/riskgate/internal/risk"
	"github.com/tradeops/riskgate/internal/service"
	"github.com/tradeops/riskgate/internal/vault"
)

// newTestRouter wires the full stack on in-memory stores, mirroring
// the production route table.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			AdminKey:       "admin",
			AdminSecretKey: "super-secret",
			RateQPS:        100,
			RateBurst:      100,
		},
		Strategies: config.DefaultStrategies(),
		Profiles:   config.DefaultProfiles(),
		Users: []model.User{
			{ID: "u1", Email: "u1@desk.io", APIKey: "sk-u1", Role: "trader", TwoFactorEnabled: true, RiskProfile: "conservative"},
		},
	}

	ledger, err := audit.NewLedger(repository.NewMemoryAuditRepo(), "signing-key")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	keyring, err := crypto.NewKeyring("master-key")
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	tc := controls.NewTradingControls(repository.NewMemoryControlRepo(), ledger, false)
	g := guard.NewSegregationGuard(repository.NewMemoryAssignmentRepo(), ledger, cfg.StrategyByID)
	ra := risk.NewAggregator(repository.NewMemoryRiskRepo(), func(string) model.RiskProfile {
		return cfg.ProfileByName("conservative")
	})
	secretRepo := repository.NewMemorySecretRepo()
	v := vault.NewCredentialVault(secretRepo, keyring, g, ledger, time.Second)
	engine := policy.NewEngine(cfg.StrategyByID, tc, g, ra, ledger)
	execSvc := service.NewExecutionService(v, g, tc, ra, ledger, service.NewPaperSubmitter(), "paper", time.Second)
	secSvc := service.NewSecurityService(cfg.Users, secretRepo, v, ledger)

	checkHandler := NewCheckHandler(engine)
	credHandler := NewCredentialHandler(v)
	execHandler := NewExecutionHandler(execSvc, ra)
	auditHandler := NewAuditHandler(ledger)
	adminHandler := NewAdminHandler(secSvc, tc, g)
	idemStore := middleware.NewInMemIdempotencyStore()

	r := gin.New()
	r.Use(middleware.ErrorHandler())

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	{
		v1.POST("/execution/pretrade/:exchange/check", checkHandler.Pretrade)
		v1.POST("/execution/exit/:exchange/check", checkHandler.Exit)
		v1.POST("/execution/prepare", execHandler.Prepare)
		v1.POST("/execution/:exchange/test-order",
			middleware.IdempotencyMiddleware(idemStore), execHandler.TestOrder)
		v1.PUT("/credentials", credHandler.Upsert)
		v1.GET("/credentials", credHandler.List)
		v1.DELETE("/credentials/:exchange", credHandler.Delete)
		v1.GET("/risk/:exchange", execHandler.RiskSnapshot)
		v1.GET("/audit/me", auditHandler.Mine)
	}

	admin := r.Group("/v1/admin")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.GET("/audit/export", auditHandler.Export)
		admin.GET("/security/posture", adminHandler.Posture)
		admin.POST("/strategy/assignments", adminHandler.Assign)
		admin.GET("/strategy/assignments", adminHandler.ListAssignments)
		admin.GET("/controls/trading", adminHandler.GetTrading)
		secured := admin.Group("")
		secured.Use(middleware.AdminSecretMiddleware(cfg))
		{
			secured.PUT("/controls/trading", adminHandler.SetTrading)
			secured.POST("/security/rotate", adminHandler.Rotate)
		}
	}
	return r
}

func doJSON(r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var userHeaders = map[string]string{middleware.HeaderAPIKey: "sk-u1"}
var adminHeaders = map[string]string{middleware.HeaderAdminKey: "admin"}
var adminSecretHeaders = map[string]string{
	middleware.HeaderAdminKey:       "admin",
	middleware.HeaderAdminSecretKey: "super-secret",
}

// arm enables trading and assigns SWING_V1 on Binance for u1.
func arm(t *testing.T, r *gin.Engine) {
	t.Helper()
	rec := doJSON(r, http.MethodPut, "/v1/admin/controls/trading",
		model.TradingControlIn{Enabled: true}, adminSecretHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable trading: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(r, http.MethodPost, "/v1/admin/strategy/assignments", model.AssignIn{
		UserID: "u1", Exchange: "BINANCE", StrategyID: "SWING_V1", Enabled: true,
	}, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(r, http.MethodGet, "/v1/credentials", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without API key, got %d", rec.Code)
	}
}

func TestRotateRequiresAdminSecret(t *testing.T) {
	r := newTestRouter(t)

	body := model.RotateIn{OldKey: "master-key", NewKey: "next-key"}
	rec := doJSON(r, http.MethodPost, "/v1/admin/security/rotate", body, adminHeaders)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin secret, got %d", rec.Code)
	}

	rec = doJSON(r, http.MethodPost, "/v1/admin/security/rotate", body, adminSecretHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin secret, got %d %s", rec.Code, rec.Body.String())
	}

	var report model.RotationReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid report: %v", err)
	}
	if report.Scanned != 0 || report.Errors != 0 {
		t.Fatalf("empty store rotation should be clean: %+v", report)
	}
}

func TestCredentialLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	arm(t, r)

	rec := doJSON(r, http.MethodPut, "/v1/credentials", model.CredentialUpsertIn{
		Exchange: "BINANCE", APIKey: "AKIA99SECRETKEY", APISecret: "shh",
	}, userHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: %d %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("99SECRETKEY")) {
		t.Fatalf("response leaks key material: %s", rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/v1/credentials", nil, userHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var listResp struct {
		Configured map[string]bool `json:"configured"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &listResp)
	if !listResp.Configured["BINANCE"] || listResp.Configured["IBKR"] {
		t.Fatalf("unexpected configured map: %v", listResp.Configured)
	}

	rec = doJSON(r, http.MethodDelete, "/v1/credentials/BINANCE", nil, userHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = doJSON(r, http.MethodDelete, "/v1/credentials/BINANCE", nil, userHeaders)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete should 404, got %d", rec.Code)
	}
}

func TestCredentialUpsertDeniedWithoutAssignment(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(r, http.MethodPut, "/v1/credentials", model.CredentialUpsertIn{
		Exchange: "IBKR", APIKey: "k", APISecret: "s",
	}, userHeaders)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unassigned exchange, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPretradeCheckOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	arm(t, r)

	in := model.PretradeCheckIn{
		Symbol: "BTCUSDT", Side: "BUY", Qty: 0.5, RREstimate: 1.6,
		TrendTF: "4H", SignalTF: "1H", TimingTF: "15M",
		MarketContext: model.MarketContext{
			Volume24hUSDT: 60_000_000, SpreadBps: 5, SlippageBps: 10,
		},
	}
	rec := doJSON(r, http.MethodPost, "/v1/execution/pretrade/BINANCE/check", in, userHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rec.Code, rec.Body.String())
	}
	var decision model.PretradeDecision
	_ = json.Unmarshal(rec.Body.Bytes(), &decision)
	if !decision.Passed {
		t.Fatalf("expected pass, got %+v", decision)
	}

	// A blocked decision is still HTTP 200 with structured reasons.
	in.RREstimate = 1.0
	rec = doJSON(r, http.MethodPost, "/v1/execution/pretrade/BINANCE/check", in, userHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("blocked check: %d", rec.Code)
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &decision)
	if decision.Passed || len(decision.Reasons) == 0 {
		t.Fatalf("expected structured rejection, got %+v", decision)
	}
}

func TestTestOrderIdempotentOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	arm(t, r)
	_ = doJSON(r, http.MethodPut, "/v1/credentials", model.CredentialUpsertIn{
		Exchange: "BINANCE", APIKey: "key", APISecret: "sec",
	}, userHeaders)

	headers := map[string]string{
		middleware.HeaderAPIKey:         "sk-u1",
		middleware.HeaderIdempotencyKey: "order-1",
	}
	in := model.TestOrderIn{Symbol: "BTCUSDT", Side: "BUY", Qty: 0.5}

	first := doJSON(r, http.MethodPost, "/v1/execution/BINANCE/test-order", in, headers)
	if first.Code != http.StatusOK {
		t.Fatalf("test order: %d %s", first.Code, first.Body.String())
	}
	second := doJSON(r, http.MethodPost, "/v1/execution/BINANCE/test-order", in, headers)
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("replay must return the cached response: %d", second.Code)
	}

	// One trade booked, not two.
	rec := doJSON(r, http.MethodGet, "/v1/risk/BINANCE", nil, userHeaders)
	var state model.DailyRiskState
	_ = json.Unmarshal(rec.Body.Bytes(), &state)
	if state.TradesToday != 1 {
		t.Fatalf("replay must not double-book trades, got %d", state.TradesToday)
	}
}

func TestAuditExportVerifies(t *testing.T) {
	r := newTestRouter(t)
	arm(t, r)

	rec := doJSON(r, http.MethodGet, "/v1/admin/audit/export", nil, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	var resp struct {
		Count    int  `json:"count"`
		Verified bool `json:"verified"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count == 0 {
		t.Fatal("arming the engine must leave audit records")
	}
	if !resp.Verified {
		t.Fatal("untampered export must verify")
	}
}

func TestPostureOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	rec := doJSON(r, http.MethodGet, "/v1/admin/security/posture?max_secret_age_days=30", nil, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("posture: %d", rec.Code)
	}
	var report model.PostureReport
	_ = json.Unmarshal(rec.Body.Bytes(), &report)
	if report.Summary.TotalUsers != 1 || report.MaxSecretAgeDays != 30 {
		t.Fatalf("unexpected report: %+v", report.Summary)
	}
}
