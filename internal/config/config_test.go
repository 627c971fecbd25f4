package config

import (
	"testing"

	"github.com/tradeops/riskgate/internal/model"
)

func TestStrategyByIDCaseInsensitive(t *testing.T) {
	cfg := &Config{Strategies: DefaultStrategies()}

	s, ok := cfg.StrategyByID("swing_v1")
	if !ok || s.ID != "SWING_V1" {
		t.Fatalf("lookup failed: %+v ok=%v", s, ok)
	}
	if s.MinRR != 1.5 || s.MaxHoldMinutes != 480 {
		t.Fatalf("unexpected SWING_V1 defaults: %+v", s)
	}

	if _, ok := cfg.StrategyByID("nope"); ok {
		t.Fatal("unknown strategy must not resolve")
	}
}

func TestProfileFallsBackToFirst(t *testing.T) {
	cfg := &Config{Profiles: DefaultProfiles()}

	p := cfg.ProfileByName("loose")
	if p.MaxTradesPerDay != 4 || p.DailyStopPct != -2.0 {
		t.Fatalf("unexpected loose profile: %+v", p)
	}

	// Unknown names land on the most conservative profile.
	p = cfg.ProfileByName("")
	if p.Name != "conservative" || p.MaxTradesPerDay != 3 {
		t.Fatalf("fallback must be conservative, got %+v", p)
	}
}

func TestUserByAPIKey(t *testing.T) {
	cfg := &Config{Users: []model.User{
		{ID: "u1", APIKey: "sk-1"},
		{ID: "u2", APIKey: "sk-2"},
	}}

	u, ok := cfg.UserByAPIKey("sk-2")
	if !ok || u.ID != "u2" {
		t.Fatalf("lookup failed: %+v ok=%v", u, ok)
	}
	if _, ok := cfg.UserByAPIKey(""); ok {
		t.Fatal("empty key must not resolve")
	}
}
