package service

import (
	"context"
	"testing"
	"time"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/crypto"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/repository"
	"github.com/tradeops/riskgate/internal/vault"
)

type openGuard struct{}

func (openGuard) Authorize(context.Context, string, model.Exchange) (bool, error) {
	return true, nil
}

func newSecurityFixture(t *testing.T, users []model.User) (*SecurityService, *repository.MemorySecretRepo) {
	t.Helper()
	ledger, err := audit.NewLedger(repository.NewMemoryAuditRepo(), "signing-key")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	secrets := repository.NewMemorySecretRepo()
	keyring, err := crypto.NewKeyring("master-key")
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	v := vault.NewCredentialVault(secrets, keyring, openGuard{}, ledger, time.Second)
	return NewSecurityService(users, secrets, v, ledger), secrets
}

func TestPostureCountsMissing2FAAndStaleSecrets(t *testing.T) {
	users := []model.User{
		{ID: "u1", Email: "u1@desk.io", Role: "trader", TwoFactorEnabled: true},
		{ID: "u2", Email: "u2@desk.io", Role: "trader", TwoFactorEnabled: false},
		{ID: "u3", Email: "u3@desk.io", Role: "demo", TwoFactorEnabled: false},
	}
	svc, secrets := newSecurityFixture(t, users)
	ctx := context.Background()

	// u1 has a fresh Binance secret, u2 a 200-day-old IBKR secret.
	_ = secrets.Upsert(ctx, &model.ExchangeSecret{
		UserID: "u1", Exchange: model.ExchangeBinance,
		APIKeyCiphertext: "ct", APISecretCiphertext: "ct", KeyVersion: "v1",
	})
	_ = secrets.Upsert(ctx, &model.ExchangeSecret{
		UserID: "u2", Exchange: model.ExchangeIBKR,
		APIKeyCiphertext: "ct", APISecretCiphertext: "ct", KeyVersion: "v1",
	})
	svc.now = func() time.Time { return time.Now().Add(200 * 24 * time.Hour) }

	report, err := svc.Posture(ctx, "admin", false, 90)
	if err != nil {
		t.Fatalf("posture: %v", err)
	}
	if report.Summary.TotalUsers != 3 {
		t.Fatalf("expected 3 users, got %d", report.Summary.TotalUsers)
	}
	if report.Summary.UsersMissing2FA != 2 {
		t.Fatalf("expected 2 users missing 2FA, got %d", report.Summary.UsersMissing2FA)
	}
	if report.Summary.UsersWithStaleSecrets != 2 {
		t.Fatalf("expected 2 stale-secret users, got %d", report.Summary.UsersWithStaleSecrets)
	}

	var u1Row *model.PostureUserRow
	for i := range report.Users {
		if report.Users[i].UserID == "u1" {
			u1Row = &report.Users[i]
		}
	}
	if u1Row == nil || !u1Row.BinanceSecretConfigured || u1Row.IBKRSecretConfigured {
		t.Fatalf("unexpected u1 row: %+v", u1Row)
	}
	if !u1Row.StaleSecret {
		t.Fatal("200-day-old secret must be stale at a 90-day threshold")
	}
}

func TestPostureRealOnlyExcludesDemo(t *testing.T) {
	users := []model.User{
		{ID: "u1", Role: "trader", TwoFactorEnabled: true},
		{ID: "u3", Role: "demo", TwoFactorEnabled: false},
	}
	svc, _ := newSecurityFixture(t, users)

	report, err := svc.Posture(context.Background(), "admin", true, 90)
	if err != nil {
		t.Fatalf("posture: %v", err)
	}
	if report.Summary.TotalUsers != 1 || len(report.Users) != 1 {
		t.Fatalf("demo accounts must be excluded, got %+v", report.Summary)
	}
	if !report.RealOnly {
		t.Fatal("report must echo the real_only flag")
	}
}
