package service

import (
	"context"
	"time"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/vault"
)

// SecurityService produces the operator-facing security posture report
// and fronts key rotation.
type SecurityService struct {
	users   []model.User
	secrets vault.SecretRepo
	vault   *vault.CredentialVault
	ledger  *audit.Ledger
	now     func() time.Time
}

func NewSecurityService(users []model.User, secrets vault.SecretRepo, v *vault.CredentialVault, ledger *audit.Ledger) *SecurityService {
	return &SecurityService{
		users:   users,
		secrets: secrets,
		vault:   v,
		ledger:  ledger,
		now:     time.Now,
	}
}

// Posture reports, per user, 2FA status, which exchanges hold
// credentials and the oldest credential's age. realOnly excludes demo
// accounts; maxAgeDays marks a credential stale once it is older.
func (s *SecurityService) Posture(ctx context.Context, actor string, realOnly bool, maxAgeDays int) (*model.PostureReport, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	now := s.now().UTC()
	report := &model.PostureReport{
		GeneratedAt:      now.Format(time.RFC3339),
		RealOnly:         realOnly,
		MaxSecretAgeDays: maxAgeDays,
	}

	for _, u := range s.users {
		if realOnly && u.Role == "demo" {
			continue
		}
		row := model.PostureUserRow{
			UserID:           u.ID,
			Email:            u.Email,
			Role:             u.Role,
			TwoFactorEnabled: u.TwoFactorEnabled,
		}

		secrets, err := s.secrets.ListByUser(ctx, u.ID)
		if err != nil {
			return nil, apperrors.NewTransient("list credentials for posture", err)
		}
		for _, sec := range secrets {
			switch sec.Exchange {
			case model.ExchangeBinance:
				row.BinanceSecretConfigured = true
			case model.ExchangeIBKR:
				row.IBKRSecretConfigured = true
			}
			age := int(now.Sub(sec.UpdatedAt).Hours() / 24)
			if row.OldestSecretAgeDays == nil || age > *row.OldestSecretAgeDays {
				ageCopy := age
				row.OldestSecretAgeDays = &ageCopy
			}
		}
		if row.OldestSecretAgeDays != nil && *row.OldestSecretAgeDays > maxAgeDays {
			row.StaleSecret = true
			report.Summary.UsersWithStaleSecrets++
		}
		if !u.TwoFactorEnabled {
			report.Summary.UsersMissing2FA++
		}
		report.Summary.TotalUsers++
		report.Users = append(report.Users, row)
	}

	if _, err := s.ledger.Record(ctx, actor, audit.ActionPostureRead, map[string]any{
		"real_only":           realOnly,
		"max_secret_age_days": maxAgeDays,
		"total_users":         report.Summary.TotalUsers,
	}); err != nil {
		return nil, err
	}
	return report, nil
}

// Rotate delegates to the vault under the calling admin's identity.
func (s *SecurityService) Rotate(ctx context.Context, actor, oldKey, newKey string, dryRun bool) (*model.RotationReport, error) {
	return s.vault.Rotate(ctx, actor, oldKey, newKey, dryRun)
}
