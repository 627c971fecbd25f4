// Package vault stores exchange API credentials encrypted at rest and
// carries out zero-downtime key rotation. Plaintext credentials exist
// only in memory on the execution path; they are never logged,
// persisted, or returned over a transport boundary.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tradeops/riskgate/internal/audit"
	"github.com/tradeops/riskgate/internal/crypto"
	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/apperrors"
	"github.com/tradeops/riskgate/internal/pkg/logger"
	"github.com/tradeops/riskgate/internal/pkg/metrics"
	"github.com/tradeops/riskgate/internal/repository"
)

// SecretRepo persists encrypted credentials. SwapIfKeyVersion is the
// per-record compare-and-swap rotation relies on.
type SecretRepo interface {
	Get(ctx context.Context, userID string, exchange model.Exchange) (*model.ExchangeSecret, error)
	Upsert(ctx context.Context, s *model.ExchangeSecret) error
	Delete(ctx context.Context, userID string, exchange model.Exchange) error
	ListByUser(ctx context.Context, userID string) ([]*model.ExchangeSecret, error)
	ListAll(ctx context.Context) ([]*model.ExchangeSecret, error)
	SwapIfKeyVersion(ctx context.Context, userID string, exchange model.Exchange, apiKeyCT, apiSecretCT, newTag, expectTag string) (bool, error)
	SetQuarantined(ctx context.Context, userID string, exchange model.Exchange, quarantined bool) error
}

// Authorizer gates credential writes on exchange segregation.
type Authorizer interface {
	Authorize(ctx context.Context, userID string, exchange model.Exchange) (bool, error)
}

type CredentialVault struct {
	repo      SecretRepo
	keys      *crypto.Keyring
	guard     Authorizer
	ledger    *audit.Ledger
	opTimeout time.Duration

	// rotateMu serializes rotation passes; regular reads and writes do
	// not take it.
	rotateMu sync.Mutex
}

func NewCredentialVault(repo SecretRepo, keys *crypto.Keyring, guard Authorizer, ledger *audit.Ledger, opTimeout time.Duration) *CredentialVault {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &CredentialVault{
		repo:      repo,
		keys:      keys,
		guard:     guard,
		ledger:    ledger,
		opTimeout: opTimeout,
	}
}

// Upsert encrypts and stores a credential pair for an authorized
// (user, exchange). Overwriting clears any quarantine flag.
func (v *CredentialVault) Upsert(ctx context.Context, actor, userID string, exchange model.Exchange, apiKey, apiSecret string) error {
	if apiKey == "" || apiSecret == "" {
		return apperrors.NewValidationFailed("api_key and api_secret must not be empty")
	}
	allowed, err := v.guard.Authorize(ctx, userID, exchange)
	if err != nil {
		return apperrors.NewTransient("check exchange assignment", err)
	}
	if !allowed {
		metrics.VaultOps.WithLabelValues("upsert", "denied").Inc()
		return apperrors.New(apperrors.ErrExchangeDisabled,
			fmt.Sprintf("exchange %s is not enabled for user %s", exchange, userID), nil)
	}

	active := v.keys.Active()
	keyCT, err := active.Encrypt(apiKey)
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("encrypt api key: %w", err))
	}
	secretCT, err := active.Encrypt(apiSecret)
	if err != nil {
		return apperrors.Wrap(fmt.Errorf("encrypt api secret: %w", err))
	}

	opCtx, cancel := context.WithTimeout(ctx, v.opTimeout)
	defer cancel()
	err = v.repo.Upsert(opCtx, &model.ExchangeSecret{
		UserID:              userID,
		Exchange:            exchange,
		APIKeyCiphertext:    keyCT,
		APISecretCiphertext: secretCT,
		KeyVersion:          active.KeyTag(),
	})
	if err != nil {
		metrics.VaultOps.WithLabelValues("upsert", "error").Inc()
		return apperrors.NewTransient("store credential", err)
	}
	metrics.VaultOps.WithLabelValues("upsert", "ok").Inc()

	_, err = v.ledger.Record(ctx, actor, audit.ActionSecretUpsert, map[string]any{
		"user_id":        userID,
		"exchange":       string(exchange),
		"api_key_masked": MaskKey(apiKey),
		"key_version":    active.KeyTag(),
	})
	return err
}

// Get decrypts the stored credential for use on an execution path.
// A record that fails to decrypt is quarantined on the spot and stays
// unusable until an operator overwrites it.
func (v *CredentialVault) Get(ctx context.Context, userID string, exchange model.Exchange) (*model.DecryptedCredential, error) {
	opCtx, cancel := context.WithTimeout(ctx, v.opTimeout)
	defer cancel()

	rec, err := v.repo.Get(opCtx, userID, exchange)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound,
				fmt.Sprintf("no credential stored for %s on %s", userID, exchange), nil)
		}
		metrics.VaultOps.WithLabelValues("get", "error").Inc()
		return nil, apperrors.NewTransient("load credential", err)
	}
	if rec.Quarantined {
		metrics.VaultOps.WithLabelValues("get", "quarantined").Inc()
		return nil, apperrors.New(apperrors.ErrDecryptionFailed,
			fmt.Sprintf("credential for %s on %s is quarantined", userID, exchange), nil)
	}

	apiKey, err := v.keys.DecryptAny(rec.APIKeyCiphertext)
	if err == nil {
		var apiSecret string
		apiSecret, err = v.keys.DecryptAny(rec.APISecretCiphertext)
		if err == nil {
			metrics.VaultOps.WithLabelValues("get", "ok").Inc()
			return &model.DecryptedCredential{
				Exchange:  exchange,
				APIKey:    apiKey,
				APISecret: apiSecret,
			}, nil
		}
	}

	// Decryption failure on the execution path: quarantine so nothing
	// downstream trades on a corrupt or wrong-key credential.
	if qErr := v.repo.SetQuarantined(opCtx, userID, exchange, true); qErr != nil {
		logger.LogError(ctx, qErr, "quarantine credential", "user_id", userID, "exchange", string(exchange))
	}
	_, _ = v.ledger.Record(ctx, "system", audit.ActionSecretQuarantined, map[string]any{
		"user_id":  userID,
		"exchange": string(exchange),
		"reason":   err.Error(),
	})
	metrics.VaultOps.WithLabelValues("get", "quarantined").Inc()
	return nil, apperrors.New(apperrors.ErrDecryptionFailed,
		fmt.Sprintf("credential for %s on %s failed decryption and was quarantined", userID, exchange), err)
}

// Configured reports which exchanges the user has credentials for,
// without touching plaintext.
func (v *CredentialVault) Configured(ctx context.Context, userID string) (map[model.Exchange]bool, error) {
	secrets, err := v.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewTransient("list credentials", err)
	}
	out := map[model.Exchange]bool{
		model.ExchangeBinance: false,
		model.ExchangeIBKR:    false,
	}
	for _, s := range secrets {
		out[s.Exchange] = true
	}
	return out, nil
}

// Delete removes a credential record.
func (v *CredentialVault) Delete(ctx context.Context, actor, userID string, exchange model.Exchange) error {
	err := v.repo.Delete(ctx, userID, exchange)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.New(apperrors.ErrNotFound,
				fmt.Sprintf("no credential stored for %s on %s", userID, exchange), nil)
		}
		return apperrors.NewTransient("delete credential", err)
	}
	metrics.VaultOps.WithLabelValues("delete", "ok").Inc()
	_, err = v.ledger.Record(ctx, actor, audit.ActionSecretDelete, map[string]any{
		"user_id":  userID,
		"exchange": string(exchange),
	})
	return err
}

// Rotate re-encrypts every record written under oldKey with newKey.
// Reads and writes continue concurrently: each record moves with a
// key_version compare-and-swap, so a record overwritten mid-pass is
// simply skipped (its writer already used a current key). A dry run
// performs every decrypt and re-encrypt but persists nothing.
//
// The pass is resumable: records already carrying newKey's tag count
// as scanned, not failed, so rerunning after a crash converges.
func (v *CredentialVault) Rotate(ctx context.Context, actor, oldKey, newKey string, dryRun bool) (*model.RotationReport, error) {
	v.rotateMu.Lock()
	defer v.rotateMu.Unlock()

	oldCipher, err := crypto.NewCipher(oldKey)
	if err != nil {
		return nil, apperrors.NewValidationFailed("old key: " + err.Error())
	}
	newCipher, err := crypto.NewCipher(newKey)
	if err != nil {
		return nil, apperrors.NewValidationFailed("new key: " + err.Error())
	}
	if oldCipher.KeyTag() == newCipher.KeyTag() {
		return nil, apperrors.NewValidationFailed("old and new keys are identical")
	}

	secrets, err := v.repo.ListAll(ctx)
	if err != nil {
		return nil, apperrors.NewTransient("list credentials for rotation", err)
	}

	report := &model.RotationReport{DryRun: dryRun}
	for _, rec := range secrets {
		if err := ctx.Err(); err != nil {
			return report, apperrors.NewTransient("rotation interrupted", err)
		}
		report.Scanned++
		id := fmt.Sprintf("%s/%s", rec.UserID, rec.Exchange)

		switch rec.KeyVersion {
		case newCipher.KeyTag():
			// Already rotated by a previous pass.
			continue
		case oldCipher.KeyTag():
		default:
			report.Errors++
			report.Failed = append(report.Failed, id)
			metrics.RotationRecords.WithLabelValues("unknown_key").Inc()
			logger.Warn("rotation skipped record with unknown key version",
				"record", id, "key_version", rec.KeyVersion)
			continue
		}

		apiKey, err := oldCipher.Decrypt(rec.APIKeyCiphertext)
		if err != nil {
			report.Errors++
			report.Failed = append(report.Failed, id)
			metrics.RotationRecords.WithLabelValues("decrypt_error").Inc()
			logger.Warn("rotation could not decrypt record", "record", id, "error", err)
			continue
		}
		apiSecret, err := oldCipher.Decrypt(rec.APISecretCiphertext)
		if err != nil {
			report.Errors++
			report.Failed = append(report.Failed, id)
			metrics.RotationRecords.WithLabelValues("decrypt_error").Inc()
			logger.Warn("rotation could not decrypt record", "record", id, "error", err)
			continue
		}

		keyCT, err := newCipher.Encrypt(apiKey)
		if err != nil {
			report.Errors++
			report.Failed = append(report.Failed, id)
			continue
		}
		secretCT, err := newCipher.Encrypt(apiSecret)
		if err != nil {
			report.Errors++
			report.Failed = append(report.Failed, id)
			continue
		}

		if dryRun {
			report.Updated++
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, v.opTimeout)
		swapped, err := v.repo.SwapIfKeyVersion(opCtx, rec.UserID, rec.Exchange,
			keyCT, secretCT, newCipher.KeyTag(), oldCipher.KeyTag())
		cancel()
		if err != nil {
			report.Errors++
			report.Failed = append(report.Failed, id)
			metrics.RotationRecords.WithLabelValues("swap_error").Inc()
			continue
		}
		if !swapped {
			// Record was overwritten while we worked on it; the new
			// write carries a current key tag already.
			metrics.RotationRecords.WithLabelValues("skipped").Inc()
			continue
		}
		report.Updated++
		metrics.RotationRecords.WithLabelValues("rotated").Inc()
	}

	if !dryRun {
		_, auditErr := v.ledger.Record(ctx, actor, audit.ActionKeyRotation, map[string]any{
			"dry_run":  false,
			"scanned":  report.Scanned,
			"updated":  report.Updated,
			"errors":   report.Errors,
			"from_key": oldCipher.KeyTag(),
			"to_key":   newCipher.KeyTag(),
		})
		if auditErr != nil {
			return report, auditErr
		}
		if report.Errors == 0 {
			// Clean pass: new key becomes active for future writes, the
			// old key stays registered for any stragglers.
			if _, err := v.keys.Promote(newKey); err != nil {
				return report, apperrors.Wrap(err)
			}
		} else if _, err := v.keys.Add(newKey); err != nil {
			return report, apperrors.Wrap(err)
		}
	}
	return report, nil
}

// MaskKey renders an API key safe for audit payloads and UI: first
// four characters, then stars.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "************"
}
