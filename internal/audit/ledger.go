// Package audit is the engine's tamper-evident trail. Every
// security- and risk-relevant action lands here as a signed,
// append-only record that can be verified offline.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tradeops/riskgate/internal/model"
	"github.com/tradeops/riskgate/internal/pkg/metrics"
)

// Repo is the storage contract. Implementations must be insert-only;
// the ledger never updates or deletes what it wrote.
type Repo interface {
	Append(ctx context.Context, rec *model.AuditRecord) error
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error)
}

// Ledger signs payload digests with a server-held MAC key. The key is
// injected so tests can run isolated instances.
type Ledger struct {
	repo       Repo
	signingKey []byte
}

func NewLedger(repo Repo, signingKey string) (*Ledger, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("audit signing key must not be empty")
	}
	return &Ledger{repo: repo, signingKey: []byte(signingKey)}, nil
}

// Record hashes and signs the payload, assigns the next sequence id
// and appends. The returned record is the caller's receipt.
func (l *Ledger) Record(ctx context.Context, actor, action string, payload map[string]any) (*model.AuditRecord, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	hash, err := HashPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("hash audit payload: %w", err)
	}
	rec := &model.AuditRecord{
		Timestamp:   time.Now().UTC(),
		Actor:       actor,
		Action:      action,
		Payload:     payload,
		PayloadHash: hash,
		Signature:   Sign(l.signingKey, hash),
	}
	if err := l.repo.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append audit record: %w", err)
	}
	metrics.AuditAppends.Inc()
	return rec, nil
}

// Export returns records for offline verification.
func (l *Ledger) Export(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	return l.repo.List(ctx, filter)
}

// Verify recomputes the digest and MAC of a record. It does not
// consult storage, so it detects tampering of exported data.
func (l *Ledger) Verify(rec *model.AuditRecord) bool {
	return VerifyDetached(l.signingKey, rec)
}

// HashPayload produces the canonical content digest: SHA-256 over the
// payload's canonical JSON. encoding/json sorts map keys and emits no
// insignificant whitespace, so the marshal output is already canonical.
func HashPayload(payload map[string]any) (string, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// Sign MACs a payload hash with HMAC-SHA256.
func Sign(signingKey []byte, payloadHash string) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(payloadHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDetached checks a record against a signing key without any
// storage access.
func VerifyDetached(signingKey []byte, rec *model.AuditRecord) bool {
	hash, err := HashPayload(rec.Payload)
	if err != nil || hash != rec.PayloadHash {
		return false
	}
	expected := Sign(signingKey, rec.PayloadHash)
	return hmac.Equal([]byte(expected), []byte(rec.Signature))
}
