package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeops/riskgate/internal/model"
)

// In-memory stores back the same interfaces as the Postgres repos.
// They serve single-node paper setups without a database and keep the
// engine testable without infrastructure.

type MemorySecretRepo struct {
	mu      sync.RWMutex
	records map[string]*model.ExchangeSecret // key: user|exchange
}

func NewMemorySecretRepo() *MemorySecretRepo {
	return &MemorySecretRepo{records: make(map[string]*model.ExchangeSecret)}
}

func secretKey(userID string, exchange model.Exchange) string {
	return userID + "|" + string(exchange)
}

func (r *MemorySecretRepo) Get(ctx context.Context, userID string, exchange model.Exchange) (*model.ExchangeSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.records[secretKey(userID, exchange)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySecretRepo) Upsert(ctx context.Context, s *model.ExchangeSecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	key := secretKey(s.UserID, s.Exchange)
	created := now
	if prev, ok := r.records[key]; ok {
		created = prev.CreatedAt
	}
	cp := *s
	cp.CreatedAt = created
	cp.UpdatedAt = now
	cp.Quarantined = false
	r.records[key] = &cp
	return nil
}

func (r *MemorySecretRepo) Delete(ctx context.Context, userID string, exchange model.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := secretKey(userID, exchange)
	if _, ok := r.records[key]; !ok {
		return ErrNotFound
	}
	delete(r.records, key)
	return nil
}

func (r *MemorySecretRepo) ListByUser(ctx context.Context, userID string) ([]*model.ExchangeSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*model.ExchangeSecret
	for _, s := range r.records {
		if s.UserID == userID {
			cp := *s
			results = append(results, &cp)
		}
	}
	sortSecrets(results)
	return results, nil
}

func (r *MemorySecretRepo) ListAll(ctx context.Context) ([]*model.ExchangeSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	results := make([]*model.ExchangeSecret, 0, len(r.records))
	for _, s := range r.records {
		cp := *s
		results = append(results, &cp)
	}
	sortSecrets(results)
	return results, nil
}

func sortSecrets(secrets []*model.ExchangeSecret) {
	sort.Slice(secrets, func(i, j int) bool {
		if secrets[i].UserID != secrets[j].UserID {
			return secrets[i].UserID < secrets[j].UserID
		}
		return secrets[i].Exchange < secrets[j].Exchange
	})
}

func (r *MemorySecretRepo) SwapIfKeyVersion(ctx context.Context, userID string, exchange model.Exchange, apiKeyCT, apiSecretCT, newTag, expectTag string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[secretKey(userID, exchange)]
	if !ok || s.KeyVersion != expectTag {
		return false, nil
	}
	s.APIKeyCiphertext = apiKeyCT
	s.APISecretCiphertext = apiSecretCT
	s.KeyVersion = newTag
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemorySecretRepo) SetQuarantined(ctx context.Context, userID string, exchange model.Exchange, quarantined bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.records[secretKey(userID, exchange)]; ok {
		s.Quarantined = quarantined
		s.UpdatedAt = time.Now().UTC()
	}
	return nil
}

type MemoryAssignmentRepo struct {
	mu      sync.RWMutex
	records map[string]*model.StrategyAssignment
}

func NewMemoryAssignmentRepo() *MemoryAssignmentRepo {
	return &MemoryAssignmentRepo{records: make(map[string]*model.StrategyAssignment)}
}

func (r *MemoryAssignmentRepo) Get(ctx context.Context, userID string, exchange model.Exchange) (*model.StrategyAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.records[secretKey(userID, exchange)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAssignmentRepo) Upsert(ctx context.Context, a *model.StrategyAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	r.records[secretKey(a.UserID, a.Exchange)] = &cp
	return nil
}

func (r *MemoryAssignmentRepo) List(ctx context.Context, userID string) ([]*model.StrategyAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*model.StrategyAssignment
	for _, a := range r.records {
		if userID == "" || a.UserID == userID {
			cp := *a
			results = append(results, &cp)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].UserID != results[j].UserID {
			return results[i].UserID < results[j].UserID
		}
		return results[i].Exchange < results[j].Exchange
	})
	return results, nil
}

// MemoryRiskRepo serializes every counter mutation under one lock,
// matching the single-writer-per-row guarantee of the SQL version.
type MemoryRiskRepo struct {
	mu     sync.Mutex
	states map[string]*model.DailyRiskState // key: user|exchange|day
}

func NewMemoryRiskRepo() *MemoryRiskRepo {
	return &MemoryRiskRepo{states: make(map[string]*model.DailyRiskState)}
}

func riskKey(userID string, exchange model.Exchange, day string) string {
	return userID + "|" + string(exchange) + "|" + day
}

func (r *MemoryRiskRepo) GetOrCreate(ctx context.Context, userID string, exchange model.Exchange, day string, maxTrades int, dailyStop decimal.Decimal) (*model.DailyRiskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := riskKey(userID, exchange, day)
	s, ok := r.states[key]
	if !ok {
		s = &model.DailyRiskState{
			UserID:           userID,
			Exchange:         exchange,
			Day:              day,
			TradesToday:      0,
			RealizedPnLToday: decimal.Zero,
			DailyStop:        dailyStop,
			MaxTrades:        maxTrades,
		}
		r.states[key] = s
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRiskRepo) Get(ctx context.Context, userID string, exchange model.Exchange, day string) (*model.DailyRiskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[riskKey(userID, exchange, day)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRiskRepo) ApplyOutcome(ctx context.Context, userID string, exchange model.Exchange, day string, pnlDelta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[riskKey(userID, exchange, day)]
	if !ok {
		return ErrNotFound
	}
	s.TradesToday++
	s.RealizedPnLToday = s.RealizedPnLToday.Add(pnlDelta)
	return nil
}

// MemoryAuditRepo is the in-process ledger store: an append-only slice
// plus a monotonic counter.
type MemoryAuditRepo struct {
	mu      sync.RWMutex
	nextID  int64
	records []*model.AuditRecord
}

func NewMemoryAuditRepo() *MemoryAuditRepo {
	return &MemoryAuditRepo{nextID: 1}
}

func (r *MemoryAuditRepo) Append(ctx context.Context, rec *model.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = r.nextID
	r.nextID++
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *MemoryAuditRepo) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	results := make([]*model.AuditRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(results) < limit; i-- {
		rec := r.records[i]
		if filter.Actor != "" && rec.Actor != filter.Actor {
			continue
		}
		if filter.ActionPrefix != "" && !strings.HasPrefix(rec.Action, filter.ActionPrefix) {
			continue
		}
		cp := *rec
		results = append(results, &cp)
	}
	return results, nil
}

type MemoryControlRepo struct {
	mu      sync.RWMutex
	enabled *bool
}

func NewMemoryControlRepo() *MemoryControlRepo {
	return &MemoryControlRepo{}
}

func (r *MemoryControlRepo) GetTradingEnabled(ctx context.Context) (bool, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.enabled == nil {
		return false, false, nil
	}
	return *r.enabled, true, nil
}

func (r *MemoryControlRepo) SetTradingEnabled(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = &enabled
	return nil
}
