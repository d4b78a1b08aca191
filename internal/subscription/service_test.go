package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/melodix/backend/internal/entitlement"
	"github.com/melodix/backend/internal/models"
	"github.com/melodix/backend/internal/tier"
)

// ---------------------------------------------------------------------------
// In-memory mocks for PlanStore, LedgerStore, and EntitlementStore.
// ---------------------------------------------------------------------------

type mockPlans struct {
	plans map[uuid.UUID]*models.Plan
}

func newMockPlans(plans ...*models.Plan) *mockPlans {
	m := &mockPlans{plans: make(map[uuid.UUID]*models.Plan)}
	for _, p := range plans {
		cp := *p
		m.plans[p.ID] = &cp
	}
	return m
}

func (m *mockPlans) GetPlan(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrInvalidPlan
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlans) ListPlans(_ context.Context) ([]*models.Plan, error) {
	var list []*models.Plan
	for _, p := range m.plans {
		if p.Active {
			cp := *p
			list = append(list, &cp)
		}
	}
	return list, nil
}

type mockLedger struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*models.PaymentTransaction
}

func newMockLedger() *mockLedger {
	return &mockLedger{entries: make(map[uuid.UUID]*models.PaymentTransaction)}
}

func (m *mockLedger) CreateEntry(_ context.Context, _ pgx.Tx, t *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	cp.CreatedAt = time.Now()
	m.entries[t.ID] = &cp
	return nil
}

func (m *mockLedger) SettleEntry(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.Status != models.TxStatusPending {
		return ErrEntryNotPending
	}
	now := time.Now()
	e.Status = status
	e.ProcessedAt = &now
	return nil
}

func (m *mockLedger) ListByAccountID(_ context.Context, accountID uuid.UUID) ([]*models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*models.PaymentTransaction
	for _, e := range m.entries {
		if e.AccountID == accountID {
			cp := *e
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *mockLedger) entry(id uuid.UUID) *models.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.entries[id]
	return &cp
}

type mockTierStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.Entitlement
}

func newMockTierStore(list ...*models.Entitlement) *mockTierStore {
	m := &mockTierStore{records: make(map[uuid.UUID]*models.Entitlement)}
	for _, e := range list {
		cp := *e
		m.records[e.AccountID] = &cp
	}
	return m
}

func (m *mockTierStore) InTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (m *mockTierStore) SetTier(_ context.Context, _ pgx.Tx, accountID uuid.UUID, t tier.Tier, c tier.Ceilings, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[accountID]
	if !ok {
		return entitlement.ErrAccountNotFound
	}
	e.Tier = t
	e.StreamingBalance = c.Streaming
	e.DownloadBalance = c.Download
	e.SubscriptionExpiresAt = expiresAt
	return nil
}

func (m *mockTierStore) get(id uuid.UUID) models.Entitlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

// settlerFunc adapts a function to the Settler interface.
type settlerFunc func(ctx context.Context, t *models.PaymentTransaction) error

func (f settlerFunc) Settle(ctx context.Context, t *models.PaymentTransaction) error {
	return f(ctx, t)
}

func premiumPlan() *models.Plan {
	return &models.Plan{
		ID:           uuid.New(),
		Name:         "Premium Monthly",
		Tier:         tier.Premium,
		PriceCents:   5400000,
		Currency:     "IDR",
		DurationDays: 30,
		Active:       true,
	}
}

func freeEntitlement() *models.Entitlement {
	c := tier.CeilingsFor(tier.Free)
	return &models.Entitlement{
		AccountID:        uuid.New(),
		Tier:             tier.Free,
		StreamingBalance: c.Streaming,
		DownloadBalance:  c.Download,
		Active:           true,
	}
}

// ---------------------------------------------------------------------------
// 1. Payment failure: the ledger entry ends failed, the entitlement is
//    untouched, and the caller gets ErrPaymentFailed.
// ---------------------------------------------------------------------------

func TestSubscribePaymentFailed(t *testing.T) {
	plan := premiumPlan()
	acc := freeEntitlement()
	ledger := newMockLedger()
	ents := newMockTierStore(acc)
	decline := settlerFunc(func(context.Context, *models.PaymentTransaction) error {
		return errors.New("card declined")
	})
	svc := NewService(newMockPlans(plan), ledger, ents, decline, time.Second)

	res, err := svc.Subscribe(context.Background(), acc.AccountID, plan.ID, "manual")
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}
	if res.Transaction == nil {
		t.Fatal("failed subscribe should still return the ledger entry")
	}
	entry := ledger.entry(res.Transaction.ID)
	if entry.Status != models.TxStatusFailed {
		t.Errorf("entry status: got %s, want failed", entry.Status)
	}
	if entry.ProcessedAt == nil {
		t.Error("failed entry should have processed_at stamped")
	}

	after := ents.get(acc.AccountID)
	if after.Tier != tier.Free || after.StreamingBalance != 5 || after.DownloadBalance != 0 {
		t.Errorf("entitlement mutated on failed payment: %+v", after)
	}
}

// ---------------------------------------------------------------------------
// 2. Payment success: entry completed, tier and ceilings rewritten, expiry
//    set from the plan duration.
// ---------------------------------------------------------------------------

func TestSubscribeSuccess(t *testing.T) {
	plan := premiumPlan()
	acc := freeEntitlement()
	ledger := newMockLedger()
	ents := newMockTierStore(acc)
	svc := NewService(newMockPlans(plan), ledger, ents, ManualSettler{}, time.Second)

	before := time.Now()
	res, err := svc.Subscribe(context.Background(), acc.AccountID, plan.ID, "manual")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	entry := ledger.entry(res.Transaction.ID)
	if entry.Status != models.TxStatusCompleted {
		t.Errorf("entry status: got %s, want completed", entry.Status)
	}
	if entry.AmountCents != plan.PriceCents || entry.PlanID != plan.ID {
		t.Errorf("entry %+v does not match plan", entry)
	}
	if res.Ceilings.Streaming != tier.Unlimited || res.Ceilings.Download != tier.Unlimited {
		t.Errorf("ceilings: got %+v, want unlimited/unlimited", res.Ceilings)
	}

	after := ents.get(acc.AccountID)
	if after.Tier != tier.Premium || after.StreamingBalance != tier.Unlimited || after.DownloadBalance != tier.Unlimited {
		t.Errorf("entitlement after subscribe: %+v", after)
	}
	if after.SubscriptionExpiresAt == nil {
		t.Fatal("expiry should be set")
	}
	wantExpiry := before.Add(30 * 24 * time.Hour)
	if diff := after.SubscriptionExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiry %v not within a minute of %v", after.SubscriptionExpiresAt, wantExpiry)
	}
}

// ---------------------------------------------------------------------------
// 3. Plan-specific ceiling overrides win over the tier defaults.
// ---------------------------------------------------------------------------

func TestSubscribePlanOverrides(t *testing.T) {
	download := 25
	plan := premiumPlan()
	plan.Tier = tier.PremiumLite
	plan.DownloadLimit = &download
	acc := freeEntitlement()
	ents := newMockTierStore(acc)
	svc := NewService(newMockPlans(plan), newMockLedger(), ents, ManualSettler{}, time.Second)

	res, err := svc.Subscribe(context.Background(), acc.AccountID, plan.ID, "manual")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if res.Ceilings.Streaming != tier.Unlimited || res.Ceilings.Download != 25 {
		t.Errorf("ceilings: got %+v, want {-1 25}", res.Ceilings)
	}
	if got := ents.get(acc.AccountID).DownloadBalance; got != 25 {
		t.Errorf("download balance: got %d, want 25", got)
	}
}

// ---------------------------------------------------------------------------
// 4. Invalid plans: unknown or inactive.
// ---------------------------------------------------------------------------

func TestSubscribeInvalidPlan(t *testing.T) {
	acc := freeEntitlement()
	svc := NewService(newMockPlans(), newMockLedger(), newMockTierStore(acc), ManualSettler{}, time.Second)

	if _, err := svc.Subscribe(context.Background(), acc.AccountID, uuid.New(), "manual"); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("unknown plan: err = %v, want ErrInvalidPlan", err)
	}

	inactive := premiumPlan()
	inactive.Active = false
	svc = NewService(newMockPlans(inactive), newMockLedger(), newMockTierStore(acc), ManualSettler{}, time.Second)
	if _, err := svc.Subscribe(context.Background(), acc.AccountID, inactive.ID, "manual"); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("inactive plan: err = %v, want ErrInvalidPlan", err)
	}
}

// ---------------------------------------------------------------------------
// 5. Settlement timeout counts as a failure: failed entry, entitlement
//    untouched, no dangling pending entry.
// ---------------------------------------------------------------------------

func TestSubscribeSettleTimeout(t *testing.T) {
	plan := premiumPlan()
	acc := freeEntitlement()
	ledger := newMockLedger()
	ents := newMockTierStore(acc)
	hang := settlerFunc(func(ctx context.Context, _ *models.PaymentTransaction) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := NewService(newMockPlans(plan), ledger, ents, hang, 10*time.Millisecond)

	res, err := svc.Subscribe(context.Background(), acc.AccountID, plan.ID, "manual")
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}
	if got := ledger.entry(res.Transaction.ID).Status; got != models.TxStatusFailed {
		t.Errorf("entry status after timeout: got %s, want failed", got)
	}
	if got := ents.get(acc.AccountID).Tier; got != tier.Free {
		t.Errorf("tier after timeout: got %s, want free", got)
	}
}

// ---------------------------------------------------------------------------
// 6. ApplyTier: the paymentless path still derives ceilings from the tier
//    policy, for admin bootstrap and expiry downgrades alike.
// ---------------------------------------------------------------------------

func TestApplyTier(t *testing.T) {
	acc := freeEntitlement()
	ents := newMockTierStore(acc)
	svc := NewService(newMockPlans(), newMockLedger(), ents, ManualSettler{}, time.Second)

	c, err := svc.ApplyTier(context.Background(), acc.AccountID, tier.Premium)
	if err != nil {
		t.Fatalf("ApplyTier: %v", err)
	}
	if c != tier.CeilingsFor(tier.Premium) {
		t.Errorf("ceilings: got %+v, want premium defaults", c)
	}
	after := ents.get(acc.AccountID)
	if after.Tier != tier.Premium || after.StreamingBalance != tier.Unlimited || after.DownloadBalance != tier.Unlimited {
		t.Errorf("entitlement after bootstrap: %+v", after)
	}
	if after.SubscriptionExpiresAt != nil {
		t.Error("administrative tier changes should not set an expiry")
	}

	if _, err := svc.ApplyTier(context.Background(), uuid.New(), tier.Free); !errors.Is(err, entitlement.ErrAccountNotFound) {
		t.Fatalf("unknown account: err = %v, want ErrAccountNotFound", err)
	}
}

func TestSettleEntryImmutable(t *testing.T) {
	ledger := newMockLedger()
	entry := &models.PaymentTransaction{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		Status:    models.TxStatusPending,
	}
	if err := ledger.CreateEntry(context.Background(), nil, entry); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if err := ledger.SettleEntry(context.Background(), nil, entry.ID, models.TxStatusCompleted); err != nil {
		t.Fatalf("first settle: %v", err)
	}

	err := ledger.SettleEntry(context.Background(), nil, entry.ID, models.TxStatusFailed)
	if !errors.Is(err, ErrEntryNotPending) {
		t.Fatalf("second settle: err = %v, want ErrEntryNotPending", err)
	}
	if got := ledger.entry(entry.ID).Status; got != models.TxStatusCompleted {
		t.Errorf("status = %q, want completed unchanged", got)
	}
}
