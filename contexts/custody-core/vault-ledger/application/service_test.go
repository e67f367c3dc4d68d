package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"vaultd/contexts/custody-core/vault-ledger/domain/entities"
	domainerrors "vaultd/contexts/custody-core/vault-ledger/domain/errors"
	"vaultd/contexts/custody-core/vault-ledger/ports"
)

type memRepo struct {
	balances map[string]uint64
	entries  []entities.LedgerEntry
}

func newMemRepo() *memRepo {
	return &memRepo{balances: make(map[string]uint64)}
}

func balanceMapKey(userID string, asset entities.Asset) string {
	return userID + "|" + string(asset)
}

func (r *memRepo) Balance(_ context.Context, userID string, asset entities.Asset) (uint64, error) {
	return r.balances[balanceMapKey(userID, asset)], nil
}

func (r *memRepo) SetBalance(_ context.Context, userID string, asset entities.Asset, amount uint64) error {
	r.balances[balanceMapKey(userID, asset)] = amount
	return nil
}

func (r *memRepo) AppendEntry(_ context.Context, entry entities.LedgerEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memRepo) ListEntriesByUser(_ context.Context, userID string, limit int, offset int) ([]entities.LedgerEntry, error) {
	items := make([]entities.LedgerEntry, 0)
	for _, item := range r.entries {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	return items, nil
}

type memIdem struct {
	store map[string]ports.IdempotencyRecord
}

func newMemIdem() *memIdem {
	return &memIdem{store: make(map[string]ports.IdempotencyRecord)}
}

func (m *memIdem) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	record, ok := m.store[key]
	if !ok || !record.ExpiresAt.After(now) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (m *memIdem) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	m.store[record.Key] = record
	return nil
}

func (m *memIdem) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	purged := 0
	for key, record := range m.store {
		if !record.ExpiresAt.After(now) {
			delete(m.store, key)
			purged++
		}
	}
	return purged, nil
}

type memOutbox struct {
	events []ports.EventEnvelope
}

func (o *memOutbox) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	o.events = append(o.events, envelope)
	return nil
}

type fakeBank struct {
	failIn  error
	failOut error
	outHook func(ctx context.Context) error
	pulls   []uint64
	pushes  []uint64
}

func (b *fakeBank) TransferIn(_ context.Context, _ entities.Asset, _ string, amount uint64) error {
	if b.failIn != nil {
		return b.failIn
	}
	b.pulls = append(b.pulls, amount)
	return nil
}

func (b *fakeBank) TransferOut(ctx context.Context, _ entities.Asset, _ string, amount uint64) error {
	if b.failOut != nil {
		return b.failOut
	}
	if b.outHook != nil {
		if err := b.outHook(ctx); err != nil {
			return err
		}
	}
	b.pushes = append(b.pushes, amount)
	return nil
}

type fakeNative struct {
	fail error
	sent []uint64
}

func (n *fakeNative) Send(_ context.Context, _ string, amount uint64) error {
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, amount)
	return nil
}

type movableClock struct {
	now time.Time
}

func (c *movableClock) Now() time.Time { return c.now }

func (c *movableClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type seqIDs struct {
	n int
}

func (g *seqIDs) NewID(_ context.Context) (string, error) {
	g.n++
	return fmt.Sprintf("id-%04d", g.n), nil
}

type allowPolicy struct{}

func (allowPolicy) Authorize(_ string, _ entities.Asset, _ uint64) bool { return true }

type denyPolicy struct{}

func (denyPolicy) Authorize(_ string, _ entities.Asset, _ uint64) bool { return false }

type vaultFixture struct {
	service Service
	repo    *memRepo
	outbox  *memOutbox
	bank    *fakeBank
	native  *fakeNative
	clock   *movableClock
}

func newVaultFixture(t *testing.T, initial ports.AuthorizationPolicy) *vaultFixture {
	t.Helper()

	state, err := NewVaultState("admin-1", initial)
	if err != nil {
		t.Fatalf("vault state construction failed: %v", err)
	}

	repo := newMemRepo()
	outbox := &memOutbox{}
	bank := &fakeBank{}
	native := &fakeNative{}
	clock := &movableClock{now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}

	return &vaultFixture{
		service: Service{
			Repo:           repo,
			Idempotency:    newMemIdem(),
			Outbox:         outbox,
			Tokens:         bank,
			Native:         native,
			Clock:          clock,
			IDGen:          &seqIDs{},
			State:          state,
			Guard:          NewEntryGuard(),
			GraceDuration:  3 * 24 * time.Hour,
			IdempotencyTTL: 7 * 24 * time.Hour,
		},
		repo:   repo,
		outbox: outbox,
		bank:   bank,
		native: native,
		clock:  clock,
	}
}

func (f *vaultFixture) balance(t *testing.T, userID string, asset entities.Asset) uint64 {
	t.Helper()
	amount, err := f.service.BalanceOf(context.Background(), userID, asset)
	if err != nil {
		t.Fatalf("balance lookup failed: %v", err)
	}
	return amount
}

func TestDepositWithdrawBookkeeping(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	deposits := []uint64{100, 50}
	for i, amount := range deposits {
		_, _, err := f.service.Deposit(ctx, fmt.Sprintf("dep-%d", i), ports.DepositInput{
			UserID: "user-1",
			Asset:  asset,
			Amount: amount,
		})
		if err != nil {
			t.Fatalf("deposit %d failed: %v", i, err)
		}
	}
	if _, _, err := f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 30,
	}); err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}

	if got := f.balance(t, "user-1", asset); got != 120 {
		t.Fatalf("expected balance 120, got %d", got)
	}
	if len(f.bank.pulls) != 2 || len(f.bank.pushes) != 1 {
		t.Fatalf("expected 2 pulls and 1 push, got %d and %d", len(f.bank.pulls), len(f.bank.pushes))
	}
	entries, err := f.service.ListEntries(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("list entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
}

func TestDepositNativeValueMismatch(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()

	_, _, err := f.service.Deposit(ctx, "dep-native", ports.DepositInput{
		UserID:        "user-1",
		Asset:         entities.AssetNative,
		Amount:        100,
		AttachedValue: 99,
	})
	if !errors.Is(err, domainerrors.ErrIncorrectValue) {
		t.Fatalf("expected ErrIncorrectValue, got %v", err)
	}

	_, _, err = f.service.Deposit(ctx, "dep-token", ports.DepositInput{
		UserID:        "user-1",
		Asset:         entities.Asset("usdx"),
		Amount:        100,
		AttachedValue: 1,
	})
	if !errors.Is(err, domainerrors.ErrIncorrectValue) {
		t.Fatalf("expected ErrIncorrectValue for non-native attached value, got %v", err)
	}
	if got := f.balance(t, "user-1", entities.AssetNative); got != 0 {
		t.Fatalf("rejected deposit must not credit, balance=%d", got)
	}
}

func TestDepositOverflowGuard(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	if err := f.repo.SetBalance(ctx, "user-1", asset, ^uint64(0)-10); err != nil {
		t.Fatalf("seed balance failed: %v", err)
	}
	_, _, err := f.service.Deposit(ctx, "dep-overflow", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 11,
	})
	if !errors.Is(err, domainerrors.ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != ^uint64(0)-10 {
		t.Fatalf("overflowing deposit must not mutate balance, got %d", got)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 40,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	_, _, err := f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 41,
	})
	if !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != 40 {
		t.Fatalf("failed withdrawal must leave balance unchanged, got %d", got)
	}
}

func TestWithdrawConsultsPolicyOutsideGrace(t *testing.T) {
	f := newVaultFixture(t, denyPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// Grace clock is at the never-set sentinel, so the deny verdict holds.
	_, _, err := f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 10,
	})
	if !errors.Is(err, domainerrors.ErrWithdrawalDenied) {
		t.Fatalf("expected ErrWithdrawalDenied, got %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != 100 {
		t.Fatalf("denied withdrawal must not mutate balance, got %d", got)
	}
}

func TestGraceWindowBypassesDenyPolicy(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := f.service.SetPolicy(ctx, "admin-1", denyPolicy{}); err != nil {
		t.Fatalf("policy replacement failed: %v", err)
	}

	f.clock.Advance(24 * time.Hour)
	if _, _, err := f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 40,
	}); err != nil {
		t.Fatalf("withdrawal inside grace window failed: %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != 60 {
		t.Fatalf("expected balance 60 after grace withdrawal, got %d", got)
	}

	f.clock.Advance(3 * 24 * time.Hour)
	_, _, err := f.service.Withdraw(ctx, "wd-2", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 10,
	})
	if !errors.Is(err, domainerrors.ErrWithdrawalDenied) {
		t.Fatalf("expected denial after grace expiry, got %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != 60 {
		t.Fatalf("expected balance 60 after denied withdrawal, got %d", got)
	}
}

func TestRepeatedPolicyChangesKeepGraceOpen(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// Each replacement re-arms the full window; changes more frequent than
	// the grace duration keep withdrawals permanently unauthenticated.
	if err := f.service.SetPolicy(ctx, "admin-1", denyPolicy{}); err != nil {
		t.Fatalf("first policy replacement failed: %v", err)
	}
	f.clock.Advance(60 * time.Hour)
	if err := f.service.SetPolicy(ctx, "admin-1", denyPolicy{}); err != nil {
		t.Fatalf("second policy replacement failed: %v", err)
	}
	f.clock.Advance(60 * time.Hour)

	// 120h since the first change, 60h since the second: still bypassed.
	if _, _, err := f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 10,
	}); err != nil {
		t.Fatalf("withdrawal inside re-armed grace window failed: %v", err)
	}
}

func TestReentrantWithdrawBlocked(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("evil")

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	var nestedErr error
	f.bank.outHook = func(hookCtx context.Context) error {
		_, _, nestedErr = f.service.Withdraw(hookCtx, "wd-nested", ports.WithdrawInput{
			UserID: "user-1",
			Asset:  asset,
			Amount: 40,
		})
		return nil
	}

	if _, _, err := f.service.Withdraw(ctx, "wd-outer", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 40,
	}); err != nil {
		t.Fatalf("outer withdrawal failed: %v", err)
	}
	if !errors.Is(nestedErr, domainerrors.ErrReentrancyBlocked) {
		t.Fatalf("expected nested call to fail with ErrReentrancyBlocked, got %v", nestedErr)
	}
	if got := f.balance(t, "user-1", asset); got != 60 {
		t.Fatalf("expected exactly one deduction, balance=%d", got)
	}
}

func TestTransferFailuresRollBack(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	f.bank.failIn = errors.New("token backend rejected the pull")
	_, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	})
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on pull failure, got %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != 0 {
		t.Fatalf("failed pull must roll the credit back, balance=%d", got)
	}
	f.bank.failIn = nil

	if _, _, err := f.service.Deposit(ctx, "dep-2", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	f.bank.failOut = errors.New("token backend rejected the push")
	_, _, err = f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 40,
	})
	if !errors.Is(err, domainerrors.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on push failure, got %v", err)
	}
	if got := f.balance(t, "user-1", asset); got != 100 {
		t.Fatalf("failed push must restore the debit, balance=%d", got)
	}
}

func TestNativeSendFailureRollsBack(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID:        "user-1",
		Asset:         entities.AssetNative,
		Amount:        100,
		AttachedValue: 100,
	}); err != nil {
		t.Fatalf("native deposit failed: %v", err)
	}

	f.native.fail = errors.New("recipient refused delivery")
	_, _, err := f.service.Withdraw(ctx, "wd-1", ports.WithdrawInput{
		UserID: "user-1",
		Asset:  entities.AssetNative,
		Amount: 40,
	})
	if !errors.Is(err, domainerrors.ErrNativeTransferFailed) {
		t.Fatalf("expected ErrNativeTransferFailed, got %v", err)
	}
	if got := f.balance(t, "user-1", entities.AssetNative); got != 100 {
		t.Fatalf("failed native send must restore the debit, balance=%d", got)
	}
}

func TestSetPolicyAuthorization(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()

	if err := f.service.SetPolicy(ctx, "user-1", denyPolicy{}); !errors.Is(err, domainerrors.ErrNotAdministrator) {
		t.Fatalf("expected ErrNotAdministrator, got %v", err)
	}
	if err := f.service.SetPolicy(ctx, "admin-1", nil); !errors.Is(err, domainerrors.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for nil policy, got %v", err)
	}
	if err := f.service.SetPolicy(ctx, "admin-1", denyPolicy{}); err != nil {
		t.Fatalf("policy replacement by administrator failed: %v", err)
	}
	_, lastChange := f.service.State.PolicySnapshot()
	if lastChange == 0 {
		t.Fatal("policy replacement must stamp the grace clock")
	}
}

func TestAdministratorHandover(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()

	if err := f.service.ProposeAdministrator(ctx, "user-1", "admin-2"); !errors.Is(err, domainerrors.ErrNotAdministrator) {
		t.Fatalf("expected ErrNotAdministrator for non-admin proposal, got %v", err)
	}
	if err := f.service.ProposeAdministrator(ctx, "admin-1", "admin-2"); err != nil {
		t.Fatalf("proposal failed: %v", err)
	}
	if err := f.service.AcceptAdministrator(ctx, "user-1"); !errors.Is(err, domainerrors.ErrNotPendingAdministrator) {
		t.Fatalf("expected ErrNotPendingAdministrator, got %v", err)
	}
	if err := f.service.AcceptAdministrator(ctx, "admin-2"); err != nil {
		t.Fatalf("acceptance by proposed administrator failed: %v", err)
	}
	if err := f.service.SetPolicy(ctx, "admin-1", denyPolicy{}); !errors.Is(err, domainerrors.ErrNotAdministrator) {
		t.Fatalf("previous administrator must lose policy rights, got %v", err)
	}
	if err := f.service.SetPolicy(ctx, "admin-2", denyPolicy{}); err != nil {
		t.Fatalf("new administrator must hold policy rights: %v", err)
	}
}

func TestBalancesOfAssetsOrderAndZeros(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()

	if _, _, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  entities.Asset("usdx"),
		Amount: 25,
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	assets := []entities.Asset{entities.Asset("unknown"), entities.Asset("usdx"), entities.AssetNative}
	amounts, err := f.service.BalancesOfAssets(ctx, "user-1", assets)
	if err != nil {
		t.Fatalf("batch balance lookup failed: %v", err)
	}
	if len(amounts) != len(assets) {
		t.Fatalf("result length %d must match input length %d", len(amounts), len(assets))
	}
	want := []uint64{0, 25, 0}
	for i := range want {
		if amounts[i] != want[i] {
			t.Fatalf("amounts[%d] = %d, want %d", i, amounts[i], want[i])
		}
	}
}

func TestDepositIdempotentReplay(t *testing.T) {
	f := newVaultFixture(t, allowPolicy{})
	ctx := context.Background()
	asset := entities.Asset("usdx")

	first, replayed, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	})
	if err != nil || replayed {
		t.Fatalf("first deposit: err=%v replayed=%v", err, replayed)
	}
	second, replayed, err := f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 100,
	})
	if err != nil {
		t.Fatalf("replayed deposit failed: %v", err)
	}
	if !replayed || second.EntryID != first.EntryID {
		t.Fatalf("expected replay of entry %s, got %s replayed=%v", first.EntryID, second.EntryID, replayed)
	}
	if got := f.balance(t, "user-1", asset); got != 100 {
		t.Fatalf("replay must not double-credit, balance=%d", got)
	}

	_, _, err = f.service.Deposit(ctx, "dep-1", ports.DepositInput{
		UserID: "user-1",
		Asset:  asset,
		Amount: 999,
	})
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict for reused key, got %v", err)
	}
}
