package payroll

import (
	"errors"
	"testing"
)

func TestCreatePayrollBatch(t *testing.T) {
	f := newFixture(t)
	batch, err := f.engine.CreatePayrollBatch(f.owner, f.vault, 7, 2_000_000_000)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if batch.Finalized || batch.PayoutCount != 0 || batch.ServiceFee != 100_000_000 || batch.CreatedAt != f.now {
		t.Fatalf("unexpected batch %+v", batch)
	}
	_, err = f.engine.CreatePayrollBatch(f.owner, f.vault, 7, 1)
	expectErr(t, err, ErrBatchAlreadyExists)
	_, err = f.engine.CreatePayrollBatch(newTestAddress(0x99), f.vault, 8, 1)
	expectErr(t, err, ErrUnauthorized)
}

func TestProcessSolPayoutSplitsFee(t *testing.T) {
	f := newFixture(t)
	member := newTestAddress(0x10)
	f.addMember(member, bps(1_000))
	f.deposit(5_000_000_000)
	f.createBatch(1, 2_000_000_000)

	receipt, err := f.engine.ProcessSolPayout(f.owner, f.vault, 1, member, 2_000_000_000)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if receipt.Fee != 100_000_000 || receipt.Net != 1_900_000_000 {
		t.Fatalf("unexpected split %+v", receipt)
	}
	if v := f.mustVault(); v.TotalBalance != 3_000_000_000 {
		t.Fatalf("vault must be debited the gross amount, got %d", v.TotalBalance)
	}
	if got := f.state.balance(member[:], NativeAsset()); got != 1_900_000_000 {
		t.Fatalf("member credited %d", got)
	}
	if got := f.state.balance(f.treasury[:], NativeAsset()); got != 100_000_000 {
		t.Fatalf("treasury credited %d", got)
	}
	if got := f.state.balance(f.vault[:], NativeAsset()); got != 3_000_000_000 {
		t.Fatalf("custody holds %d", got)
	}
	batch, _ := f.engine.PayrollBatch(f.vault, 1)
	if batch.PayoutCount != 1 {
		t.Fatalf("expected payout count 1, got %d", batch.PayoutCount)
	}
	evts := f.events.OfType(EventTypePayout)
	if len(evts) != 1 || evts[0].Attributes["fee"] != "100000000" {
		t.Fatalf("unexpected payout events %+v", evts)
	}
}

func TestProcessSolPayoutPreconditionOrder(t *testing.T) {
	f := newFixture(t)
	active, inactive := newTestAddress(0x10), newTestAddress(0x11)
	f.addMember(active, nil)
	f.addMember(inactive, nil)
	if _, err := f.engine.ToggleMemberActiveStatus(f.owner, f.vault, inactive); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	f.deposit(100)
	f.createBatch(1, 0)

	_, err := f.engine.ProcessSolPayout(f.owner, f.vault, 1, newTestAddress(0x55), 10)
	expectErr(t, err, ErrAccountNotFound)
	if KindOf(err) != KindResource {
		t.Fatalf("missing member must be a resource failure, got %v", KindOf(err))
	}
	_, err = f.engine.ProcessSolPayout(f.owner, f.vault, 1, inactive, 10)
	expectErr(t, err, ErrMemberNotActive)
	_, err = f.engine.ProcessSolPayout(f.owner, f.vault, 1, active, 101)
	expectErr(t, err, ErrInsufficientVaultBalance)
	_, err = f.engine.ProcessSolPayout(newTestAddress(0x99), f.vault, 1, active, 10)
	expectErr(t, err, ErrUnauthorized)
	_, err = f.engine.ProcessSolPayout(f.owner, f.vault, 2, active, 10)
	expectErr(t, err, ErrAccountNotFound)

	if err := f.engine.FinalizePayrollBatch(f.owner, f.vault, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// A finalized batch is reported before member and balance problems.
	_, err = f.engine.ProcessSolPayout(f.owner, f.vault, 1, inactive, 1_000)
	expectErr(t, err, ErrBatchAlreadyFinalized)

	if v := f.mustVault(); v.TotalBalance != 100 {
		t.Fatalf("failed payouts must not move funds, got %d", v.TotalBalance)
	}
	batch, _ := f.engine.PayrollBatch(f.vault, 1)
	if batch.PayoutCount != 0 {
		t.Fatalf("expected zero payouts, got %d", batch.PayoutCount)
	}
}

func TestFinalizeBlocksFurtherPayouts(t *testing.T) {
	f := newFixture(t)
	member := newTestAddress(0x10)
	f.addMember(member, nil)
	f.deposit(1_000)
	f.createBatch(1, 1_000)
	if _, err := f.engine.ProcessSolPayout(f.owner, f.vault, 1, member, 100); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if err := f.engine.FinalizePayrollBatch(f.owner, f.vault, 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := f.engine.FinalizePayrollBatch(f.owner, f.vault, 1); err != nil {
		t.Fatalf("finalize must be idempotent: %v", err)
	}
	_, err := f.engine.ProcessSolPayout(f.owner, f.vault, 1, member, 100)
	expectErr(t, err, ErrBatchAlreadyFinalized)
	batch, _ := f.engine.PayrollBatch(f.vault, 1)
	if !batch.Finalized || batch.PayoutCount != 1 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if got := len(f.events.OfType(EventTypeBatchFinalized)); got != 1 {
		t.Fatalf("expected one finalize event, got %d", got)
	}
	expectErr(t, f.engine.FinalizePayrollBatch(newTestAddress(0x99), f.vault, 1), ErrUnauthorized)
}

func TestProcessSplPayout(t *testing.T) {
	f := newFixture(t)
	mint := newTestAddress(0x50)
	token := TokenAsset(mint)
	member := newTestAddress(0x10)
	f.addMember(member, nil)
	if err := f.engine.AddWhitelistedAsset(f.owner, f.vault, token); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	f.state.credit(f.owner[:], token, 10_000)
	if err := f.engine.DepositSplToken(f.owner, f.vault, mint, 10_000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.createBatch(1, 10_000)

	receipt, err := f.engine.ProcessSplPayout(f.owner, f.vault, 1, member, mint, 4_000)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if receipt.Fee != 200 || receipt.Net != 3_800 {
		t.Fatalf("unexpected split %+v", receipt)
	}
	if got := f.state.balance(member[:], token); got != 3_800 {
		t.Fatalf("member holds %d", got)
	}
	if got := f.state.balance(f.vault[:], token); got != 6_000 {
		t.Fatalf("custody holds %d", got)
	}
	_, err = f.engine.ProcessSplPayout(f.owner, f.vault, 1, member, mint, 6_001)
	expectErr(t, err, ErrInsufficientVaultBalance)
}

func TestBulkProcessPayoutsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	a, b, c := newTestAddress(0x10), newTestAddress(0x11), newTestAddress(0x12)
	f.addMember(a, nil)
	f.addMember(b, nil)
	f.addMember(c, nil)
	if _, err := f.engine.ToggleMemberActiveStatus(f.owner, f.vault, c); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	f.deposit(10_000)
	f.createBatch(1, 10_000)

	_, err := f.engine.BulkProcessPayouts(f.owner, f.vault, 1, []PayoutEntry{
		{Wallet: a, Asset: NativeAsset(), Amount: 1_000},
		{Wallet: b, Asset: NativeAsset(), Amount: 1_000},
		{Wallet: c, Asset: NativeAsset(), Amount: 1_000},
	})
	expectErr(t, err, ErrMemberNotActive)
	var entryErr *BulkEntryError
	if !errors.As(err, &entryErr) || entryErr.Index != 2 {
		t.Fatalf("expected failure at index 2, got %v", err)
	}
	if v := f.mustVault(); v.TotalBalance != 10_000 {
		t.Fatalf("aborted bulk must not move funds, got %d", v.TotalBalance)
	}
	if got := f.state.balance(a[:], NativeAsset()); got != 0 {
		t.Fatalf("aborted bulk credited member %d", got)
	}
	batch, _ := f.engine.PayrollBatch(f.vault, 1)
	if batch.PayoutCount != 0 {
		t.Fatalf("expected zero payouts, got %d", batch.PayoutCount)
	}

	receipts, err := f.engine.BulkProcessPayouts(f.owner, f.vault, 1, []PayoutEntry{
		{Wallet: a, Asset: NativeAsset(), Amount: 4_000},
		{Wallet: b, Asset: NativeAsset(), Amount: 6_000},
	})
	if err != nil {
		t.Fatalf("bulk payout: %v", err)
	}
	if len(receipts) != 2 {
		t.Fatalf("expected two receipts, got %d", len(receipts))
	}
	if v := f.mustVault(); v.TotalBalance != 0 {
		t.Fatalf("expected drained vault, got %d", v.TotalBalance)
	}
	batch, _ = f.engine.PayrollBatch(f.vault, 1)
	if batch.PayoutCount != 2 {
		t.Fatalf("expected payout count 2, got %d", batch.PayoutCount)
	}
	// Cumulative sufficiency is checked entry by entry.
	f.deposit(1_000)
	_, err = f.engine.BulkProcessPayouts(f.owner, f.vault, 1, []PayoutEntry{
		{Wallet: a, Asset: NativeAsset(), Amount: 600},
		{Wallet: b, Asset: NativeAsset(), Amount: 600},
	})
	expectErr(t, err, ErrInsufficientVaultBalance)
}

func TestConservationAcrossOperations(t *testing.T) {
	f := newFixture(t)
	member := newTestAddress(0x10)
	f.addMember(member, nil)
	f.createBatch(1, 0)
	var deposited, paid uint64
	for i := uint64(1); i <= 20; i++ {
		f.deposit(i * 1_000)
		deposited += i * 1_000
		amount := i * 333
		if _, err := f.engine.ProcessSolPayout(f.owner, f.vault, 1, member, amount); err != nil {
			t.Fatalf("payout %d: %v", i, err)
		}
		paid += amount
		if v := f.mustVault(); v.TotalBalance != deposited-paid {
			t.Fatalf("step %d: balance %d, want %d", i, v.TotalBalance, deposited-paid)
		}
	}
	total := f.state.balance(member[:], NativeAsset()) + f.state.balance(f.treasury[:], NativeAsset())
	if total != paid {
		t.Fatalf("member+treasury %d, want %d", total, paid)
	}
}
