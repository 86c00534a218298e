package payroll

import "testing"

func scheduledFixture(t *testing.T, next int64) (*fixture, [20]byte) {
	t.Helper()
	f := newFixture(t)
	wallet := newTestAddress(0x10)
	f.addMember(wallet, bps(2_500))
	f.deposit(40_000)
	schedule := &PayoutSchedule{IntervalSeconds: 3_600, NextPayoutTimestamp: next, Active: true}
	if err := f.engine.UpdatePayoutSchedule(f.owner, f.vault, schedule); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	return f, wallet
}

func TestScheduledPayoutNotDueIsNoop(t *testing.T) {
	f, wallet := scheduledFixture(t, 1_700_001_000)
	commits := f.state.commitCount()
	_, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	expectErr(t, err, ErrPayoutTimeNotReached)
	if f.state.commitCount() != commits {
		t.Fatalf("no-op must not commit")
	}
	v := f.mustVault()
	if v.TotalBalance != 40_000 || v.PayoutSchedule.NextPayoutTimestamp != 1_700_001_000 {
		t.Fatalf("vault changed: %+v", v)
	}
}

func TestScheduledPayoutAdvancesFromPreviousTime(t *testing.T) {
	f, wallet := scheduledFixture(t, 1_699_990_000)
	// Ten thousand seconds late: exactly one interval is added.
	receipt, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	if err != nil {
		t.Fatalf("scheduled payout: %v", err)
	}
	if receipt.Gross != 10_000 || receipt.Fee != 500 || receipt.Net != 9_500 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.NextPayoutTimestamp != 1_699_993_600 {
		t.Fatalf("unexpected next timestamp %d", receipt.NextPayoutTimestamp)
	}
	v := f.mustVault()
	if v.PayoutSchedule.NextPayoutTimestamp != 1_699_993_600 {
		t.Fatalf("schedule not advanced: %+v", v.PayoutSchedule)
	}
	if v.TotalBalance != 30_000 {
		t.Fatalf("expected 30000 left, got %d", v.TotalBalance)
	}
	batch, err := f.engine.PayrollBatch(f.vault, ScheduledBatchID)
	if err != nil || batch.PayoutCount != 1 {
		t.Fatalf("scheduled batch not recorded: %+v %v", batch, err)
	}
	if got := len(f.events.OfType(EventTypeScheduleAdvanced)); got != 1 {
		t.Fatalf("expected one advance event, got %d", got)
	}
}

func TestScheduledPayoutInactiveSchedule(t *testing.T) {
	f := newFixture(t)
	wallet := newTestAddress(0x10)
	f.addMember(wallet, bps(100))
	_, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	expectErr(t, err, ErrPayoutScheduleInactive)
	schedule := &PayoutSchedule{IntervalSeconds: 60, NextPayoutTimestamp: 0, Active: false}
	if err := f.engine.UpdatePayoutSchedule(f.owner, f.vault, schedule); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	_, err = f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	expectErr(t, err, ErrPayoutScheduleInactive)
}

func TestScheduledPayoutUsesFixedAllocation(t *testing.T) {
	f, _ := scheduledFixture(t, 0)
	contractor := newTestAddress(0x20)
	if _, err := f.engine.AddMember(f.owner, f.vault, MemberParams{Wallet: contractor, SolPaymentAllocation: amt(1_234)}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	receipt, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, contractor)
	if err != nil {
		t.Fatalf("scheduled payout: %v", err)
	}
	if receipt.Gross != 1_234 {
		t.Fatalf("expected fixed allocation, got %d", receipt.Gross)
	}

	bare := newTestAddress(0x21)
	f.addMember(bare, nil)
	_, err = f.engine.ProcessScheduledPayout(f.owner, f.vault, bare)
	expectErr(t, err, ErrInvalidAllocationBps)
}

func TestScheduledPayoutFailureKeepsSchedule(t *testing.T) {
	f, wallet := scheduledFixture(t, 0)
	if _, err := f.engine.ToggleMemberActiveStatus(f.owner, f.vault, wallet); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	_, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	expectErr(t, err, ErrMemberNotActive)
	if v := f.mustVault(); v.PayoutSchedule.NextPayoutTimestamp != 0 {
		t.Fatalf("failed payout advanced the schedule: %+v", v.PayoutSchedule)
	}
	_, err = f.engine.ProcessScheduledPayout(newTestAddress(0x99), f.vault, wallet)
	expectErr(t, err, ErrUnauthorized)
}

func TestScheduledPayoutInactiveMemberWithoutAllocation(t *testing.T) {
	f, _ := scheduledFixture(t, 0)
	bare := newTestAddress(0x22)
	f.addMember(bare, nil)
	if _, err := f.engine.ToggleMemberActiveStatus(f.owner, f.vault, bare); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	_, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, bare)
	expectErr(t, err, ErrMemberNotActive)
}

func TestScheduledPayoutZeroShareAdvancesSchedule(t *testing.T) {
	f := newFixture(t)
	wallet := newTestAddress(0x23)
	f.addMember(wallet, bps(1))
	f.deposit(1)
	schedule := &PayoutSchedule{IntervalSeconds: 3_600, NextPayoutTimestamp: 0, Active: true}
	if err := f.engine.UpdatePayoutSchedule(f.owner, f.vault, schedule); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	receipt, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	if err != nil {
		t.Fatalf("scheduled payout: %v", err)
	}
	if receipt.Gross != 0 || receipt.Net != 0 || receipt.NextPayoutTimestamp != 3_600 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	v := f.mustVault()
	if v.TotalBalance != 1 || v.PayoutSchedule.NextPayoutTimestamp != 3_600 {
		t.Fatalf("unexpected vault %+v", v)
	}
	if _, err := f.engine.PayrollBatch(f.vault, ScheduledBatchID); err == nil {
		t.Fatalf("zero share must not record a payout")
	}

	receipt, err = f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet)
	if err != nil {
		t.Fatalf("second scheduled payout: %v", err)
	}
	if receipt.NextPayoutTimestamp != 7_200 {
		t.Fatalf("schedule stalled at %d", receipt.NextPayoutTimestamp)
	}
}

func TestScheduledBatchIDIsReserved(t *testing.T) {
	f, wallet := scheduledFixture(t, 0)
	_, err := f.engine.CreatePayrollBatch(f.owner, f.vault, ScheduledBatchID, 1)
	expectErr(t, err, ErrReservedBatchID)

	if _, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet); err != nil {
		t.Fatalf("scheduled payout: %v", err)
	}
	expectErr(t, f.engine.FinalizePayrollBatch(f.owner, f.vault, ScheduledBatchID), ErrReservedBatchID)
	if _, err := f.engine.ProcessScheduledPayout(f.owner, f.vault, wallet); err != nil {
		t.Fatalf("scheduled payout after finalize attempt: %v", err)
	}
	batch, err := f.engine.PayrollBatch(f.vault, ScheduledBatchID)
	if err != nil || batch.PayoutCount != 2 || batch.Finalized {
		t.Fatalf("unexpected scheduled batch %+v %v", batch, err)
	}
	if batch.LastPayee != wallet {
		t.Fatalf("last payee not recorded")
	}
}
