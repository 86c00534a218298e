package payroll

import (
	"errors"
	"strings"
	"testing"
)

func activeSum(t *testing.T, f *fixture) uint64 {
	t.Helper()
	members, err := f.engine.Members(f.vault)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	var total uint64
	for _, m := range members {
		if m.IsActive {
			total += m.bps()
		}
	}
	return total
}

func TestAddMemberRejectsInvalidAllocation(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.AddMember(f.owner, f.vault, MemberParams{Wallet: newTestAddress(0x10), AllocationBps: bps(10_001)})
	expectErr(t, err, ErrInvalidAllocationBps)
	members, _ := f.engine.Members(f.vault)
	if len(members) != 0 {
		t.Fatalf("expected no members, got %d", len(members))
	}
}

func TestAddMemberValidation(t *testing.T) {
	f := newFixture(t)
	wallet := newTestAddress(0x10)
	_, err := f.engine.AddMember(f.owner, f.vault, MemberParams{Wallet: wallet, Role: strings.Repeat("r", 17)})
	expectErr(t, err, ErrRoleTooLong)
	_, err = f.engine.AddMember(f.owner, f.vault, MemberParams{Wallet: wallet, MetadataURI: strPtr(strings.Repeat("u", 201))})
	expectErr(t, err, ErrMetadataURITooLong)
	_, err = f.engine.AddMember(newTestAddress(0x99), f.vault, MemberParams{Wallet: wallet})
	expectErr(t, err, ErrUnauthorized)

	f.addMember(wallet, bps(100))
	_, err = f.engine.AddMember(f.owner, f.vault, MemberParams{Wallet: wallet})
	expectErr(t, err, ErrMemberAlreadyExists)
}

func TestAddMemberEnforcesActiveSum(t *testing.T) {
	f := newFixture(t)
	f.addMember(newTestAddress(0x10), bps(6_000))
	f.addMember(newTestAddress(0x11), bps(4_000))
	_, err := f.engine.AddMember(f.owner, f.vault, MemberParams{Wallet: newTestAddress(0x12), AllocationBps: bps(1)})
	expectErr(t, err, ErrTotalAllocation)
	if CodeOf(err) != "TotalAllocationExceeded" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	// Members without a share do not count.
	f.addMember(newTestAddress(0x13), nil)
	if got := activeSum(t, f); got != 10_000 {
		t.Fatalf("expected sum 10000, got %d", got)
	}
}

func TestDeactivatedMembersFreeAllocation(t *testing.T) {
	f := newFixture(t)
	first := newTestAddress(0x10)
	f.addMember(first, bps(8_000))
	active, err := f.engine.ToggleMemberActiveStatus(f.owner, f.vault, first)
	if err != nil || active {
		t.Fatalf("expected deactivation, got active=%v err=%v", active, err)
	}
	f.addMember(newTestAddress(0x11), bps(5_000))

	_, err = f.engine.ToggleMemberActiveStatus(f.owner, f.vault, first)
	expectErr(t, err, ErrTotalAllocation)
	m, _ := f.engine.Member(f.vault, first)
	if m.IsActive {
		t.Fatalf("rejected reactivation must leave the member inactive")
	}
	if got := activeSum(t, f); got != 5_000 {
		t.Fatalf("expected active sum 5000, got %d", got)
	}
}

func TestUpdateMemberAllocation(t *testing.T) {
	f := newFixture(t)
	a, b := newTestAddress(0x10), newTestAddress(0x11)
	f.addMember(a, bps(3_000))
	f.addMember(b, bps(3_000))
	if err := f.engine.UpdateMemberAllocation(f.owner, f.vault, a, bps(7_000)); err != nil {
		t.Fatalf("update allocation: %v", err)
	}
	expectErr(t, f.engine.UpdateMemberAllocation(f.owner, f.vault, b, bps(3_001)), ErrTotalAllocation)
	expectErr(t, f.engine.UpdateMemberAllocation(f.owner, f.vault, b, bps(10_001)), ErrInvalidAllocationBps)
	expectErr(t, f.engine.UpdateMemberAllocation(f.owner, f.vault, newTestAddress(0x12), bps(1)), ErrAccountNotFound)
	if err := f.engine.UpdateMemberAllocation(f.owner, f.vault, b, nil); err != nil {
		t.Fatalf("clear allocation: %v", err)
	}
	if got := activeSum(t, f); got != 7_000 {
		t.Fatalf("expected 7000, got %d", got)
	}
}

func TestUpdateMemberPaymentAllocations(t *testing.T) {
	f := newFixture(t)
	wallet := newTestAddress(0x10)
	f.addMember(wallet, nil)
	if err := f.engine.UpdateMemberPaymentAllocations(f.owner, f.vault, wallet, amt(1_000), amt(2_000)); err != nil {
		t.Fatalf("update payments: %v", err)
	}
	m, err := f.engine.Member(f.vault, wallet)
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if *m.SolPaymentAllocation != 1_000 || *m.SplTokenAllocation != 2_000 {
		t.Fatalf("unexpected allocations %+v", m)
	}
	expectErr(t, f.engine.UpdateMemberPaymentAllocations(newTestAddress(0x99), f.vault, wallet, nil, nil), ErrUnauthorized)
}

func TestRemoveThenReAddMember(t *testing.T) {
	f := newFixture(t)
	wallet := newTestAddress(0x10)
	f.addMember(wallet, bps(2_000))
	if _, err := f.engine.ToggleMemberActiveStatus(f.owner, f.vault, wallet); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := f.engine.RemoveMember(f.owner, f.vault, wallet); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := f.engine.Member(f.vault, wallet)
	expectErr(t, err, ErrAccountNotFound)
	expectErr(t, f.engine.RemoveMember(f.owner, f.vault, wallet), ErrAccountNotFound)

	f.addMember(wallet, bps(1_000))
	m, err := f.engine.Member(f.vault, wallet)
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if !m.IsActive || m.bps() != 1_000 {
		t.Fatalf("expected fresh active record, got %+v", m)
	}
}

func TestBulkAddMembersAtomic(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.BulkAddMembers(f.owner, f.vault, []MemberParams{
		{Wallet: newTestAddress(0x10), AllocationBps: bps(6_000)},
		{Wallet: newTestAddress(0x11), AllocationBps: bps(5_000)},
	})
	expectErr(t, err, ErrTotalAllocation)
	members, _ := f.engine.Members(f.vault)
	if len(members) != 0 {
		t.Fatalf("expected zero members, got %d", len(members))
	}
}

func TestBulkAddMembersCountsExistingActive(t *testing.T) {
	f := newFixture(t)
	f.addMember(newTestAddress(0x10), bps(9_000))
	_, err := f.engine.BulkAddMembers(f.owner, f.vault, []MemberParams{
		{Wallet: newTestAddress(0x11), AllocationBps: bps(600)},
		{Wallet: newTestAddress(0x12), AllocationBps: bps(600)},
	})
	expectErr(t, err, ErrTotalAllocation)
	if got := activeSum(t, f); got != 9_000 {
		t.Fatalf("expected unchanged sum, got %d", got)
	}
}

func TestBulkAddMembersEntryErrors(t *testing.T) {
	f := newFixture(t)
	f.addMember(newTestAddress(0x20), nil)
	cases := []struct {
		name    string
		entries []MemberParams
		index   int
		want    error
	}{
		{"role", []MemberParams{{Wallet: newTestAddress(0x10)}, {Wallet: newTestAddress(0x11), Role: strings.Repeat("x", 17)}}, 1, ErrRoleTooLong},
		{"duplicate", []MemberParams{{Wallet: newTestAddress(0x10)}, {Wallet: newTestAddress(0x10)}}, 1, ErrMemberAlreadyExists},
		{"existing", []MemberParams{{Wallet: newTestAddress(0x20)}}, 0, ErrMemberAlreadyExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.BulkAddMembers(f.owner, f.vault, tc.entries)
			expectErr(t, err, tc.want)
			var entryErr *BulkEntryError
			if !errors.As(err, &entryErr) || entryErr.Index != tc.index {
				t.Fatalf("expected entry error at %d, got %v", tc.index, err)
			}
		})
	}
	_, err := f.engine.BulkAddMembers(f.owner, f.vault, nil)
	expectErr(t, err, ErrEmptyBulk)
	_, err = f.engine.BulkAddMembers(f.owner, f.vault, make([]MemberParams, MaxBulkEntries+1))
	expectErr(t, err, ErrBulkTooLarge)
	members, _ := f.engine.Members(f.vault)
	if len(members) != 1 {
		t.Fatalf("expected only the seeded member, got %d", len(members))
	}
}

func TestBulkAddMembersCreatesAll(t *testing.T) {
	f := newFixture(t)
	entries := []MemberParams{
		{Wallet: newTestAddress(0x10), Role: "dev", AllocationBps: bps(5_000)},
		{Wallet: newTestAddress(0x11), Role: "ops", AllocationBps: bps(5_000)},
		{Wallet: newTestAddress(0x12), Role: "contractor", SolPaymentAllocation: amt(42)},
	}
	created, err := f.engine.BulkAddMembers(f.owner, f.vault, entries)
	if err != nil {
		t.Fatalf("bulk add: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 members, got %d", len(created))
	}
	members, _ := f.engine.Members(f.vault)
	for i, m := range members {
		if m.Wallet != entries[i].Wallet || !m.IsActive {
			t.Fatalf("member %d out of order or inactive: %+v", i, m)
		}
	}
	if got := len(f.events.OfType(EventTypeMemberAdded)); got != 3 {
		t.Fatalf("expected 3 member events, got %d", got)
	}
}
