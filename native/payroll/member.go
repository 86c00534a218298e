package payroll

import (
	"unicode/utf8"
)

func validateMemberParams(p MemberParams) error {
	if utf8.RuneCountInString(p.Role) > MaxRoleLength {
		return ErrRoleTooLong
	}
	if err := validateMetadataURI(p.MetadataURI); err != nil {
		return err
	}
	if p.AllocationBps != nil && *p.AllocationBps > MaxAllocationBps {
		return ErrInvalidAllocationBps
	}
	return nil
}

// activeAllocation sums allocationBps over active members, skipping the
// wallets in exclude.
func activeAllocation(tx Tx, vault [32]byte, exclude ...[20]byte) (uint64, error) {
	wallets, err := tx.MemberWallets(vault)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, wallet := range wallets {
		if containsWallet(exclude, wallet) {
			continue
		}
		member, ok, err := tx.Member(vault, wallet)
		if err != nil {
			return 0, err
		}
		if !ok || !member.IsActive {
			continue
		}
		total += member.bps()
	}
	return total, nil
}

func containsWallet(list [][20]byte, wallet [20]byte) bool {
	for _, w := range list {
		if w == wallet {
			return true
		}
	}
	return false
}

func newMember(vault [32]byte, p MemberParams) *Member {
	return &Member{
		Vault:                vault,
		Wallet:               p.Wallet,
		Role:                 p.Role,
		AllocationBps:        cloneUint16(p.AllocationBps),
		SolPaymentAllocation: cloneUint64(p.SolPaymentAllocation),
		SplTokenAllocation:   cloneUint64(p.SplTokenAllocation),
		IsActive:             true,
		MetadataURI:          cloneString(p.MetadataURI),
	}
}

// AddMember registers a new active member. The active allocation across the
// vault must stay within 10000 bps.
func (e *Engine) AddMember(caller [20]byte, vaultAddr [32]byte, params MemberParams) (*Member, error) {
	var out *Member
	err := e.inVault(vaultAddr, func(o *op) error {
		if _, err := ownedVault(o, vaultAddr, caller); err != nil {
			return err
		}
		if err := validateMemberParams(params); err != nil {
			return err
		}
		if _, exists, err := o.Member(vaultAddr, params.Wallet); err != nil {
			return err
		} else if exists {
			return ErrMemberAlreadyExists
		}
		current, err := activeAllocation(o, vaultAddr)
		if err != nil {
			return err
		}
		member := newMember(vaultAddr, params)
		if current+member.bps() > MaxAllocationBps {
			return ErrTotalAllocation
		}
		if err := o.PutMember(member); err != nil {
			return err
		}
		o.emit(newMemberEvent(EventTypeMemberAdded, member))
		out = member.Clone()
		return nil
	})
	return out, err
}

// BulkAddMembers validates every entry before creating any record: field
// limits, duplicates, and the allocation sum of the request plus the vault's
// active members. Either all members are created or none.
func (e *Engine) BulkAddMembers(caller [20]byte, vaultAddr [32]byte, entries []MemberParams) ([]*Member, error) {
	var out []*Member
	err := e.inVault(vaultAddr, func(o *op) error {
		if _, err := ownedVault(o, vaultAddr, caller); err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrEmptyBulk
		}
		if len(entries) > MaxBulkEntries {
			return ErrBulkTooLarge
		}
		var requested uint64
		seen := make([][20]byte, 0, len(entries))
		for i, entry := range entries {
			if err := validateMemberParams(entry); err != nil {
				return &BulkEntryError{Index: i, Err: err}
			}
			if containsWallet(seen, entry.Wallet) {
				return &BulkEntryError{Index: i, Err: ErrMemberAlreadyExists}
			}
			seen = append(seen, entry.Wallet)
			if entry.AllocationBps != nil {
				requested += uint64(*entry.AllocationBps)
			}
		}
		if requested > MaxAllocationBps {
			return ErrTotalAllocation
		}
		for i, entry := range entries {
			if _, exists, err := o.Member(vaultAddr, entry.Wallet); err != nil {
				return err
			} else if exists {
				return &BulkEntryError{Index: i, Err: ErrMemberAlreadyExists}
			}
		}
		current, err := activeAllocation(o, vaultAddr)
		if err != nil {
			return err
		}
		if current+requested > MaxAllocationBps {
			return ErrTotalAllocation
		}
		for _, entry := range entries {
			member := newMember(vaultAddr, entry)
			if err := o.PutMember(member); err != nil {
				return err
			}
			o.emit(newMemberEvent(EventTypeMemberAdded, member))
			out = append(out, member.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMemberAllocation replaces the member's basis-point share. Passing nil
// clears it.
func (e *Engine) UpdateMemberAllocation(caller [20]byte, vaultAddr [32]byte, wallet [20]byte, allocationBps *uint16) error {
	if allocationBps != nil && *allocationBps > MaxAllocationBps {
		return ErrInvalidAllocationBps
	}
	return e.editMember(caller, vaultAddr, wallet, func(o *op, m *Member) error {
		m.AllocationBps = cloneUint16(allocationBps)
		if !m.IsActive {
			return nil
		}
		others, err := activeAllocation(o, vaultAddr, wallet)
		if err != nil {
			return err
		}
		if others+m.bps() > MaxAllocationBps {
			return ErrTotalAllocation
		}
		return nil
	})
}

// UpdateMemberPaymentAllocations replaces the fixed native and token caps.
func (e *Engine) UpdateMemberPaymentAllocations(caller [20]byte, vaultAddr [32]byte, wallet [20]byte, sol, spl *uint64) error {
	return e.editMember(caller, vaultAddr, wallet, func(_ *op, m *Member) error {
		m.SolPaymentAllocation = cloneUint64(sol)
		m.SplTokenAllocation = cloneUint64(spl)
		return nil
	})
}

// ToggleMemberActiveStatus flips the member between active and inactive and
// returns the new status. Reactivation is refused when it would push the
// active allocation past 10000 bps.
func (e *Engine) ToggleMemberActiveStatus(caller [20]byte, vaultAddr [32]byte, wallet [20]byte) (bool, error) {
	var active bool
	err := e.editMember(caller, vaultAddr, wallet, func(o *op, m *Member) error {
		m.IsActive = !m.IsActive
		active = m.IsActive
		if !m.IsActive {
			return nil
		}
		others, err := activeAllocation(o, vaultAddr, wallet)
		if err != nil {
			return err
		}
		if others+m.bps() > MaxAllocationBps {
			return ErrTotalAllocation
		}
		return nil
	})
	return active, err
}

func (e *Engine) editMember(caller [20]byte, vaultAddr [32]byte, wallet [20]byte, mutate func(*op, *Member) error) error {
	return e.inVault(vaultAddr, func(o *op) error {
		if _, err := ownedVault(o, vaultAddr, caller); err != nil {
			return err
		}
		member, err := loadMember(o, vaultAddr, wallet)
		if err != nil {
			return err
		}
		if err := mutate(o, member); err != nil {
			return err
		}
		if err := o.PutMember(member); err != nil {
			return err
		}
		o.emit(newMemberEvent(EventTypeMemberUpdated, member))
		return nil
	})
}

// RemoveMember destroys the member record. The wallet can be added again
// immediately afterwards.
func (e *Engine) RemoveMember(caller [20]byte, vaultAddr [32]byte, wallet [20]byte) error {
	return e.inVault(vaultAddr, func(o *op) error {
		if _, err := ownedVault(o, vaultAddr, caller); err != nil {
			return err
		}
		member, err := loadMember(o, vaultAddr, wallet)
		if err != nil {
			return err
		}
		if err := o.DeleteMember(vaultAddr, wallet); err != nil {
			return err
		}
		o.emit(newMemberEvent(EventTypeMemberRemoved, member))
		return nil
	})
}
