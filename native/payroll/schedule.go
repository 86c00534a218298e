package payroll

import (
	"fmt"

	"payvault/native/fees"
)

// ScheduledBatchID is the batch that records payouts triggered by the vault's
// schedule. It is opened on first use.
const ScheduledBatchID = ^uint64(0)

// ProcessScheduledPayout pays the member's configured allocation when the
// vault schedule is active and due. The next payout time advances by one
// interval from its previous value, never from now, and at most once per
// call. A share that rounds down to zero pays nothing and still advances the
// schedule.
func (e *Engine) ProcessScheduledPayout(caller [20]byte, vaultAddr [32]byte, wallet [20]byte) (*PayoutReceipt, error) {
	var receipt *PayoutReceipt
	err := e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		schedule := vault.PayoutSchedule
		if schedule == nil || !schedule.Active {
			return ErrPayoutScheduleInactive
		}
		if o.now < schedule.NextPayoutTimestamp {
			return ErrPayoutTimeNotReached
		}
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		member, err := loadMember(o, vaultAddr, wallet)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return ErrMemberNotActive
		}
		amount, err := scheduledAmount(vault, member)
		if err != nil {
			return err
		}
		next := schedule.NextPayoutTimestamp + schedule.IntervalSeconds
		if next < schedule.NextPayoutTimestamp {
			return fmt.Errorf("%w: next payout timestamp overflow", ErrInvalidSchedule)
		}
		if amount == 0 {
			// A share that floors to zero moves nothing but still spends the slot.
			receipt = &PayoutReceipt{
				Vault:    vaultAddr,
				BatchID:  ScheduledBatchID,
				Member:   wallet,
				Treasury: cfg.Treasury,
				Asset:    NativeAsset(),
				FeeBps:   fees.EffectiveBps(cfg.DefaultFeeBps, vault.FeeBpsOverride),
			}
		} else {
			batch, ok, err := o.Batch(vaultAddr, ScheduledBatchID)
			if err != nil {
				return err
			}
			if !ok {
				batch = &PayrollBatch{Vault: vaultAddr, BatchID: ScheduledBatchID, CreatedAt: o.now}
			}
			receipt, err = settle(o, cfg, vault, batch, PayoutEntry{Wallet: wallet, Asset: NativeAsset(), Amount: amount})
			if err != nil {
				return err
			}
			if err := o.PutBatch(batch); err != nil {
				return err
			}
		}
		schedule.NextPayoutTimestamp = next
		receipt.NextPayoutTimestamp = next
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newVaultEvent(EventTypeScheduleAdvanced, vault))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// scheduledAmount resolves what a scheduled payout pays the member: a share of
// the vault balance when allocationBps is set, else the fixed native cap.
func scheduledAmount(vault *Vault, member *Member) (uint64, error) {
	if member.AllocationBps != nil {
		share, _, err := fees.Compute(vault.TotalBalance, *member.AllocationBps)
		if err != nil {
			return 0, ErrInvalidAllocationBps
		}
		return share, nil
	}
	if member.SolPaymentAllocation != nil {
		return *member.SolPaymentAllocation, nil
	}
	return 0, ErrInvalidAllocationBps
}
