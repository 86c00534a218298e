package payroll

import (
	"payvault/native/fees"
)

// CreatePayrollBatch opens a batch under a caller-supplied id. totalAmount is
// an advisory budget and reserves nothing. ScheduledBatchID cannot be used.
func (e *Engine) CreatePayrollBatch(caller [20]byte, vaultAddr [32]byte, batchID, totalAmount uint64) (*PayrollBatch, error) {
	if batchID == ScheduledBatchID {
		return nil, ErrReservedBatchID
	}
	var out *PayrollBatch
	err := e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		if _, exists, err := o.Batch(vaultAddr, batchID); err != nil {
			return err
		} else if exists {
			return ErrBatchAlreadyExists
		}
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		serviceFee, _, err := fees.Compute(totalAmount, fees.EffectiveBps(cfg.DefaultFeeBps, vault.FeeBpsOverride))
		if err != nil {
			return ErrInvalidFeeBps
		}
		batch := &PayrollBatch{
			Vault:       vaultAddr,
			BatchID:     batchID,
			TotalAmount: totalAmount,
			ServiceFee:  serviceFee,
			CreatedAt:   o.now,
		}
		if err := o.PutBatch(batch); err != nil {
			return err
		}
		o.emit(newBatchEvent(EventTypeBatchCreated, batch))
		out = batch.Clone()
		return nil
	})
	return out, err
}

// FinalizePayrollBatch closes the batch for further payouts. Finalizing an
// already finalized batch succeeds without change. The scheduled batch stays
// open for the life of the vault.
func (e *Engine) FinalizePayrollBatch(caller [20]byte, vaultAddr [32]byte, batchID uint64) error {
	if batchID == ScheduledBatchID {
		return ErrReservedBatchID
	}
	return e.inVault(vaultAddr, func(o *op) error {
		if _, err := ownedVault(o, vaultAddr, caller); err != nil {
			return err
		}
		batch, err := loadBatch(o, vaultAddr, batchID)
		if err != nil {
			return err
		}
		if batch.Finalized {
			return nil
		}
		batch.Finalized = true
		if err := o.PutBatch(batch); err != nil {
			return err
		}
		o.emit(newBatchEvent(EventTypeBatchFinalized, batch))
		return nil
	})
}

// ProcessSolPayout pays amount of the native asset to an active member
// through an open batch. The vault is debited the gross amount; the member
// receives the net and the treasury the fee.
func (e *Engine) ProcessSolPayout(caller [20]byte, vaultAddr [32]byte, batchID uint64, wallet [20]byte, amount uint64) (*PayoutReceipt, error) {
	return e.processPayout(caller, vaultAddr, batchID, PayoutEntry{Wallet: wallet, Asset: NativeAsset(), Amount: amount})
}

// ProcessSplPayout is the token equivalent of ProcessSolPayout. Sufficiency
// is checked against the vault's custody balance of the mint.
func (e *Engine) ProcessSplPayout(caller [20]byte, vaultAddr [32]byte, batchID uint64, wallet, mint [20]byte, amount uint64) (*PayoutReceipt, error) {
	return e.processPayout(caller, vaultAddr, batchID, PayoutEntry{Wallet: wallet, Asset: TokenAsset(mint), Amount: amount})
}

func (e *Engine) processPayout(caller [20]byte, vaultAddr [32]byte, batchID uint64, entry PayoutEntry) (*PayoutReceipt, error) {
	var receipt *PayoutReceipt
	err := e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		batch, err := loadBatch(o, vaultAddr, batchID)
		if err != nil {
			return err
		}
		receipt, err = settle(o, cfg, vault, batch, entry)
		if err != nil {
			return err
		}
		if err := o.PutBatch(batch); err != nil {
			return err
		}
		return o.PutVault(vault)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// BulkProcessPayouts applies every entry through one batch. The call is all
// or nothing: the first failing entry aborts the whole call and is reported
// as a *BulkEntryError carrying its index.
func (e *Engine) BulkProcessPayouts(caller [20]byte, vaultAddr [32]byte, batchID uint64, entries []PayoutEntry) ([]*PayoutReceipt, error) {
	var receipts []*PayoutReceipt
	err := e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrEmptyBulk
		}
		if len(entries) > MaxBulkEntries {
			return ErrBulkTooLarge
		}
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		batch, err := loadBatch(o, vaultAddr, batchID)
		if err != nil {
			return err
		}
		for i, entry := range entries {
			receipt, err := settle(o, cfg, vault, batch, entry)
			if err != nil {
				return &BulkEntryError{Index: i, Err: err}
			}
			receipts = append(receipts, receipt)
		}
		if err := o.PutBatch(batch); err != nil {
			return err
		}
		return o.PutVault(vault)
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// settle checks the payout preconditions in order (open batch, active member,
// sufficient balance) and moves the funds. vault and batch are updated in
// place; persisting them is left to the caller.
func settle(o *op, cfg *GlobalConfig, vault *Vault, batch *PayrollBatch, entry PayoutEntry) (*PayoutReceipt, error) {
	if batch.Finalized {
		return nil, ErrBatchAlreadyFinalized
	}
	member, err := loadMember(o, vault.Address, entry.Wallet)
	if err != nil {
		return nil, err
	}
	if !member.IsActive {
		return nil, ErrMemberNotActive
	}
	if entry.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	switch entry.Asset.Kind {
	case AssetNative:
		if vault.TotalBalance < entry.Amount {
			return nil, ErrInsufficientVaultBalance
		}
	case AssetToken:
		held, err := o.Balance(vault.Address[:], entry.Asset)
		if err != nil {
			return nil, err
		}
		if held < entry.Amount {
			return nil, ErrInsufficientVaultBalance
		}
	default:
		return nil, ErrInvalidAsset
	}

	split, err := fees.Apply(fees.ApplyInput{
		Gross:       entry.Amount,
		DefaultBps:  cfg.DefaultFeeBps,
		OverrideBps: vault.FeeBpsOverride,
	})
	if err != nil {
		return nil, ErrInvalidFeeBps
	}
	if err := o.Transfer(vault.Address[:], entry.Wallet[:], entry.Asset, split.Net); err != nil {
		return nil, err
	}
	if split.Fee > 0 {
		if err := o.Transfer(vault.Address[:], cfg.Treasury[:], entry.Asset, split.Fee); err != nil {
			return nil, err
		}
	}
	if entry.Asset.Kind == AssetNative {
		vault.TotalBalance -= entry.Amount
	}
	batch.PayoutCount++
	batch.LastPayee = entry.Wallet

	receipt := &PayoutReceipt{
		Vault:    vault.Address,
		BatchID:  batch.BatchID,
		Member:   entry.Wallet,
		Treasury: cfg.Treasury,
		Asset:    entry.Asset,
		Gross:    split.Gross,
		Fee:      split.Fee,
		Net:      split.Net,
		FeeBps:   split.FeeBps,
	}
	o.emit(newPayoutEvent(receipt))
	return receipt, nil
}
