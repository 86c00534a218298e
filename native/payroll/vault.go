package payroll

import (
	"fmt"
	"unicode/utf8"
)

func validateMetadataURI(uri *string) error {
	if uri != nil && utf8.RuneCountInString(*uri) > MaxMetadataURILength {
		return ErrMetadataURITooLong
	}
	return nil
}

func validateSchedule(s *PayoutSchedule) error {
	if s != nil && s.IntervalSeconds <= 0 {
		return ErrInvalidSchedule
	}
	return nil
}

// normalizeWhitelist validates every asset and drops duplicates while
// keeping first-seen order.
func normalizeWhitelist(assets []AssetType) ([]AssetType, error) {
	out := make([]AssetType, 0, len(assets))
	seen := make(map[AssetType]struct{}, len(assets))
	for _, asset := range assets {
		if !asset.Valid() {
			return nil, ErrInvalidAsset
		}
		if _, dup := seen[asset]; dup {
			continue
		}
		seen[asset] = struct{}{}
		out = append(out, asset)
	}
	if len(out) > MaxWhitelistedAssets {
		return nil, ErrTooManyAssets
	}
	return out, nil
}

// CreateVault registers a new vault owned by owner, assigning it the next
// vault id.
func (e *Engine) CreateVault(owner [20]byte, params CreateVaultParams) (*Vault, error) {
	if utf8.RuneCountInString(params.Name) > MaxNameLength {
		return nil, ErrNameTooLong
	}
	if err := validateMetadataURI(params.MetadataURI); err != nil {
		return nil, err
	}
	if !params.Kind.Valid() {
		return nil, ErrInvalidVaultKind
	}
	if !params.AllocationMode.Valid() {
		return nil, ErrInvalidAllocationMode
	}
	if err := validateSchedule(params.PayoutSchedule); err != nil {
		return nil, err
	}
	whitelist, err := normalizeWhitelist(params.WhitelistedAssets)
	if err != nil {
		return nil, err
	}

	e.configMu.Lock()
	defer e.configMu.Unlock()
	var out *Vault
	err = e.run(func(o *op) error {
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		id := cfg.NextVaultID
		addr := VaultAddress(owner, id)
		if _, exists, err := o.Vault(addr); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("payroll: vault %s already exists", shortHex(addr[:]))
		}
		vault := &Vault{
			Address:           addr,
			ID:                id,
			Owner:             owner,
			Name:              params.Name,
			Kind:              params.Kind,
			WhitelistedAssets: whitelist,
			PayoutSchedule:    params.PayoutSchedule.Clone(),
			AllocationMode:    params.AllocationMode,
			MetadataURI:       cloneString(params.MetadataURI),
			CodeClaim:         cloneString(params.CodeClaim),
			CreatedAt:         o.now,
		}
		cfg.NextVaultID = id + 1
		if err := o.PutGlobalConfig(cfg); err != nil {
			return err
		}
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newVaultEvent(EventTypeVaultCreated, vault))
		out = vault.Clone()
		return nil
	})
	return out, err
}

// AddWhitelistedAsset accepts a new asset for the vault. Adding an asset that
// is already whitelisted is a no-op.
func (e *Engine) AddWhitelistedAsset(caller [20]byte, vaultAddr [32]byte, asset AssetType) error {
	if !asset.Valid() {
		return ErrInvalidAsset
	}
	return e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		if vault.IsWhitelisted(asset) {
			return nil
		}
		if len(vault.WhitelistedAssets) >= MaxWhitelistedAssets {
			return ErrTooManyAssets
		}
		vault.WhitelistedAssets = append(vault.WhitelistedAssets, asset)
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newAssetEvent(EventTypeAssetWhitelisted, vault, asset))
		return nil
	})
}

// RemoveWhitelistedAsset stops accepting asset. Removing an asset that is not
// whitelisted is a no-op.
func (e *Engine) RemoveWhitelistedAsset(caller [20]byte, vaultAddr [32]byte, asset AssetType) error {
	return e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		kept := vault.WhitelistedAssets[:0]
		removed := false
		for _, existing := range vault.WhitelistedAssets {
			if existing == asset {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		if !removed {
			return nil
		}
		vault.WhitelistedAssets = kept
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newAssetEvent(EventTypeAssetRemoved, vault, asset))
		return nil
	})
}

// UpdatePayoutSchedule replaces the vault schedule wholesale. A nil schedule
// clears it.
func (e *Engine) UpdatePayoutSchedule(caller [20]byte, vaultAddr [32]byte, schedule *PayoutSchedule) error {
	if err := validateSchedule(schedule); err != nil {
		return err
	}
	return e.inVault(vaultAddr, func(o *op) error {
		vault, err := ownedVault(o, vaultAddr, caller)
		if err != nil {
			return err
		}
		vault.PayoutSchedule = schedule.Clone()
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newVaultEvent(EventTypeScheduleUpdated, vault))
		return nil
	})
}

// DepositSol moves native funds from the depositor into the vault's custody
// account and credits the tracked balance. Anyone may deposit.
func (e *Engine) DepositSol(depositor [20]byte, vaultAddr [32]byte, amount uint64) error {
	return e.deposit(depositor, vaultAddr, NativeAsset(), amount)
}

// DepositSplToken moves token funds into the vault's custody account. Token
// balances are tracked by the custody account only.
func (e *Engine) DepositSplToken(depositor [20]byte, vaultAddr [32]byte, mint [20]byte, amount uint64) error {
	return e.deposit(depositor, vaultAddr, TokenAsset(mint), amount)
}

func (e *Engine) deposit(depositor [20]byte, vaultAddr [32]byte, asset AssetType, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if !asset.Valid() {
		return ErrInvalidAsset
	}
	return e.inVault(vaultAddr, func(o *op) error {
		vault, err := loadVault(o, vaultAddr)
		if err != nil {
			return err
		}
		if !vault.IsWhitelisted(asset) {
			return ErrAssetNotWhitelisted
		}
		if asset.Kind == AssetNative {
			if vault.TotalBalance > ^uint64(0)-amount {
				return fmt.Errorf("%w: vault balance overflow", ErrInvalidAmount)
			}
			vault.TotalBalance += amount
		}
		if err := o.Transfer(depositor[:], vaultAddr[:], asset, amount); err != nil {
			return err
		}
		vault.LastDepositTimestamp = o.now
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newDepositEvent(vault, depositor, asset, amount))
		return nil
	})
}
