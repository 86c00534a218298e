package payroll

import "payvault/native/fees"

// InitializeGlobalConfig creates the protocol singleton. It can only succeed
// once; the first caller becomes the config owner.
func (e *Engine) InitializeGlobalConfig(owner, treasury [20]byte, defaultFeeBps uint16) (*GlobalConfig, error) {
	if defaultFeeBps > fees.MaxBps {
		return nil, ErrInvalidFeeBps
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	var out *GlobalConfig
	err := e.run(func(o *op) error {
		if _, ok, err := o.GlobalConfig(); err != nil {
			return err
		} else if ok {
			return ErrConfigAlreadyExists
		}
		cfg := &GlobalConfig{
			Owner:         owner,
			Treasury:      treasury,
			DefaultFeeBps: defaultFeeBps,
			NextVaultID:   1,
		}
		if err := o.PutGlobalConfig(cfg); err != nil {
			return err
		}
		o.emit(newConfigEvent(EventTypeConfigInitialized, cfg))
		out = cfg.Clone()
		return nil
	})
	return out, err
}

// UpdateTreasury changes the fee destination.
func (e *Engine) UpdateTreasury(caller, treasury [20]byte) error {
	return e.updateConfig(caller, func(cfg *GlobalConfig) error {
		cfg.Treasury = treasury
		return nil
	})
}

// UpdateDefaultFee changes the protocol fee applied to vaults without an
// override.
func (e *Engine) UpdateDefaultFee(caller [20]byte, feeBps uint16) error {
	if feeBps > fees.MaxBps {
		return ErrInvalidFeeBps
	}
	return e.updateConfig(caller, func(cfg *GlobalConfig) error {
		cfg.DefaultFeeBps = feeBps
		return nil
	})
}

func (e *Engine) updateConfig(caller [20]byte, mutate func(*GlobalConfig) error) error {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.run(func(o *op) error {
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		if cfg.Owner != caller {
			return ErrUnauthorized
		}
		if err := mutate(cfg); err != nil {
			return err
		}
		if err := o.PutGlobalConfig(cfg); err != nil {
			return err
		}
		o.emit(newConfigEvent(EventTypeConfigUpdated, cfg))
		return nil
	})
}

// SetVaultFeeOverride pins a vault-specific fee. Only the config owner may
// call it; a nil override falls back to the default fee.
func (e *Engine) SetVaultFeeOverride(caller [20]byte, vaultAddr [32]byte, feeBps *uint16) error {
	if feeBps != nil && *feeBps > fees.MaxBps {
		return ErrInvalidFeeBps
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.inVault(vaultAddr, func(o *op) error {
		cfg, err := loadConfig(o)
		if err != nil {
			return err
		}
		if cfg.Owner != caller {
			return ErrUnauthorized
		}
		vault, err := loadVault(o, vaultAddr)
		if err != nil {
			return err
		}
		vault.FeeBpsOverride = cloneUint16(feeBps)
		if err := o.PutVault(vault); err != nil {
			return err
		}
		o.emit(newVaultEvent(EventTypeVaultFeeOverride, vault))
		return nil
	})
}
