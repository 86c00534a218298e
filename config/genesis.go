package config

import (
	"errors"
	"fmt"

	"payvault/crypto"
	"payvault/native/payroll"
)

// Funder credits genesis balances. core/state.Manager implements it.
type Funder interface {
	Credit(account []byte, asset payroll.AssetType, amount uint64) error
}

// ApplyGenesis initialises the global config and credits the genesis
// allocations. A ledger that already carries a global config is left
// untouched, so applying the same genesis on every start is safe.
func ApplyGenesis(engine *payroll.Engine, funder Funder, g Genesis) (bool, error) {
	if _, err := engine.GlobalConfig(); err == nil {
		return false, nil
	} else if !errors.Is(err, payroll.ErrConfigNotInitialized) {
		return false, err
	}
	if err := g.validate(); err != nil {
		return false, err
	}
	owner, _ := crypto.ParseWallet(g.Owner)
	treasury, _ := crypto.ParseWallet(g.Treasury)
	for i, alloc := range g.Allocations {
		wallet, _ := crypto.ParseWallet(alloc.Address)
		asset, _ := payroll.ParseAsset(defaultAsset(alloc.Asset))
		if err := funder.Credit(wallet[:], asset, alloc.Amount); err != nil {
			return false, fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
	}
	if _, err := engine.InitializeGlobalConfig(owner, treasury, g.DefaultFeeBps); err != nil {
		return false, fmt.Errorf("genesis: %w", err)
	}
	return true, nil
}
