package config

import (
	"fmt"
	"strings"

	"payvault/crypto"
	"payvault/native/fees"
	"payvault/native/payroll"
)

// Validate checks the storage settings and the genesis block.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageLevelDB:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("config: DataDir is required for leveldb storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown Storage %q", c.Storage)
	}
	return c.Genesis.validate()
}

func (g Genesis) validate() error {
	if _, err := crypto.ParseWallet(g.Owner); err != nil {
		return fmt.Errorf("genesis: owner: %w", err)
	}
	if _, err := crypto.ParseWallet(g.Treasury); err != nil {
		return fmt.Errorf("genesis: treasury: %w", err)
	}
	if g.DefaultFeeBps > fees.MaxBps {
		return fmt.Errorf("genesis: DefaultFeeBps %d exceeds %d", g.DefaultFeeBps, fees.MaxBps)
	}
	for i, alloc := range g.Allocations {
		if _, err := crypto.ParseWallet(alloc.Address); err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		if _, err := payroll.ParseAsset(defaultAsset(alloc.Asset)); err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
	}
	return nil
}

func defaultAsset(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "native"
	}
	return raw
}
