package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"payvault/native/payroll"
	"payvault/storage"
)

// transaction implements payroll.Tx. Record writes are buffered as encoded
// bytes (nil marks a deletion); balance changes are buffered as signed
// deltas and only resolved at commit.
type transaction struct {
	m      *Manager
	writes map[string][]byte
	deltas map[string]*big.Int
	closed bool
}

func (tx *transaction) get(key []byte) ([]byte, bool, error) {
	if data, ok := tx.writes[string(key)]; ok {
		return data, data != nil, nil
	}
	data, err := tx.m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (tx *transaction) load(key []byte, out interface{}) (bool, error) {
	data, ok, err := tx.get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (tx *transaction) put(key []byte, value interface{}) error {
	if tx.closed {
		return errTxClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	tx.writes[string(key)] = encoded
	return nil
}

func (tx *transaction) delete(key []byte) {
	tx.writes[string(key)] = nil
}

func (tx *transaction) GlobalConfig() (*payroll.GlobalConfig, bool, error) {
	var stored storedConfig
	ok, err := tx.load(configKey(), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load config: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toConfig(), true, nil
}

func (tx *transaction) PutGlobalConfig(cfg *payroll.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil config")
	}
	return tx.put(configKey(), newStoredConfig(cfg))
}

func (tx *transaction) Vault(addr [32]byte) (*payroll.Vault, bool, error) {
	var stored storedVault
	ok, err := tx.load(vaultKey(addr), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load vault: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	vault, err := stored.toVault()
	if err != nil {
		return nil, false, err
	}
	return vault, true, nil
}

func (tx *transaction) PutVault(v *payroll.Vault) error {
	if v == nil {
		return fmt.Errorf("state: nil vault")
	}
	return tx.put(vaultKey(v.Address), newStoredVault(v))
}

func (tx *transaction) Member(vault [32]byte, wallet [20]byte) (*payroll.Member, bool, error) {
	var stored storedMember
	ok, err := tx.load(memberKey(vault, wallet), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load member: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toMember(), true, nil
}

func (tx *transaction) PutMember(m *payroll.Member) error {
	if m == nil {
		return fmt.Errorf("state: nil member")
	}
	_, exists, err := tx.get(memberKey(m.Vault, m.Wallet))
	if err != nil {
		return err
	}
	if !exists {
		wallets, err := tx.MemberWallets(m.Vault)
		if err != nil {
			return err
		}
		if err := tx.put(memberIndexKey(m.Vault), append(wallets, m.Wallet)); err != nil {
			return err
		}
	}
	return tx.put(memberKey(m.Vault, m.Wallet), newStoredMember(m))
}

func (tx *transaction) DeleteMember(vault [32]byte, wallet [20]byte) error {
	wallets, err := tx.MemberWallets(vault)
	if err != nil {
		return err
	}
	kept := wallets[:0]
	for _, w := range wallets {
		if w != wallet {
			kept = append(kept, w)
		}
	}
	if err := tx.put(memberIndexKey(vault), kept); err != nil {
		return err
	}
	tx.delete(memberKey(vault, wallet))
	return nil
}

func (tx *transaction) MemberWallets(vault [32]byte) ([][20]byte, error) {
	var wallets [][20]byte
	if _, err := tx.load(memberIndexKey(vault), &wallets); err != nil {
		return nil, fmt.Errorf("state: load member index: %w", err)
	}
	return wallets, nil
}

func (tx *transaction) Batch(vault [32]byte, batchID uint64) (*payroll.PayrollBatch, bool, error) {
	var stored storedBatch
	ok, err := tx.load(batchKey(vault, batchID), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load batch: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return stored.toBatch(), true, nil
}

func (tx *transaction) PutBatch(b *payroll.PayrollBatch) error {
	if b == nil {
		return fmt.Errorf("state: nil batch")
	}
	return tx.put(batchKey(b.Vault, b.BatchID), newStoredBatch(b))
}

func (tx *transaction) Balance(account []byte, asset payroll.AssetType) (uint64, error) {
	key := balanceKey(account, asset)
	current, err := tx.m.loadBigInt(key)
	if err != nil {
		return 0, err
	}
	if delta, ok := tx.deltas[string(key)]; ok {
		current.Add(current, delta)
	}
	if current.Sign() < 0 {
		return 0, nil
	}
	if !current.IsUint64() {
		return 0, fmt.Errorf("state: balance exceeds uint64")
	}
	return current.Uint64(), nil
}

func (tx *transaction) Transfer(from, to []byte, asset payroll.AssetType, amount uint64) error {
	if tx.closed {
		return errTxClosed
	}
	if amount == 0 {
		return nil
	}
	held, err := tx.Balance(from, asset)
	if err != nil {
		return err
	}
	if held < amount {
		return payroll.ErrInsufficientFunds
	}
	value := new(big.Int).SetUint64(amount)
	tx.addDelta(balanceKey(from, asset), new(big.Int).Neg(value))
	tx.addDelta(balanceKey(to, asset), value)
	return nil
}

func (tx *transaction) addDelta(key []byte, amount *big.Int) {
	delta, ok := tx.deltas[string(key)]
	if !ok {
		delta = new(big.Int)
		tx.deltas[string(key)] = delta
	}
	delta.Add(delta, amount)
}

// Commit resolves the balance deltas against the stored balances and writes
// everything in one batch. A delta that would drive a balance negative fails
// the commit without writing anything.
func (tx *transaction) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true

	tx.m.commitMu.Lock()
	defer tx.m.commitMu.Unlock()

	batch := tx.m.db.NewBatch()
	for key, delta := range tx.deltas {
		if delta.Sign() == 0 {
			continue
		}
		current, err := tx.m.loadBigInt([]byte(key))
		if err != nil {
			return err
		}
		current.Add(current, delta)
		if current.Sign() < 0 {
			return payroll.ErrInsufficientFunds
		}
		if !current.IsUint64() {
			return fmt.Errorf("state: balance overflow")
		}
		encoded, err := rlp.EncodeToBytes(current)
		if err != nil {
			return err
		}
		batch.Put([]byte(key), encoded)
	}
	for key, value := range tx.writes {
		if value == nil {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value)
	}
	if batch.Len() == 0 {
		return nil
	}
	return batch.Write()
}

func (tx *transaction) Rollback() {
	tx.closed = true
	tx.writes = nil
	tx.deltas = nil
}
