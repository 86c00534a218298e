package payroll

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"
)

type memberKey struct {
	vault  [32]byte
	wallet [20]byte
}

type batchKey struct {
	vault [32]byte
	id    uint64
}

type balanceKey struct {
	account string
	asset   string
}

// mockState is an in-memory Store. Transactions buffer their writes and
// apply them under the state lock on commit; balance changes are deltas so
// concurrent transactions crediting the same account do not clobber each
// other.
type mockState struct {
	mu         sync.Mutex
	config     *GlobalConfig
	vaults     map[[32]byte]*Vault
	members    map[memberKey]*Member
	order      map[[32]byte][][20]byte
	batches    map[batchKey]*PayrollBatch
	balances   map[balanceKey]*big.Int
	commits    int
	failCommit error
}

func newMockState() *mockState {
	return &mockState{
		vaults:   make(map[[32]byte]*Vault),
		members:  make(map[memberKey]*Member),
		order:    make(map[[32]byte][][20]byte),
		batches:  make(map[batchKey]*PayrollBatch),
		balances: make(map[balanceKey]*big.Int),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) credit(account []byte, asset AssetType, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := balanceKey{account: string(account), asset: asset.Key()}
	bal, ok := m.balances[key]
	if !ok {
		bal = new(big.Int)
		m.balances[key] = bal
	}
	bal.Add(bal, new(big.Int).SetUint64(amount))
}

func (m *mockState) balance(account []byte, asset AssetType) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[balanceKey{account: string(account), asset: asset.Key()}]; ok {
		return bal.Uint64()
	}
	return 0
}

func (m *mockState) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *mockState) Begin() (Tx, error) {
	return &mockTx{
		state:   m,
		vaults:  make(map[[32]byte]*Vault),
		members: make(map[memberKey]*Member),
		order:   make(map[[32]byte][][20]byte),
		batches: make(map[batchKey]*PayrollBatch),
		deltas:  make(map[balanceKey]*big.Int),
	}, nil
}

type mockTx struct {
	state   *mockState
	config  *GlobalConfig
	vaults  map[[32]byte]*Vault
	members map[memberKey]*Member // nil marks a deletion
	order   map[[32]byte][][20]byte
	batches map[batchKey]*PayrollBatch
	deltas  map[balanceKey]*big.Int
	done    bool
}

func (tx *mockTx) GlobalConfig() (*GlobalConfig, bool, error) {
	if tx.config != nil {
		return tx.config.Clone(), true, nil
	}
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	if tx.state.config == nil {
		return nil, false, nil
	}
	return tx.state.config.Clone(), true, nil
}

func (tx *mockTx) PutGlobalConfig(cfg *GlobalConfig) error {
	tx.config = cfg.Clone()
	return nil
}

func (tx *mockTx) Vault(addr [32]byte) (*Vault, bool, error) {
	if v, ok := tx.vaults[addr]; ok {
		return v.Clone(), true, nil
	}
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	v, ok := tx.state.vaults[addr]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (tx *mockTx) PutVault(v *Vault) error {
	if v == nil {
		return fmt.Errorf("nil vault")
	}
	tx.vaults[v.Address] = v.Clone()
	return nil
}

func (tx *mockTx) Member(vault [32]byte, wallet [20]byte) (*Member, bool, error) {
	key := memberKey{vault, wallet}
	if m, ok := tx.members[key]; ok {
		if m == nil {
			return nil, false, nil
		}
		return m.Clone(), true, nil
	}
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	m, ok := tx.state.members[key]
	if !ok {
		return nil, false, nil
	}
	return m.Clone(), true, nil
}

func (tx *mockTx) wallets(vault [32]byte) [][20]byte {
	if list, ok := tx.order[vault]; ok {
		return list
	}
	tx.state.mu.Lock()
	list := append([][20]byte(nil), tx.state.order[vault]...)
	tx.state.mu.Unlock()
	tx.order[vault] = list
	return list
}

func (tx *mockTx) PutMember(m *Member) error {
	if m == nil {
		return fmt.Errorf("nil member")
	}
	if _, exists, _ := tx.Member(m.Vault, m.Wallet); !exists {
		tx.order[m.Vault] = append(tx.wallets(m.Vault), m.Wallet)
	}
	tx.members[memberKey{m.Vault, m.Wallet}] = m.Clone()
	return nil
}

func (tx *mockTx) DeleteMember(vault [32]byte, wallet [20]byte) error {
	list := tx.wallets(vault)
	kept := make([][20]byte, 0, len(list))
	for _, w := range list {
		if w != wallet {
			kept = append(kept, w)
		}
	}
	tx.order[vault] = kept
	tx.members[memberKey{vault, wallet}] = nil
	return nil
}

func (tx *mockTx) MemberWallets(vault [32]byte) ([][20]byte, error) {
	return append([][20]byte(nil), tx.wallets(vault)...), nil
}

func (tx *mockTx) Batch(vault [32]byte, batchID uint64) (*PayrollBatch, bool, error) {
	key := batchKey{vault, batchID}
	if b, ok := tx.batches[key]; ok {
		return b.Clone(), true, nil
	}
	tx.state.mu.Lock()
	defer tx.state.mu.Unlock()
	b, ok := tx.state.batches[key]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (tx *mockTx) PutBatch(b *PayrollBatch) error {
	if b == nil {
		return fmt.Errorf("nil batch")
	}
	tx.batches[batchKey{b.Vault, b.BatchID}] = b.Clone()
	return nil
}

func (tx *mockTx) Balance(account []byte, asset AssetType) (uint64, error) {
	key := balanceKey{account: string(account), asset: asset.Key()}
	total := new(big.Int)
	tx.state.mu.Lock()
	if bal, ok := tx.state.balances[key]; ok {
		total.Set(bal)
	}
	tx.state.mu.Unlock()
	if delta, ok := tx.deltas[key]; ok {
		total.Add(total, delta)
	}
	if total.Sign() < 0 {
		return 0, nil
	}
	return total.Uint64(), nil
}

func (tx *mockTx) Transfer(from, to []byte, asset AssetType, amount uint64) error {
	held, err := tx.Balance(from, asset)
	if err != nil {
		return err
	}
	if held < amount {
		return ErrInsufficientFunds
	}
	tx.addDelta(from, asset, new(big.Int).Neg(new(big.Int).SetUint64(amount)))
	tx.addDelta(to, asset, new(big.Int).SetUint64(amount))
	return nil
}

func (tx *mockTx) addDelta(account []byte, asset AssetType, amount *big.Int) {
	key := balanceKey{account: string(account), asset: asset.Key()}
	delta, ok := tx.deltas[key]
	if !ok {
		delta = new(big.Int)
		tx.deltas[key] = delta
	}
	delta.Add(delta, amount)
}

func (tx *mockTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction closed")
	}
	tx.done = true
	s := tx.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommit != nil {
		return s.failCommit
	}
	next := make(map[balanceKey]*big.Int, len(tx.deltas))
	for key, delta := range tx.deltas {
		bal := new(big.Int)
		if cur, ok := s.balances[key]; ok {
			bal.Set(cur)
		}
		bal.Add(bal, delta)
		if bal.Sign() < 0 {
			return ErrInsufficientFunds
		}
		next[key] = bal
	}
	for key, bal := range next {
		s.balances[key] = bal
	}
	if tx.config != nil {
		s.config = tx.config
	}
	for addr, v := range tx.vaults {
		s.vaults[addr] = v
	}
	for key, m := range tx.members {
		if m == nil {
			delete(s.members, key)
			continue
		}
		s.members[key] = m
	}
	for vault, list := range tx.order {
		s.order[vault] = list
	}
	for key, b := range tx.batches {
		s.batches[key] = b
	}
	s.commits++
	return nil
}

func (tx *mockTx) Rollback() { tx.done = true }
