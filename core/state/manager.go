package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"payvault/native/payroll"
	"payvault/storage"
)

var errTxClosed = errors.New("state: transaction already closed")

// Manager is the settlement layer behind the payroll engine. Every
// transaction buffers its writes and lands them in a single storage batch, so
// an operation is either fully applied or leaves storage untouched.
type Manager struct {
	db storage.Database

	// commitMu orders commits so balance deltas are resolved against the
	// latest stored balances.
	commitMu sync.Mutex
}

// NewManager creates a state manager persisting to db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var _ payroll.Store = (*Manager)(nil)

// Begin opens a transaction.
func (m *Manager) Begin() (payroll.Tx, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: manager not initialised")
	}
	return m.begin(), nil
}

func (m *Manager) begin() *transaction {
	return &transaction{
		m:      m,
		writes: make(map[string][]byte),
		deltas: make(map[string]*big.Int),
	}
}

// Credit mints amount of asset into account. It backs genesis allocations
// and test funding; engine operations only ever move existing balances.
func (m *Manager) Credit(account []byte, asset payroll.AssetType, amount uint64) error {
	if len(account) == 0 {
		return fmt.Errorf("state: credit account must not be empty")
	}
	tx := m.begin()
	tx.addDelta(balanceKey(account, asset), new(big.Int).SetUint64(amount))
	return tx.Commit()
}

// Balance returns the committed balance of account in asset.
func (m *Manager) Balance(account []byte, asset payroll.AssetType) (uint64, error) {
	tx := m.begin()
	defer tx.Rollback()
	return tx.Balance(account, asset)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, fmt.Errorf("state: decode balance: %w", err)
	}
	return value, nil
}
