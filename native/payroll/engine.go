package payroll

import (
	"errors"
	"sync"
	"time"

	"payvault/core/events"
	"payvault/core/types"
)

var errNilStore = errors.New("payroll engine: store not configured")

type payrollEvent struct {
	evt *types.Event
}

func (e payrollEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e payrollEvent) Event() *types.Event { return e.evt }

// Engine applies vault, member and payroll operations against a Store. Each
// operation runs in its own transaction. Calls touching the same vault are
// serialized; calls on different vaults proceed independently.
type Engine struct {
	store   Store
	emitter events.Emitter
	nowFn   func() int64

	// configMu serializes global config mutations and vault creation, which
	// consumes the vault id counter.
	configMu sync.Mutex
	vaults   sync.Map // [32]byte -> *sync.Mutex
}

// NewEngine creates an engine with a no-op emitter.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the unix-seconds time source. Primarily intended for
// tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) vaultLock(addr [32]byte) *sync.Mutex {
	if existing, ok := e.vaults.Load(addr); ok {
		return existing.(*sync.Mutex)
	}
	actual, _ := e.vaults.LoadOrStore(addr, new(sync.Mutex))
	return actual.(*sync.Mutex)
}

// op is the per-call context handed to operation bodies.
type op struct {
	Tx
	now     int64
	pending []*types.Event
}

func (o *op) emit(evt *types.Event) {
	if evt != nil {
		o.pending = append(o.pending, evt)
	}
}

// run executes fn inside a fresh transaction. Events are only published once
// the commit succeeded.
func (e *Engine) run(fn func(o *op) error) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	tx, err := e.store.Begin()
	if err != nil {
		return err
	}
	o := &op{Tx: tx, now: e.now()}
	if err := fn(o); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, evt := range o.pending {
		e.emitter.Emit(payrollEvent{evt: evt})
	}
	return nil
}

// inVault runs fn while holding the vault's lock.
func (e *Engine) inVault(addr [32]byte, fn func(o *op) error) error {
	mu := e.vaultLock(addr)
	mu.Lock()
	defer mu.Unlock()
	return e.run(fn)
}

// read runs fn in a transaction that is always rolled back.
func (e *Engine) read(fn func(tx Tx) error) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	tx, err := e.store.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

func loadConfig(tx Tx) (*GlobalConfig, error) {
	cfg, ok, err := tx.GlobalConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotInitialized
	}
	return cfg, nil
}

func loadVault(tx Tx, addr [32]byte) (*Vault, error) {
	vault, ok, err := tx.Vault(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("vault", shortHex(addr[:]))
	}
	return vault, nil
}

// ownedVault loads the vault and checks that caller owns it.
func ownedVault(tx Tx, addr [32]byte, caller [20]byte) (*Vault, error) {
	vault, err := loadVault(tx, addr)
	if err != nil {
		return nil, err
	}
	if vault.Owner != caller {
		return nil, ErrUnauthorized
	}
	return vault, nil
}

func loadMember(tx Tx, vault [32]byte, wallet [20]byte) (*Member, error) {
	member, ok, err := tx.Member(vault, wallet)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("member", shortHex(wallet[:]))
	}
	return member, nil
}

func loadBatch(tx Tx, vault [32]byte, batchID uint64) (*PayrollBatch, error) {
	batch, ok, err := tx.Batch(vault, batchID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("payroll batch", batchID)
	}
	return batch, nil
}

// GlobalConfig returns the protocol configuration.
func (e *Engine) GlobalConfig() (*GlobalConfig, error) {
	var out *GlobalConfig
	err := e.read(func(tx Tx) error {
		cfg, err := loadConfig(tx)
		out = cfg
		return err
	})
	return out, err
}

// Vault returns the vault stored at addr.
func (e *Engine) Vault(addr [32]byte) (*Vault, error) {
	var out *Vault
	err := e.read(func(tx Tx) error {
		vault, err := loadVault(tx, addr)
		out = vault
		return err
	})
	return out, err
}

// Member returns the member record for wallet within the vault.
func (e *Engine) Member(vault [32]byte, wallet [20]byte) (*Member, error) {
	var out *Member
	err := e.read(func(tx Tx) error {
		member, err := loadMember(tx, vault, wallet)
		out = member
		return err
	})
	return out, err
}

// Members lists the vault's members in registration order.
func (e *Engine) Members(vault [32]byte) ([]*Member, error) {
	var out []*Member
	err := e.read(func(tx Tx) error {
		if _, err := loadVault(tx, vault); err != nil {
			return err
		}
		wallets, err := tx.MemberWallets(vault)
		if err != nil {
			return err
		}
		for _, wallet := range wallets {
			member, err := loadMember(tx, vault, wallet)
			if err != nil {
				return err
			}
			out = append(out, member)
		}
		return nil
	})
	return out, err
}

// PayrollBatch returns the batch registered under batchID.
func (e *Engine) PayrollBatch(vault [32]byte, batchID uint64) (*PayrollBatch, error) {
	var out *PayrollBatch
	err := e.read(func(tx Tx) error {
		batch, err := loadBatch(tx, vault, batchID)
		out = batch
		return err
	})
	return out, err
}

// Balance returns the custody balance of account in asset.
func (e *Engine) Balance(account []byte, asset AssetType) (uint64, error) {
	var out uint64
	err := e.read(func(tx Tx) error {
		bal, err := tx.Balance(account, asset)
		out = bal
		return err
	})
	return out, err
}
