package payroll

import "payvault/crypto"

// Store is the settlement-layer collaborator. Every engine operation runs in
// exactly one transaction obtained from Begin.
type Store interface {
	Begin() (Tx, error)
}

// Tx is an atomic unit of work. Reads observe the transaction's own pending
// writes. Commit applies every write or none; Rollback discards them.
type Tx interface {
	GlobalConfig() (*GlobalConfig, bool, error)
	PutGlobalConfig(cfg *GlobalConfig) error

	Vault(addr [32]byte) (*Vault, bool, error)
	PutVault(v *Vault) error

	Member(vault [32]byte, wallet [20]byte) (*Member, bool, error)
	PutMember(m *Member) error
	DeleteMember(vault [32]byte, wallet [20]byte) error
	// MemberWallets lists the wallets registered in the vault in insertion
	// order.
	MemberWallets(vault [32]byte) ([][20]byte, error)

	Batch(vault [32]byte, batchID uint64) (*PayrollBatch, bool, error)
	PutBatch(b *PayrollBatch) error

	// Balance returns the custody balance of account for asset.
	Balance(account []byte, asset AssetType) (uint64, error)
	// Transfer moves amount between custody accounts, failing with
	// ErrInsufficientFunds when the source cannot cover it.
	Transfer(from, to []byte, asset AssetType, amount uint64) error

	Commit() error
	Rollback()
}

// VaultAddress derives the deterministic vault identifier from its owner and
// the id assigned at creation.
func VaultAddress(owner [20]byte, id uint64) [32]byte {
	return crypto.DeriveID("vault", owner, id)
}
