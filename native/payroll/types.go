package payroll

import (
	"encoding/hex"
	"fmt"
	"strings"

	"payvault/crypto"
)

const (
	// MaxNameLength bounds vault names, counted in characters.
	MaxNameLength = 32
	// MaxMetadataURILength bounds vault and member metadata URIs.
	MaxMetadataURILength = 200
	// MaxRoleLength bounds member role labels.
	MaxRoleLength = 16
	// MaxWhitelistedAssets bounds the per-vault asset whitelist.
	MaxWhitelistedAssets = 8
	// MaxBulkEntries bounds bulk member and payout requests.
	MaxBulkEntries = 32
	// MaxAllocationBps is the allocation ceiling across active members.
	MaxAllocationBps = 10_000
)

// AssetKind discriminates the asset variants a vault can hold.
type AssetKind uint8

const (
	AssetNative AssetKind = iota
	AssetToken
)

// AssetType is either the native asset or a token identified by its mint.
type AssetType struct {
	Kind AssetKind
	Mint [20]byte
}

// NativeAsset returns the native asset descriptor.
func NativeAsset() AssetType { return AssetType{Kind: AssetNative} }

// TokenAsset returns the descriptor for the token issued by mint.
func TokenAsset(mint [20]byte) AssetType { return AssetType{Kind: AssetToken, Mint: mint} }

// Valid reports whether the variant is known. Native assets must not carry a
// mint.
func (a AssetType) Valid() bool {
	switch a.Kind {
	case AssetNative:
		return a.Mint == [20]byte{}
	case AssetToken:
		return a.Mint != [20]byte{}
	default:
		return false
	}
}

// Key returns the canonical storage key for balances held in this asset.
func (a AssetType) Key() string {
	switch a.Kind {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token:" + hex.EncodeToString(a.Mint[:])
	default:
		return fmt.Sprintf("unknown:%d", a.Kind)
	}
}

func (a AssetType) String() string {
	switch a.Kind {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token:" + crypto.NewAddress(crypto.MintPrefix, a.Mint[:]).String()
	default:
		return fmt.Sprintf("unknown(%d)", a.Kind)
	}
}

// ParseAsset parses the String form of an asset descriptor.
func ParseAsset(raw string) (AssetType, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "native") || strings.EqualFold(trimmed, "sol") {
		return NativeAsset(), nil
	}
	if rest, ok := strings.CutPrefix(trimmed, "token:"); ok {
		addr, err := crypto.DecodeAddress(rest)
		if err != nil {
			return AssetType{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
		}
		return TokenAsset(addr.Raw()), nil
	}
	return AssetType{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
}

// VaultKind describes the tenant behind a vault.
type VaultKind uint8

const (
	VaultIndividual VaultKind = iota
	VaultCompany
	VaultOrganization
	VaultDivision
)

func (k VaultKind) Valid() bool {
	switch k {
	case VaultIndividual, VaultCompany, VaultOrganization, VaultDivision:
		return true
	default:
		return false
	}
}

func (k VaultKind) String() string {
	switch k {
	case VaultIndividual:
		return "individual"
	case VaultCompany:
		return "company"
	case VaultOrganization:
		return "organization"
	case VaultDivision:
		return "division"
	default:
		return "unknown"
	}
}

// AllocationMode selects how members are entitled to vault funds.
type AllocationMode uint8

const (
	AllocationPerBps AllocationMode = iota
	AllocationSpecify
)

func (m AllocationMode) Valid() bool {
	switch m {
	case AllocationPerBps, AllocationSpecify:
		return true
	default:
		return false
	}
}

// PayoutSchedule is the recurring cadence advanced by scheduled payouts.
type PayoutSchedule struct {
	IntervalSeconds     int64
	NextPayoutTimestamp int64
	Active              bool
}

// Clone returns a copy of the schedule, preserving nil.
func (s *PayoutSchedule) Clone() *PayoutSchedule {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// GlobalConfig is the protocol-wide singleton.
type GlobalConfig struct {
	Owner         [20]byte
	Treasury      [20]byte
	DefaultFeeBps uint16
	NextVaultID   uint64
}

func (c *GlobalConfig) Clone() *GlobalConfig {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Vault is a tenant's custodial pool plus its configuration.
type Vault struct {
	Address              [32]byte
	ID                   uint64
	Owner                [20]byte
	Name                 string
	Kind                 VaultKind
	WhitelistedAssets    []AssetType
	PayoutSchedule       *PayoutSchedule
	AllocationMode       AllocationMode
	MetadataURI          *string
	CodeClaim            *string
	FeeBpsOverride       *uint16
	TotalBalance         uint64
	LastDepositTimestamp int64
	CreatedAt            int64
}

// Clone returns a deep copy of the vault so callers can safely mutate it.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	out.WhitelistedAssets = append([]AssetType(nil), v.WhitelistedAssets...)
	out.PayoutSchedule = v.PayoutSchedule.Clone()
	out.MetadataURI = cloneString(v.MetadataURI)
	out.CodeClaim = cloneString(v.CodeClaim)
	out.FeeBpsOverride = cloneUint16(v.FeeBpsOverride)
	return &out
}

// IsWhitelisted reports whether asset is accepted by the vault.
func (v *Vault) IsWhitelisted(asset AssetType) bool {
	for _, existing := range v.WhitelistedAssets {
		if existing == asset {
			return true
		}
	}
	return false
}

// Member is an entity entitled to a share of vault payouts.
type Member struct {
	Vault                [32]byte
	Wallet               [20]byte
	Role                 string
	AllocationBps        *uint16
	SolPaymentAllocation *uint64
	SplTokenAllocation   *uint64
	IsActive             bool
	MetadataURI          *string
}

func (m *Member) Clone() *Member {
	if m == nil {
		return nil
	}
	out := *m
	out.AllocationBps = cloneUint16(m.AllocationBps)
	out.SolPaymentAllocation = cloneUint64(m.SolPaymentAllocation)
	out.SplTokenAllocation = cloneUint64(m.SplTokenAllocation)
	out.MetadataURI = cloneString(m.MetadataURI)
	return &out
}

// bps returns the allocation in basis points, treating nil as zero.
func (m *Member) bps() uint64 {
	if m == nil || m.AllocationBps == nil {
		return 0
	}
	return uint64(*m.AllocationBps)
}

// MemberParams describes a member to register.
type MemberParams struct {
	Wallet               [20]byte
	Role                 string
	AllocationBps        *uint16
	SolPaymentAllocation *uint64
	SplTokenAllocation   *uint64
	MetadataURI          *string
}

// PayrollBatch groups payouts and can be finalized to stop further
// settlement.
type PayrollBatch struct {
	Vault       [32]byte
	BatchID     uint64
	TotalAmount uint64
	ServiceFee  uint64
	PayoutCount uint32
	// LastPayee is the wallet of the most recent payout, zero before any.
	LastPayee [20]byte
	Finalized bool
	CreatedAt int64
}

func (b *PayrollBatch) Clone() *PayrollBatch {
	if b == nil {
		return nil
	}
	out := *b
	return &out
}

// CreateVaultParams carries the arguments of CreateVault.
type CreateVaultParams struct {
	Name              string
	Kind              VaultKind
	WhitelistedAssets []AssetType
	PayoutSchedule    *PayoutSchedule
	AllocationMode    AllocationMode
	MetadataURI       *string
	CodeClaim         *string
}

// PayoutEntry is one line of a bulk payout.
type PayoutEntry struct {
	Wallet [20]byte
	Asset  AssetType
	Amount uint64
}

// PayoutReceipt summarises a settled payout.
type PayoutReceipt struct {
	Vault    [32]byte
	BatchID  uint64
	Member   [20]byte
	Treasury [20]byte
	Asset    AssetType
	Gross    uint64
	Fee      uint64
	Net      uint64
	FeeBps   uint16
	// NextPayoutTimestamp is set for scheduled payouts only.
	NextPayoutTimestamp int64
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUint16(v *uint16) *uint16 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneUint64(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
