package state

import (
	"fmt"

	"payvault/native/payroll"
)

// Records are RLP encoded. RLP has no signed integers, so timestamps are
// stored as their two's complement uint64 and optional fields carry an
// explicit presence flag.

type storedConfig struct {
	Owner         [20]byte
	Treasury      [20]byte
	DefaultFeeBps uint16
	NextVaultID   uint64
}

func newStoredConfig(cfg *payroll.GlobalConfig) *storedConfig {
	return &storedConfig{
		Owner:         cfg.Owner,
		Treasury:      cfg.Treasury,
		DefaultFeeBps: cfg.DefaultFeeBps,
		NextVaultID:   cfg.NextVaultID,
	}
}

func (s *storedConfig) toConfig() *payroll.GlobalConfig {
	return &payroll.GlobalConfig{
		Owner:         s.Owner,
		Treasury:      s.Treasury,
		DefaultFeeBps: s.DefaultFeeBps,
		NextVaultID:   s.NextVaultID,
	}
}

type storedAsset struct {
	Kind uint8
	Mint [20]byte
}

type storedSchedule struct {
	Present             bool
	IntervalSeconds     uint64
	NextPayoutTimestamp uint64
	Active              bool
}

type storedVault struct {
	Address              [32]byte
	ID                   uint64
	Owner                [20]byte
	Name                 string
	Kind                 uint8
	Assets               []storedAsset
	Schedule             storedSchedule
	AllocationMode       uint8
	HasMetadataURI       bool
	MetadataURI          string
	HasCodeClaim         bool
	CodeClaim            string
	HasFeeOverride       bool
	FeeOverride          uint16
	TotalBalance         uint64
	LastDepositTimestamp uint64
	CreatedAt            uint64
}

func newStoredVault(v *payroll.Vault) *storedVault {
	out := &storedVault{
		Address:              v.Address,
		ID:                   v.ID,
		Owner:                v.Owner,
		Name:                 v.Name,
		Kind:                 uint8(v.Kind),
		AllocationMode:       uint8(v.AllocationMode),
		TotalBalance:         v.TotalBalance,
		LastDepositTimestamp: uint64(v.LastDepositTimestamp),
		CreatedAt:            uint64(v.CreatedAt),
	}
	for _, asset := range v.WhitelistedAssets {
		out.Assets = append(out.Assets, storedAsset{Kind: uint8(asset.Kind), Mint: asset.Mint})
	}
	if s := v.PayoutSchedule; s != nil {
		out.Schedule = storedSchedule{
			Present:             true,
			IntervalSeconds:     uint64(s.IntervalSeconds),
			NextPayoutTimestamp: uint64(s.NextPayoutTimestamp),
			Active:              s.Active,
		}
	}
	if v.MetadataURI != nil {
		out.HasMetadataURI, out.MetadataURI = true, *v.MetadataURI
	}
	if v.CodeClaim != nil {
		out.HasCodeClaim, out.CodeClaim = true, *v.CodeClaim
	}
	if v.FeeBpsOverride != nil {
		out.HasFeeOverride, out.FeeOverride = true, *v.FeeBpsOverride
	}
	return out
}

func (s *storedVault) toVault() (*payroll.Vault, error) {
	out := &payroll.Vault{
		Address:              s.Address,
		ID:                   s.ID,
		Owner:                s.Owner,
		Name:                 s.Name,
		Kind:                 payroll.VaultKind(s.Kind),
		AllocationMode:       payroll.AllocationMode(s.AllocationMode),
		TotalBalance:         s.TotalBalance,
		LastDepositTimestamp: int64(s.LastDepositTimestamp),
		CreatedAt:            int64(s.CreatedAt),
	}
	if !out.Kind.Valid() || !out.AllocationMode.Valid() {
		return nil, fmt.Errorf("state: corrupt vault record %x", s.Address[:8])
	}
	for _, asset := range s.Assets {
		decoded := payroll.AssetType{Kind: payroll.AssetKind(asset.Kind), Mint: asset.Mint}
		if !decoded.Valid() {
			return nil, fmt.Errorf("state: corrupt asset in vault %x", s.Address[:8])
		}
		out.WhitelistedAssets = append(out.WhitelistedAssets, decoded)
	}
	if s.Schedule.Present {
		out.PayoutSchedule = &payroll.PayoutSchedule{
			IntervalSeconds:     int64(s.Schedule.IntervalSeconds),
			NextPayoutTimestamp: int64(s.Schedule.NextPayoutTimestamp),
			Active:              s.Schedule.Active,
		}
	}
	if s.HasMetadataURI {
		uri := s.MetadataURI
		out.MetadataURI = &uri
	}
	if s.HasCodeClaim {
		code := s.CodeClaim
		out.CodeClaim = &code
	}
	if s.HasFeeOverride {
		fee := s.FeeOverride
		out.FeeBpsOverride = &fee
	}
	return out, nil
}

type storedMember struct {
	Vault          [32]byte
	Wallet         [20]byte
	Role           string
	HasBps         bool
	AllocationBps  uint16
	HasSol         bool
	SolAllocation  uint64
	HasSpl         bool
	SplAllocation  uint64
	IsActive       bool
	HasMetadataURI bool
	MetadataURI    string
}

func newStoredMember(m *payroll.Member) *storedMember {
	out := &storedMember{
		Vault:    m.Vault,
		Wallet:   m.Wallet,
		Role:     m.Role,
		IsActive: m.IsActive,
	}
	if m.AllocationBps != nil {
		out.HasBps, out.AllocationBps = true, *m.AllocationBps
	}
	if m.SolPaymentAllocation != nil {
		out.HasSol, out.SolAllocation = true, *m.SolPaymentAllocation
	}
	if m.SplTokenAllocation != nil {
		out.HasSpl, out.SplAllocation = true, *m.SplTokenAllocation
	}
	if m.MetadataURI != nil {
		out.HasMetadataURI, out.MetadataURI = true, *m.MetadataURI
	}
	return out
}

func (s *storedMember) toMember() *payroll.Member {
	out := &payroll.Member{
		Vault:    s.Vault,
		Wallet:   s.Wallet,
		Role:     s.Role,
		IsActive: s.IsActive,
	}
	if s.HasBps {
		v := s.AllocationBps
		out.AllocationBps = &v
	}
	if s.HasSol {
		v := s.SolAllocation
		out.SolPaymentAllocation = &v
	}
	if s.HasSpl {
		v := s.SplAllocation
		out.SplTokenAllocation = &v
	}
	if s.HasMetadataURI {
		v := s.MetadataURI
		out.MetadataURI = &v
	}
	return out
}

type storedBatch struct {
	Vault       [32]byte
	BatchID     uint64
	TotalAmount uint64
	ServiceFee  uint64
	PayoutCount uint32
	LastPayee   [20]byte
	Finalized   bool
	CreatedAt   uint64
}

func newStoredBatch(b *payroll.PayrollBatch) *storedBatch {
	return &storedBatch{
		Vault:       b.Vault,
		BatchID:     b.BatchID,
		TotalAmount: b.TotalAmount,
		ServiceFee:  b.ServiceFee,
		PayoutCount: b.PayoutCount,
		LastPayee:   b.LastPayee,
		Finalized:   b.Finalized,
		CreatedAt:   uint64(b.CreatedAt),
	}
}

func (s *storedBatch) toBatch() *payroll.PayrollBatch {
	return &payroll.PayrollBatch{
		Vault:       s.Vault,
		BatchID:     s.BatchID,
		TotalAmount: s.TotalAmount,
		ServiceFee:  s.ServiceFee,
		PayoutCount: s.PayoutCount,
		LastPayee:   s.LastPayee,
		Finalized:   s.Finalized,
		CreatedAt:   int64(s.CreatedAt),
	}
}
