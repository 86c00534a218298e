package payroll

import (
	"encoding/hex"
	"strconv"

	"payvault/core/types"
	"payvault/crypto"
)

const (
	EventTypeConfigInitialized = "payroll.config.initialized"
	EventTypeConfigUpdated     = "payroll.config.updated"
	EventTypeVaultCreated      = "payroll.vault.created"
	EventTypeVaultFeeOverride  = "payroll.vault.fee_override"
	EventTypeAssetWhitelisted  = "payroll.vault.asset_whitelisted"
	EventTypeAssetRemoved      = "payroll.vault.asset_removed"
	EventTypeScheduleUpdated   = "payroll.vault.schedule_updated"
	EventTypeScheduleAdvanced  = "payroll.vault.schedule_advanced"
	EventTypeDeposit           = "payroll.deposit"
	EventTypeMemberAdded       = "payroll.member.added"
	EventTypeMemberUpdated     = "payroll.member.updated"
	EventTypeMemberRemoved     = "payroll.member.removed"
	EventTypeBatchCreated      = "payroll.batch.created"
	EventTypeBatchFinalized    = "payroll.batch.finalized"
	EventTypePayout            = "payroll.payout"
)

func shortHex(b []byte) string {
	if len(b) > 8 {
		b = b[:8]
	}
	return hex.EncodeToString(b)
}

func newConfigEvent(eventType string, cfg *GlobalConfig) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["owner"] = crypto.FormatWallet(cfg.Owner)
		attrs["treasury"] = crypto.FormatWallet(cfg.Treasury)
		attrs["defaultFeeBps"] = strconv.FormatUint(uint64(cfg.DefaultFeeBps), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newVaultEvent(eventType string, v *Vault) *types.Event {
	attrs := make(map[string]string)
	if v == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["vault"] = hex.EncodeToString(v.Address[:])
	attrs["vaultId"] = strconv.FormatUint(v.ID, 10)
	attrs["owner"] = crypto.FormatWallet(v.Owner)
	attrs["kind"] = v.Kind.String()
	attrs["totalBalance"] = strconv.FormatUint(v.TotalBalance, 10)
	if v.FeeBpsOverride != nil {
		attrs["feeBpsOverride"] = strconv.FormatUint(uint64(*v.FeeBpsOverride), 10)
	}
	if s := v.PayoutSchedule; s != nil {
		attrs["scheduleActive"] = strconv.FormatBool(s.Active)
		attrs["nextPayoutTimestamp"] = strconv.FormatInt(s.NextPayoutTimestamp, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newAssetEvent(eventType string, v *Vault, asset AssetType) *types.Event {
	evt := newVaultEvent(eventType, v)
	evt.Attributes["asset"] = asset.String()
	return evt
}

func newDepositEvent(v *Vault, depositor [20]byte, asset AssetType, amount uint64) *types.Event {
	evt := newAssetEvent(EventTypeDeposit, v, asset)
	evt.Attributes["depositor"] = crypto.FormatWallet(depositor)
	evt.Attributes["amount"] = strconv.FormatUint(amount, 10)
	return evt
}

func newMemberEvent(eventType string, m *Member) *types.Event {
	attrs := make(map[string]string)
	if m == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["vault"] = hex.EncodeToString(m.Vault[:])
	attrs["wallet"] = crypto.FormatWallet(m.Wallet)
	attrs["role"] = m.Role
	attrs["active"] = strconv.FormatBool(m.IsActive)
	if m.AllocationBps != nil {
		attrs["allocationBps"] = strconv.FormatUint(uint64(*m.AllocationBps), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newBatchEvent(eventType string, b *PayrollBatch) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["vault"] = hex.EncodeToString(b.Vault[:])
	attrs["batchId"] = strconv.FormatUint(b.BatchID, 10)
	attrs["totalAmount"] = strconv.FormatUint(b.TotalAmount, 10)
	attrs["serviceFee"] = strconv.FormatUint(b.ServiceFee, 10)
	attrs["payoutCount"] = strconv.FormatUint(uint64(b.PayoutCount), 10)
	attrs["finalized"] = strconv.FormatBool(b.Finalized)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newPayoutEvent(r *PayoutReceipt) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypePayout, Attributes: attrs}
	}
	attrs["vault"] = hex.EncodeToString(r.Vault[:])
	attrs["batchId"] = strconv.FormatUint(r.BatchID, 10)
	attrs["member"] = crypto.FormatWallet(r.Member)
	attrs["treasury"] = crypto.FormatWallet(r.Treasury)
	attrs["asset"] = r.Asset.String()
	attrs["gross"] = strconv.FormatUint(r.Gross, 10)
	attrs["fee"] = strconv.FormatUint(r.Fee, 10)
	attrs["net"] = strconv.FormatUint(r.Net, 10)
	attrs["feeBps"] = strconv.FormatUint(uint64(r.FeeBps), 10)
	return &types.Event{Type: EventTypePayout, Attributes: attrs}
}
