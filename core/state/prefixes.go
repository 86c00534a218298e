package state

import (
	"payvault/crypto"
	"payvault/native/payroll"
)

const (
	configNamespace      = "payroll/config"
	vaultNamespace       = "payroll/vault"
	memberNamespace      = "payroll/member"
	memberIndexNamespace = "payroll/member-index"
	batchNamespace       = "payroll/batch"
	balanceNamespace     = "balance"
)

func configKey() []byte {
	id := crypto.DeriveID(configNamespace)
	return id[:]
}

func vaultKey(addr [32]byte) []byte {
	id := crypto.DeriveID(vaultNamespace, addr)
	return id[:]
}

func memberKey(vault [32]byte, wallet [20]byte) []byte {
	id := crypto.DeriveID(memberNamespace, vault, wallet)
	return id[:]
}

func memberIndexKey(vault [32]byte) []byte {
	id := crypto.DeriveID(memberIndexNamespace, vault)
	return id[:]
}

func batchKey(vault [32]byte, batchID uint64) []byte {
	id := crypto.DeriveID(batchNamespace, vault, batchID)
	return id[:]
}

func balanceKey(account []byte, asset payroll.AssetType) []byte {
	id := crypto.DeriveID(balanceNamespace, asset.Key(), account)
	return id[:]
}
