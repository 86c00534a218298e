package crypto

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := [20]byte{}
	copy(raw[:], bytes.Repeat([]byte{0x42}, 20))
	encoded := FormatWallet(raw)
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Raw() != raw {
		t.Fatalf("raw mismatch: %x", decoded.Raw())
	}
	if decoded.Prefix() != WalletPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeriveIDDeterministic(t *testing.T) {
	owner := [20]byte{1}
	a := DeriveID("vault", owner, uint64(1))
	b := DeriveID("vault", owner, uint64(1))
	c := DeriveID("vault", owner, uint64(2))
	if a != b {
		t.Fatalf("expected identical ids")
	}
	if a == c {
		t.Fatalf("expected distinct ids for distinct counters")
	}
	if DeriveID("member", owner, uint64(1)) == a {
		t.Fatalf("namespace must separate ids")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	if err := SaveToKeystore(path, key, "secret"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().Raw() != key.PubKey().Address().Raw() {
		t.Fatalf("address mismatch after reload")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected passphrase failure")
	}
}
