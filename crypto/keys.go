package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part used when rendering identities.
type AddressPrefix string

const (
	// WalletPrefix tags member, owner and treasury identities.
	WalletPrefix AddressPrefix = "pv"
	// MintPrefix tags token mint identifiers.
	MintPrefix AddressPrefix = "pvmint"
)

// Address is a 20-byte identity with a bech32 rendering.
type Address struct {
	prefix AddressPrefix
	raw    [20]byte
}

// NewAddress wraps raw identity bytes. It panics when b is not 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	var raw [20]byte
	copy(raw[:], b)
	return Address{prefix: prefix, raw: raw}
}

// String renders the bech32 form of the address.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw identity.
func (a Address) Bytes() []byte { return append([]byte(nil), a.raw[:]...) }

// Raw returns the fixed-size identity used by the ledger.
func (a Address) Raw() [20]byte { return a.raw }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// DecodeAddress parses a bech32 identity string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("invalid address length %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// FormatWallet renders a raw wallet identity using WalletPrefix.
func FormatWallet(raw [20]byte) string {
	return NewAddress(WalletPrefix, raw[:]).String()
}

// DeriveID computes the deterministic 32-byte account identifier for the
// namespace and ordered parts. Byte slices and fixed arrays are appended
// verbatim; integers are appended big-endian.
func DeriveID(namespace string, parts ...any) [32]byte {
	buf := make([]byte, 0, len(namespace)+64)
	buf = append(buf, namespace...)
	for _, part := range parts {
		switch v := part.(type) {
		case []byte:
			buf = append(buf, v...)
		case [20]byte:
			buf = append(buf, v[:]...)
		case [32]byte:
			buf = append(buf, v[:]...)
		case string:
			buf = append(buf, v...)
		case uint64:
			buf = binary.BigEndian.AppendUint64(buf, v)
		case uint8:
			buf = append(buf, v)
		default:
			panic(fmt.Sprintf("crypto: unsupported id part %T", part))
		}
	}
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(buf))
	return id
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the wallet identity controlled by the key.
func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(WalletPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// ParseWallet decodes a wallet identity and rejects other address kinds.
func ParseWallet(raw string) ([20]byte, error) {
	addr, err := DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != WalletPrefix {
		return [20]byte{}, fmt.Errorf("address %s is not a wallet address", strings.TrimSpace(raw))
	}
	return addr.Raw(), nil
}
