package claimd

import (
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newCode returns a fresh human-typable code such as "ABCD-EFGH-...". The
// entropy comes from a random v4 UUID.
func newCode() string {
	id := uuid.New()
	raw := codeEncoding.EncodeToString(id[:])
	groups := make([]string, 0, len(raw)/4+1)
	for len(raw) > 4 {
		groups = append(groups, raw[:4])
		raw = raw[4:]
	}
	groups = append(groups, raw)
	return strings.Join(groups, "-")
}

// normaliseCode strips separators and whitespace and upper-cases the code so
// that holders can type it loosely.
func normaliseCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func codeDigest(code string) [32]byte {
	return blake3.Sum256([]byte(normaliseCode(code)))
}

func codeHash(code string) string {
	digest := codeDigest(code)
	return hex.EncodeToString(digest[:])
}

// batchIDFor maps a claim to its single-use payroll batch id. The top bit is
// cleared so claim batches never collide with the scheduled payout batch.
func batchIDFor(hash string) uint64 {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) < 8 {
		digest := blake3.Sum256([]byte(hash))
		raw = digest[:]
	}
	return binary.BigEndian.Uint64(raw[:8]) &^ (1 << 63)
}
