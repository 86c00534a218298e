package claimd

import "errors"

var (
	ErrClaimNotFound   = errors.New("claimd: claim code not found")
	ErrClaimUsed       = errors.New("claimd: claim code already used")
	ErrClaimExpired    = errors.New("claimd: claim code expired")
	ErrVaultNotFound   = errors.New("claimd: vault not registered")
	ErrInvalidAmount   = errors.New("claimd: amount must be positive")
	ErrInvalidAsset    = errors.New("claimd: invalid asset")
	ErrIssuerNotOwner  = errors.New("claimd: issuer does not own the vault")
	ErrPrepareMismatch = errors.New("claimd: preparation does not match claim code")
	ErrUnavailable     = errors.New("claimd: claim registry unavailable")
)

// ValidationReason names why a claim code cannot be redeemed.
type ValidationReason string

const (
	ReasonNone          ValidationReason = ""
	ReasonNotFound      ValidationReason = "NotFound"
	ReasonUsed          ValidationReason = "Used"
	ReasonExpired       ValidationReason = "Expired"
	ReasonVaultNotFound ValidationReason = "VaultNotFound"
	ReasonUnavailable   ValidationReason = "Unavailable"
)

// Err returns the sentinel matching the reason.
func (r ValidationReason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonNotFound:
		return ErrClaimNotFound
	case ReasonUsed:
		return ErrClaimUsed
	case ReasonExpired:
		return ErrClaimExpired
	case ReasonVaultNotFound:
		return ErrVaultNotFound
	default:
		return ErrUnavailable
	}
}
