package fees

import (
	"errors"

	"github.com/holiman/uint256"
)

// MaxBps is the basis-point denominator; 10000 bps equals 100%.
const MaxBps = 10_000

// ErrInvalidBps is returned when a fee rate exceeds MaxBps.
var ErrInvalidBps = errors.New("fees: basis points out of range")

var bpsDenominator = uint256.NewInt(MaxBps)

// ApplyInput captures the context required to evaluate the service fee for a
// single gross payout.
type ApplyInput struct {
	Gross       uint64
	DefaultBps  uint16
	OverrideBps *uint16
}

// ApplyResult splits a gross payout into the service fee and the net amount
// credited to the recipient. Fee + Net always equals Gross.
type ApplyResult struct {
	Gross  uint64
	Fee    uint64
	Net    uint64
	FeeBps uint16
}

// EffectiveBps returns the vault override when present, else the default.
func EffectiveBps(defaultBps uint16, override *uint16) uint16 {
	if override != nil {
		return *override
	}
	return defaultBps
}

// Apply evaluates the fee for the supplied input. Fees are carved out of the
// gross amount: fee = floor(gross*bps/10000), net = gross - fee.
func Apply(input ApplyInput) (ApplyResult, error) {
	bps := EffectiveBps(input.DefaultBps, input.OverrideBps)
	fee, net, err := Compute(input.Gross, bps)
	if err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Gross: input.Gross, Fee: fee, Net: net, FeeBps: bps}, nil
}

// Compute returns the floor-divided fee and the remaining net amount. The
// intermediate product is evaluated in 256 bits so large gross amounts never
// overflow.
func Compute(gross uint64, feeBps uint16) (fee uint64, net uint64, err error) {
	if feeBps > MaxBps {
		return 0, 0, ErrInvalidBps
	}
	if gross == 0 || feeBps == 0 {
		return 0, gross, nil
	}
	product, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(gross),
		uint256.NewInt(uint64(feeBps)),
		bpsDenominator,
	)
	if overflow || !product.IsUint64() {
		return 0, 0, ErrInvalidBps
	}
	fee = product.Uint64()
	return fee, gross - fee, nil
}
