package fees

import (
	"errors"
	"math"
	"testing"
)

func TestComputeFeeSplit(t *testing.T) {
	fee, net, err := Compute(2_000_000_000, 500)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if fee != 100_000_000 || net != 1_900_000_000 {
		t.Fatalf("unexpected split fee=%d net=%d", fee, net)
	}
}

func TestComputeFloorsFractionalFees(t *testing.T) {
	cases := []struct {
		gross uint64
		bps   uint16
		fee   uint64
	}{
		{gross: 1, bps: 9_999, fee: 0},
		{gross: 199, bps: 50, fee: 0},
		{gross: 200, bps: 50, fee: 1},
		{gross: 12_345, bps: 333, fee: 411},
		{gross: 7, bps: MaxBps, fee: 7},
		{gross: 7, bps: 0, fee: 0},
	}
	for _, tc := range cases {
		fee, net, err := Compute(tc.gross, tc.bps)
		if err != nil {
			t.Fatalf("compute(%d,%d): %v", tc.gross, tc.bps, err)
		}
		if fee != tc.fee {
			t.Fatalf("compute(%d,%d): fee %d want %d", tc.gross, tc.bps, fee, tc.fee)
		}
		if fee+net != tc.gross {
			t.Fatalf("compute(%d,%d): fee+net != gross", tc.gross, tc.bps)
		}
	}
}

func TestComputeLargeAmountsDoNotOverflow(t *testing.T) {
	fee, net, err := Compute(math.MaxUint64, 10)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if fee != math.MaxUint64/1000 {
		t.Fatalf("unexpected fee %d", fee)
	}
	if fee+net != math.MaxUint64 {
		t.Fatalf("split does not conserve gross")
	}
}

func TestComputeRejectsOutOfRangeBps(t *testing.T) {
	if _, _, err := Compute(100, MaxBps+1); !errors.Is(err, ErrInvalidBps) {
		t.Fatalf("expected ErrInvalidBps, got %v", err)
	}
}

func TestApplyPrefersOverride(t *testing.T) {
	override := uint16(100)
	res, err := Apply(ApplyInput{Gross: 10_000, DefaultBps: 500, OverrideBps: &override})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.FeeBps != 100 || res.Fee != 100 || res.Net != 9_900 {
		t.Fatalf("unexpected result %+v", res)
	}
	res, err = Apply(ApplyInput{Gross: 10_000, DefaultBps: 500})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.FeeBps != 500 || res.Fee != 500 {
		t.Fatalf("unexpected default result %+v", res)
	}
}
