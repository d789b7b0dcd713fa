package payment

import (
	"craftchain/internal/apperr"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FeeSplit divides a gross amount (minor units) between the platform and the
// artisan. PlatformFeeAmount + ArtisanAmount always equals GrossAmount.
type FeeSplit struct {
	GrossAmount       int64 `json:"grossAmount"`
	PlatformFeeAmount int64 `json:"platformFeeAmount"`
	ArtisanAmount     int64 `json:"artisanAmount"`
}

// Split computes the platform fee as round-half-up(gross * feePercent / 100).
// decimal.Round rounds halves away from zero, which is half-up for the
// non-negative amounts accepted here.
func Split(grossAmount int64, feePercent decimal.Decimal) (FeeSplit, error) {
	if grossAmount < 0 {
		return FeeSplit{}, apperr.New(apperr.InvalidArgument, "fee split", "gross amount %d is negative", grossAmount)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(hundred) {
		return FeeSplit{}, apperr.New(apperr.InvalidArgument, "fee split", "fee percent %s outside [0,100]", feePercent)
	}

	fee := decimal.NewFromInt(grossAmount).Mul(feePercent).Div(hundred).Round(0).IntPart()

	return FeeSplit{
		GrossAmount:       grossAmount,
		PlatformFeeAmount: fee,
		ArtisanAmount:     grossAmount - fee,
	}, nil
}

// MajorUnits renders a minor-unit amount as a two-decimal string, e.g. 1250 -> "12.50".
func MajorUnits(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
