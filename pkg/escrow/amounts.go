package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the fixed-point scale of every on-chain amount.
const TokenDecimals = 18

// AgentFee is the contract's default fee, one whole token.
var AgentFee = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// GasPrice returns the fixed gas price in wei.
func GasPrice() *big.Int {
	return new(big.Int).Mul(big.NewInt(GasPriceGwei), big.NewInt(params.GWei))
}

// ToWei scales a token amount to its on-chain integer. Digits beyond 18
// decimals are truncated.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).Truncate(0).BigInt()
}

// FromWei converts an on-chain integer to a token amount.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -TokenDecimals)
}
