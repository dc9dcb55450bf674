package model

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// TokenMeta captures the descriptive metadata a ledger reports for its asset.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// Format renders a raw amount in whole-token units.
func (m TokenMeta) Format(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(m.Decimals)).String()
}

// MetadataTokens is the read-only view of both cached asset records.
type MetadataTokens struct {
	TokenA TokenMeta `json:"metadata_token_a"`
	TokenB TokenMeta `json:"metadata_token_b"`
}
