package model

// PoolRecord is the persisted description of a relay pool.
type PoolRecord struct {
	ChainID   uint64 `json:"chain_id"`
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	TokenA    string `json:"token_a"`
	TokenB    string `json:"token_b"`
	SymbolA   string `json:"symbol_a"`
	SymbolB   string `json:"symbol_b"`
	DecimalsA uint8  `json:"decimals_a"`
	DecimalsB uint8  `json:"decimals_b"`
	Formula   string `json:"formula"`
}
