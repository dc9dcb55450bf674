package model

// SwapStatus is the terminal state of a swap attempt.
type SwapStatus string

const (
	SwapStatusCompleted SwapStatus = "completed"
	// SwapStatusFailed means pricing or the outbound transfer failed after
	// the inbound deposit had already settled; the deposit stays in the pool.
	SwapStatusFailed SwapStatus = "failed"
)

// SwapRecord is the journal entry written for every swap attempt.
type SwapRecord struct {
	ID            string     `json:"id"`
	Counterparty  string     `json:"counterparty"`
	TokenIn       string     `json:"token_in"`
	TokenOut      string     `json:"token_out,omitempty"`
	AmountIn      string     `json:"amount_in"`
	AmountOut     string     `json:"amount_out,omitempty"`
	BalanceA      string     `json:"balance_a,omitempty"`
	BalanceB      string     `json:"balance_b,omitempty"`
	Formula       string     `json:"formula"`
	Status        SwapStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	InboundTxHash string     `json:"inbound_tx_hash,omitempty"`
	InboundBlock  uint64     `json:"inbound_block,omitempty"`
	InboundTime   string     `json:"inbound_time,omitempty"`
	CompletedAt   string     `json:"completed_at"`
}
