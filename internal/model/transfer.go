package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// InboundTransfer is a push notification from a ledger: Sender moved Amount
// units into the relay on Ledger. The deposit has already settled when the
// notification is delivered.
type InboundTransfer struct {
	Sender  common.Address
	Ledger  common.Address
	Amount  *uint256.Int
	Message string

	// Source fields are only set when the notification was derived from a chain log.
	BlockNumber uint64
	BlockTime   uint64
	TxHash      string
	LogIndex    uint64
}
