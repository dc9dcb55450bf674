package erc20

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"swapRelay/internal/ledger"
	"swapRelay/internal/model"
)

// TransferLog is a decoded Transfer(from, to, value) event.
type TransferLog struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Value       *uint256.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// TransferTopic returns the Transfer event signature hash.
func TransferTopic() (common.Hash, error) {
	parsed, err := TokenABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["Transfer"].ID, nil
}

// DecodeTransferLog parses a Transfer log.
func DecodeTransferLog(lg types.Log) (TransferLog, error) {
	parsed, err := TokenABI()
	if err != nil {
		return TransferLog{}, fmt.Errorf("parse token abi: %w", err)
	}
	event := parsed.Events["Transfer"]

	if len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
		return TransferLog{}, fmt.Errorf("not a Transfer log")
	}
	indexed := indexedArguments(event.Inputs)
	if len(lg.Topics) != len(indexed)+1 {
		return TransferLog{}, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(lg.Topics))
	}

	topics := make(map[string]interface{}, len(indexed))
	if err := abi.ParseTopicsIntoMap(topics, indexed, lg.Topics[1:]); err != nil {
		return TransferLog{}, fmt.Errorf("parse topics: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return TransferLog{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	value, err := decodeAmount(values)
	if err != nil {
		return TransferLog{}, err
	}

	from, okFrom := topics["from"].(common.Address)
	to, okTo := topics["to"].(common.Address)
	if !okFrom || !okTo {
		return TransferLog{}, fmt.Errorf("%w: transfer topics", ledger.ErrMalformedResult)
	}

	return TransferLog{
		Token:       lg.Address,
		From:        from,
		To:          to,
		Value:       value,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}, nil
}

// Inbound converts the log into a notification for the receiver.
func (t TransferLog) Inbound() model.InboundTransfer {
	return model.InboundTransfer{
		Sender:      t.From,
		Ledger:      t.Token,
		Amount:      t.Value.Clone(),
		BlockNumber: t.BlockNumber,
		TxHash:      t.TxHash.Hex(),
		LogIndex:    uint64(t.LogIndex),
	}
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
