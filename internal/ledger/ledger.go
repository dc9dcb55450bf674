// Package ledger defines the contract between the relay and the external
// asset ledgers it orchestrates.
package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"swapRelay/internal/batch"
	"swapRelay/internal/model"
)

// ErrMalformedResult marks a remote payload that could not be decoded into
// the expected type.
var ErrMalformedResult = errors.New("malformed ledger result")

// TransferRequest moves Amount from the caller to Receiver.
type TransferRequest struct {
	Receiver common.Address
	Amount   *uint256.Int
	Memo     *string
	// Message, when non-empty, asks the ledger to notify Receiver through
	// its OnTransfer hook before finalizing.
	Message string
	// Deposit is the ancillary authorization amount attached to the call.
	Deposit *uint256.Int
}

// Client is a view of one ledger on behalf of one caller.
type Client interface {
	ID() common.Address
	BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, req TransferRequest) error
	FetchMetadata(ctx context.Context) (model.TokenMeta, error)
}

// Receiver is implemented by accounts that accept push-style transfers. The
// returned future resolves to the amount the ledger must refund to the
// sender; zero accepts the full deposit.
type Receiver interface {
	OnTransfer(ctx context.Context, transfer model.InboundTransfer) (*batch.Future[*uint256.Int], error)
}

// Resolver returns the client for a ledger identity.
type Resolver interface {
	Ledger(id common.Address) (Client, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id common.Address) (Client, error)

func (f ResolverFunc) Ledger(id common.Address) (Client, error) {
	return f(id)
}
