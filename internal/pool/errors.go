package pool

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnauthorized       = errors.New("unauthorized ledger")
	ErrConstruction       = errors.New("pool construction failed")
	ErrMalformedIdentity  = fmt.Errorf("%w: malformed identity", ErrConstruction)
	ErrUnknownAsset       = errors.New("token matches neither pool asset")
	ErrNotInitialized     = errors.New("pool metadata not initialized")
	ErrInvalidResultCount = errors.New("unexpected batch result count")
)

// UnauthorizedLedgerError is returned when a transfer notification comes
// from a ledger the pool was not configured with.
type UnauthorizedLedgerError struct {
	Ledger common.Address
}

func (e *UnauthorizedLedgerError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnauthorized, e.Ledger.Hex())
}

func (e *UnauthorizedLedgerError) Is(target error) bool {
	return target == ErrUnauthorized
}
