package erc20

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"swapRelay/internal/chain"
	"swapRelay/internal/ledger"
	"swapRelay/internal/model"
	"swapRelay/internal/u128"
)

type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Ledger talks to one ERC20 token. Reads go through eth_call, writes are
// signed with the relay key and waited on until mined.
type Ledger struct {
	token  common.Address
	caller contractCaller
	chain  *chain.Client
	signer *chain.Signer
	logger *zap.Logger
}

// New binds a token. signer may be nil for read-only use.
func New(client *chain.Client, token common.Address, signer *chain.Signer, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		token:  token,
		caller: client,
		chain:  client,
		signer: signer,
		logger: logger.With(zap.String("token", token.Hex())),
	}
}

func (l *Ledger) ID() common.Address {
	return l.token
}

// BalanceOf reads balanceOf(holder). Values that do not fit 128 bits are
// reported as malformed.
func (l *Ledger) BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse token abi: %w", err)
	}
	values, err := l.call(ctx, parsed, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return decodeAmount(values)
}

func decodeAmount(values []interface{}) (*uint256.Int, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: expected 1 value, got %d", ledger.ErrMalformedResult, len(values))
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported amount type %T", ledger.ErrMalformedResult, values[0])
	}
	amount, err := u128.FromBig(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrMalformedResult, err)
	}
	return amount, nil
}

// Transfer sends req.Amount to req.Receiver. A non-empty message uses
// ERC-1363 transferAndCall so the receiver is notified. ERC20 has neither
// memos nor attached deposits; both are only logged.
func (l *Ledger) Transfer(ctx context.Context, req ledger.TransferRequest) error {
	if l.signer == nil {
		return fmt.Errorf("transfer on %s: no signer configured", l.token.Hex())
	}
	if req.Amount == nil {
		return fmt.Errorf("transfer amount is required")
	}
	parsed, err := TokenABI()
	if err != nil {
		return fmt.Errorf("parse token abi: %w", err)
	}

	opts, err := l.signer.Transactor(ctx, l.chain)
	if err != nil {
		return err
	}
	contract := bind.NewBoundContract(l.token, parsed, l.chain.Backend(), l.chain.Backend(), l.chain.Backend())

	var tx *types.Transaction
	if req.Message == "" {
		tx, err = contract.Transact(opts, "transfer", req.Receiver, req.Amount.ToBig())
	} else {
		tx, err = contract.Transact(opts, "transferAndCall", req.Receiver, req.Amount.ToBig(), []byte(req.Message))
	}
	if err != nil {
		return fmt.Errorf("send transfer: %w", err)
	}

	fields := []zap.Field{
		zap.String("to", req.Receiver.Hex()),
		zap.String("amount", req.Amount.Dec()),
		zap.String("tx", tx.Hash().Hex()),
	}
	if req.Memo != nil {
		fields = append(fields, zap.String("memo", *req.Memo))
	}
	l.logger.Info("transfer submitted", fields...)

	receipt, err := l.chain.WaitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("wait transfer %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transfer %s reverted", tx.Hash().Hex())
	}
	return nil
}

// FetchMetadata loads decimals, symbol and name.
func (l *Ledger) FetchMetadata(ctx context.Context) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: l.token.Hex()}

	stringABI, err := TokenABI()
	if err != nil {
		return meta, fmt.Errorf("parse token abi: %w", err)
	}
	bytes32ABI, err := tokenABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse token bytes32 abi: %w", err)
	}

	values, err := l.call(ctx, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("%w: unsupported decimals type %T", ledger.ErrMalformedResult, values[0])
	}
	meta.Decimals = decimals

	if meta.Symbol, err = l.textField(ctx, stringABI, bytes32ABI, "symbol"); err != nil {
		return meta, err
	}
	if meta.Name, err = l.textField(ctx, stringABI, bytes32ABI, "name"); err != nil {
		return meta, err
	}
	return meta, nil
}

// textField reads an optional string getter. A reverted call yields "",
// a reply that is neither an ABI string nor a bytes32 is malformed.
func (l *Ledger) textField(ctx context.Context, stringABI, bytes32ABI abi.ABI, method string) (string, error) {
	values, err := l.call(ctx, stringABI, method)
	if err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	} else if !errors.Is(err, ledger.ErrMalformedResult) {
		l.logger.Debug(method+" call failed", zap.Error(err))
		return "", nil
	}

	values, err = l.call(ctx, bytes32ABI, method)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	s, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("%w: unsupported %s type %T", ledger.ErrMalformedResult, method, values[0])
	}
	return s, nil
}

func (l *Ledger) call(ctx context.Context, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	token := l.token
	resp, err := l.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ledger.ErrMalformedResult, method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", ledger.ErrMalformedResult, method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

// Resolver hands out token ledgers sharing one client and signer.
type Resolver struct {
	client *chain.Client
	signer *chain.Signer
	logger *zap.Logger
}

func NewResolver(client *chain.Client, signer *chain.Signer, logger *zap.Logger) *Resolver {
	return &Resolver{client: client, signer: signer, logger: logger}
}

func (r *Resolver) Ledger(id common.Address) (ledger.Client, error) {
	if r.client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	return New(r.client, id, r.signer, r.logger), nil
}
