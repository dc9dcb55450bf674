// Package memledger is an in-process asset ledger. It settles transfers
// immediately, notifies receivers the way push-style token ledgers do and
// lets callers hold, fail or observe individual operations.
package memledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"swapRelay/internal/ledger"
	"swapRelay/internal/model"
	"swapRelay/internal/u128"
)

// Op names a ledger operation for hooks and counters.
type Op string

const (
	OpBalanceOf Op = "balance_of"
	OpTransfer  Op = "transfer"
	OpMetadata  Op = "metadata"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDepositRequired     = errors.New("attached deposit required")
	// ErrReceiverFailed wraps a receiver hook that failed after the
	// deposit settled. The deposit is not rolled back.
	ErrReceiverFailed = errors.New("receiver callback failed")
)

// Receipt describes a settled push transfer.
type Receipt struct {
	Amount      *uint256.Int
	Refunded    *uint256.Int
	Notified    bool
	CallbackErr error
}

// Transfer is an entry of the ledger's transfer log.
type Transfer struct {
	From     common.Address
	To       common.Address
	Amount   *uint256.Int
	Deposit  *uint256.Int
	Memo     *string
	Message  string
	Refunded *uint256.Int
}

// Ledger holds balances for one asset.
type Ledger struct {
	id     common.Address
	meta   model.TokenMeta
	logger *zap.Logger

	mu             sync.Mutex
	balances       map[common.Address]*uint256.Int
	receivers      map[common.Address]ledger.Receiver
	requireDeposit *uint256.Int
	errs           map[Op]error
	holds          map[Op]chan struct{}
	calls          map[Op]int
	transfers      []Transfer
}

// New creates an empty ledger.
func New(id common.Address, meta model.TokenMeta, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	meta.Address = id.Hex()
	return &Ledger{
		id:        id,
		meta:      meta,
		logger:    logger.With(zap.String("ledger", meta.Symbol)),
		balances:  make(map[common.Address]*uint256.Int),
		receivers: make(map[common.Address]ledger.Receiver),
		errs:      make(map[Op]error),
		holds:     make(map[Op]chan struct{}),
		calls:     make(map[Op]int),
	}
}

// ID returns the ledger identity.
func (l *Ledger) ID() common.Address {
	return l.id
}

// Metadata returns the asset metadata without going through hooks.
func (l *Ledger) Metadata() model.TokenMeta {
	return l.meta
}

// Mint credits holder with amount.
func (l *Ledger) Mint(holder common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := u128.Add(l.balanceLocked(holder), amount)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	l.balances[holder] = next
	return nil
}

// Balance reads a balance directly.
func (l *Ledger) Balance(holder common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(holder).Clone()
}

// Register installs the OnTransfer hook for account.
func (l *Ledger) Register(account common.Address, receiver ledger.Receiver) {
	l.mu.Lock()
	l.receivers[account] = receiver
	l.mu.Unlock()
}

// RequireDeposit makes every transfer demand at least amount attached.
func (l *Ledger) RequireDeposit(amount *uint256.Int) {
	l.mu.Lock()
	l.requireDeposit = amount
	l.mu.Unlock()
}

// SetError makes op fail with err until cleared with a nil err.
func (l *Ledger) SetError(op Op, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.errs, op)
		return
	}
	l.errs[op] = err
}

// Hold blocks calls of op until the returned release func is called.
func (l *Ledger) Hold(op Op) (release func()) {
	gate := make(chan struct{})
	l.mu.Lock()
	l.holds[op] = gate
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.holds[op] == gate {
				delete(l.holds, op)
			}
			l.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times op was invoked through a client.
func (l *Ledger) Calls(op Op) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// Transfers returns a copy of the transfer log.
func (l *Ledger) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}

// Client returns a view of the ledger acting as caller.
func (l *Ledger) Client(caller common.Address) ledger.Client {
	return &client{ledger: l, caller: caller}
}

// TransferCall moves funds from sender to req.Receiver and, when a message
// is present and the receiver registered a hook, notifies it and waits for
// the refund decision.
func (l *Ledger) TransferCall(ctx context.Context, sender common.Address, req ledger.TransferRequest) (Receipt, error) {
	if err := l.enter(ctx, OpTransfer); err != nil {
		return Receipt{}, err
	}
	if req.Amount == nil {
		return Receipt{}, fmt.Errorf("transfer amount is required")
	}

	receiver, err := l.settle(sender, req)
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{Amount: req.Amount.Clone(), Refunded: u128.Zero()}

	if req.Message == "" || receiver == nil {
		l.record(sender, req, receipt.Refunded)
		return receipt, nil
	}
	receipt.Notified = true

	future, err := receiver.OnTransfer(ctx, model.InboundTransfer{
		Sender:  sender,
		Ledger:  l.id,
		Amount:  req.Amount.Clone(),
		Message: req.Message,
	})
	if err != nil {
		// rejected synchronously: the receiver never accepted the funds
		if rbErr := l.move(req.Receiver, sender, req.Amount); rbErr != nil {
			return Receipt{}, fmt.Errorf("roll back rejected transfer: %w", rbErr)
		}
		l.logger.Debug("transfer rejected by receiver", zap.String("receiver", req.Receiver.Hex()), zap.Error(err))
		return Receipt{}, err
	}

	refund, err := future.Wait(ctx)
	if err != nil {
		receipt.CallbackErr = err
		l.record(sender, req, receipt.Refunded)
		l.logger.Warn("receiver callback failed, deposit kept", zap.String("receiver", req.Receiver.Hex()), zap.Error(err))
		return receipt, nil
	}

	if refund != nil && !refund.IsZero() {
		if refund.Gt(req.Amount) {
			refund = req.Amount.Clone()
		}
		if err := l.move(req.Receiver, sender, refund); err != nil {
			return receipt, fmt.Errorf("refund: %w", err)
		}
		receipt.Refunded = refund.Clone()
	}
	l.record(sender, req, receipt.Refunded)
	return receipt, nil
}

func (l *Ledger) settle(sender common.Address, req ledger.TransferRequest) (ledger.Receiver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.requireDeposit != nil {
		if req.Deposit == nil || req.Deposit.Lt(l.requireDeposit) {
			return nil, fmt.Errorf("%w: need %s", ErrDepositRequired, l.requireDeposit.Dec())
		}
	}
	if err := l.moveLocked(sender, req.Receiver, req.Amount); err != nil {
		return nil, err
	}
	return l.receivers[req.Receiver], nil
}

func (l *Ledger) move(from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

func (l *Ledger) moveLocked(from, to common.Address, amount *uint256.Int) error {
	fromBal := l.balanceLocked(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBal, err := u128.Add(l.balanceLocked(to), amount)
	if err != nil {
		return err
	}
	l.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	l.balances[to] = toBal
	return nil
}

func (l *Ledger) record(sender common.Address, req ledger.TransferRequest, refunded *uint256.Int) {
	l.mu.Lock()
	l.transfers = append(l.transfers, Transfer{
		From:     sender,
		To:       req.Receiver,
		Amount:   req.Amount.Clone(),
		Deposit:  req.Deposit,
		Memo:     req.Memo,
		Message:  req.Message,
		Refunded: refunded,
	})
	l.mu.Unlock()
	l.logger.Debug("transfer settled",
		zap.String("from", sender.Hex()),
		zap.String("to", req.Receiver.Hex()),
		zap.String("amount", l.meta.Format(req.Amount)),
	)
}

func (l *Ledger) balanceLocked(holder common.Address) *uint256.Int {
	if bal, ok := l.balances[holder]; ok {
		return bal
	}
	return u128.Zero()
}

// enter counts the call, waits on any hold and returns the injected error.
func (l *Ledger) enter(ctx context.Context, op Op) error {
	l.mu.Lock()
	l.calls[op]++
	gate := l.holds[op]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs[op]
}

type client struct {
	ledger *Ledger
	caller common.Address
}

func (c *client) ID() common.Address {
	return c.ledger.id
}

func (c *client) BalanceOf(ctx context.Context, holder common.Address) (*uint256.Int, error) {
	if err := c.ledger.enter(ctx, OpBalanceOf); err != nil {
		return nil, err
	}
	return c.ledger.Balance(holder), nil
}

func (c *client) Transfer(ctx context.Context, req ledger.TransferRequest) error {
	receipt, err := c.ledger.TransferCall(ctx, c.caller, req)
	if err != nil {
		return err
	}
	if receipt.CallbackErr != nil {
		return fmt.Errorf("%w: %w", ErrReceiverFailed, receipt.CallbackErr)
	}
	return nil
}

func (c *client) FetchMetadata(ctx context.Context) (model.TokenMeta, error) {
	if err := c.ledger.enter(ctx, OpMetadata); err != nil {
		return model.TokenMeta{}, err
	}
	return c.ledger.meta, nil
}

// Registry resolves ledger identities to in-memory ledgers.
type Registry struct {
	ledgers map[common.Address]*Ledger
}

// NewRegistry indexes ledgers by ID.
func NewRegistry(ledgers ...*Ledger) *Registry {
	r := &Registry{ledgers: make(map[common.Address]*Ledger, len(ledgers))}
	for _, l := range ledgers {
		r.ledgers[l.id] = l
	}
	return r
}

// Resolver returns clients acting as caller.
func (r *Registry) Resolver(caller common.Address) ledger.Resolver {
	return ledger.ResolverFunc(func(id common.Address) (ledger.Client, error) {
		l, ok := r.ledgers[id]
		if !ok {
			return nil, fmt.Errorf("unknown ledger %s", id.Hex())
		}
		return l.Client(caller), nil
	})
}
