package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"swapRelay/internal/batch"
	"swapRelay/internal/ledger"
	"swapRelay/internal/model"
	"swapRelay/internal/u128"
)

// OutboundDeposit is the fixed authorization amount attached to every
// outbound transfer.
const OutboundDeposit uint64 = 1

// PendingSwap is the context carried from a transfer notification into
// its balance aggregation callback.
type PendingSwap struct {
	Counterparty   common.Address
	TokenReceived  common.Address
	AmountReceived *uint256.Int
	TxHash         string
	BlockNumber    uint64
	BlockTime      uint64
}

// OnTransfer handles a deposit notification from one of the pool ledgers.
// The returned future resolves to the refund amount, which is always zero:
// deposits are accepted in full.
func (p *Pool) OnTransfer(ctx context.Context, in model.InboundTransfer) (*batch.Future[*uint256.Int], error) {
	if in.Ledger != p.state.assetA && in.Ledger != p.state.assetB {
		p.logger.Warn("transfer notification from unknown ledger", zap.String("ledger", in.Ledger.Hex()))
		return nil, &UnauthorizedLedgerError{Ledger: in.Ledger}
	}

	if in.Sender == p.state.owner {
		p.logger.Info("owner deposit accepted without swap",
			zap.String("ledger", in.Ledger.Hex()),
			zap.Stringer("amount", in.Amount),
		)
		return batch.Resolved(u128.Zero()), nil
	}

	amount, err := u128.Check(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: inbound amount: %v", ledger.ErrMalformedResult, err)
	}
	swap := PendingSwap{
		Counterparty:   in.Sender,
		TokenReceived:  in.Ledger,
		AmountReceived: amount,
		TxHash:         in.TxHash,
		BlockNumber:    in.BlockNumber,
		BlockTime:      in.BlockTime,
	}

	calls := []batch.Call[*uint256.Int]{p.balanceCall(p.clientA), p.balanceCall(p.clientB)}
	return batch.Then(ctx, calls, func(ctx context.Context, results []batch.Result[*uint256.Int]) (*uint256.Int, error) {
		return p.completeSwap(ctx, swap, results)
	}), nil
}

func (p *Pool) balanceCall(client ledger.Client) batch.Call[*uint256.Int] {
	return func(ctx context.Context) (*uint256.Int, error) {
		return client.BalanceOf(ctx, p.self)
	}
}

// completeSwap prices the deposit against the post-deposit balances and
// sends the other asset to the counterparty. An error here leaves the
// deposit with the pool.
func (p *Pool) completeSwap(ctx context.Context, swap PendingSwap, results []batch.Result[*uint256.Int]) (*uint256.Int, error) {
	rec := model.SwapRecord{
		ID:            uuid.NewString(),
		Counterparty:  swap.Counterparty.Hex(),
		TokenIn:       swap.TokenReceived.Hex(),
		AmountIn:      swap.AmountReceived.Dec(),
		Formula:       string(p.formula),
		InboundTxHash: swap.TxHash,
		InboundBlock:  swap.BlockNumber,
	}

	if swap.BlockTime > 0 {
		rec.InboundTime = time.Unix(int64(swap.BlockTime), 0).UTC().Format(time.RFC3339)
	}

	err := p.executeSwap(ctx, swap, results, &rec)
	rec.CompletedAt = p.now().UTC().Format(time.RFC3339Nano)
	if err != nil {
		rec.Status = model.SwapStatusFailed
		rec.Error = err.Error()
		p.logger.Error("swap failed, deposit retained",
			zap.String("swap_id", rec.ID),
			zap.String("counterparty", rec.Counterparty),
			zap.String("token_in", rec.TokenIn),
			zap.String("amount_in", rec.AmountIn),
			zap.Error(err),
		)
	} else {
		rec.Status = model.SwapStatusCompleted
		p.logger.Info("swap completed",
			zap.String("swap_id", rec.ID),
			zap.String("counterparty", rec.Counterparty),
			zap.String("amount_in", rec.AmountIn),
			zap.String("amount_out", rec.AmountOut),
		)
	}
	p.record(ctx, rec)

	if err != nil {
		return nil, err
	}
	return u128.Zero(), nil
}

func (p *Pool) executeSwap(ctx context.Context, swap PendingSwap, results []batch.Result[*uint256.Int], rec *model.SwapRecord) error {
	if len(results) != 2 {
		return fmt.Errorf("%w: balance batch returned %d results, want 2", ErrInvalidResultCount, len(results))
	}
	balA, err := decodeBalance("asset A", results[0])
	if err != nil {
		return err
	}
	balB, err := decodeBalance("asset B", results[1])
	if err != nil {
		return err
	}
	rec.BalanceA = balA.Dec()
	rec.BalanceB = balB.Dec()

	var (
		balanceIn  *uint256.Int
		balanceOut *uint256.Int
		tokenOut   common.Address
		outClient  ledger.Client
	)
	switch {
	case swap.TokenReceived == p.state.assetA:
		balanceIn, balanceOut, tokenOut, outClient = balA, balB, p.state.assetB, p.clientB
	case swap.TokenReceived == p.state.assetB:
		balanceIn, balanceOut, tokenOut, outClient = balB, balA, p.state.assetA, p.clientA
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAsset, swap.TokenReceived.Hex())
	}
	rec.TokenOut = tokenOut.Hex()

	quote, err := p.formula.AmountOut(balanceIn, balanceOut, swap.AmountReceived)
	if err != nil {
		return fmt.Errorf("price swap: %w", err)
	}
	rec.AmountOut = quote.AmountOut.Dec()

	err = outClient.Transfer(ctx, ledger.TransferRequest{
		Receiver: swap.Counterparty,
		Amount:   quote.AmountOut,
		Deposit:  uint256.NewInt(OutboundDeposit),
	})
	if err != nil {
		return fmt.Errorf("outbound transfer of %s: %w", tokenOut.Hex(), err)
	}
	return nil
}

func decodeBalance(name string, res batch.Result[*uint256.Int]) (*uint256.Int, error) {
	if !res.OK() {
		return nil, fmt.Errorf("balance of %s: %w", name, res.Err)
	}
	bal, err := u128.Check(res.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s: %v", ledger.ErrMalformedResult, name, err)
	}
	return bal, nil
}

func (p *Pool) record(ctx context.Context, rec model.SwapRecord) {
	if p.journal == nil {
		return
	}
	if err := p.journal.PutSwap(ctx, rec); err != nil {
		p.logger.Warn("swap journal write failed", zap.String("swap_id", rec.ID), zap.Error(err))
	}
}
