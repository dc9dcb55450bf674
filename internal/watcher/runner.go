// Package watcher turns token Transfer logs addressed to the relay into
// transfer notifications for the pool.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"swapRelay/internal/ledger"
	"swapRelay/internal/ledger/erc20"
)

// LogSource is the subset of the chain client the watcher reads from.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// BlockClock is implemented by sources that can report block times.
type BlockClock interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// RunConfig holds runtime settings for the watcher.
type RunConfig struct {
	FromBlock uint64
	// ToBlock of zero follows the chain head.
	ToBlock   uint64
	Tokens    []common.Address
	Relay     common.Address
	BatchSize uint64
	// PollInterval of zero stops after catching up once.
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner polls Transfer logs and delivers them to the receiver.
type Runner struct {
	cfg        RunConfig
	source     LogSource
	receiver   ledger.Receiver
	resolver   ledger.Resolver
	checkpoint Checkpointer
	logger     *zap.Logger
	// seen maps delivered log IDs to their block until the range is done.
	seen map[string]uint64
}

// NewRunner builds a Runner. resolver is used to return refunds and
// checkpoint may be nil.
func NewRunner(cfg RunConfig, source LogSource, receiver ledger.Receiver, resolver ledger.Resolver, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		receiver:   receiver,
		resolver:   resolver,
		checkpoint: checkpoint,
		logger:     logger,
		seen:       make(map[string]uint64),
	}
}

// Run executes the watch loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("log source is nil")
	}
	if r.receiver == nil {
		return fmt.Errorf("receiver is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Tokens) == 0 {
		return fmt.Errorf("at least one token is required")
	}
	topic, err := erc20.TransferTopic()
	if err != nil {
		return fmt.Errorf("transfer topic: %w", err)
	}
	topics := [][]common.Hash{{topic}, nil, {common.BytesToHash(r.cfg.Relay.Bytes())}}

	from := r.cfg.FromBlock
	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	for {
		to := r.cfg.ToBlock
		if to == 0 {
			latest, err := retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, r.source.LatestBlockNumber)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			to = latest
		}

		if from <= to {
			next, err := r.sync(ctx, from, to, topics)
			if err != nil {
				return err
			}
			from = next
		} else {
			r.logger.Debug("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		}

		if r.cfg.ToBlock != 0 || r.cfg.PollInterval <= 0 {
			return nil
		}

		timer := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// sync processes [from, to] and returns the next block to read.
func (r *Runner) sync(ctx context.Context, from, to uint64, topics [][]common.Hash) (uint64, error) {
	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return from, err
	}

	for _, blockRange := range ranges {
		blockRange := blockRange
		select {
		case <-ctx.Done():
			return blockRange.From, ctx.Err()
		default:
		}

		logs, err := retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) ([]types.Log, error) {
			logs, err := r.source.FilterLogs(ctx, blockRange.From, blockRange.To, r.cfg.Tokens, topics)
			if err != nil {
				r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
			}
			return logs, err
		})
		if err != nil {
			return blockRange.From, fmt.Errorf("filter logs: %w", err)
		}

		delivered := 0
		for _, lg := range logs {
			if r.isDuplicate(lg) || lg.Removed {
				continue
			}
			if err := r.deliver(ctx, lg); err != nil {
				return blockRange.From, err
			}
			delivered++
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return blockRange.From, err
			}
		}
		r.forget(blockRange.To)
		r.logger.Info("batch complete", zap.Int("transfers", delivered), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return to + 1, nil
}

// deliver notifies the receiver of one transfer and waits for the swap to
// settle, so outbound transfers are sent one at a time. Swap failures are
// logged; only context errors stop the watcher.
func (r *Runner) deliver(ctx context.Context, lg types.Log) error {
	transfer, err := erc20.DecodeTransferLog(lg)
	if err != nil {
		r.logger.Warn("skip undecodable transfer log", zap.String("tx", lg.TxHash.Hex()), zap.Uint("log_index", lg.Index), zap.Error(err))
		return nil
	}
	if transfer.To != r.cfg.Relay {
		return nil
	}
	if transfer.From == (common.Address{}) {
		r.logger.Info("skip mint to relay", zap.String("token", transfer.Token.Hex()), zap.String("amount", transfer.Value.Dec()))
		return nil
	}

	inbound := transfer.Inbound()
	inbound.BlockTime = r.blockTime(ctx, lg.BlockNumber)

	future, err := r.receiver.OnTransfer(ctx, inbound)
	if err != nil {
		r.logger.Warn("transfer rejected", zap.String("tx", lg.TxHash.Hex()), zap.Error(err))
		return nil
	}

	refund, err := future.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("swap failed, deposit kept by relay",
			zap.String("tx", lg.TxHash.Hex()),
			zap.String("sender", transfer.From.Hex()),
			zap.Error(err),
		)
		return nil
	}
	return r.refund(ctx, transfer, refund)
}

// blockTime returns the block timestamp, or 0 when the source cannot
// report it.
func (r *Runner) blockTime(ctx context.Context, number uint64) uint64 {
	clock, ok := r.source.(BlockClock)
	if !ok {
		return 0
	}
	ts, err := retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) (uint64, error) {
		return clock.BlockTimestamp(ctx, number)
	})
	if err != nil {
		r.logger.Warn("block timestamp unavailable", zap.Uint64("block", number), zap.Error(err))
		return 0
	}
	return ts
}

func (r *Runner) refund(ctx context.Context, transfer erc20.TransferLog, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if amount.Gt(transfer.Value) {
		amount = transfer.Value
	}
	if r.resolver == nil {
		r.logger.Warn("refund requested but no resolver configured", zap.String("amount", amount.Dec()))
		return nil
	}
	client, err := r.resolver.Ledger(transfer.Token)
	if err != nil {
		return fmt.Errorf("resolve refund ledger: %w", err)
	}
	if err := client.Transfer(ctx, ledger.TransferRequest{Receiver: transfer.From, Amount: amount}); err != nil {
		r.logger.Error("refund failed", zap.String("to", transfer.From.Hex()), zap.String("amount", amount.Dec()), zap.Error(err))
	}
	return nil
}

func (r *Runner) isDuplicate(lg types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", lg.BlockNumber, lg.TxHash.Hex(), lg.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = lg.BlockNumber
	return false
}

// forget drops dedupe entries for blocks that will not be read again.
func (r *Runner) forget(upTo uint64) {
	for id, block := range r.seen {
		if block <= upTo {
			delete(r.seen, id)
		}
	}
}
