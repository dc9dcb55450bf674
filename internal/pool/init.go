// Package pool implements a two-asset constant-product swap relay over
// external ledgers. Every remote interaction is a parallel batch followed by
// one aggregation callback.
package pool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapRelay/internal/batch"
	"swapRelay/internal/ledger"
	"swapRelay/internal/model"
	"swapRelay/internal/pricing"
)

// Journal records swap attempts. Write failures are logged, never returned
// to the ledger.
type Journal interface {
	PutSwap(ctx context.Context, rec model.SwapRecord) error
}

// Options configures New. Owner, AssetA and AssetB are hex identities.
type Options struct {
	Owner  string
	AssetA string
	AssetB string
	// Self is the pool's own account on both ledgers.
	Self     common.Address
	Resolver ledger.Resolver
	Formula  pricing.Formula
	Journal  Journal
	Logger   *zap.Logger
	Now      func() time.Time
}

// Pool orchestrates swaps between ledger A and ledger B.
type Pool struct {
	state   *State
	self    common.Address
	clientA ledger.Client
	clientB ledger.Client
	formula pricing.Formula
	journal Journal
	logger  *zap.Logger
	now     func() time.Time

	initialized *batch.Future[struct{}]
}

var _ ledger.Receiver = (*Pool)(nil)

// New validates the identities, starts fetching metadata from both ledgers
// in parallel and returns without waiting for it. Use Initialized to
// observe the outcome.
func New(ctx context.Context, opts Options) (*Pool, error) {
	owner, err := parseIdentity("owner", opts.Owner)
	if err != nil {
		return nil, err
	}
	assetA, err := parseIdentity("asset A", opts.AssetA)
	if err != nil {
		return nil, err
	}
	assetB, err := parseIdentity("asset B", opts.AssetB)
	if err != nil {
		return nil, err
	}
	if assetA == assetB {
		return nil, fmt.Errorf("%w: asset ledgers must differ, both are %s", ErrConstruction, assetA.Hex())
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("%w: ledger resolver is nil", ErrConstruction)
	}

	clientA, err := opts.Resolver.Ledger(assetA)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve asset A: %w", ErrConstruction, err)
	}
	clientB, err := opts.Resolver.Ledger(assetB)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve asset B: %w", ErrConstruction, err)
	}

	formula := opts.Formula
	if formula == "" {
		formula = pricing.DefaultFormula
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	p := &Pool{
		state:   newState(owner, assetA, assetB),
		self:    opts.Self,
		clientA: clientA,
		clientB: clientB,
		formula: formula,
		journal: opts.Journal,
		logger:  logger,
		now:     now,
	}

	calls := []batch.Call[model.TokenMeta]{clientA.FetchMetadata, clientB.FetchMetadata}
	p.initialized = batch.Then(ctx, calls, p.finalizeMetadata)

	logger.Info("pool created",
		zap.String("owner", owner.Hex()),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
		zap.String("formula", string(formula)),
	)
	return p, nil
}

func parseIdentity(role, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s %q", ErrMalformedIdentity, role, raw)
	}
	return common.HexToAddress(raw), nil
}

// finalizeMetadata runs once both metadata fetches settled. results[0] is
// always ledger A and results[1] ledger B.
func (p *Pool) finalizeMetadata(_ context.Context, results []batch.Result[model.TokenMeta]) (struct{}, error) {
	if len(results) != 2 {
		err := fmt.Errorf("%w: metadata batch returned %d results, want 2", ErrInvalidResultCount, len(results))
		p.state.fail(err)
		return struct{}{}, err
	}

	names := [2]string{"asset A " + p.state.assetA.Hex(), "asset B " + p.state.assetB.Hex()}
	for i, res := range results {
		if !res.OK() {
			err := fmt.Errorf("%w: fetch metadata for %s: %w", ErrConstruction, names[i], res.Err)
			p.state.fail(err)
			p.logger.Error("pool metadata initialization failed", zap.Error(err))
			return struct{}{}, err
		}
	}

	if !p.state.initialize(results[0].Value, results[1].Value) {
		return struct{}{}, fmt.Errorf("%w: metadata already finalized", ErrConstruction)
	}
	p.logger.Info("pool metadata initialized",
		zap.String("symbol_a", results[0].Value.Symbol),
		zap.String("symbol_b", results[1].Value.Symbol),
	)
	return struct{}{}, nil
}

// Initialized resolves when metadata initialization finished, with the
// construction error if it failed.
func (p *Pool) Initialized() *batch.Future[struct{}] {
	return p.initialized
}

// State exposes the pool record.
func (p *Pool) State() *State {
	return p.state
}

// Self returns the pool's account identity.
func (p *Pool) Self() common.Address {
	return p.self
}

// ReadMetadata returns both cached metadata records.
func (p *Pool) ReadMetadata() (model.TokenMeta, model.TokenMeta, error) {
	a, b := p.state.Metadata()
	if a == nil || b == nil {
		status, cause := p.state.Status()
		if cause != nil {
			return model.TokenMeta{}, model.TokenMeta{}, fmt.Errorf("%w (%s): %w", ErrNotInitialized, status, cause)
		}
		return model.TokenMeta{}, model.TokenMeta{}, fmt.Errorf("%w (%s)", ErrNotInitialized, status)
	}
	return *a, *b, nil
}

// MetadataTokens is the read-only query view of ReadMetadata.
func (p *Pool) MetadataTokens() (model.MetadataTokens, error) {
	a, b, err := p.ReadMetadata()
	if err != nil {
		return model.MetadataTokens{}, err
	}
	return model.MetadataTokens{TokenA: a, TokenB: b}, nil
}

// Status reports the metadata lifecycle and, when failed, its cause.
func (p *Pool) Status() (Status, error) {
	return p.state.Status()
}
