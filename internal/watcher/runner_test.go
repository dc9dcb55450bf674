package watcher

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapRelay/internal/batch"
	"swapRelay/internal/ledger"
	"swapRelay/internal/ledger/erc20"
	"swapRelay/internal/ledger/memledger"
	"swapRelay/internal/model"
	"swapRelay/internal/pool"
	"swapRelay/internal/pricing"
	"swapRelay/internal/u128"
)

var (
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a1ce0")
	relay  = common.HexToAddress("0x0000000000000000000000000000000000005e1f")
	tokenA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

type fakeSource struct {
	mu      sync.Mutex
	latest  uint64
	logs    []types.Log
	fail    int
	queries []BlockRange
}

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("rpc timeout")
	}
	f.queries = append(f.queries, BlockRange{From: from, To: to})

	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !containsAddress(addresses, lg.Address) {
			continue
		}
		if len(topics) > 2 && len(topics[2]) > 0 && lg.Topics[2] != topics[2][0] {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func transferLog(t *testing.T, token, from, to common.Address, value uint64, block uint64, index uint) types.Log {
	t.Helper()
	parsed, err := erc20.TokenABI()
	require.NoError(t, err)
	event := parsed.Events["Transfer"]
	data, err := event.Inputs.NonIndexed().Pack(new(big.Int).SetUint64(value))
	require.NoError(t, err)
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{event.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
		Index:       index,
	}
}

type relayFixture struct {
	pool *pool.Pool
	ledA *memledger.Ledger
	ledB *memledger.Ledger
	reg  *memledger.Registry
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	ledA := memledger.New(tokenA, model.TokenMeta{Symbol: "TKA"}, nil)
	ledB := memledger.New(tokenB, model.TokenMeta{Symbol: "TKB"}, nil)
	reg := memledger.NewRegistry(ledA, ledB)
	p, err := pool.New(context.Background(), pool.Options{
		Owner:    owner.Hex(),
		AssetA:   tokenA.Hex(),
		AssetB:   tokenB.Hex(),
		Self:     relay,
		Resolver: reg.Resolver(relay),
		Formula:  pricing.FormulaInvariant,
	})
	require.NoError(t, err)
	return &relayFixture{pool: p, ledA: ledA, ledB: ledB, reg: reg}
}

func TestRunnerDeliversTransfers(t *testing.T) {
	f := newRelayFixture(t)
	// balances as the chain reports them after alice's deposit
	require.NoError(t, f.ledA.Mint(relay, u128.From(1100)))
	require.NoError(t, f.ledB.Mint(relay, u128.From(500)))

	deposit := transferLog(t, tokenA, alice, relay, 100, 12, 0)
	source := &fakeSource{
		latest: 20,
		fail:   1,
		logs: []types.Log{
			deposit,
			deposit, // replayed by the node
			transferLog(t, tokenA, common.Address{}, relay, 5, 13, 0),
			transferLog(t, tokenA, alice, owner, 7, 14, 0),
		},
	}
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"))

	runner := NewRunner(RunConfig{
		FromBlock:    10,
		Tokens:       []common.Address{tokenA, tokenB},
		Relay:        relay,
		BatchSize:    5,
		MaxRetries:   2,
		RetryBackoff: 1,
	}, source, f.pool, f.reg.Resolver(relay), checkpoint, nil)

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, uint64(46), f.ledB.Balance(alice).Uint64())
	assert.Equal(t, []BlockRange{{From: 10, To: 14}, {From: 15, To: 19}, {From: 20, To: 20}}, source.queries)

	last, ok, err := checkpoint.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(20), last)
}

type clockSource struct {
	*fakeSource
	times map[uint64]uint64
}

func (c clockSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	ts, ok := c.times[number]
	if !ok {
		return 0, errors.New("unknown block")
	}
	return ts, nil
}

type recordingReceiver struct {
	got []model.InboundTransfer
}

func (r *recordingReceiver) OnTransfer(_ context.Context, in model.InboundTransfer) (*batch.Future[*uint256.Int], error) {
	r.got = append(r.got, in)
	return batch.Resolved(u128.Zero()), nil
}

func TestRunnerStampsBlockTime(t *testing.T) {
	source := clockSource{
		fakeSource: &fakeSource{
			latest: 9,
			logs: []types.Log{
				transferLog(t, tokenA, alice, relay, 10, 3, 0),
				transferLog(t, tokenA, alice, relay, 10, 8, 0),
			},
		},
		times: map[uint64]uint64{3: 1700000000},
	}
	receiver := &recordingReceiver{}
	runner := NewRunner(RunConfig{
		Tokens:       []common.Address{tokenA},
		Relay:        relay,
		BatchSize:    5,
		RetryBackoff: 1,
	}, source, receiver, nil, nil, nil)

	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, receiver.got, 2)
	assert.Equal(t, uint64(1700000000), receiver.got[0].BlockTime)
	// unknown timestamps do not block delivery
	assert.Zero(t, receiver.got[1].BlockTime)
}

func TestRunnerForgetsDeliveredLogs(t *testing.T) {
	deposit := transferLog(t, tokenA, alice, relay, 10, 2, 0)
	source := &fakeSource{latest: 7, logs: []types.Log{deposit, deposit}}
	receiver := &recordingReceiver{}
	runner := NewRunner(RunConfig{
		Tokens:    []common.Address{tokenA},
		Relay:     relay,
		BatchSize: 4,
	}, source, receiver, nil, nil, nil)

	require.NoError(t, runner.Run(context.Background()))
	assert.Len(t, receiver.got, 1)
	assert.Empty(t, runner.seen)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	f := newRelayFixture(t)
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"))
	require.NoError(t, checkpoint.Save(context.Background(), 15))

	source := &fakeSource{latest: 18}
	runner := NewRunner(RunConfig{
		FromBlock: 10,
		Tokens:    []common.Address{tokenA, tokenB},
		Relay:     relay,
		BatchSize: 100,
	}, source, f.pool, nil, checkpoint, nil)

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, []BlockRange{{From: 16, To: 18}}, source.queries)
}

func TestRunnerKeepsGoingAfterFailedSwap(t *testing.T) {
	f := newRelayFixture(t)
	// empty B reserve makes every A deposit fail pricing
	require.NoError(t, f.ledA.Mint(relay, u128.From(1100)))

	source := &fakeSource{
		latest: 5,
		logs:   []types.Log{transferLog(t, tokenA, alice, relay, 100, 3, 0)},
	}
	runner := NewRunner(RunConfig{
		ToBlock:   5,
		Tokens:    []common.Address{tokenA, tokenB},
		Relay:     relay,
		BatchSize: 10,
	}, source, f.pool, nil, nil, nil)

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, uint64(1100), f.ledA.Balance(relay).Uint64())
	assert.True(t, f.ledB.Balance(alice).IsZero())
}

type refundingReceiver struct {
	amount *uint256.Int
}

func (r refundingReceiver) OnTransfer(context.Context, model.InboundTransfer) (*batch.Future[*uint256.Int], error) {
	return batch.Resolved(r.amount), nil
}

func TestRunnerReturnsRefunds(t *testing.T) {
	f := newRelayFixture(t)
	require.NoError(t, f.ledA.Mint(relay, u128.From(100)))

	source := &fakeSource{
		latest: 1,
		logs:   []types.Log{transferLog(t, tokenA, alice, relay, 100, 1, 0)},
	}
	runner := NewRunner(RunConfig{
		Tokens:    []common.Address{tokenA},
		Relay:     relay,
		BatchSize: 10,
	}, source, refundingReceiver{amount: u128.From(250)}, f.reg.Resolver(relay), nil, nil)

	require.NoError(t, runner.Run(context.Background()))
	// capped at the deposited amount
	assert.Equal(t, uint64(100), f.ledA.Balance(alice).Uint64())
	assert.True(t, f.ledA.Balance(relay).IsZero())
}

func TestRunnerValidatesConfig(t *testing.T) {
	f := newRelayFixture(t)
	source := &fakeSource{}

	err := NewRunner(RunConfig{Tokens: []common.Address{tokenA}}, source, f.pool, nil, nil, nil).Run(context.Background())
	require.Error(t, err)

	err = NewRunner(RunConfig{BatchSize: 1}, source, f.pool, nil, nil, nil).Run(context.Background())
	require.Error(t, err)

	var receiver ledger.Receiver
	err = NewRunner(RunConfig{BatchSize: 1, Tokens: []common.Address{tokenA}}, source, receiver, nil, nil, nil).Run(context.Background())
	require.Error(t, err)
}

type memState struct {
	values map[string]uint64
}

func (m *memState) LoadState(_ context.Context, name string) (uint64, bool, error) {
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memState) SaveState(_ context.Context, name string, block uint64) error {
	m.values[name] = block
	return nil
}

func TestStoreCheckpoint(t *testing.T) {
	state := &memState{values: map[string]uint64{}}
	cp := NewStoreCheckpoint(state, "relay")

	_, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cp.Save(context.Background(), 42))
	last, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), last)
	assert.Equal(t, uint64(42), state.values["relay"])
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" " + tokenA.Hex(), "", tokenB.Hex()})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{tokenA, tokenB}, got)

	_, err = ParseAddresses([]string{"0xnope"})
	require.Error(t, err)
}
