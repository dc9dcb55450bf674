package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swapRelay/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_pools (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	owner TEXT NOT NULL,
	token_a TEXT NOT NULL,
	token_b TEXT NOT NULL,
	symbol_a TEXT NOT NULL DEFAULT '',
	symbol_b TEXT NOT NULL DEFAULT '',
	decimals_a SMALLINT NOT NULL DEFAULT 0,
	decimals_b SMALLINT NOT NULL DEFAULT 0,
	formula TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS relay_swaps (
	id UUID PRIMARY KEY,
	counterparty TEXT NOT NULL,
	token_in TEXT NOT NULL,
	token_out TEXT NOT NULL DEFAULT '',
	amount_in NUMERIC(39, 0) NOT NULL,
	amount_out NUMERIC(39, 0),
	balance_a NUMERIC(39, 0),
	balance_b NUMERIC(39, 0),
	formula TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	inbound_tx_hash TEXT NOT NULL DEFAULT '',
	inbound_block BIGINT NOT NULL DEFAULT 0,
	inbound_time TIMESTAMPTZ,
	completed_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE relay_swaps ADD COLUMN IF NOT EXISTS inbound_time TIMESTAMPTZ;
CREATE TABLE IF NOT EXISTS relay_state (
	name TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for pools, swaps and watcher state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the relay tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPool inserts or updates the pool row.
func (s *Store) UpsertPool(ctx context.Context, pool model.PoolRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_pools (
			chain_id, pool_address, owner, token_a, token_b, symbol_a, symbol_b,
			decimals_a, decimals_b, formula, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (chain_id, pool_address)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			token_a = EXCLUDED.token_a,
			token_b = EXCLUDED.token_b,
			symbol_a = EXCLUDED.symbol_a,
			symbol_b = EXCLUDED.symbol_b,
			decimals_a = EXCLUDED.decimals_a,
			decimals_b = EXCLUDED.decimals_b,
			formula = EXCLUDED.formula,
			updated_at = now()
	`,
		int64(pool.ChainID),
		pool.Address,
		pool.Owner,
		pool.TokenA,
		pool.TokenB,
		pool.SymbolA,
		pool.SymbolB,
		int16(pool.DecimalsA),
		int16(pool.DecimalsB),
		pool.Formula,
	)
	return err
}

// PutSwap stores one swap record; replays of the same ID are ignored.
func (s *Store) PutSwap(ctx context.Context, rec model.SwapRecord) error {
	return s.PutSwaps(ctx, []model.SwapRecord{rec})
}

// PutSwaps stores swap records in one batch.
func (s *Store) PutSwaps(ctx context.Context, records []model.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO relay_swaps (
				id, counterparty, token_in, token_out, amount_in, amount_out, balance_a, balance_b,
				formula, status, error, inbound_tx_hash, inbound_block, inbound_time, completed_at
			) VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::numeric, NULLIF($7, '')::numeric, NULLIF($8, '')::numeric,
				$9, $10, $11, $12, $13, NULLIF($14, '')::timestamptz, $15::timestamptz)
			ON CONFLICT (id) DO NOTHING
		`,
			rec.ID,
			rec.Counterparty,
			rec.TokenIn,
			rec.TokenOut,
			rec.AmountIn,
			rec.AmountOut,
			rec.BalanceA,
			rec.BalanceB,
			rec.Formula,
			string(rec.Status),
			rec.Error,
			rec.InboundTxHash,
			int64(rec.InboundBlock),
			rec.InboundTime,
			rec.CompletedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM relay_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
