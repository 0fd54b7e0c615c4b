package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moose-code/snubb/internal/model"
)

// Store persists reconciled approvals to Postgres, keyed by target address
// so repeated scans of the same wallet upsert in place.
type Store struct {
	pool   *pgxpool.Pool
	target string
}

func NewStore(ctx context.Context, dsn string, target string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, target: target}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the approvals table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS approvals (
			target_address TEXT NOT NULL,
			chain_id BIGINT NOT NULL,
			token_address TEXT NOT NULL,
			spender TEXT NOT NULL,
			approved_amount NUMERIC NOT NULL,
			transferred_amount NUMERIC NOT NULL,
			remaining_approval NUMERIC NOT NULL,
			is_unlimited BOOLEAN NOT NULL,
			block_number BIGINT NOT NULL,
			tx_hash TEXT NOT NULL,
			token_symbol TEXT,
			token_name TEXT,
			token_decimals SMALLINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (target_address, chain_id, token_address, spender)
		)
	`)
	return err
}

// PutApprovals upserts the report in one batch.
func (s *Store) PutApprovals(ctx context.Context, approvals []model.ReconciledApproval) error {
	if len(approvals) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range approvals {
		var symbol, name interface{}
		var decimals interface{}
		if a.Token != nil {
			symbol = a.Token.Symbol
			name = a.Token.Name
			decimals = int16(a.Token.Decimals)
		}
		batch.Queue(`
			INSERT INTO approvals (
				target_address, chain_id, token_address, spender,
				approved_amount, transferred_amount, remaining_approval,
				is_unlimited, block_number, tx_hash,
				token_symbol, token_name, token_decimals, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (target_address, chain_id, token_address, spender)
			DO UPDATE SET
				approved_amount = EXCLUDED.approved_amount,
				transferred_amount = EXCLUDED.transferred_amount,
				remaining_approval = EXCLUDED.remaining_approval,
				is_unlimited = EXCLUDED.is_unlimited,
				block_number = EXCLUDED.block_number,
				tx_hash = EXCLUDED.tx_hash,
				token_symbol = EXCLUDED.token_symbol,
				token_name = EXCLUDED.token_name,
				token_decimals = EXCLUDED.token_decimals,
				updated_at = now()
		`,
			s.target,
			int64(a.ChainID),
			a.TokenAddress,
			a.Spender,
			bigNumeric(a.ApprovedAmount),
			bigNumeric(a.TransferredAmount),
			bigNumeric(a.RemainingApproval),
			a.IsUnlimited,
			int64(a.BlockNumber),
			a.TxHash,
			symbol,
			name,
			decimals,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range approvals {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// bigNumeric passes amounts as decimal strings so NUMERIC columns keep full
// 256-bit precision.
func bigNumeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
