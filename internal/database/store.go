package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Store struct {
	pool *pgxpool.Pool
	*Queries
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		Queries: New(pool),
	}
}

func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}

// AddShares runs the grant and the updated_at bump in one transaction.
func (s *Store) AddShares(ctx context.Context, nodeID string, userIDs []int64) error {
	return s.ExecTx(ctx, func(q *Queries) error {
		return q.AddShares(ctx, nodeID, userIDs)
	})
}

// RemoveShare runs the revoke and the updated_at bump in one transaction.
func (s *Store) RemoveShare(ctx context.Context, nodeID string, userID int64) error {
	return s.ExecTx(ctx, func(q *Queries) error {
		return q.RemoveShare(ctx, nodeID, userID)
	})
}
