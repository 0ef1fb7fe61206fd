package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// Tx is the handle WithTx passes to its callback.
type Tx interface {
	Queryer
}

// Conn returns the transaction WithTx put in ctx, or db when there is none. Repositories
// route every statement through it so they join an enclosing transaction.
func Conn(ctx context.Context, db DB) Queryer {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// WithTx runs fn in a transaction and commits when it returns nil. Nested calls join the
// outer transaction; only the outermost call commits or rolls back.
func WithTx(ctx context.Context, db DB, fn func(ctx context.Context, tx Tx) error) (err error) {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx, tx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx), tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
