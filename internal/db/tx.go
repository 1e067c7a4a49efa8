package db

import (
	"context"
	"database/sql"
	"sync"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Repositories take it via Conn.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

type txState struct {
	tx *sql.Tx

	mu          sync.Mutex
	afterCommit []func()
}

// TxManager runs functions inside a database transaction carried on the context.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager over db.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTx runs fn with a context carrying a new transaction and commits if fn returns nil.
// The transaction is rolled back when fn returns an error or panics. If ctx already carries a
// transaction, fn joins it and the outermost call decides commit or rollback.
// Hooks registered with AfterCommit run, in registration order, only after a successful commit.
func (tm *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	tx, err := tm.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	state := &txState{tx: tx}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, state))
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	state.mu.Lock()
	hooks := state.afterCommit
	state.afterCommit = nil
	state.mu.Unlock()
	for _, h := range hooks {
		h()
	}
	return nil
}

// Conn returns the transaction on ctx if there is one, otherwise db.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if s, ok := ctx.Value(txKey{}).(*txState); ok && s != nil {
		return s.tx
	}
	return db
}

// AfterCommit registers fn to run after the transaction on ctx commits and reports whether it
// was registered. It returns false when ctx carries no transaction; the caller should then run fn itself.
// Hooks are discarded on rollback.
func AfterCommit(ctx context.Context, fn func()) bool {
	s, ok := ctx.Value(txKey{}).(*txState)
	if !ok || s == nil {
		return false
	}
	s.mu.Lock()
	s.afterCommit = append(s.afterCommit, fn)
	s.mu.Unlock()
	return true
}

func inTx(ctx context.Context) bool {
	s, ok := ctx.Value(txKey{}).(*txState)
	return ok && s != nil
}

// WithoutTx returns ctx with any transaction hidden, for work that must not join or wait for it.
func WithoutTx(ctx context.Context) context.Context {
	if !inTx(ctx) {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, (*txState)(nil))
}
