// Package database はチャンクのトランザクションで使用するデータベース接続を抽象化します。
package database

import (
	"context"
	"database/sql"
)

// Tx はデータベーストランザクションのインターフェースです。
// *sql.Tx はこのインターフェースを満たします。テストでは記録用の実装に差し替えます。
type Tx interface {
	Commit() error
	Rollback() error
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DBConnection はデータベース接続のインターフェースです。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqlDBAdapter は *sql.DB を DBConnection に適合させるアダプターです。
// BeginTx の戻り値の型だけが *sql.DB と異なります。
type sqlDBAdapter struct {
	*sql.DB
}

// NewSQLDBAdapter は *sql.DB を DBConnection としてラップします。
func NewSQLDBAdapter(db *sql.DB) DBConnection {
	return &sqlDBAdapter{DB: db}
}

// BeginTx はトランザクションを開始し、database.Tx として返します。
func (a *sqlDBAdapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := a.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

var (
	_ Tx           = (*sql.Tx)(nil)
	_ DBConnection = (*sqlDBAdapter)(nil)
)
