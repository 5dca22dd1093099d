package writer_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
)

type execCall struct {
	query string
	args  []any
}

// fakeTx は ExecContext の呼び出しを記録する database.Tx の実装です。
type fakeTx struct {
	calls  []execCall
	failAt int // 1 始まり。0 の場合は失敗しない
}

func (f *fakeTx) Commit() error   { return nil }
func (f *fakeTx) Rollback() error { return nil }
func (f *fakeTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, errors.New("not supported")
}
func (f *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, errors.New("connection reset")
	}
	return driver.RowsAffected(1), nil
}
func (f *fakeTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}
func (f *fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}
