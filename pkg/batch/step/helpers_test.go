package step_test

import (
	"context"
	"database/sql"
	"io"

	"zipbatch/pkg/batch/database"
	core "zipbatch/pkg/batch/job/core"
)

// sliceReader はスライスの要素を順に返す ItemReader です。failAt 番目 (1 始まり) の Read で err を返します。
type sliceReader struct {
	items  []string
	pos    int
	failAt int
	err    error
	opened bool
	closed int
}

func (r *sliceReader) Open(ctx context.Context, ec core.ExecutionContext) error {
	r.opened = true
	return nil
}

func (r *sliceReader) Read(ctx context.Context) (string, error) {
	if r.failAt > 0 && r.pos+1 == r.failAt {
		return "", r.err
	}
	if r.pos >= len(r.items) {
		return "", io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *sliceReader) Close(ctx context.Context) error {
	r.closed++
	return nil
}

func (r *sliceReader) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}

func (r *sliceReader) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

// recordingWriter は Write に渡されたチャンクを記録する ItemWriter です。
// errs が残っている間は Write ごとに先頭のエラーを返します。
type recordingWriter struct {
	chunks [][]string
	txs    []database.Tx
	errs   []error
	closed int
}

func (w *recordingWriter) Open(ctx context.Context, ec core.ExecutionContext) error { return nil }

func (w *recordingWriter) Write(ctx context.Context, tx database.Tx, items []string) error {
	w.txs = append(w.txs, tx)
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		return err
	}
	w.chunks = append(w.chunks, append([]string(nil), items...))
	return nil
}

func (w *recordingWriter) Close(ctx context.Context) error {
	w.closed++
	return nil
}

func (w *recordingWriter) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	return nil
}

func (w *recordingWriter) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return core.NewExecutionContext(), nil
}

func (w *recordingWriter) all() []string {
	var out []string
	for _, c := range w.chunks {
		out = append(out, c...)
	}
	return out
}

// fakeDB はトランザクションの開始・コミット・ロールバックを数える DBConnection です。
type fakeDB struct {
	begun, commits, rollbacks int
}

func (d *fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (database.Tx, error) {
	d.begun++
	return &fakeTx{db: d}, nil
}
func (d *fakeDB) Close() error                          { return nil }
func (d *fakeDB) PingContext(ctx context.Context) error { return nil }
func (d *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) Commit() error {
	t.db.commits++
	return nil
}
func (t *fakeTx) Rollback() error {
	t.db.rollbacks++
	return nil
}
func (t *fakeTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, nil
}
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

type readErrorRecorder struct {
	errs []error
}

func (r *readErrorRecorder) OnReadError(ctx context.Context, err error) {
	r.errs = append(r.errs, err)
}

type retryRecorder struct {
	attempts []int
}

func (r *retryRecorder) OnRetryWrite(ctx context.Context, items []any, attempt int, err error) {
	r.attempts = append(r.attempts, attempt)
}
