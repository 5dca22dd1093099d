package writer

import (
	"context"
	"fmt"
	"strings"

	"zipbatch/pkg/batch/database"
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

const sqlWriterModule = "sql_writer"

// ArgsFunc はアイテムと通し番号 (1 始まり) から INSERT のパラメータを作成します。
type ArgsFunc[T any] func(item T, seq int) []any

// SQLItemWriter はアイテムごとに INSERT 文をチャンクのトランザクション内で実行します。
type SQLItemWriter[T any] struct {
	name    string
	query   string
	args    ArgsFunc[T]
	written int
	ec      core.ExecutionContext
}

// NewSQLItemWriter は新しい SQLItemWriter を作成します。
// dbType はプレースホルダの形式を決めるために使用します (postgres, redshift は $n、それ以外は ?)。
func NewSQLItemWriter[T any](name, dbType, table string, columns []string, args ArgsFunc[T]) *SQLItemWriter[T] {
	return &SQLItemWriter[T]{
		name:  name,
		query: BuildInsertQuery(dbType, table, columns),
		args:  args,
		ec:    core.NewExecutionContext(),
	}
}

// BuildInsertQuery はデータベースの種類に応じたプレースホルダを持つ INSERT 文を返します。
func BuildInsertQuery(dbType, table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		switch strings.ToLower(dbType) {
		case "postgres", "redshift":
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		default:
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

// Open は ExecutionContext から書き込み件数を復元します。
func (w *SQLItemWriter[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if w.args == nil {
		return exception.NewConfigurationError(sqlWriterModule, "ArgsFunc が設定されていません", nil)
	}
	if ec != nil {
		w.ec = ec
	}
	w.written = writtenCount(w.ec, w.countKey())
	return nil
}

// Write はアイテムごとに INSERT を実行します。tx が nil の場合は InvalidState エラーを返します。
// 実行に失敗した場合はリトライ可能なエラーを返し、チャンクはロールバックされます。
func (w *SQLItemWriter[T]) Write(ctx context.Context, tx database.Tx, items []T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if tx == nil {
		return exception.NewInvalidStateError(sqlWriterModule, "SQLItemWriter はトランザクションの中でのみ使用できます")
	}
	for i, item := range items {
		seq := w.written + i + 1
		if _, err := tx.ExecContext(ctx, w.query, w.args(item, seq)...); err != nil {
			return exception.NewBatchError(sqlWriterModule, fmt.Sprintf("%d 件目の INSERT に失敗しました", seq), err, true, false)
		}
	}
	w.written += len(items)
	logger.Debugf("SQLItemWriter '%s': %d 件を INSERT しました。", w.name, len(items))
	return nil
}

// Close は何もしません。接続の管理は呼び出し側が行います。
func (w *SQLItemWriter[T]) Close(ctx context.Context) error {
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (w *SQLItemWriter[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	w.ec = ec
	return nil
}

// GetExecutionContext は書き込み件数を保存した ExecutionContext を返します。
func (w *SQLItemWriter[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	if w.ec == nil {
		w.ec = core.NewExecutionContext()
	}
	w.ec.Put(w.countKey(), w.written)
	return w.ec, nil
}

func (w *SQLItemWriter[T]) countKey() string {
	return w.name + ".written.count"
}

var _ core.ItemWriter[string] = (*SQLItemWriter[string])(nil)
