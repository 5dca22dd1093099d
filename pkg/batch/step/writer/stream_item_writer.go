package writer

import (
	"bufio"
	"context"
	"io"

	"zipbatch/pkg/batch/database"
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

const streamWriterModule = "stream_writer"

// StreamItemWriter はアイテムを 1 行ずつ io.Writer に書き込みます。
// 出力はチャンクごとにフラッシュされます。トランザクションは使用しません。
type StreamItemWriter[T any] struct {
	name    string
	out     io.Writer
	format  Formatter[T]
	buf     *bufio.Writer
	written int
	ec      core.ExecutionContext
}

// NewStreamItemWriter は新しい StreamItemWriter を作成します。format が nil の場合は DefaultFormatter を使用します。
func NewStreamItemWriter[T any](name string, out io.Writer, format Formatter[T]) *StreamItemWriter[T] {
	if format == nil {
		format = DefaultFormatter[T]
	}
	return &StreamItemWriter[T]{
		name:   name,
		out:    out,
		format: format,
		ec:     core.NewExecutionContext(),
	}
}

// Open は出力バッファを準備し、ExecutionContext から書き込み件数を復元します。
func (w *StreamItemWriter[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if ec != nil {
		w.ec = ec
	}
	w.buf = bufio.NewWriter(w.out)
	w.written = writtenCount(w.ec, w.countKey())
	return nil
}

// Write はアイテムを書き込み、バッファをフラッシュします。tx は使用しません。
func (w *StreamItemWriter[T]) Write(ctx context.Context, tx database.Tx, items []T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if w.buf == nil {
		return exception.NewInvalidStateError(streamWriterModule, "Open の前に Write が呼び出されました")
	}
	for _, item := range items {
		if _, err := w.buf.WriteString(w.format(item)); err != nil {
			return exception.NewBatchError(streamWriterModule, "出力への書き込みに失敗しました", err, false, false)
		}
		if err := w.buf.WriteByte('\n'); err != nil {
			return exception.NewBatchError(streamWriterModule, "出力への書き込みに失敗しました", err, false, false)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return exception.NewBatchError(streamWriterModule, "出力のフラッシュに失敗しました", err, false, false)
	}
	w.written += len(items)
	logger.Debugf("StreamItemWriter '%s': %d 件を書き込みました。", w.name, len(items))
	return nil
}

// Close はバッファに残った出力をフラッシュします。
func (w *StreamItemWriter[T]) Close(ctx context.Context) error {
	if w.buf == nil {
		return nil
	}
	err := w.buf.Flush()
	w.buf = nil
	if err != nil {
		return exception.NewBatchError(streamWriterModule, "出力のフラッシュに失敗しました", err, false, false)
	}
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (w *StreamItemWriter[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	w.ec = ec
	return nil
}

// GetExecutionContext は書き込み件数を保存した ExecutionContext を返します。
func (w *StreamItemWriter[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	if w.ec == nil {
		w.ec = core.NewExecutionContext()
	}
	w.ec.Put(w.countKey(), w.written)
	return w.ec, nil
}

func (w *StreamItemWriter[T]) countKey() string {
	return w.name + ".written.count"
}

var _ core.ItemWriter[string] = (*StreamItemWriter[string])(nil)
