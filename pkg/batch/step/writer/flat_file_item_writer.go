package writer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"zipbatch/pkg/batch/database"
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

const flatFileWriterModule = "flat_file_writer"

// FlatFileItemWriter はアイテムを 1 行ずつ afero.Fs 上のファイルに書き込みます。
//
// append が false の場合、Open は既存のファイルを切り詰めます。ただし ExecutionContext に
// 書き込み件数が保存されている場合はリスタートとみなし、既存のファイルに追記します。
type FlatFileItemWriter[T any] struct {
	name   string
	fs     afero.Fs
	path   string
	append bool
	format Formatter[T]

	file    afero.File
	buf     *bufio.Writer
	written int
	ec      core.ExecutionContext
}

// NewFlatFileItemWriter は新しい FlatFileItemWriter を作成します。
func NewFlatFileItemWriter[T any](name string, fs afero.Fs, path string, appendMode bool, format Formatter[T]) *FlatFileItemWriter[T] {
	if format == nil {
		format = DefaultFormatter[T]
	}
	return &FlatFileItemWriter[T]{
		name:   name,
		fs:     fs,
		path:   path,
		append: appendMode,
		format: format,
		ec:     core.NewExecutionContext(),
	}
}

// Open は出力ファイルを開きます。親ディレクトリが存在しない場合は作成します。
func (w *FlatFileItemWriter[T]) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if w.file != nil {
		return exception.NewInvalidStateError(flatFileWriterModule, "FlatFileItemWriter は既にオープンされています")
	}
	if ec != nil {
		w.ec = ec
	}
	w.written = writtenCount(w.ec, w.countKey())

	if dir := filepath.Dir(w.path); dir != "." && dir != "" {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return exception.NewResourceUnavailableError(flatFileWriterModule, fmt.Sprintf("ディレクトリ '%s' の作成に失敗しました", dir), err)
		}
	}

	flag := os.O_CREATE | os.O_WRONLY
	if w.append || w.written > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	f, err := w.fs.OpenFile(w.path, flag, 0o644)
	if err != nil {
		return exception.NewResourceUnavailableError(flatFileWriterModule, fmt.Sprintf("出力ファイル '%s' を開けませんでした", w.path), err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	logger.Debugf("FlatFileItemWriter '%s': '%s' を開きました。既存の書き込み件数: %d", w.name, w.path, w.written)
	return nil
}

// Write はアイテムを書き込み、チャンクの終わりにフラッシュします。tx は使用しません。
func (w *FlatFileItemWriter[T]) Write(ctx context.Context, tx database.Tx, items []T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if w.buf == nil {
		return exception.NewInvalidStateError(flatFileWriterModule, "Open の前に Write が呼び出されました")
	}
	for _, item := range items {
		if _, err := w.buf.WriteString(w.format(item) + "\n"); err != nil {
			return exception.NewResourceUnavailableError(flatFileWriterModule, fmt.Sprintf("'%s' への書き込みに失敗しました", w.path), err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return exception.NewResourceUnavailableError(flatFileWriterModule, fmt.Sprintf("'%s' のフラッシュに失敗しました", w.path), err)
	}
	w.written += len(items)
	return nil
}

// Close はバッファをフラッシュしてファイルを閉じます。複数回呼び出しても安全です。
func (w *FlatFileItemWriter[T]) Close(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	w.buf = nil
	if flushErr != nil {
		return exception.NewResourceUnavailableError(flatFileWriterModule, fmt.Sprintf("'%s' のフラッシュに失敗しました", w.path), flushErr)
	}
	if closeErr != nil {
		return exception.NewResourceUnavailableError(flatFileWriterModule, fmt.Sprintf("'%s' のクローズに失敗しました", w.path), closeErr)
	}
	logger.Debugf("FlatFileItemWriter '%s': '%s' を閉じました。書き込み件数: %d", w.name, w.path, w.written)
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (w *FlatFileItemWriter[T]) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	w.ec = ec
	return nil
}

// GetExecutionContext は書き込み件数を保存した ExecutionContext を返します。
func (w *FlatFileItemWriter[T]) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	if w.ec == nil {
		w.ec = core.NewExecutionContext()
	}
	w.ec.Put(w.countKey(), w.written)
	return w.ec, nil
}

func (w *FlatFileItemWriter[T]) countKey() string {
	return w.name + ".written.count"
}

var _ core.ItemWriter[string] = (*FlatFileItemWriter[string])(nil)
