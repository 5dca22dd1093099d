package listener

import (
	"context"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/logger"
)

// LoggingRetryItemListener はアイテムレベルのリトライイベントをログ出力する RetryItemListener の実装です。
type LoggingRetryItemListener struct{}

// NewLoggingRetryItemListener は新しい LoggingRetryItemListener のインスタンスを作成します。
func NewLoggingRetryItemListener() *LoggingRetryItemListener {
	return &LoggingRetryItemListener{}
}

// OnRetryWrite は書き込みエラーがリトライされるときに呼び出されます。
func (l *LoggingRetryItemListener) OnRetryWrite(ctx context.Context, items []any, attempt int, err error) {
	logger.Warnf("アイテムの書き込みエラーがリトライされます (アイテム数: %d, 試行回数: %d): %v", len(items), attempt, err)
}

// LoggingRetryItemListener が RetryItemListener インターフェースを満たすことを確認
var _ core.RetryItemListener = (*LoggingRetryItemListener)(nil)
