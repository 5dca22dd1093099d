package listener

import (
	"context"
	"errors"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	"zipbatch/pkg/batch/util/logger"
)

// LoggingItemReadListener はアイテム読み込みエラーイベントをログ出力する ItemReadListener の実装です。
type LoggingItemReadListener struct{}

// NewLoggingItemReadListener は新しい LoggingItemReadListener のインスタンスを作成します。
func NewLoggingItemReadListener() *LoggingItemReadListener {
	return &LoggingItemReadListener{}
}

// OnReadError は読み込みエラー時に呼び出されます。エラー種別ごとにメッセージを出し分けます。
func (l *LoggingItemReadListener) OnReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, exception.ErrResourceUnavailable):
		logger.Errorf("アーカイブまたはエントリを読み込めませんでした: %v", err)
	case errors.Is(err, exception.ErrDecode):
		logger.Errorf("エントリの内容をテキストとしてデコードできませんでした: %v", err)
	case errors.Is(err, exception.ErrInvalidState):
		logger.Errorf("Reader のライフサイクルに反する呼び出しが行われました: %v", err)
	default:
		logger.Errorf("アイテムの読み込み中にエラーが発生しました: %v", err)
	}
}

// LoggingItemReadListener が core.ItemReadListener インターフェースを満たすことを確認
var _ core.ItemReadListener = (*LoggingItemReadListener)(nil)
