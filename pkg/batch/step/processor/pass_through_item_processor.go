// Package processor はチャンクステップで読み込んだアイテムを加工する ItemProcessor を提供します。
package processor

import (
	"context"

	core "zipbatch/pkg/batch/job/core"
)

// PassThroughItemProcessor はアイテムを変更せずにそのまま返す ItemProcessor です。
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor は新しい PassThroughItemProcessor を作成します。
func NewPassThroughItemProcessor[T any]() *PassThroughItemProcessor[T] {
	return &PassThroughItemProcessor[T]{}
}

// Process は item をそのまま返します。
func (p *PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	default:
	}
	return item, nil
}

var _ core.ItemProcessor[string, string] = (*PassThroughItemProcessor[string])(nil)
