// Package writer はチャンクステップが処理したアイテムを出力する ItemWriter を提供します。
package writer

import (
	"fmt"

	core "zipbatch/pkg/batch/job/core"
)

// Formatter はアイテムを 1 行のテキストに変換します。
type Formatter[T any] func(item T) string

// DefaultFormatter は fmt.Sprint でアイテムを文字列に変換します。
func DefaultFormatter[T any](item T) string {
	return fmt.Sprint(item)
}

func writtenCount(ec core.ExecutionContext, key string) int {
	if ec == nil {
		return 0
	}
	n, _ := ec.GetInt(key)
	return n
}
