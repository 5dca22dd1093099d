package reader

import (
	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/resource"
)

// ResourceAwareItemReader は SetResource で与えられた Resource からアイテムを読み込む ItemReader です。
// ZipMultiResourceItemReader はアーカイブ内のエントリごとにこのインターフェースを介してデリゲートを再利用します。
type ResourceAwareItemReader[T any] interface {
	core.ItemReader[T]
	SetResource(res resource.Resource)
}
