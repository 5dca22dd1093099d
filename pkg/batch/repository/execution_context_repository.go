package repository

import (
	"context"

	core "zipbatch/pkg/batch/job/core"
)

// ExecutionContextRepository はステップの ExecutionContext をチェックポイントとして永続化します。
// ジョブが失敗した場合、次回の実行は保存された ExecutionContext から Reader の状態を復元します。
type ExecutionContextRepository interface {
	// Load は jobName と stepName に対応する保存済みの ExecutionContext を返します。
	// チェックポイントが存在しない場合は空の ExecutionContext を返します。
	Load(ctx context.Context, jobName, stepName string) (core.ExecutionContext, error)
	// Save は StepExecution の ExecutionContext を保存します。
	Save(ctx context.Context, stepExecution *core.StepExecution) error
	// Delete は保存済みのチェックポイントを削除します。存在しない場合は何もしません。
	Delete(ctx context.Context) error
}
