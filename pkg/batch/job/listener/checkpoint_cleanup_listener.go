package listener

import (
	"context"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/repository"
	"zipbatch/pkg/batch/util/logger"
)

// CheckpointCleanupListener はジョブが正常に完了した場合にチェックポイントを削除します。
// 失敗または停止した場合、チェックポイントは次回の実行のために残されます。
type CheckpointCleanupListener struct {
	repo repository.ExecutionContextRepository
}

// NewCheckpointCleanupListener は新しい CheckpointCleanupListener のインスタンスを作成します。
func NewCheckpointCleanupListener(repo repository.ExecutionContextRepository) *CheckpointCleanupListener {
	return &CheckpointCleanupListener{repo: repo}
}

// BeforeJob は何もしません。
func (l *CheckpointCleanupListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {}

// AfterJob はジョブが COMPLETED の場合にチェックポイントを削除します。
func (l *CheckpointCleanupListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	if jobExecution.Status != core.BatchStatusCompleted {
		logger.Infof("Job '%s' は %s で終了したため、チェックポイントを残します。", jobExecution.JobName, jobExecution.Status)
		return
	}
	if err := l.repo.Delete(context.WithoutCancel(ctx)); err != nil {
		logger.Warnf("チェックポイントの削除に失敗しました: %v", err)
	}
}

var _ core.JobExecutionListener = (*CheckpointCleanupListener)(nil)
