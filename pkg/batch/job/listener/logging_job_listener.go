// Package listener はジョブの実行ライフサイクルに関する JobExecutionListener を提供します。
package listener

import (
	"context"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了、各ステップの処理件数をログに出力します。
type LoggingJobListener struct{}

// NewLoggingJobListener は新しい LoggingJobListener のインスタンスを作成します。
func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

// BeforeJob はジョブの実行が開始される直前に呼び出されます。
func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("Job '%s' の実行を開始します。", jobExecution.JobName)
}

// AfterJob はジョブの実行が完了した後に呼び出されます。成功・失敗に関わらず呼び出されます。
func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	if len(jobExecution.Failures) > 0 {
		logger.Errorf("Job '%s' がエラーで完了しました (ステータス: %s): %v",
			jobExecution.JobName, jobExecution.Status, jobExecution.Failures[len(jobExecution.Failures)-1])
	} else {
		logger.Infof("Job '%s' の実行が正常に完了しました。", jobExecution.JobName)
	}
	for _, se := range jobExecution.StepExecutions {
		logger.Infof("  ステップ '%s': %s (読み込み %d, 書き込み %d, 除外 %d)",
			se.StepName, se.Status, se.ReadCount, se.WriteCount, se.FilterCount)
	}
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)
