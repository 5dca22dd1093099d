package listener

import (
	"context"
	"time"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/logger"
)

// LoggingStepExecutionListener はステップの開始と終了、および処理件数をログに出力します。
type LoggingStepExecutionListener struct{}

// NewLoggingStepExecutionListener は新しい LoggingStepExecutionListener のインスタンスを作成します。
func NewLoggingStepExecutionListener() *LoggingStepExecutionListener {
	return &LoggingStepExecutionListener{}
}

// BeforeStep はステップ開始時に呼び出されます。
func (l *LoggingStepExecutionListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' (ID: %s) を開始します。", stepExecution.StepName, stepExecution.ID)
}

// AfterStep はステップ終了時に呼び出されます。
func (l *LoggingStepExecutionListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	end := stepExecution.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	logger.Infof("ステップ '%s' が終了しました。ステータス: %s, 読み込み: %d, フィルタ: %d, 書き込み: %d, コミット: %d, ロールバック: %d, 所要時間: %s",
		stepExecution.StepName, stepExecution.Status, stepExecution.ReadCount, stepExecution.FilterCount,
		stepExecution.WriteCount, stepExecution.CommitCount, stepExecution.RollbackCount, end.Sub(stepExecution.StartTime))
}

var _ core.StepExecutionListener = (*LoggingStepExecutionListener)(nil)
