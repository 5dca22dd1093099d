// Package runner は登録されたステップを順に実行する Job の実装を提供します。
package runner

import (
	"context"
	"errors"
	"time"

	core "zipbatch/pkg/batch/job/core"
	"zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

// SimpleJob はステップを登録順に実行する core.Job の実装です。
// いずれかのステップが失敗した時点でジョブを終了し、残りのステップは実行しません。
type SimpleJob struct {
	name         string
	steps        []core.Step
	jobListeners []core.JobExecutionListener
}

// SimpleJob が core.Job インターフェースを満たすことを確認します。
var _ core.Job = (*SimpleJob)(nil)

// NewSimpleJob は新しい SimpleJob のインスタンスを作成します。
func NewSimpleJob(name string, steps ...core.Step) *SimpleJob {
	return &SimpleJob{name: name, steps: steps}
}

// JobName はジョブ名を返します。
func (j *SimpleJob) JobName() string {
	return j.name
}

// AddStep はステップを末尾に追加します。
func (j *SimpleJob) AddStep(s core.Step) {
	j.steps = append(j.steps, s)
}

// RegisterListener は JobExecutionListener を登録します。
func (j *SimpleJob) RegisterListener(l core.JobExecutionListener) {
	j.jobListeners = append(j.jobListeners, l)
}

// Run はジョブを実行し、結果を jobExecution に記録します。
func (j *SimpleJob) Run(ctx context.Context, jobExecution *core.JobExecution) (err error) {
	if jobExecution == nil {
		return exception.NewInvalidStateError("job_runner", "JobExecution が nil です")
	}
	if jobExecution.Status.IsFinished() {
		return exception.NewInvalidStateError("job_runner", "終了済みの JobExecution は再実行できません")
	}
	if len(j.steps) == 0 {
		return exception.NewConfigurationError("job_runner", "ジョブ '"+j.name+"' にステップが登録されていません", nil)
	}

	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。", j.name, jobExecution.ID)
	jobExecution.MarkAsStarted()
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	defer func() {
		if jobExecution.EndTime.IsZero() {
			jobExecution.EndTime = time.Now()
		}
		for _, l := range j.jobListeners {
			l.AfterJob(ctx, jobExecution)
		}
		logger.Infof("ジョブ '%s' (Execution ID: %s) が終了しました。最終ステータス: %s, 終了ステータス: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	for _, s := range j.steps {
		stepExecution := core.NewStepExecution(s.StepName(), jobExecution)
		if err := s.Execute(ctx, jobExecution, stepExecution); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				jobExecution.MarkAsStopped(err)
			} else {
				jobExecution.MarkAsFailed(err)
			}
			return err
		}
		jobExecution.ExecutionContext.Merge(stepExecution.ExecutionContext)
	}

	jobExecution.MarkAsCompleted()
	return nil
}
