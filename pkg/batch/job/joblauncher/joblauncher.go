// Package joblauncher は JobExecution の作成とジョブの起動を行います。
package joblauncher

import (
	"context"
	"sync"

	core "zipbatch/pkg/batch/job/core"
	exception "zipbatch/pkg/batch/util/exception"
	logger "zipbatch/pkg/batch/util/logger"
)

// JobLauncher は Job を JobExecution とともに起動するためのインターフェースです。
type JobLauncher interface {
	// CreateExecution は JobParameters を加工し、新しい JobExecution を作成します。
	CreateExecution(jobName string, params core.JobParameters) *core.JobExecution
	// Launch はジョブを実行します。ここで返されるエラーはジョブの実行結果でもあり、
	// 詳細な状態は jobExecution に記録されます。
	Launch(ctx context.Context, job core.Job, jobExecution *core.JobExecution) error
}

// SimpleJobLauncher は JobLauncher の実装です。
// 実行中のジョブのキャンセル関数を保持し、Stop による停止要求を受け付けます。
type SimpleJobLauncher struct {
	incrementers           []core.JobParametersIncrementer
	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
func NewSimpleJobLauncher(incrementers ...core.JobParametersIncrementer) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		incrementers:           incrementers,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

// CreateExecution は登録された JobParametersIncrementer を順に適用した JobExecution を作成します。
func (l *SimpleJobLauncher) CreateExecution(jobName string, params core.JobParameters) *core.JobExecution {
	if params.Params == nil {
		params = core.NewJobParameters()
	}
	for _, inc := range l.incrementers {
		params = inc.GetNext(params)
	}
	return core.NewJobExecution(jobName, params)
}

// Launch はジョブを起動し、終了するまで待ちます。
func (l *SimpleJobLauncher) Launch(ctx context.Context, job core.Job, jobExecution *core.JobExecution) error {
	if job == nil || jobExecution == nil {
		return exception.NewInvalidStateError("job_launcher", "Job または JobExecution が nil です")
	}
	logger.Infof("JobLauncher を使用して Job '%s' (Execution ID: %s) を起動します。", job.JobName(), jobExecution.ID)

	runCtx, cancel := context.WithCancel(ctx)
	l.registerCancelFunc(jobExecution.ID, cancel)
	defer l.unregisterCancelFunc(jobExecution.ID)

	return job.Run(runCtx, jobExecution)
}

// Stop は実行中のジョブのコンテキストをキャンセルします。該当するジョブがない場合は false を返します。
func (l *SimpleJobLauncher) Stop(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancel, ok := l.activeJobCancellations[executionID]
	if ok {
		logger.Warnf("JobExecution (ID: %s) に停止を要求しました。", executionID)
		cancel()
	}
	return ok
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancelFunc
	logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録しました。", executionID)
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancelFunc, ok := l.activeJobCancellations[executionID]; ok {
		cancelFunc()
		delete(l.activeJobCancellations, executionID)
		logger.Debugf("JobExecution (ID: %s) の CancelFunc を登録解除しました。", executionID)
	}
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)
